// Package balance reads native and ERC-20 balances for one wallet on one chain.
package balance

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/abbas-claw/dust-sweeper/internal/chains"
)

// ChainClient is the subset of ethclient.Client the reader needs.
type ChainClient interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

const (
	DefaultMaxBatch   = 100
	defaultMaxTries   = 3
	defaultRetryDelay = 200 * time.Millisecond
)

// Reader reads balances on a single chain.
type Reader struct {
	chainID    uint64
	client     ChainClient
	logger     *zap.Logger
	multicall  common.Address
	maxBatch   int
	maxTries   uint
	retryDelay time.Duration
}

type Option func(*Reader)

// WithMaxBatch caps the number of balanceOf calls per aggregate3 request.
func WithMaxBatch(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.maxBatch = n
		}
	}
}

// WithRetry sets how often a throttled RPC call is attempted and the initial
// backoff between attempts.
func WithRetry(tries uint, delay time.Duration) Option {
	return func(r *Reader) {
		if tries > 0 {
			r.maxTries = tries
		}
		if delay > 0 {
			r.retryDelay = delay
		}
	}
}

func NewReader(chainID uint64, client ChainClient, logger *zap.Logger, opts ...Option) *Reader {
	r := &Reader{
		chainID:    chainID,
		client:     client,
		logger:     logger.Named("balance").With(zap.Uint64("chain_id", chainID)),
		multicall:  Multicall3Address,
		maxBatch:   DefaultMaxBatch,
		maxTries:   defaultMaxTries,
		retryDelay: defaultRetryDelay,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// NativeBalance returns the wallet's native currency balance at the latest block.
func (r *Reader) NativeBalance(ctx context.Context, wallet common.Address) (*big.Int, error) {
	bal, err := withRetry(ctx, r, "eth_getBalance", func() (*big.Int, error) {
		return r.client.BalanceAt(ctx, wallet, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("native balance on chain %d: %w", r.chainID, err)
	}
	if bal == nil {
		return new(big.Int), nil
	}
	return bal, nil
}

// TokenBalances reads wallet's balance of every token through Multicall3. The
// result has one entry per input token, in input order; a token whose call
// fails reads as zero. An error means the whole batch failed.
func (r *Reader) TokenBalances(ctx context.Context, wallet common.Address, tokens []common.Address) ([]*big.Int, error) {
	out := make([]*big.Int, 0, len(tokens))
	for start := 0; start < len(tokens); start += r.maxBatch {
		end := min(start+r.maxBatch, len(tokens))
		chunk, err := r.readChunk(ctx, wallet, tokens[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}

func (r *Reader) readChunk(ctx context.Context, wallet common.Address, tokens []common.Address) ([]*big.Int, error) {
	data, err := packBalanceCalls(wallet, tokens)
	if err != nil {
		return nil, fmt.Errorf("encode aggregate3: %w", err)
	}
	to := r.multicall
	msg := ethereum.CallMsg{To: &to, Data: data}

	ret, err := withRetry(ctx, r, "aggregate3", func() ([]byte, error) {
		return r.client.CallContract(ctx, msg, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("multicall on chain %d: %w", r.chainID, err)
	}
	return unpackBalances(ret, len(tokens))
}

// Dial connects to a chain's RPC endpoint over a keep-alive HTTP client with
// the given request timeout.
func Dial(ctx context.Context, chain chains.Chain, timeout time.Duration) (*ethclient.Client, error) {
	transport := &http.Transport{
		MaxIdleConns:    100,
		IdleConnTimeout: 90 * time.Second,
	}
	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
	rpcClient, err := rpc.DialOptions(ctx, chain.RPCURL, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("dial %s rpc: %w", chain.Name, err)
	}
	return ethclient.NewClient(rpcClient), nil
}
