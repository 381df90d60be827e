// Package wallet signs and submits the transactions a sweep needs with a local
// private key.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// ChainClient is the subset of ethclient.Client needed to price, send and
// confirm a transaction.
type ChainClient interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// TxRequest is a transaction exactly as the routing service returned it.
type TxRequest struct {
	From    common.Address
	To      common.Address
	Data    []byte
	Value   *big.Int
	ChainID uint64
}

var ErrSenderMismatch = errors.New("wallet: sender does not match signing key")

type Config struct {
	TipGwei     int64
	BaseFeeMul  int64
	BufferPct   int64
	FallbackGas uint64
	WaitMined   bool
}

const defaultFallbackGas = 500_000

// LocalSigner signs with one key and submits through per-chain clients. Calls
// are serialized: one transaction at a time.
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
	clients map[uint64]ChainClient
	cfg     Config
	logger  *zap.Logger
	mu      sync.Mutex
}

func NewLocalSigner(key *ecdsa.PrivateKey, clients map[uint64]ChainClient, cfg Config, logger *zap.Logger) *LocalSigner {
	if cfg.BaseFeeMul <= 0 {
		cfg.BaseFeeMul = 2
	}
	if cfg.FallbackGas == 0 {
		cfg.FallbackGas = defaultFallbackGas
	}
	return &LocalSigner{
		key:     key,
		address: AddressOf(key),
		clients: clients,
		cfg:     cfg,
		logger:  logger.Named("wallet"),
	}
}

func (s *LocalSigner) Address() common.Address { return s.address }

// SendTransaction signs req and broadcasts it. To, Data and Value are used
// unchanged. With WaitMined set it returns only after the receipt is in and
// fails on a reverted transaction.
func (s *LocalSigner) SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	if req.From != (common.Address{}) && req.From != s.address {
		return common.Hash{}, fmt.Errorf("%w: %s", ErrSenderMismatch, req.From.Hex())
	}
	client, ok := s.clients[req.ChainID]
	if !ok {
		return common.Hash{}, fmt.Errorf("no rpc client for chain %d", req.ChainID)
	}
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logger.With(zap.Uint64("chain_id", req.ChainID), zap.String("to", req.To.Hex()))

	nonce, err := client.PendingNonceAt(ctx, s.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("nonce: %w", err)
	}

	to := req.To
	gas, err := client.EstimateGas(ctx, ethereum.CallMsg{From: s.address, To: &to, Value: value, Data: req.Data})
	if err != nil {
		log.Warn("gas estimate failed, using fallback limit",
			zap.Uint64("gas", s.cfg.FallbackGas), zap.String("reason", revertReason(err)))
		gas = s.cfg.FallbackGas
	} else if s.cfg.BufferPct > 0 {
		gas += gas * uint64(s.cfg.BufferPct) / 100
	}

	f, err := latestFees(ctx, client, s.cfg.BaseFeeMul, gweiToWei(s.cfg.TipGwei))
	if err != nil {
		return common.Hash{}, err
	}

	chainID := new(big.Int).SetUint64(req.ChainID)
	var tx *types.Transaction
	if f.gasPrice != nil {
		tx = buildLegacyTx(nonce, to, value, gas, f.gasPrice, req.Data)
	} else {
		tx = buildDynamicTx(chainID, nonce, to, value, gas, f.tip, f.feeCap, req.Data)
	}
	signed, err := signTx(tx, chainID, s.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign: %w", err)
	}
	if err := client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send: %w", err)
	}
	log.Info("transaction sent", zap.String("tx", signed.Hash().Hex()), zap.Uint64("nonce", nonce), zap.Uint64("gas", gas))

	if !s.cfg.WaitMined {
		return signed.Hash(), nil
	}
	receipt, err := bind.WaitMined(ctx, client, signed)
	if err != nil {
		return signed.Hash(), fmt.Errorf("wait for %s: %w", signed.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return signed.Hash(), fmt.Errorf("%w: %s", errReverted, signed.Hash().Hex())
	}
	return signed.Hash(), nil
}
