package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Build EIP-1559 transaction.
func buildDynamicTx(chain *big.Int, nonce uint64, to common.Address, value *big.Int, gasLimit uint64, tip, feeCap *big.Int, data []byte) *types.Transaction {
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   chain,
		Nonce:     nonce,
		Gas:       gasLimit,
		GasTipCap: new(big.Int).Set(tip),
		GasFeeCap: new(big.Int).Set(feeCap),
		To:        &to,
		Value:     new(big.Int).Set(value),
		Data:      data,
	})
}

// Build legacy transaction for chains without a base fee.
func buildLegacyTx(nonce uint64, to common.Address, value *big.Int, gasLimit uint64, gasPrice *big.Int, data []byte) *types.Transaction {
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		Gas:      gasLimit,
		GasPrice: new(big.Int).Set(gasPrice),
		To:       &to,
		Value:    new(big.Int).Set(value),
		Data:     data,
	})
}

// Sign transaction with latest signer for given chain ID.
func signTx(tx *types.Transaction, chain *big.Int, prv *ecdsa.PrivateKey) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chain), prv)
}

type fees struct {
	tip      *big.Int
	feeCap   *big.Int
	gasPrice *big.Int // set only when the chain has no base fee
}

// latestFees prices a transaction off the head block: feeCap = baseFee*mul + tip.
// The suggested tip is preferred; tipFallback covers nodes without
// eth_maxPriorityFeePerGas.
func latestFees(ctx context.Context, c ChainClient, baseMul int64, tipFallback *big.Int) (fees, error) {
	h, err := c.HeaderByNumber(ctx, nil)
	if err != nil {
		return fees{}, fmt.Errorf("head: %w", err)
	}
	if h.BaseFee == nil {
		gp, err := c.SuggestGasPrice(ctx)
		if err != nil {
			return fees{}, fmt.Errorf("gas price: %w", err)
		}
		return fees{gasPrice: gp}, nil
	}

	tip, err := c.SuggestGasTipCap(ctx)
	if err != nil || tip == nil {
		tip = new(big.Int).Set(tipFallback)
	}
	return fees{tip: tip, feeCap: addBig(mulBig(h.BaseFee, baseMul), tip)}, nil
}

var errReverted = errors.New("transaction reverted")

func revertReason(e error) string {
	s := e.Error()
	if i := strings.Index(s, "execution reverted"); i >= 0 {
		return s[i:]
	}
	return s
}
