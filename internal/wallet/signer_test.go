package wallet

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClient struct {
	baseFee     *big.Int
	tip         *big.Int
	tipErr      error
	gasPrice    *big.Int
	gas         uint64
	estimateErr error
	nonce       uint64
	sendErr     error
	status      uint64
	sent        []*types.Transaction
}

func (f *fakeClient) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(100), BaseFee: f.baseFee}, nil
}

func (f *fakeClient) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeClient) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return f.gas, f.estimateErr
}

func (f *fakeClient) SuggestGasTipCap(context.Context) (*big.Int, error) { return f.tip, f.tipErr }

func (f *fakeClient) SuggestGasPrice(context.Context) (*big.Int, error) { return f.gasPrice, nil }

func (f *fakeClient) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeClient) TransactionReceipt(_ context.Context, h common.Hash) (*types.Receipt, error) {
	return &types.Receipt{TxHash: h, Status: f.status}, nil
}

func (f *fakeClient) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return nil, nil
}

var router = common.HexToAddress("0x2222222222222222222222222222222222222222")

func newSigner(t *testing.T, chainID uint64, fc *fakeClient, cfg Config) *LocalSigner {
	t.Helper()
	key, err := gethcrypto.GenerateKey()
	require.NoError(t, err)
	return NewLocalSigner(key, map[uint64]ChainClient{chainID: fc}, cfg, zap.NewNop())
}

func TestSendTransactionDynamicFee(t *testing.T) {
	fc := &fakeClient{baseFee: big.NewInt(10), tip: big.NewInt(3), gas: 100_000, nonce: 7, status: 1}
	s := newSigner(t, 8453, fc, Config{BaseFeeMul: 2, BufferPct: 20, WaitMined: true})

	data := []byte{0xde, 0xad, 0xbe, 0xef}
	hash, err := s.SendTransaction(context.Background(), TxRequest{
		From: s.Address(), To: router, Data: data, Value: big.NewInt(12), ChainID: 8453,
	})
	require.NoError(t, err)
	require.Len(t, fc.sent, 1)

	tx := fc.sent[0]
	assert.Equal(t, hash, tx.Hash())
	assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
	assert.Equal(t, router, *tx.To())
	assert.Equal(t, data, tx.Data())
	assert.Equal(t, int64(12), tx.Value().Int64())
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, uint64(120_000), tx.Gas())
	assert.Equal(t, int64(3), tx.GasTipCap().Int64())
	assert.Equal(t, int64(23), tx.GasFeeCap().Int64())
	assert.Equal(t, int64(8453), tx.ChainId().Int64())

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(8453)), tx)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), sender)
}

func TestSendTransactionTipFallbackAndGasFallback(t *testing.T) {
	fc := &fakeClient{baseFee: big.NewInt(1), tipErr: errors.New("method not found"), estimateErr: errors.New("execution reverted")}
	s := newSigner(t, 1, fc, Config{TipGwei: 2, BaseFeeMul: 2})

	_, err := s.SendTransaction(context.Background(), TxRequest{To: router, ChainID: 1})
	require.NoError(t, err)

	tx := fc.sent[0]
	assert.Equal(t, uint64(defaultFallbackGas), tx.Gas())
	assert.Equal(t, gweiToWei(2), tx.GasTipCap())
	assert.Equal(t, new(big.Int).Add(big.NewInt(2), gweiToWei(2)), tx.GasFeeCap())
	assert.Equal(t, 0, tx.Value().Sign())
}

func TestSendTransactionLegacyWhenNoBaseFee(t *testing.T) {
	fc := &fakeClient{gasPrice: big.NewInt(5_000_000_000), gas: 21_000}
	s := newSigner(t, 56, fc, Config{})

	_, err := s.SendTransaction(context.Background(), TxRequest{To: router, ChainID: 56, Value: big.NewInt(1)})
	require.NoError(t, err)

	tx := fc.sent[0]
	assert.Equal(t, uint8(types.LegacyTxType), tx.Type())
	assert.Equal(t, int64(5_000_000_000), tx.GasPrice().Int64())
	assert.Equal(t, int64(56), tx.ChainId().Int64())
}

func TestSendTransactionRejectsForeignSender(t *testing.T) {
	fc := &fakeClient{baseFee: big.NewInt(1), tip: big.NewInt(1), gas: 1}
	s := newSigner(t, 1, fc, Config{})

	_, err := s.SendTransaction(context.Background(), TxRequest{
		From: common.HexToAddress("0x9999999999999999999999999999999999999999"), To: router, ChainID: 1,
	})
	assert.ErrorIs(t, err, ErrSenderMismatch)
	assert.Empty(t, fc.sent)
}

func TestSendTransactionUnknownChain(t *testing.T) {
	s := newSigner(t, 1, &fakeClient{}, Config{})
	_, err := s.SendTransaction(context.Background(), TxRequest{To: router, ChainID: 10})
	assert.ErrorContains(t, err, "no rpc client for chain 10")
}

func TestSendTransactionReverted(t *testing.T) {
	fc := &fakeClient{baseFee: big.NewInt(1), tip: big.NewInt(1), gas: 50_000, status: types.ReceiptStatusFailed}
	s := newSigner(t, 1, fc, Config{WaitMined: true})

	hash, err := s.SendTransaction(context.Background(), TxRequest{To: router, ChainID: 1})
	assert.ErrorIs(t, err, errReverted)
	assert.NotEqual(t, common.Hash{}, hash)
}

func TestSendTransactionBroadcastError(t *testing.T) {
	fc := &fakeClient{baseFee: big.NewInt(1), tip: big.NewInt(1), gas: 50_000, sendErr: errors.New("insufficient funds for gas")}
	s := newSigner(t, 1, fc, Config{})

	_, err := s.SendTransaction(context.Background(), TxRequest{To: router, ChainID: 1})
	assert.ErrorContains(t, err, "insufficient funds")
}

func TestParsePrivateKey(t *testing.T) {
	key, err := gethcrypto.GenerateKey()
	require.NoError(t, err)
	hexKey := common.Bytes2Hex(gethcrypto.FromECDSA(key))

	for _, in := range []string{hexKey, "0x" + hexKey, "  0x" + hexKey + "\n"} {
		got, err := ParsePrivateKey(in)
		require.NoError(t, err)
		assert.Equal(t, AddressOf(key), AddressOf(got))
	}

	_, err = ParsePrivateKey("")
	assert.Error(t, err)
	_, err = ParsePrivateKey("0xzz")
	assert.Error(t, err)
}

func TestRevertReason(t *testing.T) {
	assert.Equal(t, "execution reverted: TRANSFER_FROM_FAILED",
		revertReason(errors.New("estimate gas: execution reverted: TRANSFER_FROM_FAILED")))
	assert.Equal(t, "insufficient funds", revertReason(errors.New("insufficient funds")))
}
