package txorch

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/abhishek7776/cryptowallet/internal/chainpool"
	"github.com/abhishek7776/cryptowallet/internal/config"
	"github.com/abhishek7776/cryptowallet/internal/model"
	"github.com/abhishek7776/cryptowallet/internal/wei"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeChain scripts the chain-side behavior of one endpoint.
type fakeChain struct {
	mu sync.Mutex

	estimateGas uint64
	callErr     error
	baseFee     *big.Int
	tip         *big.Int
	gasPrice    *big.Int
	nonce       uint64
	sendErr     error

	sent          []*types.Transaction
	pendingByHash map[common.Hash]*types.Transaction
	minedByHash   map[common.Hash]*types.Transaction
	receiptStatus uint64
	noReceipt     bool
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		estimateGas:   21000,
		baseFee:       big.NewInt(1_000_000_000),
		tip:           big.NewInt(2_000_000_000),
		gasPrice:      big.NewInt(3_000_000_000),
		nonce:         7,
		receiptStatus: types.ReceiptStatusSuccessful,
		pendingByHash: map[common.Hash]*types.Transaction{},
	}
}

func (f *fakeChain) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return f.estimateGas, nil
}

func (f *fakeChain) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return nil, f.callErr
}

func (f *fakeChain) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeChain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeChain) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tx, ok := f.pendingByHash[hash]; ok {
		return tx, true, nil
	}
	if tx, ok := f.minedByHash[hash]; ok {
		return tx, false, nil
	}
	return nil, false, ethereum.NotFound
}

func (f *fakeChain) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.noReceipt {
		return nil, ethereum.NotFound
	}
	for _, tx := range f.sent {
		if tx.Hash() == txHash {
			return &types.Receipt{
				Status:            f.receiptStatus,
				GasUsed:           f.estimateGas,
				EffectiveGasPrice: big.NewInt(1_500_000_000),
				BlockNumber:       big.NewInt(42),
				BlockHash:         common.HexToHash("0xfeed"),
			}, nil
		}
	}
	return nil, ethereum.NotFound
}

func (f *fakeChain) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	header := &types.Header{Number: big.NewInt(100)}
	if f.baseFee != nil {
		header.BaseFee = new(big.Int).Set(f.baseFee)
	}
	return header, nil
}

func (f *fakeChain) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.tip), nil
}

func (f *fakeChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.gasPrice), nil
}

func (f *fakeChain) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return big.NewInt(1_000_000_000_000_000_000), nil
}

func (f *fakeChain) Close() {}

func (f *fakeChain) sentTxs() []*types.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*types.Transaction, len(f.sent))
	copy(out, f.sent)
	return out
}

func newTestOrchestrator(t *testing.T, chain *fakeChain, opts ...Option) *Orchestrator {
	t.Helper()
	networks := map[string]config.NetworkConfig{
		"sepolia": {Name: "sepolia", Endpoints: []string{"http://fake"}, ChainID: 11155111},
	}
	pool := chainpool.NewPool(networks, func(url string) (chainpool.Client, error) {
		return chain, nil
	}, zap.NewNop())
	return NewOrchestrator(pool, zap.NewNop(), opts...)
}

func testKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

func transferIntent(from common.Address, value string) Intent {
	v, _ := wei.Parse(value)
	return Intent{
		Network: "sepolia",
		From:    from,
		To:      common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
		Value:   v,
	}
}

func TestSendHappyPath(t *testing.T) {
	chain := newFakeChain()
	orch := newTestOrchestrator(t, chain)
	key, from := testKey(t)

	tx, err := orch.Send(context.Background(), transferIntent(from, "0.5"), key)
	require.NoError(t, err)

	// The decimal input survives the wei round trip exactly.
	assert.Equal(t, "0.5", tx.Value)
	assert.Equal(t, model.Successful, tx.Status)
	assert.Equal(t, uint64(7), tx.Nonce)
	require.NotNil(t, tx.GasUsed)
	require.NotNil(t, tx.BlockNumber)
	assert.Equal(t, uint64(42), *tx.BlockNumber)

	sent := chain.sentTxs()
	require.Len(t, sent, 1)
	wantValue, _ := wei.Parse("0.5")
	assert.Zero(t, sent[0].Value().Cmp(wantValue))
	// 21000 with the 20% buffer applied.
	assert.Equal(t, uint64(25200), sent[0].Gas())
	// EIP-1559: feeCap = 2*baseFee + tip.
	assert.Zero(t, sent[0].GasFeeCap().Cmp(big.NewInt(4_000_000_000)))
	assert.Zero(t, sent[0].GasTipCap().Cmp(big.NewInt(2_000_000_000)))
}

func TestSendRefusesOnSimulatedInsufficientFunds(t *testing.T) {
	chain := newFakeChain()
	chain.callErr = errors.New("insufficient funds for gas * price + value")
	orch := newTestOrchestrator(t, chain)
	key, from := testKey(t)

	_, err := orch.Send(context.Background(), transferIntent(from, "100"), key)

	var simErr *SimulationRevertError
	require.ErrorAs(t, err, &simErr)
	assert.Equal(t, ReasonInsufficientFunds, simErr.Reason)
	// Nothing was broadcast, no gas spent.
	assert.Empty(t, chain.sentTxs())
}

func TestSendBroadcastRejectionIsSubmissionError(t *testing.T) {
	chain := newFakeChain()
	chain.sendErr = errors.New("nonce too low")
	orch := newTestOrchestrator(t, chain)
	key, from := testKey(t)

	_, err := orch.Send(context.Background(), transferIntent(from, "0.1"), key)

	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	// The original chain error text is preserved.
	assert.Contains(t, subErr.Error(), "nonce too low")
}

func TestSendReceiptTimeoutLeavesPending(t *testing.T) {
	chain := newFakeChain()
	chain.noReceipt = true
	orch := newTestOrchestrator(t, chain, WithReceiptTimeout(50*time.Millisecond))
	key, from := testKey(t)

	tx, err := orch.Send(context.Background(), transferIntent(from, "0.25"), key)

	// A timeout is not a failure; the hash stays queryable.
	require.NoError(t, err)
	assert.Equal(t, model.Pending, tx.Status)
	assert.NotEmpty(t, tx.Hash)
}

func TestSendMinedRevertIsTerminalFailed(t *testing.T) {
	chain := newFakeChain()
	chain.receiptStatus = types.ReceiptStatusFailed
	orch := newTestOrchestrator(t, chain)
	key, from := testKey(t)

	tx, err := orch.Send(context.Background(), transferIntent(from, "0.5"), key)
	require.NoError(t, err)

	// Mined but reverted: gas consumed, terminal failed, still a valid hash.
	assert.Equal(t, model.Failed, tx.Status)
	require.NotNil(t, tx.GasUsed)
	assert.Equal(t, uint64(21000), *tx.GasUsed)
}

func TestSendLegacyNetworkFallsBackToGasPrice(t *testing.T) {
	chain := newFakeChain()
	chain.baseFee = nil
	orch := newTestOrchestrator(t, chain)
	key, from := testKey(t)

	_, err := orch.Send(context.Background(), transferIntent(from, "0.5"), key)
	require.NoError(t, err)

	sent := chain.sentTxs()
	require.Len(t, sent, 1)
	assert.Equal(t, uint8(types.LegacyTxType), sent[0].Type())
	assert.Zero(t, sent[0].GasPrice().Cmp(big.NewInt(3_000_000_000)))
}

func TestSendExplicitFeeCapOnLegacyNetwork(t *testing.T) {
	chain := newFakeChain()
	chain.baseFee = nil
	orch := newTestOrchestrator(t, chain)
	key, from := testKey(t)

	// An explicit fee cap without a tip forces the dynamic path even where
	// the network quote was legacy; the cap must double as the tip cap.
	intent := transferIntent(from, "0.5")
	intent.FeeCap = big.NewInt(5_000_000_000)

	tx, err := orch.Send(context.Background(), intent, key)
	require.NoError(t, err)
	assert.Equal(t, model.Successful, tx.Status)

	sent := chain.sentTxs()
	require.Len(t, sent, 1)
	assert.Equal(t, uint8(types.DynamicFeeTxType), sent[0].Type())
	assert.Zero(t, sent[0].GasFeeCap().Cmp(big.NewInt(5_000_000_000)))
	assert.Zero(t, sent[0].GasTipCap().Cmp(big.NewInt(5_000_000_000)))
}

func TestSimulateEndpointOutageIsNotRevert(t *testing.T) {
	chain := newFakeChain()
	chain.callErr = errors.New("dial tcp 127.0.0.1:8545: connect: connection refused")
	orch := newTestOrchestrator(t, chain)
	_, from := testKey(t)

	err := orch.Simulate(context.Background(), transferIntent(from, "0.5"))

	require.Error(t, err)
	// The raw endpoint error survives; an outage is not a predicted revert.
	assert.Equal(t, chain.callErr, err)
	var simErr *SimulationRevertError
	assert.False(t, errors.As(err, &simErr))
}

func TestCancelReplacesWithBumpedSelfSend(t *testing.T) {
	chain := newFakeChain()
	orch := newTestOrchestrator(t, chain)
	key, from := testKey(t)

	// Seed a pending original at nonce 7.
	nonce := uint64(7)
	to := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	value, _ := wei.Parse("0.5")
	original := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(11155111),
		Nonce:     nonce,
		Gas:       21000,
		GasTipCap: big.NewInt(2_000_000_000),
		GasFeeCap: big.NewInt(4_000_000_000),
		To:        &to,
		Value:     value,
	})
	chain.pendingByHash[original.Hash()] = original

	tx, err := orch.Cancel(context.Background(), "sepolia", original.Hash().Hex(), key)
	require.NoError(t, err)

	assert.Equal(t, uint64(7), tx.Nonce)
	assert.Equal(t, "0", tx.Value)
	assert.Equal(t, from.Hex(), tx.To)

	sent := chain.sentTxs()
	require.Len(t, sent, 1)
	// Fees bumped to 150% of the current quote.
	assert.Zero(t, sent[0].GasTipCap().Cmp(big.NewInt(3_000_000_000)))
	assert.Zero(t, sent[0].GasFeeCap().Cmp(big.NewInt(6_000_000_000)))
	assert.Equal(t, uint64(cancelGasLimit), sent[0].Gas())
}

func TestSpeedUpKeepsOriginalParameters(t *testing.T) {
	chain := newFakeChain()
	orch := newTestOrchestrator(t, chain)
	key, _ := testKey(t)

	nonce := uint64(3)
	to := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	value, _ := wei.Parse("1.25")
	original := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(11155111),
		Nonce:     nonce,
		Gas:       30000,
		GasTipCap: big.NewInt(2_000_000_000),
		GasFeeCap: big.NewInt(4_000_000_000),
		To:        &to,
		Value:     value,
	})
	chain.pendingByHash[original.Hash()] = original

	tx, err := orch.SpeedUp(context.Background(), "sepolia", original.Hash().Hex(), key)
	require.NoError(t, err)

	assert.Equal(t, uint64(3), tx.Nonce)
	assert.Equal(t, "1.25", tx.Value)
	assert.Equal(t, to.Hex(), tx.To)

	sent := chain.sentTxs()
	require.Len(t, sent, 1)
	assert.Equal(t, uint64(30000), sent[0].Gas())
	assert.Zero(t, sent[0].Value().Cmp(value))
}

func TestReplaceUnknownTransactionFails(t *testing.T) {
	chain := newFakeChain()
	orch := newTestOrchestrator(t, chain)
	key, _ := testKey(t)

	_, err := orch.Cancel(context.Background(), "sepolia",
		"0x1111111111111111111111111111111111111111111111111111111111111111", key)
	require.Error(t, err)
}

func TestReplaceMinedTransactionFails(t *testing.T) {
	chain := newFakeChain()
	orch := newTestOrchestrator(t, chain)
	key, _ := testKey(t)

	to := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	mined := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(11155111),
		Nonce:     1,
		Gas:       21000,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		To:        &to,
		Value:     big.NewInt(1),
	})
	chain.minedByHash = map[common.Hash]*types.Transaction{mined.Hash(): mined}

	_, err := orch.Cancel(context.Background(), "sepolia", mined.Hash().Hex(), key)
	require.ErrorContains(t, err, "already mined")
}

func TestIntentValidation(t *testing.T) {
	_, from := testKey(t)

	for name, intent := range map[string]Intent{
		"missing network":    {From: from, To: common.HexToAddress("0x1"), Value: big.NewInt(1)},
		"missing sender":     {Network: "sepolia", To: common.HexToAddress("0x1"), Value: big.NewInt(1)},
		"negative value":     {Network: "sepolia", From: from, To: common.HexToAddress("0x1"), Value: big.NewInt(-1)},
		"nil value":          {Network: "sepolia", From: from, To: common.HexToAddress("0x1")},
		"zero value no data": {Network: "sepolia", From: from, To: common.HexToAddress("0x1"), Value: big.NewInt(0)},
	} {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, intent.validate())
		})
	}
}
