package txorch

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/abhishek7776/cryptowallet/internal/chainpool"
	"github.com/abhishek7776/cryptowallet/internal/model"
	"github.com/abhishek7776/cryptowallet/internal/wei"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// Intent is the caller-supplied description of one transfer or contract
// call. Immutable once built; validated before any chain interaction.
type Intent struct {
	Network string
	From    common.Address
	To      common.Address
	Value   *big.Int
	Data    []byte

	// Optional overrides. When unset, gas is estimated and fees quoted.
	GasLimit uint64
	FeeCap   *big.Int
	TipCap   *big.Int

	// Nonce is only set on the cancel / speed-up path; normal sends take
	// the pending nonce at signing time.
	Nonce *uint64
}

func (in *Intent) validate() error {
	if in.Network == "" {
		return errors.New("missing network")
	}
	if in.From == (common.Address{}) {
		return errors.New("missing sender address")
	}
	if in.To == (common.Address{}) && len(in.Data) == 0 {
		return errors.New("missing recipient address")
	}
	if in.Value == nil || in.Value.Sign() < 0 {
		return errors.New("missing or negative value")
	}
	if in.Value.Sign() == 0 && len(in.Data) == 0 {
		return errors.New("zero-value transfer with no calldata")
	}
	return nil
}

// Quote is the estimate step's output: a buffered gas limit, the fee data
// the transaction will be signed with, and advisory speed tiers.
type Quote struct {
	GasLimit uint64
	Fees     *FeeData
	Tiers    FeeTiers
}

type Option func(*Orchestrator)

func WithMaxAttempts(n int) Option {
	return func(o *Orchestrator) { o.maxAttempts = n }
}

func WithReceiptTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.receiptTimeout = d }
}

func WithGasBufferPct(pct int64) Option {
	return func(o *Orchestrator) { o.gasBufferPct = pct }
}

func WithFeeBumpPct(pct int64) Option {
	return func(o *Orchestrator) { o.feeBumpPct = pct }
}

func NewOrchestrator(pool *chainpool.Pool, logger *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		pool:           pool,
		logger:         logger,
		maxAttempts:    3,
		receiptTimeout: 90 * time.Second,
		gasBufferPct:   20,
		feeBumpPct:     150,
		senderLocks:    map[common.Address]*sync.Mutex{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Orchestrator drives a transaction through estimate, simulate, sign,
// submit and confirm. Every chain call goes through the pool's retry path;
// the orchestrator itself never re-retries.
type Orchestrator struct {
	pool           *chainpool.Pool
	logger         *zap.Logger
	maxAttempts    int
	receiptTimeout time.Duration
	gasBufferPct   int64
	feeBumpPct     int64

	mu          sync.Mutex
	senderLocks map[common.Address]*sync.Mutex
}

// Estimate runs the estimate step alone: gas limit with safety buffer plus a
// current fee quote with speed tiers. Callers use it for previews; Send runs
// it again internally unless the intent carries explicit gas parameters.
func (o *Orchestrator) Estimate(ctx context.Context, intent Intent) (*Quote, error) {
	if err := intent.validate(); err != nil {
		return nil, err
	}
	return o.quote(ctx, intent)
}

func (o *Orchestrator) quote(ctx context.Context, intent Intent) (*Quote, error) {
	gasLimit := intent.GasLimit
	if gasLimit == 0 {
		estimated, err := chainpool.WithRetry(ctx, o.pool, intent.Network, o.maxAttempts,
			func(ctx context.Context, c chainpool.Client) (uint64, error) {
				return c.EstimateGas(ctx, o.callMsg(intent))
			})
		if err != nil {
			return nil, classify(err)
		}
		gasLimit = bufferedGas(estimated, o.gasBufferPct)
	}

	fees, err := o.feeData(ctx, intent.Network)
	if err != nil {
		return nil, err
	}
	if intent.FeeCap != nil {
		fees.Dynamic = true
		fees.FeeCap = intent.FeeCap
		if intent.TipCap != nil {
			fees.TipCap = intent.TipCap
		}
		if fees.TipCap == nil {
			// A legacy-network quote carries no tip. The explicit fee cap
			// bounds the tip anyway, so it doubles as the tip cap.
			fees.TipCap = intent.FeeCap
		}
	}

	return &Quote{GasLimit: gasLimit, Fees: fees, Tiers: fees.tiers()}, nil
}

// Simulate dry-runs the intent with the exact parameters that would be
// signed. A classified SimulationRevertError means the transaction would
// fail on-chain; no gas has been spent.
func (o *Orchestrator) Simulate(ctx context.Context, intent Intent) error {
	if err := intent.validate(); err != nil {
		return err
	}
	_, err := chainpool.WithRetry(ctx, o.pool, intent.Network, o.maxAttempts,
		func(ctx context.Context, c chainpool.Client) ([]byte, error) {
			return c.CallContract(ctx, o.callMsg(intent), nil)
		})
	if err != nil {
		return classify(err)
	}
	return nil
}

// Send runs the full lifecycle. Any error before broadcast aborts the whole
// operation; once the broadcast is accepted the caller always gets the hash
// back, even when the receipt does not arrive inside the bounded wait (the
// returned record is then still Pending and can be re-queried by hash).
//
// Nonce-fetch, sign and broadcast are serialized per sender so back-to-back
// sends from one account cannot race to the same pending nonce.
func (o *Orchestrator) Send(ctx context.Context, intent Intent, key *ecdsa.PrivateKey) (*model.SubmittedTransaction, error) {
	if err := intent.validate(); err != nil {
		return nil, err
	}

	quote, err := o.quote(ctx, intent)
	if err != nil {
		return nil, err
	}

	if err := o.Simulate(ctx, intent); err != nil {
		return nil, err
	}

	unlock := o.lockSender(intent.From)
	signed, err := o.signWithPendingNonce(ctx, intent, quote, key)
	if err != nil {
		unlock()
		return nil, err
	}

	err = o.broadcast(ctx, intent.Network, signed)
	unlock()
	if err != nil {
		return nil, &SubmissionError{Err: err}
	}

	tx := &model.SubmittedTransaction{
		Hash:      signed.Hash().Hex(),
		From:      intent.From.Hex(),
		To:        intent.To.Hex(),
		Value:     wei.Format(intent.Value),
		Network:   intent.Network,
		Status:    model.Pending,
		Nonce:     signed.Nonce(),
		Timestamp: time.Now().Unix(),
	}
	o.logger.Info("transaction broadcast",
		zap.String("hash", tx.Hash),
		zap.String("network", intent.Network),
		zap.Uint64("nonce", tx.Nonce))

	o.awaitConfirmation(ctx, tx)
	return tx, nil
}

func (o *Orchestrator) signWithPendingNonce(ctx context.Context, intent Intent, quote *Quote, key *ecdsa.PrivateKey) (*types.Transaction, error) {
	var nonce uint64
	if intent.Nonce != nil {
		nonce = *intent.Nonce
	} else {
		var err error
		nonce, err = chainpool.WithRetry(ctx, o.pool, intent.Network, o.maxAttempts,
			func(ctx context.Context, c chainpool.Client) (uint64, error) {
				return c.PendingNonceAt(ctx, intent.From)
			})
		if err != nil {
			return nil, fmt.Errorf("fetching nonce: %w", err)
		}
	}

	chainID, err := o.pool.ChainID(intent.Network)
	if err != nil {
		return nil, err
	}

	tx := buildTx(chainID, nonce, intent, quote)
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
}

// buildTx assembles the unsigned transaction: EIP-1559 when fee data is
// dynamic, legacy otherwise.
func buildTx(chainID *big.Int, nonce uint64, intent Intent, quote *Quote) *types.Transaction {
	to := intent.To
	if quote.Fees.Dynamic {
		return types.NewTx(&types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			Gas:       quote.GasLimit,
			GasTipCap: new(big.Int).Set(quote.Fees.TipCap),
			GasFeeCap: new(big.Int).Set(quote.Fees.FeeCap),
			To:        &to,
			Value:     new(big.Int).Set(intent.Value),
			Data:      intent.Data,
		})
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		Gas:      quote.GasLimit,
		GasPrice: new(big.Int).Set(quote.Fees.GasPrice),
		To:       &to,
		Value:    new(big.Int).Set(intent.Value),
		Data:     intent.Data,
	})
}

func (o *Orchestrator) broadcast(ctx context.Context, network string, signed *types.Transaction) error {
	_, err := chainpool.WithRetry(ctx, o.pool, network, o.maxAttempts,
		func(ctx context.Context, c chainpool.Client) (struct{}, error) {
			return struct{}{}, c.SendTransaction(ctx, signed)
		})
	return err
}

// awaitConfirmation polls for the receipt within the bounded wait and
// applies the single Pending -> terminal transition. On timeout the record
// stays Pending; the transaction may still confirm later and the hash is
// independently queryable.
func (o *Orchestrator) awaitConfirmation(ctx context.Context, tx *model.SubmittedTransaction) {
	hash := common.HexToHash(tx.Hash)

	deadline := time.NewTimer(o.receiptTimeout)
	defer deadline.Stop()
	poll := time.NewTicker(2 * time.Second)
	defer poll.Stop()

	for {
		receipt, err := chainpool.WithRetry(ctx, o.pool, tx.Network, o.maxAttempts,
			func(ctx context.Context, c chainpool.Client) (*types.Receipt, error) {
				r, err := c.TransactionReceipt(ctx, hash)
				if errors.Is(err, ethereum.NotFound) {
					// Not mined yet; not an endpoint failure.
					return nil, nil
				}
				return r, err
			})
		if err == nil && receipt != nil {
			applyReceipt(tx, receipt)
			o.logger.Info("transaction confirmed",
				zap.String("hash", tx.Hash),
				zap.String("status", tx.Status.String()))
			return
		}
		if err != nil {
			o.logger.Warn("receipt poll failed", zap.String("hash", tx.Hash), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			o.logger.Warn("receipt wait timed out, leaving pending", zap.String("hash", tx.Hash))
			return
		case <-poll.C:
		}
	}
}

func applyReceipt(tx *model.SubmittedTransaction, receipt *types.Receipt) {
	if receipt.Status == types.ReceiptStatusSuccessful {
		tx.Status = model.Successful
	} else {
		// Mined but reverted: gas was consumed, still recorded.
		tx.Status = model.Failed
	}
	gasUsed := receipt.GasUsed
	tx.GasUsed = &gasUsed
	if receipt.EffectiveGasPrice != nil {
		price := receipt.EffectiveGasPrice.String()
		tx.EffectivePrice = &price
	}
	if receipt.BlockNumber != nil {
		n := receipt.BlockNumber.Uint64()
		tx.BlockNumber = &n
	}
	blockHash := receipt.BlockHash.Hex()
	tx.BlockHash = &blockHash
}

// Status re-queries a transaction by hash, for callers polling after a
// confirmation timeout.
func (o *Orchestrator) Status(ctx context.Context, network, hash string) (*model.SubmittedTransaction, error) {
	h := common.HexToHash(hash)

	type lookup struct {
		tx      *types.Transaction
		pending bool
	}
	found, err := chainpool.WithRetry(ctx, o.pool, network, o.maxAttempts,
		func(ctx context.Context, c chainpool.Client) (lookup, error) {
			t, pending, err := c.TransactionByHash(ctx, h)
			return lookup{tx: t, pending: pending}, err
		})
	if err != nil {
		return nil, err
	}

	out := &model.SubmittedTransaction{
		Hash:    h.Hex(),
		Network: network,
		Status:  model.Pending,
		Value:   wei.Format(found.tx.Value()),
		Nonce:   found.tx.Nonce(),
	}
	if found.tx.To() != nil {
		out.To = found.tx.To().Hex()
	}
	if from, err := types.Sender(types.LatestSignerForChainID(found.tx.ChainId()), found.tx); err == nil {
		out.From = from.Hex()
	}

	if !found.pending {
		receipt, err := chainpool.WithRetry(ctx, o.pool, network, o.maxAttempts,
			func(ctx context.Context, c chainpool.Client) (*types.Receipt, error) {
				r, err := c.TransactionReceipt(ctx, h)
				if errors.Is(err, ethereum.NotFound) {
					return nil, nil
				}
				return r, err
			})
		if err == nil && receipt != nil {
			applyReceipt(out, receipt)
		}
	}
	return out, nil
}

// Balance reads an account balance through the failover path.
func (o *Orchestrator) Balance(ctx context.Context, network string, addr common.Address) (*big.Int, error) {
	return chainpool.WithRetry(ctx, o.pool, network, o.maxAttempts,
		func(ctx context.Context, c chainpool.Client) (*big.Int, error) {
			return c.BalanceAt(ctx, addr, nil)
		})
}

func (o *Orchestrator) lockSender(addr common.Address) func() {
	o.mu.Lock()
	lock, ok := o.senderLocks[addr]
	if !ok {
		lock = &sync.Mutex{}
		o.senderLocks[addr] = lock
	}
	o.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func (o *Orchestrator) callMsg(intent Intent) ethereum.CallMsg {
	to := intent.To
	return ethereum.CallMsg{
		From:  intent.From,
		To:    &to,
		Value: intent.Value,
		Data:  intent.Data,
	}
}
