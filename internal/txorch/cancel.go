package txorch

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/abhishek7776/cryptowallet/internal/chainpool"
	"github.com/abhishek7776/cryptowallet/internal/model"
	"github.com/abhishek7776/cryptowallet/internal/wei"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

const cancelGasLimit = 21000

// Cancel supersedes a pending transaction by re-spending its nonce on a
// zero-value transfer to self with fees bumped to the configured percentage
// of the current quote. If the original mines first the replacement loses
// the race; that race is not detected here, the caller simply gets whatever
// receipt eventually arrives for the new hash.
func (o *Orchestrator) Cancel(ctx context.Context, network, hash string, key *ecdsa.PrivateKey) (*model.SubmittedTransaction, error) {
	return o.replace(ctx, network, hash, key, true)
}

// SpeedUp resubmits a pending transaction unchanged except for bumped fees.
func (o *Orchestrator) SpeedUp(ctx context.Context, network, hash string, key *ecdsa.PrivateKey) (*model.SubmittedTransaction, error) {
	return o.replace(ctx, network, hash, key, false)
}

func (o *Orchestrator) replace(ctx context.Context, network, hash string, key *ecdsa.PrivateKey, cancel bool) (*model.SubmittedTransaction, error) {
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
		return nil, fmt.Errorf("looking up transaction %s: %w", hash, err)
	}
	if !found.pending {
		return nil, errors.New("transaction already mined, nothing to replace")
	}

	sender := crypto.PubkeyToAddress(key.PublicKey)

	fees, err := o.feeData(ctx, network)
	if err != nil {
		return nil, err
	}
	bumped := fees.bumped(o.feeBumpPct)

	nonce := found.tx.Nonce()
	intent := Intent{
		Network: network,
		From:    sender,
		Nonce:   &nonce,
	}
	quote := &Quote{Fees: bumped}
	if cancel {
		intent.To = sender
		intent.Value = big.NewInt(0)
		quote.GasLimit = cancelGasLimit
	} else {
		if found.tx.To() == nil {
			return nil, errors.New("cannot speed up a contract creation")
		}
		intent.To = *found.tx.To()
		intent.Value = found.tx.Value()
		intent.Data = found.tx.Data()
		quote.GasLimit = found.tx.Gas()
	}

	unlock := o.lockSender(sender)
	signed, err := o.signWithPendingNonce(ctx, intent, quote, key)
	if err != nil {
		unlock()
		return nil, err
	}
	err = o.broadcast(ctx, network, signed)
	unlock()
	if err != nil {
		return nil, &SubmissionError{Err: err}
	}

	tx := &model.SubmittedTransaction{
		Hash:      signed.Hash().Hex(),
		From:      sender.Hex(),
		To:        intent.To.Hex(),
		Value:     wei.Format(intent.Value),
		Network:   network,
		Status:    model.Pending,
		Nonce:     nonce,
		Timestamp: time.Now().Unix(),
	}
	o.logger.Info("replacement broadcast",
		zap.String("replaces", hash),
		zap.String("hash", tx.Hash),
		zap.Bool("cancel", cancel))

	o.awaitConfirmation(ctx, tx)
	return tx, nil
}
