package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/abhishek7776/cryptowallet/internal/model"
	"github.com/abhishek7776/cryptowallet/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	senderAddr    = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	recipientAddr = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
)

func confirmedTx(value string) *model.SubmittedTransaction {
	block := uint64(42)
	return &model.SubmittedTransaction{
		Hash:        "0xabc123",
		From:        senderAddr,
		To:          recipientAddr,
		Value:       value,
		Network:     "sepolia",
		Status:      model.Successful,
		BlockNumber: &block,
		Timestamp:   time.Now().Unix(),
	}
}

func setupUsers(t *testing.T) (*recorderFixture, context.Context) {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStorage()

	sender, err := store.CreateUser(ctx, "alice", "hash", "")
	require.NoError(t, err)
	require.NoError(t, store.CreateWallet(ctx, model.Wallet{UserID: sender.ID, Address: senderAddr}))

	recipient, err := store.CreateUser(ctx, "bob", "hash", "")
	require.NoError(t, err)
	require.NoError(t, store.CreateWallet(ctx, model.Wallet{UserID: recipient.ID, Address: recipientAddr}))

	return &recorderFixture{
		store:     store,
		recorder:  NewRecorder(store, zap.NewNop()),
		sender:    sender,
		recipient: recipient,
	}, ctx
}

type recorderFixture struct {
	store     *memory.Storage
	recorder  *recorder
	sender    model.User
	recipient model.User
}

func TestRecordWritesBothPerspectives(t *testing.T) {
	f, ctx := setupUsers(t)
	tx := confirmedTx("0.5")

	f.recorder.Record(ctx, f.sender.ID, senderAddr, recipientAddr, tx)

	sent, err := f.store.GetLedgerEntries(ctx, f.sender.ID)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, model.PerspectiveSent, sent[0].Perspective)
	assert.Equal(t, "0.5", sent[0].Value)
	assert.Equal(t, tx.Hash, sent[0].TxHash)

	received, err := f.store.GetLedgerEntries(ctx, f.recipient.ID)
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, model.PerspectiveReceived, received[0].Perspective)
	assert.Equal(t, "0.5", received[0].Value)
	// Both sides reference the same hash.
	assert.Equal(t, sent[0].TxHash, received[0].TxHash)
}

func TestRecordIsIdempotent(t *testing.T) {
	f, ctx := setupUsers(t)
	tx := confirmedTx("0.5")

	f.recorder.Record(ctx, f.sender.ID, senderAddr, recipientAddr, tx)
	f.recorder.Record(ctx, f.sender.ID, senderAddr, recipientAddr, tx)

	sent, err := f.store.GetLedgerEntries(ctx, f.sender.ID)
	require.NoError(t, err)
	assert.Len(t, sent, 1)

	received, err := f.store.GetLedgerEntries(ctx, f.recipient.ID)
	require.NoError(t, err)
	assert.Len(t, received, 1)
}

func TestRecordMatchesRecipientCaseInsensitively(t *testing.T) {
	f, ctx := setupUsers(t)
	tx := confirmedTx("1")

	// All-lowercase spelling of the stored checksummed address.
	f.recorder.Record(ctx, f.sender.ID, senderAddr, "0x70997970c51812dc3a010c7d01b50e0d17dc79c8", tx)

	received, err := f.store.GetLedgerEntries(ctx, f.recipient.ID)
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, model.PerspectiveReceived, received[0].Perspective)
}

func TestRecordUnknownRecipientOnlySenderSide(t *testing.T) {
	f, ctx := setupUsers(t)
	tx := confirmedTx("0.1")

	f.recorder.Record(ctx, f.sender.ID, senderAddr, "0x000000000000000000000000000000000000dEaD", tx)

	sent, err := f.store.GetLedgerEntries(ctx, f.sender.ID)
	require.NoError(t, err)
	assert.Len(t, sent, 1)

	received, err := f.store.GetLedgerEntries(ctx, f.recipient.ID)
	require.NoError(t, err)
	assert.Empty(t, received)
}

func TestStatsBumpAggregatesContact(t *testing.T) {
	f, ctx := setupUsers(t)
	stats := NewStatsUpdater(f.store, zap.NewNop())

	require.NoError(t, f.store.AddContact(ctx, model.Contact{
		UserID:  f.sender.ID,
		Name:    "Bob",
		Address: recipientAddr,
	}))

	tx := confirmedTx("0.5")
	stats.Bump(ctx, f.sender.ID, recipientAddr, tx, model.PerspectiveSent)
	stats.Bump(ctx, f.sender.ID, recipientAddr, confirmedTx("0.25"), model.PerspectiveSent)

	contacts, err := f.store.ListContacts(ctx, f.sender.ID)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, int64(2), contacts[0].TxCount)
	assert.Equal(t, "0.75", contacts[0].TotalSent)
	assert.NotNil(t, contacts[0].LastTxAt)
}

func TestStatsBumpUnknownCounterpartyIsNoop(t *testing.T) {
	f, ctx := setupUsers(t)
	stats := NewStatsUpdater(f.store, zap.NewNop())

	stats.Bump(ctx, f.sender.ID, "0x000000000000000000000000000000000000dEaD", confirmedTx("0.5"), model.PerspectiveSent)

	contacts, err := f.store.ListContacts(ctx, f.sender.ID)
	require.NoError(t, err)
	assert.Empty(t, contacts)
}
