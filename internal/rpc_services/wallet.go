package rpcservices

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/abhishek7776/cryptowallet/internal/assistant"
	auth "github.com/abhishek7776/cryptowallet/internal/authenticator"
	"github.com/abhishek7776/cryptowallet/internal/keystore"
	"github.com/abhishek7776/cryptowallet/internal/model"
	"github.com/abhishek7776/cryptowallet/internal/notifier"
	"github.com/abhishek7776/cryptowallet/internal/txorch"
	"github.com/abhishek7776/cryptowallet/internal/wei"
	"github.com/ethereum/go-ethereum/common"
	"github.com/umbracle/fastrlp"
	"go.uber.org/zap"
)

// bookkeepingTimeout bounds the detached post-transaction writes (ledger,
// contact stats, notification) so a stalled store cannot leak goroutines.
const bookkeepingTimeout = 10 * time.Second

func NewWalletService(orchestrator orchestrator, storage storage, auth authenticator,
	recorder recorder, stats statsUpdater, notify notifier.Notifier,
	chat assistantClient, logger *zap.Logger) *Wallet {
	return &Wallet{
		orchestrator: orchestrator,
		storage:      storage,
		auth:         auth,
		recorder:     recorder,
		stats:        stats,
		notify:       notify,
		chat:         chat,
		logger:       logger,
	}
}

// ---- account ----

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type RegisterReply struct {
	UserID  int64  `json:"userId"`
	Address string `json:"address"`
}

// Register creates the user and their custodial wallet in one step. The
// wallet key is generated server-side and immediately encrypted under the
// user's password; the plaintext never leaves this call.
func (w *Wallet) Register(r *http.Request, request *RegisterRequest, reply *RegisterReply) error {
	if request.Username == "" || request.Password == "" {
		return errors.New("missing username or password")
	}

	hash, err := w.auth.HashPassword(request.Password)
	if err != nil {
		return err
	}

	user, err := w.storage.CreateUser(r.Context(), request.Username, hash, request.Email)
	if err != nil {
		return err
	}

	address, keystoreJSON, err := keystore.Generate(request.Password)
	if err != nil {
		return err
	}

	if err := w.storage.CreateWallet(r.Context(), model.Wallet{
		UserID:       user.ID,
		Address:      address,
		KeystoreJSON: string(keystoreJSON),
	}); err != nil {
		return err
	}

	reply.UserID = user.ID
	reply.Address = address
	return nil
}

type AuthenticateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthenticateReply struct {
	Token string `json:"token"`
}

func (w *Wallet) Authenticate(r *http.Request, request *AuthenticateRequest, reply *AuthenticateReply) error {
	if request.Username == "" || request.Password == "" {
		return errors.New("invalid credentials")
	}

	token, err := w.auth.Authenticate(r.Context(), request.Username, request.Password)
	if err != nil {
		return err
	}

	reply.Token = token
	return nil
}

// ---- balance ----

type BalanceRequest struct {
	Token   string `json:"token"`
	Network string `json:"network"`
}

type BalanceReply struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

func (w *Wallet) GetBalance(r *http.Request, request *BalanceRequest, reply *BalanceReply) error {
	wallet, _, err := w.walletFor(r, request.Token)
	if err != nil {
		return err
	}

	balance, err := w.orchestrator.Balance(r.Context(), request.Network, common.HexToAddress(wallet.Address))
	if err != nil {
		return err
	}

	reply.Address = wallet.Address
	reply.Balance = wei.Format(balance)
	return nil
}

// ---- transfers ----

type TransferRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
	Network  string `json:"network"`
	To       string `json:"to"`
	Value    string `json:"value"`
	Data     string `json:"data,omitempty"`

	GasLimit             uint64 `json:"gasLimit,omitempty"`
	MaxFeePerGas         string `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas string `json:"maxPriorityFeePerGas,omitempty"`
}

type TransactionReply struct {
	Transaction *model.SubmittedTransaction `json:"transaction"`
}

type EstimateReply struct {
	GasLimit uint64          `json:"gasLimit"`
	Tiers    txorch.FeeTiers `json:"feeTiers"`
}

// EstimateTransfer previews gas and fee tiers without touching the account
// key. It also dry-runs the transfer so the caller sees a predicted revert
// before committing.
func (w *Wallet) EstimateTransfer(r *http.Request, request *TransferRequest, reply *EstimateReply) error {
	wallet, _, err := w.walletFor(r, request.Token)
	if err != nil {
		return err
	}

	intent, err := w.buildIntent(wallet, request)
	if err != nil {
		return err
	}

	quote, err := w.orchestrator.Estimate(r.Context(), intent)
	if err != nil {
		return err
	}
	if err := w.orchestrator.Simulate(r.Context(), intent); err != nil {
		return err
	}

	reply.GasLimit = quote.GasLimit
	reply.Tiers = quote.Tiers
	return nil
}

// SendTransaction runs the full lifecycle and hands the confirmed result to
// the background bookkeeping. Once the broadcast was accepted the caller
// gets the hash back no matter what the bookkeeping does.
func (w *Wallet) SendTransaction(r *http.Request, request *TransferRequest, reply *TransactionReply) error {
	wallet, user, err := w.walletFor(r, request.Token)
	if err != nil {
		return err
	}

	intent, err := w.buildIntent(wallet, request)
	if err != nil {
		return err
	}

	key, err := keystore.Decrypt([]byte(wallet.KeystoreJSON), request.Password)
	if err != nil {
		return err
	}

	tx, err := w.orchestrator.Send(r.Context(), intent, key)
	if err != nil {
		return err
	}

	w.recordInBackground(user, wallet, request.To, tx)

	reply.Transaction = tx
	return nil
}

type TokenTransferRequest struct {
	Token        string `json:"token"`
	Password     string `json:"password"`
	Network      string `json:"network"`
	TokenAddress string `json:"tokenAddress"`
	To           string `json:"to"`
	// Amount in the token's smallest units.
	Amount string `json:"amount"`
}

// SendToken transfers an ERC-20 token: a zero-value transaction to the token
// contract carrying transfer(to, amount) calldata.
func (w *Wallet) SendToken(r *http.Request, request *TokenTransferRequest, reply *TransactionReply) error {
	wallet, user, err := w.walletFor(r, request.Token)
	if err != nil {
		return err
	}

	if !common.IsHexAddress(request.TokenAddress) || !common.IsHexAddress(request.To) {
		return errors.New("invalid token or recipient address")
	}
	amount, ok := new(big.Int).SetString(request.Amount, 10)
	if !ok || amount.Sign() <= 0 {
		return errors.New("invalid token amount")
	}

	intent := txorch.Intent{
		Network: request.Network,
		From:    common.HexToAddress(wallet.Address),
		To:      common.HexToAddress(request.TokenAddress),
		Value:   big.NewInt(0),
		Data:    txorch.ERC20TransferData(common.HexToAddress(request.To), amount),
	}

	key, err := keystore.Decrypt([]byte(wallet.KeystoreJSON), request.Password)
	if err != nil {
		return err
	}

	tx, err := w.orchestrator.Send(r.Context(), intent, key)
	if err != nil {
		return err
	}

	// The on-chain value is zero; the ledger records the token amount so the
	// history does not lose what was actually transferred.
	entry := *tx
	entry.Value = request.Amount
	w.recordInBackground(user, wallet, request.To, &entry)

	reply.Transaction = tx
	return nil
}

// ---- cancel / speed-up ----

type ReplaceRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
	Network  string `json:"network"`
	Hash     string `json:"hash"`
}

func (w *Wallet) CancelTransaction(r *http.Request, request *ReplaceRequest, reply *TransactionReply) error {
	return w.replace(r, request, reply, true)
}

func (w *Wallet) SpeedUpTransaction(r *http.Request, request *ReplaceRequest, reply *TransactionReply) error {
	return w.replace(r, request, reply, false)
}

func (w *Wallet) replace(r *http.Request, request *ReplaceRequest, reply *TransactionReply, cancel bool) error {
	wallet, _, err := w.walletFor(r, request.Token)
	if err != nil {
		return err
	}

	key, err := keystore.Decrypt([]byte(wallet.KeystoreJSON), request.Password)
	if err != nil {
		return err
	}

	var tx *model.SubmittedTransaction
	if cancel {
		tx, err = w.orchestrator.Cancel(r.Context(), request.Network, request.Hash, key)
	} else {
		tx, err = w.orchestrator.SpeedUp(r.Context(), request.Network, request.Hash, key)
	}
	if err != nil {
		return err
	}

	reply.Transaction = tx
	return nil
}

// ---- queries ----

type TxQueryRequest struct {
	Token   string `json:"token"`
	Network string `json:"network"`
	Hash    string `json:"hash"`
}

// GetTransaction re-queries a transaction by hash, the follow-up path after
// a confirmation timeout left a send pending.
func (w *Wallet) GetTransaction(r *http.Request, request *TxQueryRequest, reply *TransactionReply) error {
	if _, err := w.auth.VerifyToken(request.Token); err != nil {
		return err
	}

	tx, err := w.orchestrator.Status(r.Context(), request.Network, request.Hash)
	if err != nil {
		return err
	}

	reply.Transaction = tx
	return nil
}

type HistoryRequest struct {
	Token string `json:"token"`
}

type HistoryReply struct {
	Entries []model.LedgerEntry `json:"entries"`
}

func (w *Wallet) GetHistory(r *http.Request, request *HistoryRequest, reply *HistoryReply) error {
	claims, err := w.auth.VerifyToken(request.Token)
	if err != nil {
		return err
	}

	entries, err := w.storage.GetLedgerEntries(r.Context(), claims.UserID)
	if err != nil {
		return err
	}

	reply.Entries = entries
	return nil
}

// GetTransactionsBatch fetches several transactions at once. args mirrors
// the positional convention: [network, rlpHexOfHashList, token].
func (w *Wallet) GetTransactionsBatch(r *http.Request, args *[]string, reply *HistoryBatchReply) error {
	if len(*args) < 3 {
		return errors.New("expected [network, hashes, token]")
	}
	network, rlpHex, token := (*args)[0], (*args)[1], (*args)[2]

	if _, err := w.auth.VerifyToken(token); err != nil {
		return err
	}

	raw, err := hex.DecodeString(strings.TrimPrefix(strings.ReplaceAll(rlpHex, " ", ""), "0x"))
	if err != nil {
		return fmt.Errorf("invalid hex hash list: %w", err)
	}

	parser := &fastrlp.Parser{}
	list, err := parser.Parse(raw)
	if err != nil {
		return err
	}

	transactions := []*model.SubmittedTransaction{}
	for i := 0; i < list.Elems(); i++ {
		hash, err := list.Get(i).GetString()
		if err != nil {
			return err
		}
		tx, err := w.orchestrator.Status(r.Context(), network, hash)
		if err != nil {
			w.logger.Warn("batch lookup failed", zap.String("hash", hash), zap.Error(err))
			continue
		}
		transactions = append(transactions, tx)
	}

	reply.Transactions = transactions
	return nil
}

type HistoryBatchReply struct {
	Transactions []*model.SubmittedTransaction `json:"transactions"`
}

// ---- contacts ----

type ContactRequest struct {
	Token   string `json:"token"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

type ContactsReply struct {
	Contacts []model.Contact `json:"contacts"`
}

func (w *Wallet) AddContact(r *http.Request, request *ContactRequest, reply *ContactsReply) error {
	claims, err := w.auth.VerifyToken(request.Token)
	if err != nil {
		return err
	}
	if request.Name == "" || !common.IsHexAddress(request.Address) {
		return errors.New("invalid contact name or address")
	}

	if err := w.storage.AddContact(r.Context(), model.Contact{
		UserID:  claims.UserID,
		Name:    request.Name,
		Address: common.HexToAddress(request.Address).Hex(),
	}); err != nil {
		return err
	}
	return w.listContacts(r.Context(), claims.UserID, reply)
}

type ListContactsRequest struct {
	Token string `json:"token"`
}

func (w *Wallet) ListContacts(r *http.Request, request *ListContactsRequest, reply *ContactsReply) error {
	claims, err := w.auth.VerifyToken(request.Token)
	if err != nil {
		return err
	}
	return w.listContacts(r.Context(), claims.UserID, reply)
}

type RemoveContactRequest struct {
	Token     string `json:"token"`
	ContactID int64  `json:"contactId"`
}

func (w *Wallet) RemoveContact(r *http.Request, request *RemoveContactRequest, reply *ContactsReply) error {
	claims, err := w.auth.VerifyToken(request.Token)
	if err != nil {
		return err
	}
	if err := w.storage.RemoveContact(r.Context(), claims.UserID, request.ContactID); err != nil {
		return err
	}
	return w.listContacts(r.Context(), claims.UserID, reply)
}

func (w *Wallet) listContacts(ctx context.Context, userID int64, reply *ContactsReply) error {
	contacts, err := w.storage.ListContacts(ctx, userID)
	if err != nil {
		return err
	}
	reply.Contacts = contacts
	return nil
}

// ---- chat ----

type ChatRequest struct {
	Token    string `json:"token"`
	Password string `json:"password,omitempty"`
	Message  string `json:"message"`
}

type ChatReply struct {
	Reply       string                      `json:"reply"`
	Transaction *model.SubmittedTransaction `json:"transaction,omitempty"`
}

// Chat forwards the message to the LLM endpoint and executes the command it
// parses. A transfer intent requires the password, since the wallet key must
// be decrypted to sign.
func (w *Wallet) Chat(r *http.Request, request *ChatRequest, reply *ChatReply) error {
	wallet, user, err := w.walletFor(r, request.Token)
	if err != nil {
		return err
	}

	intent, err := w.chat.Parse(r.Context(), request.Message)
	if err != nil {
		return err
	}

	switch intent.Action {
	case assistant.ActionTransfer:
		if request.Password == "" {
			reply.Reply = "Please provide your password to authorize the transfer."
			return nil
		}
		tx, err := w.executeChatTransfer(r, request, wallet, user, intent)
		if err != nil {
			return err
		}
		reply.Transaction = tx
		reply.Reply = fmt.Sprintf("Sent %s to %s (tx %s, %s).", intent.Amount, intent.To, tx.Hash, tx.Status)
	case assistant.ActionBalance:
		balance, err := w.orchestrator.Balance(r.Context(), intent.Network, common.HexToAddress(wallet.Address))
		if err != nil {
			return err
		}
		reply.Reply = fmt.Sprintf("Your balance is %s.", wei.Format(balance))
	case assistant.ActionHistory:
		entries, err := w.storage.GetLedgerEntries(r.Context(), user.ID)
		if err != nil {
			return err
		}
		reply.Reply = fmt.Sprintf("You have %d recorded transactions.", len(entries))
	default:
		reply.Reply = intent.Reply
	}
	return nil
}

func (w *Wallet) executeChatTransfer(r *http.Request, request *ChatRequest, wallet model.Wallet, user model.User, intent assistant.Intent) (*model.SubmittedTransaction, error) {
	transfer := &TransferRequest{
		Network: intent.Network,
		To:      intent.To,
		Value:   intent.Amount,
	}
	txIntent, err := w.buildIntent(wallet, transfer)
	if err != nil {
		return nil, err
	}

	key, err := keystore.Decrypt([]byte(wallet.KeystoreJSON), request.Password)
	if err != nil {
		return nil, err
	}

	tx, err := w.orchestrator.Send(r.Context(), txIntent, key)
	if err != nil {
		return nil, err
	}
	w.recordInBackground(user, wallet, intent.To, tx)
	return tx, nil
}

// ---- helpers ----

func (w *Wallet) walletFor(r *http.Request, token string) (model.Wallet, model.User, error) {
	claims, err := w.auth.VerifyToken(token)
	if err != nil {
		return model.Wallet{}, model.User{}, err
	}
	user, err := w.storage.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		return model.Wallet{}, model.User{}, err
	}
	wallet, err := w.storage.GetWalletByUserID(r.Context(), claims.UserID)
	if err != nil {
		return model.Wallet{}, model.User{}, err
	}
	return wallet, user, nil
}

func (w *Wallet) buildIntent(wallet model.Wallet, request *TransferRequest) (txorch.Intent, error) {
	if !common.IsHexAddress(request.To) {
		return txorch.Intent{}, fmt.Errorf("invalid recipient address %q", request.To)
	}
	value, err := wei.Parse(request.Value)
	if err != nil {
		return txorch.Intent{}, err
	}

	intent := txorch.Intent{
		Network:  request.Network,
		From:     common.HexToAddress(wallet.Address),
		To:       common.HexToAddress(request.To),
		Value:    value,
		GasLimit: request.GasLimit,
	}
	if request.Data != "" {
		data, err := hex.DecodeString(strings.TrimPrefix(request.Data, "0x"))
		if err != nil {
			return txorch.Intent{}, fmt.Errorf("invalid calldata: %w", err)
		}
		intent.Data = data
	}
	if request.MaxFeePerGas != "" {
		feeCap, ok := new(big.Int).SetString(request.MaxFeePerGas, 10)
		if !ok {
			return txorch.Intent{}, errors.New("invalid maxFeePerGas")
		}
		intent.FeeCap = feeCap
	}
	if request.MaxPriorityFeePerGas != "" {
		tipCap, ok := new(big.Int).SetString(request.MaxPriorityFeePerGas, 10)
		if !ok {
			return txorch.Intent{}, errors.New("invalid maxPriorityFeePerGas")
		}
		intent.TipCap = tipCap
	}
	return intent, nil
}

// recordInBackground runs the dual-ledger write, the contact bump and the
// notification on a detached goroutine with its own timeout context. The
// broadcast is already final; nothing here can affect the caller's result.
func (w *Wallet) recordInBackground(user model.User, wallet model.Wallet, recipient string, tx *model.SubmittedTransaction) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), bookkeepingTimeout)
		defer cancel()

		w.recorder.Record(ctx, user.ID, wallet.Address, recipient, tx)
		w.stats.Bump(ctx, user.ID, recipient, tx, model.PerspectiveSent)
		w.notify.Notify(ctx, user, tx)
	}()
}

type orchestrator interface {
	Estimate(ctx context.Context, intent txorch.Intent) (*txorch.Quote, error)
	Simulate(ctx context.Context, intent txorch.Intent) error
	Send(ctx context.Context, intent txorch.Intent, key *ecdsa.PrivateKey) (*model.SubmittedTransaction, error)
	Cancel(ctx context.Context, network, hash string, key *ecdsa.PrivateKey) (*model.SubmittedTransaction, error)
	SpeedUp(ctx context.Context, network, hash string, key *ecdsa.PrivateKey) (*model.SubmittedTransaction, error)
	Status(ctx context.Context, network, hash string) (*model.SubmittedTransaction, error)
	Balance(ctx context.Context, network string, addr common.Address) (*big.Int, error)
}

type storage interface {
	CreateUser(ctx context.Context, username, passwordHash, email string) (model.User, error)
	GetUserByID(ctx context.Context, id int64) (model.User, error)
	CreateWallet(ctx context.Context, wallet model.Wallet) error
	GetWalletByUserID(ctx context.Context, userID int64) (model.Wallet, error)
	GetLedgerEntries(ctx context.Context, userID int64) ([]model.LedgerEntry, error)
	AddContact(ctx context.Context, contact model.Contact) error
	ListContacts(ctx context.Context, userID int64) ([]model.Contact, error)
	RemoveContact(ctx context.Context, userID, contactID int64) error
}

type authenticator interface {
	HashPassword(password string) (string, error)
	Authenticate(ctx context.Context, username, password string) (string, error)
	VerifyToken(token string) (*auth.Claims, error)
}

type recorder interface {
	Record(ctx context.Context, senderUserID int64, senderAddr, recipientAddr string, tx *model.SubmittedTransaction)
}

type statsUpdater interface {
	Bump(ctx context.Context, userID int64, counterpartyAddr string, tx *model.SubmittedTransaction, perspective model.Perspective)
}

type assistantClient interface {
	Parse(ctx context.Context, message string) (assistant.Intent, error)
}

type Wallet struct {
	orchestrator orchestrator
	storage      storage
	auth         authenticator
	recorder     recorder
	stats        statsUpdater
	notify       notifier.Notifier
	chat         assistantClient
	logger       *zap.Logger
}
