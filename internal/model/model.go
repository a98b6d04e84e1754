package model

import "time"

type TxStatus int

const (
	Failed TxStatus = iota
	Successful
	Pending
)

func (s TxStatus) String() string {
	switch s {
	case Failed:
		return "failed"
	case Successful:
		return "success"
	default:
		return "pending"
	}
}

// Perspective tells whose viewpoint a ledger entry records.
type Perspective string

const (
	PerspectiveSent     Perspective = "sent"
	PerspectiveReceived Perspective = "received"
)

type User struct {
	ID           int64  `json:"id" db:"id"`
	Username     string `json:"username" db:"username"`
	PasswordHash string `json:"-" db:"password_hash"`
	Email        string `json:"email" db:"email"`
}

// Wallet is the custodial account bound to a user. KeystoreJSON is the
// password-encrypted private key; the plaintext key exists only in memory
// while a transaction is being signed.
type Wallet struct {
	UserID       int64  `json:"userId" db:"user_id"`
	Address      string `json:"address" db:"address"`
	KeystoreJSON string `json:"-" db:"keystore_json"`
}

// SubmittedTransaction is the authoritative record of a broadcast
// transaction. Status moves exactly once, from Pending to a terminal state,
// when the receipt is observed.
type SubmittedTransaction struct {
	Hash           string   `json:"hash"`
	From           string   `json:"from"`
	To             string   `json:"to"`
	Value          string   `json:"value"`
	Network        string   `json:"network"`
	Status         TxStatus `json:"status"`
	Nonce          uint64   `json:"nonce"`
	GasUsed        *uint64  `json:"gasUsed"`
	EffectivePrice *string  `json:"effectiveGasPrice"`
	BlockNumber    *uint64  `json:"blockNumber"`
	BlockHash      *string  `json:"blockHash"`
	Timestamp      int64    `json:"timestamp"`
}

// LedgerEntry is one user's view of one transaction. The
// (user, hash, perspective) triple is unique in storage, which is what makes
// recording idempotent under retries.
type LedgerEntry struct {
	ID           int64       `json:"id" db:"id"`
	UserID       int64       `json:"userId" db:"user_id"`
	TxHash       string      `json:"txHash" db:"tx_hash"`
	Perspective  Perspective `json:"perspective" db:"perspective"`
	Counterparty string      `json:"counterparty" db:"counterparty"`
	Value        string      `json:"value" db:"value"`
	Network      string      `json:"network" db:"network"`
	Status       TxStatus    `json:"status" db:"status"`
	BlockNumber  *uint64     `json:"blockNumber" db:"block_number"`
	CreatedAt    int64       `json:"createdAt" db:"created_at"`
}

// Contact is a saved counterparty with aggregate counters. Counters are only
// ever bumped with atomic increments, never recomputed.
type Contact struct {
	ID            int64      `json:"id" db:"id"`
	UserID        int64      `json:"userId" db:"user_id"`
	Name          string     `json:"name" db:"name"`
	Address       string     `json:"address" db:"address"`
	TxCount       int64      `json:"txCount" db:"tx_count"`
	TotalSent     string     `json:"totalSent" db:"total_sent"`
	TotalReceived string     `json:"totalReceived" db:"total_received"`
	LastTxAt      *time.Time `json:"lastTxAt" db:"last_tx_at"`
}
