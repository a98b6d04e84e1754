package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abhishek7776/cryptowallet/internal/model"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

func NewStorage(driver, dsn string) (*storage, error) {
	if !strings.Contains(dsn, "sslmode") {
		dsn = fmt.Sprintf("%s sslmode=disable", dsn)
	}
	db, err := sqlx.Connect(driver, dsn)
	return &storage{db: db}, err
}

func (s *storage) ExecuteMigrations(ctx context.Context) error {
	return s.executeMigrations(ctx, s.db)
}

func (s *storage) CreateUser(ctx context.Context, username, passwordHash, email string) (model.User, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		s.db.Rebind(`INSERT INTO users (username, password_hash, email) VALUES(?, ?, ?) RETURNING id`),
		username, passwordHash, email).Scan(&id)
	if err != nil {
		return model.User{}, err
	}
	return model.User{ID: id, Username: username, PasswordHash: passwordHash, Email: email}, nil
}

func (s *storage) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	var users []model.User
	if err := s.db.SelectContext(ctx, &users,
		s.db.Rebind(`SELECT * FROM users WHERE username = ?`), username); err != nil {
		return model.User{}, err
	}
	if len(users) == 0 {
		return model.User{}, fmt.Errorf("user %q not found", username)
	}
	return users[0], nil
}

func (s *storage) GetUserByID(ctx context.Context, id int64) (model.User, error) {
	var users []model.User
	if err := s.db.SelectContext(ctx, &users,
		s.db.Rebind(`SELECT * FROM users WHERE id = ?`), id); err != nil {
		return model.User{}, err
	}
	if len(users) == 0 {
		return model.User{}, fmt.Errorf("user %d not found", id)
	}
	return users[0], nil
}

func (s *storage) CreateWallet(ctx context.Context, wallet model.Wallet) error {
	_, err := s.db.ExecContext(ctx,
		s.db.Rebind(`INSERT INTO wallet (user_id, address, keystore_json) VALUES(?, ?, ?)`),
		wallet.UserID, wallet.Address, wallet.KeystoreJSON)
	return err
}

func (s *storage) GetWalletByUserID(ctx context.Context, userID int64) (model.Wallet, error) {
	var wallets []model.Wallet
	if err := s.db.SelectContext(ctx, &wallets,
		s.db.Rebind(`SELECT * FROM wallet WHERE user_id = ?`), userID); err != nil {
		return model.Wallet{}, err
	}
	if len(wallets) == 0 {
		return model.Wallet{}, fmt.Errorf("no wallet for user %d", userID)
	}
	return wallets[0], nil
}

func (s *storage) GetWalletByAddress(ctx context.Context, address string) (model.Wallet, error) {
	var wallets []model.Wallet
	if err := s.db.SelectContext(ctx, &wallets,
		s.db.Rebind(`SELECT * FROM wallet WHERE lower(address) = lower(?)`), address); err != nil {
		return model.Wallet{}, err
	}
	if len(wallets) == 0 {
		return model.Wallet{}, fmt.Errorf("no wallet with address %s", address)
	}
	return wallets[0], nil
}

// InsertLedgerEntry relies on the (user_id, tx_hash, perspective) unique
// constraint: re-recording the same entry is a no-op, never an error.
func (s *storage) InsertLedgerEntry(ctx context.Context, entry model.LedgerEntry) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO ledger_entry
    (user_id, tx_hash, perspective, counterparty, value, network, status, block_number, created_at)
    VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`),
		entry.UserID, entry.TxHash, entry.Perspective, entry.Counterparty,
		entry.Value, entry.Network, entry.Status, entry.BlockNumber, entry.CreatedAt)
	return err
}

func (s *storage) GetLedgerEntries(ctx context.Context, userID int64) ([]model.LedgerEntry, error) {
	entries := []model.LedgerEntry{}
	if err := s.db.SelectContext(ctx, &entries,
		s.db.Rebind(`SELECT * FROM ledger_entry WHERE user_id = ? ORDER BY created_at DESC, id DESC`),
		userID); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *storage) AddContact(ctx context.Context, contact model.Contact) error {
	_, err := s.db.ExecContext(ctx,
		s.db.Rebind(`INSERT INTO contact (user_id, name, address) VALUES(?, ?, ?)`),
		contact.UserID, contact.Name, contact.Address)
	return err
}

func (s *storage) ListContacts(ctx context.Context, userID int64) ([]model.Contact, error) {
	contacts := []model.Contact{}
	if err := s.db.SelectContext(ctx, &contacts,
		s.db.Rebind(`SELECT id, user_id, name, address, tx_count,
    total_sent::TEXT AS total_sent, total_received::TEXT AS total_received, last_tx_at
    FROM contact WHERE user_id = ? ORDER BY name`), userID); err != nil {
		return nil, err
	}
	return contacts, nil
}

func (s *storage) RemoveContact(ctx context.Context, userID, contactID int64) error {
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`DELETE FROM contact WHERE user_id = ? AND id = ?`), userID, contactID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.New("contact not found")
	}
	return nil
}

// BumpContactStats is a single atomic increment; a counterparty that is not
// a saved contact matches no row and the update is a no-op.
func (s *storage) BumpContactStats(ctx context.Context, userID int64, address string, perspective model.Perspective, value string, at time.Time) error {
	column := "total_sent"
	if perspective == model.PerspectiveReceived {
		column = "total_received"
	}
	query := fmt.Sprintf(`UPDATE contact SET tx_count = tx_count + 1,
    %s = %s + CAST(? AS NUMERIC), last_tx_at = ?
    WHERE user_id = ? AND lower(address) = lower(?)`, column, column)
	_, err := s.db.ExecContext(ctx, s.db.Rebind(query), value, at, userID, address)
	return err
}

type storage struct {
	db *sqlx.DB
}
