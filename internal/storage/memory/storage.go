// Package memory is an in-process storage used by tests. It mirrors the
// semantics the db package gets from Postgres constraints: unique
// (user, hash, perspective) ledger inserts are silent no-ops on conflict,
// wallet address lookups are case-insensitive, contact bumps are no-ops for
// unknown counterparties.
package memory

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/abhishek7776/cryptowallet/internal/model"
)

func addDecimal(a, b string) string {
	ra, ok := new(big.Rat).SetString(a)
	if !ok {
		ra = new(big.Rat)
	}
	rb, ok := new(big.Rat).SetString(b)
	if !ok {
		rb = new(big.Rat)
	}
	sum := new(big.Rat).Add(ra, rb)
	out := strings.TrimRight(sum.FloatString(18), "0")
	out = strings.TrimRight(out, ".")
	if out == "" {
		return "0"
	}
	return out
}

func NewStorage() *Storage {
	return &Storage{
		users:    map[int64]model.User{},
		wallets:  map[int64]model.Wallet{},
		contacts: map[int64]model.Contact{},
		ledger:   map[string]model.LedgerEntry{},
	}
}

type Storage struct {
	mu        sync.Mutex
	nextID    int64
	users     map[int64]model.User
	wallets   map[int64]model.Wallet
	contacts  map[int64]model.Contact
	ledger    map[string]model.LedgerEntry
	ledgerSeq []string
}

func (s *Storage) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Storage) CreateUser(ctx context.Context, username, passwordHash, email string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return model.User{}, fmt.Errorf("user %q already exists", username)
		}
	}
	user := model.User{ID: s.id(), Username: username, PasswordHash: passwordHash, Email: email}
	s.users[user.ID] = user
	return user, nil
}

func (s *Storage) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return model.User{}, fmt.Errorf("user %q not found", username)
}

func (s *Storage) GetUserByID(ctx context.Context, id int64) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return model.User{}, fmt.Errorf("user %d not found", id)
}

func (s *Storage) CreateWallet(ctx context.Context, wallet model.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets[wallet.UserID] = wallet
	return nil
}

func (s *Storage) GetWalletByUserID(ctx context.Context, userID int64) (model.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.wallets[userID]; ok {
		return w, nil
	}
	return model.Wallet{}, fmt.Errorf("no wallet for user %d", userID)
}

func (s *Storage) GetWalletByAddress(ctx context.Context, address string) (model.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.wallets {
		if strings.EqualFold(w.Address, address) {
			return w, nil
		}
	}
	return model.Wallet{}, fmt.Errorf("no wallet with address %s", address)
}

func (s *Storage) InsertLedgerEntry(ctx context.Context, entry model.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("%d/%s/%s", entry.UserID, entry.TxHash, entry.Perspective)
	if _, ok := s.ledger[key]; ok {
		// Conflict: same row already recorded.
		return nil
	}
	entry.ID = s.id()
	s.ledger[key] = entry
	s.ledgerSeq = append(s.ledgerSeq, key)
	return nil
}

func (s *Storage) GetLedgerEntries(ctx context.Context, userID int64) ([]model.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := []model.LedgerEntry{}
	for i := len(s.ledgerSeq) - 1; i >= 0; i-- {
		e := s.ledger[s.ledgerSeq[i]]
		if e.UserID == userID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (s *Storage) AddContact(ctx context.Context, contact model.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.contacts {
		if c.UserID == contact.UserID && strings.EqualFold(c.Address, contact.Address) {
			return fmt.Errorf("contact %s already exists", contact.Address)
		}
	}
	contact.ID = s.id()
	contact.TotalSent = "0"
	contact.TotalReceived = "0"
	s.contacts[contact.ID] = contact
	return nil
}

func (s *Storage) ListContacts(ctx context.Context, userID int64) ([]model.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	contacts := []model.Contact{}
	for _, c := range s.contacts {
		if c.UserID == userID {
			contacts = append(contacts, c)
		}
	}
	return contacts, nil
}

func (s *Storage) RemoveContact(ctx context.Context, userID, contactID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.contacts[contactID]; ok && c.UserID == userID {
		delete(s.contacts, contactID)
		return nil
	}
	return fmt.Errorf("contact not found")
}

func (s *Storage) BumpContactStats(ctx context.Context, userID int64, address string, perspective model.Perspective, value string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.contacts {
		if c.UserID != userID || !strings.EqualFold(c.Address, address) {
			continue
		}
		c.TxCount++
		if perspective == model.PerspectiveReceived {
			c.TotalReceived = addDecimal(c.TotalReceived, value)
		} else {
			c.TotalSent = addDecimal(c.TotalSent, value)
		}
		t := at
		c.LastTxAt = &t
		s.contacts[id] = c
		return nil
	}
	return nil
}
