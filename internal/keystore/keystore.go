// Package keystore generates custodial wallets and guards their private keys
// with the caller's password. Encryption is go-ethereum's standard Web3
// keystore format (scrypt + AES); the plaintext key only exists in memory
// between password entry and signing.
package keystore

import (
	"crypto/ecdsa"
	"fmt"

	gethkeystore "github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

var (
	scryptN = gethkeystore.StandardScryptN
	scryptP = gethkeystore.StandardScryptP
)

// Generate creates a fresh key pair and returns the derived address plus the
// keystore JSON encrypted under password.
func Generate(password string) (address string, keystoreJSON []byte, err error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return "", nil, fmt.Errorf("generating private key: %w", err)
	}
	return encrypt(privateKey, password)
}

// Import wraps an externally supplied hex private key in the same encrypted
// envelope as a generated one.
func Import(privateKeyHex, password string) (address string, keystoreJSON []byte, err error) {
	privateKey, err := crypto.HexToECDSA(strip0x(privateKeyHex))
	if err != nil {
		return "", nil, fmt.Errorf("invalid private key: %w", err)
	}
	return encrypt(privateKey, password)
}

// Decrypt recovers the private key from keystore JSON with the password.
// The caller owns the returned key and must not let it escape the request.
func Decrypt(keystoreJSON []byte, password string) (*ecdsa.PrivateKey, error) {
	key, err := gethkeystore.DecryptKey(keystoreJSON, password)
	if err != nil {
		return nil, fmt.Errorf("decrypting wallet key: %w", err)
	}
	return key.PrivateKey, nil
}

func encrypt(privateKey *ecdsa.PrivateKey, password string) (string, []byte, error) {
	addr := crypto.PubkeyToAddress(privateKey.PublicKey)
	key := &gethkeystore.Key{
		Id:         uuid.New(),
		Address:    addr,
		PrivateKey: privateKey,
	}
	blob, err := gethkeystore.EncryptKey(key, password, scryptN, scryptP)
	if err != nil {
		return "", nil, fmt.Errorf("encrypting wallet key: %w", err)
	}
	return addr.Hex(), blob, nil
}

func strip0x(s string) string {
	if len(s) > 2 && s[:2] == "0x" {
		return s[2:]
	}
	return s
}
