package authenticator

import (
	"context"
	"errors"
	"time"

	"github.com/abhishek7776/cryptowallet/internal/model"
	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

func NewAuthenticator(storage storage, secret string) *authenticator {
	return &authenticator{storage: storage, secret: []byte(secret)}
}

func (auth *authenticator) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (auth *authenticator) Authenticate(ctx context.Context, username, password string) (string, error) {
	user, err := auth.storage.GetUserByUsername(ctx, username)
	if err != nil {
		return "", errInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", errInvalidCredentials
	}

	claims := &Claims{
		UserID:   user.ID,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenDuration)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(auth.secret)
}

// VerifyToken validates a session token and returns the claims identifying
// the user.
func (auth *authenticator) VerifyToken(token string) (*Claims, error) {
	claims := &Claims{}
	tkn, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		return auth.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !tkn.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

type Claims struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

var errInvalidCredentials = errors.New("invalid credentials")

const tokenDuration = 24 * time.Hour

type storage interface {
	GetUserByUsername(ctx context.Context, username string) (model.User, error)
}

type authenticator struct {
	storage storage
	secret  []byte
}
