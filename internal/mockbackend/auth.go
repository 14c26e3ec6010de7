package mockbackend

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	errInvalidCredentials = errors.New("invalid credentials")
	errTokenExpired       = errors.New("token has expired")
	errInvalidToken       = errors.New("invalid token")
)

// Roles understood by the mock backend. Only admins may read logs.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User is an account seeded into the mock backend.
type User struct {
	Username string
	Password string
	Role     string
}

// DefaultUsers mirrors the stock backend accounts.
func DefaultUsers() []User {
	return []User{
		{Username: "admin", Password: "admin", Role: RoleAdmin},
		{Username: "user", Password: "user", Role: RoleUser},
	}
}

// claims is the JWT payload issued on login.
type claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

type account struct {
	hash []byte
	role string
}

// authenticator verifies passwords and issues and validates HS256 tokens.
type authenticator struct {
	mu       sync.RWMutex
	secret   []byte
	ttl      time.Duration
	accounts map[string]account
}

func newAuthenticator(users []User, secret []byte, ttl time.Duration, cost int) (*authenticator, error) {
	a := &authenticator{
		secret:   secret,
		ttl:      ttl,
		accounts: make(map[string]account, len(users)),
	}
	for _, u := range users {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), cost)
		if err != nil {
			return nil, fmt.Errorf("hash password for %s: %w", u.Username, err)
		}
		role := u.Role
		if role == "" {
			role = RoleUser
		}
		a.accounts[u.Username] = account{hash: hash, role: role}
	}
	return a, nil
}

// login checks credentials and returns a signed token.
func (a *authenticator) login(username, password string) (string, error) {
	acct, ok := a.accounts[username]
	if !ok {
		return "", errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acct.hash, []byte(password)); err != nil {
		return "", errInvalidCredentials
	}
	return a.issue(username, acct.role, a.ttl)
}

// issue signs a token for username valid for ttl. A negative ttl yields an
// already-expired token.
func (a *authenticator) issue(username, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "winboard-mock",
		},
	}

	a.mu.RLock()
	secret := a.secret
	a.mu.RUnlock()

	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(secret)
}

// validate parses a token and returns its claims.
func (a *authenticator) validate(token string) (*claims, error) {
	a.mu.RLock()
	secret := a.secret
	a.mu.RUnlock()

	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errTokenExpired
		}
		return nil, errInvalidToken
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return nil, errInvalidToken
	}
	return c, nil
}

// rotate replaces the signing secret, invalidating every issued token.
func (a *authenticator) rotate() {
	a.mu.Lock()
	a.secret = []byte(uuid.NewString())
	a.mu.Unlock()
}
