// Package auth gates monitor control commands behind a shared password.
// A correct password yields a signed session token that later connections
// can present instead.
package auth

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

const (
	tokenExpiry      = 24 * time.Hour
	bcryptCost       = 12
	minPasswordLen   = 4
	loginRateWindow  = 60 * time.Second
	maxLoginAttempts = 10
	monitorRole      = "monitor"
)

var (
	ErrDenied      = errors.New("access denied")
	ErrRateLimited = errors.New("too many login attempts, try again later")
)

// Auth checks monitor credentials. A nil *Auth or one built without a
// password hash lets everyone through.
type Auth struct {
	passHash []byte
	secret   []byte
	now      func() time.Time

	rateMu  sync.Mutex
	rateMap map[string]*rateEntry
}

type rateEntry struct {
	Count   int
	ResetAt time.Time
}

// New builds an Auth from a bcrypt hash and an HMAC secret. An empty secret
// is replaced by a random one, so tokens only survive for the life of the
// process.
func New(passwordHash, secret string) (*Auth, error) {
	a := &Auth{
		passHash: []byte(passwordHash),
		now:      time.Now,
		rateMap:  make(map[string]*rateEntry),
	}
	if passwordHash != "" {
		if _, err := bcrypt.Cost(a.passHash); err != nil {
			return nil, errors.Wrap(err, "monitor password hash")
		}
	}
	if secret != "" {
		a.secret = []byte(secret)
	} else {
		a.secret = make([]byte, 32)
		if _, err := rand.Read(a.secret); err != nil {
			return nil, errors.Wrap(err, "generate token secret")
		}
	}
	return a, nil
}

// Required reports whether monitors must authenticate.
func (a *Auth) Required() bool {
	return a != nil && len(a.passHash) > 0
}

// Login checks password and returns a session token. remote is used for
// rate limiting.
func (a *Auth) Login(password, remote string) (string, error) {
	if !a.Required() {
		return a.token()
	}
	if !a.checkRate(remote) {
		return "", ErrRateLimited
	}
	if err := bcrypt.CompareHashAndPassword(a.passHash, []byte(password)); err != nil {
		return "", ErrDenied
	}
	return a.token()
}

// Validate accepts a token issued by Login.
func (a *Auth) Validate(tokenStr string) error {
	if !a.Required() {
		return nil
	}
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		return errors.Wrap(ErrDenied, err.Error())
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return ErrDenied
	}
	if role, _ := claims["role"].(string); role != monitorRole {
		return ErrDenied
	}
	return nil
}

func (a *Auth) token() (string, error) {
	if a == nil {
		return "", nil
	}
	now := a.now()
	claims := jwt.MapClaims{
		"sub":  uuid.NewString(),
		"role": monitorRole,
		"exp":  now.Add(tokenExpiry).Unix(),
		"iat":  now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *Auth) checkRate(remote string) bool {
	a.rateMu.Lock()
	defer a.rateMu.Unlock()

	now := a.now()
	entry, ok := a.rateMap[remote]
	if !ok || now.After(entry.ResetAt) {
		a.rateMap[remote] = &rateEntry{Count: 1, ResetAt: now.Add(loginRateWindow)}
		return true
	}
	entry.Count++
	return entry.Count <= maxLoginAttempts
}

// HashPassword produces the value for monitor_password_hash.
func HashPassword(password string) (string, error) {
	if len(password) < minPasswordLen {
		return "", errors.Errorf("password must be at least %d characters", minPasswordLen)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", errors.Wrap(err, "hash password")
	}
	return string(hash), nil
}
