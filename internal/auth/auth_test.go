package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testAuth(t *testing.T, password string) *Auth {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	a, err := New(string(hash), "test-secret")
	require.NoError(t, err)
	return a
}

func TestOpenAccessWithoutPassword(t *testing.T) {
	a, err := New("", "")
	require.NoError(t, err)
	assert.False(t, a.Required())
	assert.NoError(t, a.Validate("anything"))

	var none *Auth
	assert.False(t, none.Required())
	assert.NoError(t, none.Validate(""))
}

func TestLoginAndValidate(t *testing.T) {
	a := testAuth(t, "hunter2")
	require.True(t, a.Required())

	token, err := a.Login("hunter2", "10.0.0.1")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.NoError(t, a.Validate(token))

	_, err = a.Login("wrong", "10.0.0.1")
	assert.ErrorIs(t, err, ErrDenied)
}

func TestValidateRejectsForeignTokens(t *testing.T) {
	a := testAuth(t, "hunter2")

	assert.ErrorIs(t, a.Validate("not.a.token"), ErrDenied)

	other, err := New(string(a.passHash), "other-secret")
	require.NoError(t, err)
	token, err := other.Login("hunter2", "x")
	require.NoError(t, err)
	assert.ErrorIs(t, a.Validate(token), ErrDenied)

	wrongRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role": "player",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	assert.ErrorIs(t, a.Validate(wrongRole), ErrDenied)
}

func TestTokenExpires(t *testing.T) {
	a := testAuth(t, "hunter2")
	now := time.Now()
	a.now = func() time.Time { return now }

	token, err := a.Login("hunter2", "x")
	require.NoError(t, err)

	a.now = func() time.Time { return now.Add(tokenExpiry + time.Minute) }
	assert.ErrorIs(t, a.Validate(token), ErrDenied)
}

func TestLoginRateLimit(t *testing.T) {
	a := testAuth(t, "hunter2")
	for i := 0; i < maxLoginAttempts; i++ {
		_, err := a.Login("wrong", "10.0.0.9")
		require.ErrorIs(t, err, ErrDenied)
	}
	_, err := a.Login("hunter2", "10.0.0.9")
	assert.ErrorIs(t, err, ErrRateLimited)

	_, err = a.Login("hunter2", "10.0.0.10")
	assert.NoError(t, err)
}

func TestNewRejectsGarbageHash(t *testing.T) {
	_, err := New("plaintext", "")
	assert.Error(t, err)
}

func TestHashPassword(t *testing.T) {
	_, err := HashPassword("abc")
	assert.Error(t, err)

	hash, err := HashPassword("longenough")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("longenough")))
}
