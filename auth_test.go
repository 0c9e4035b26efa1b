package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := GeneratePasswordHash("correct horse battery staple")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(hash, "pbkdf2:sha256:260000$"))
	parts := strings.Split(hash, "$")
	require.Len(t, parts, 3)
	assert.Len(t, parts[1], hashSaltLength)

	assert.True(t, VerifyPasswordHash(hash, "correct horse battery staple"))
	assert.False(t, VerifyPasswordHash(hash, "wrong password"))
}

func TestVerifyPasswordHashRejectsMalformed(t *testing.T) {
	for _, stored := range []string{
		"",
		"plaintext",
		"pbkdf2:sha256:260000$onlysalt",
		"pbkdf2:md5:260000$salt$digest",
		"bcrypt:sha256:260000$salt$digest",
		"pbkdf2:sha256:zero$salt$digest",
		"pbkdf2:sha256:260000$salt$nothex",
	} {
		assert.False(t, VerifyPasswordHash(stored, "anything"), stored)
	}
}

func newTestGateway(t *testing.T, password string) (*AuthGateway, *AccountStore, Account) {
	t.Helper()
	store, _ := testStore(t)

	hash, err := GeneratePasswordHash(password)
	require.NoError(t, err)
	account := Account{ID: "11aa22bb", Email: "alice@example.com", Name: "alice", Key: "sess-key", PassHash: hash}
	require.True(t, store.Add(account))

	return NewAuthGateway(store, "admin@example.com"), store, account
}

func TestVerifyEmailAndPassword(t *testing.T) {
	gateway, _, account := newTestGateway(t, "hunter2hunter2")

	verified, got := gateway.VerifyEmailAndPassword("alice@example.com", "hunter2hunter2")
	assert.True(t, verified)
	assert.Equal(t, account.ID, got.ID)

	verified, _ = gateway.VerifyEmailAndPassword("alice@example.com", "wrong")
	assert.False(t, verified)

	verified, _ = gateway.VerifyEmailAndPassword("nobody@example.com", "hunter2hunter2")
	assert.False(t, verified)
}

func TestVerifyIDAndKey(t *testing.T) {
	gateway, _, account := newTestGateway(t, "hunter2hunter2")

	verified, got := gateway.VerifyIDAndKey(account.ID, "sess-key")
	assert.True(t, verified)
	assert.Equal(t, account.Email, got.Email)

	verified, _ = gateway.VerifyIDAndKey(account.ID, "stale-key")
	assert.False(t, verified)

	verified, _ = gateway.VerifyIDAndKey(account.ID, "")
	assert.False(t, verified)

	verified, _ = gateway.VerifyIDAndKey("zzzzzzzz", "sess-key")
	assert.False(t, verified)
}

func TestRotateKeyRevokesPrevious(t *testing.T) {
	gateway, _, account := newTestGateway(t, "hunter2hunter2")

	fresh, ok := gateway.RotateKey(account.ID)
	require.True(t, ok)
	assert.NotEqual(t, "sess-key", fresh)

	verified, _ := gateway.VerifyIDAndKey(account.ID, "sess-key")
	assert.False(t, verified, "old key keeps verifying after rotation")
	verified, _ = gateway.VerifyIDAndKey(account.ID, fresh)
	assert.True(t, verified)
}

func TestRotateKeyUnknownID(t *testing.T) {
	gateway, _, _ := newTestGateway(t, "hunter2hunter2")
	_, ok := gateway.RotateKey("zzzzzzzz")
	assert.False(t, ok)
}

func TestIsAdminIsPureEmailComparison(t *testing.T) {
	gateway, _, account := newTestGateway(t, "hunter2hunter2")

	assert.False(t, gateway.IsAdmin(account))
	account.Email = "admin@example.com"
	assert.True(t, gateway.IsAdmin(account))
}

func TestNewAccountIDShape(t *testing.T) {
	gateway, _, _ := newTestGateway(t, "hunter2hunter2")

	id, err := gateway.NewAccountID(map[string]Account{})
	require.NoError(t, err)
	assert.Len(t, id, 8)
	assert.NotContains(t, id, "-")
}
