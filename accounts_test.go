package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) (*AccountStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.csv")
	return NewAccountStore(path), path
}

func testAccounts() map[string]Account {
	return map[string]Account{
		"11aa22bb": {ID: "11aa22bb", Email: "alice@example.com", Name: "alice", Key: "k1", PassHash: "pbkdf2:sha256:260000$s$d"},
		"33cc44dd": {ID: "33cc44dd", Email: "bob@example.com", Name: "bob", Key: "k2", PassHash: "pbkdf2:sha256:260000$t$e"},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store, _ := testStore(t)
	want := testAccounts()

	require.True(t, store.Save(want, false))
	assert.Equal(t, want, store.Load())
}

func TestLoadMissingLedgerIsEmpty(t *testing.T) {
	store, _ := testStore(t)
	assert.Empty(t, store.Load())
}

func TestLoadSkipsMalformedLines(t *testing.T) {
	store, path := testStore(t)
	content := usersCsvHeader + "\n" +
		"alice@example.com,11aa22bb,alice,k1,h1\n" +
		"this line is broken\n" +
		"too,many,fields,in,this,line\n" +
		"bob@example.com,33cc44dd,bob,k2,h2\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	accounts := store.Load()
	require.Len(t, accounts, 2)
	assert.Equal(t, "alice", accounts["11aa22bb"].Name)
	assert.Equal(t, "bob", accounts["33cc44dd"].Name)
}

func TestAddRejectsDuplicateID(t *testing.T) {
	store, path := testStore(t)
	account := Account{ID: "11aa22bb", Email: "alice@example.com", Name: "alice", Key: "k1", PassHash: "h1"}

	require.True(t, store.Add(account))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	dup := account
	dup.Email = "other@example.com"
	assert.False(t, store.Add(dup))

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after, "rejected add must leave the ledger unchanged")
}

func TestFirstAddNeedsNoBackup(t *testing.T) {
	store, path := testStore(t)
	require.True(t, store.Add(Account{ID: "11aa22bb", Email: "a@example.com", Name: "a", Key: "k", PassHash: "h"}))

	_, err := os.Stat(filepath.Join(filepath.Dir(path), "backup"))
	assert.True(t, os.IsNotExist(err))
}

func TestSaveBacksUpExistingLedger(t *testing.T) {
	store, path := testStore(t)
	first := map[string]Account{"11aa22bb": {ID: "11aa22bb", Email: "a@example.com", Name: "a", Key: "k", PassHash: "h"}}
	require.True(t, store.Save(first, false))

	firstBytes, err := os.ReadFile(path)
	require.NoError(t, err)

	second := testAccounts()
	require.True(t, store.Save(second, true))

	backups, err := filepath.Glob(filepath.Join(filepath.Dir(path), "backup", "users_*.csv"))
	require.NoError(t, err)
	require.Len(t, backups, 1)

	backupBytes, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Equal(t, firstBytes, backupBytes, "backup must hold the pre-overwrite snapshot")
}

func TestUpdateField(t *testing.T) {
	store, _ := testStore(t)
	require.True(t, store.Save(testAccounts(), false))

	cases := []struct {
		field string
		value string
		get   func(Account) string
	}{
		{"key", "fresh-key", func(a Account) string { return a.Key }},
		{"name", "Alice B", func(a Account) string { return a.Name }},
		{"pass_hash", "pbkdf2:sha256:260000$x$y", func(a Account) string { return a.PassHash }},
		{"email", "alice.b@example.com", func(a Account) string { return a.Email }},
	}
	for _, tc := range cases {
		t.Run(tc.field, func(t *testing.T) {
			require.True(t, store.UpdateField("11aa22bb", tc.field, tc.value))
			account, ok := store.FindByID("11aa22bb")
			require.True(t, ok)
			assert.Equal(t, tc.value, tc.get(account))
		})
	}

	assert.False(t, store.UpdateField("11aa22bb", "role", "admin"), "unknown field")
	assert.False(t, store.UpdateField("zzzzzzzz", "name", "x"), "unknown id")
}

func TestFindByEmail(t *testing.T) {
	store, _ := testStore(t)
	require.True(t, store.Save(testAccounts(), false))

	account, ok := store.FindByEmail("bob@example.com")
	require.True(t, ok)
	assert.Equal(t, "33cc44dd", account.ID)

	_, ok = store.FindByEmail("nobody@example.com")
	assert.False(t, ok)
}

func TestConcurrentAddsDoNotLoseUpdates(t *testing.T) {
	store, _ := testStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("user%04d", i)
			store.Add(Account{ID: id, Email: id + "@example.com", Name: id, Key: "k", PassHash: "h"})
		}(i)
	}
	wg.Wait()

	assert.Len(t, store.Load(), 8)
}
