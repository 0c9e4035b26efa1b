package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Account is one record of the user ledger. Key is the current session
// key; a login rotates it, which revokes the previous one.
type Account struct {
	ID       string
	Email    string
	Name     string
	Key      string
	PassHash string
}

const usersCsvHeader = "email,id,name,key,pass-hash"

// AccountStore owns the users.csv ledger. Every mutation is a full
// read-modify-write serialized through the store mutex; reads go against
// the last committed file without blocking.
type AccountStore struct {
	path string
	mu   sync.Mutex
}

func NewAccountStore(path string) *AccountStore {
	return &AccountStore{path: path}
}

// Load parses the full ledger. Any failure yields an empty map rather
// than an error; a line that does not split into exactly five fields is
// skipped.
func (s *AccountStore) Load() map[string]Account {
	accounts := map[string]Account{}

	f, err := os.Open(s.path)
	if err != nil {
		return accounts
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	first := true
	for scanner.Scan() {
		if first {
			first = false // header
			continue
		}
		fields := strings.Split(strings.TrimRight(scanner.Text(), "\r\n"), ",")
		if len(fields) != 5 {
			continue
		}
		account := Account{
			Email:    fields[0],
			ID:       fields[1],
			Name:     fields[2],
			Key:      fields[3],
			PassHash: fields[4],
		}
		accounts[account.ID] = account
	}

	return accounts
}

// Save writes the full snapshot. An existing ledger is first copied into
// the sibling backup directory under a timestamped name; when that copy
// fails and requireBackup is set, nothing is written. The ledger itself
// is replaced atomically via a temp file rename so a reader never
// observes a partial write.
func (s *AccountStore) Save(accounts map[string]Account, requireBackup bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(accounts, requireBackup)
}

func (s *AccountStore) save(accounts map[string]Account, requireBackup bool) bool {
	if _, err := os.Stat(s.path); err == nil {
		if err := s.backup(); err != nil && requireBackup {
			return false
		}
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false
	}

	tmp, err := os.CreateTemp(dir, "users_*.tmp")
	if err != nil {
		return false
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	fmt.Fprintln(w, usersCsvHeader)

	ids := make([]string, 0, len(accounts))
	for id := range accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		a := accounts[id]
		fmt.Fprintf(w, "%s,%s,%s,%s,%s\n", a.Email, id, a.Name, a.Key, a.PassHash)
	}

	if err := w.Flush(); err != nil {
		tmp.Close()
		return false
	}
	if err := tmp.Close(); err != nil {
		return false
	}
	return os.Rename(tmp.Name(), s.path) == nil
}

func (s *AccountStore) backup() error {
	backupDir := filepath.Join(filepath.Dir(s.path), "backup")
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return err
	}

	now := time.Now()
	name := fmt.Sprintf("users_%s_%06d.csv", now.Format("20060102_150405"), now.Nanosecond()/1000)

	src, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(filepath.Join(backupDir, name))
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

// Add merges a new account into a fresh snapshot. A duplicate id is
// rejected and leaves the ledger untouched. The backup is required only
// when a ledger file already exists.
func (s *AccountStore) Add(account Account) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := s.Load()
	if _, exists := accounts[account.ID]; exists {
		return false
	}
	accounts[account.ID] = account

	_, err := os.Stat(s.path)
	return s.save(accounts, err == nil)
}

// UpdateField mutates one field of an existing record and persists the
// snapshot. Unknown ids and unknown fields fail.
func (s *AccountStore) UpdateField(id string, field string, value string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := s.Load()
	account, ok := accounts[id]
	if !ok {
		return false
	}

	switch field {
	case "key":
		account.Key = value
	case "name":
		account.Name = value
	case "pass_hash":
		account.PassHash = value
	case "email":
		account.Email = value
	default:
		return false
	}
	accounts[id] = account

	return s.save(accounts, true)
}

// FindByEmail returns the account with the given email, if any.
func (s *AccountStore) FindByEmail(email string) (Account, bool) {
	for _, account := range s.Load() {
		if account.Email == email {
			return account, true
		}
	}
	return Account{}, false
}

// FindByID returns the account with the given id, if any.
func (s *AccountStore) FindByID(id string) (Account, bool) {
	account, ok := s.Load()[id]
	return account, ok
}
