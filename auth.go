package main

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"
)

const (
	hashIterations = 260000
	hashSaltLength = 21
	hashKeyLength  = 32

	cookieUserID  = "user_id"
	cookieUserKey = "user_key"
)

const saltAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GeneratePasswordHash produces a pbkdf2:sha256:260000$salt$digest hash,
// the format existing ledgers already carry.
func GeneratePasswordHash(password string) (string, error) {
	salt, err := randomSalt(hashSaltLength)
	if err != nil {
		return "", err
	}
	digest := pbkdf2.Key([]byte(password), []byte(salt), hashIterations, hashKeyLength, sha256.New)
	return "pbkdf2:sha256:" + strconv.Itoa(hashIterations) + "$" + salt + "$" + hex.EncodeToString(digest), nil
}

// VerifyPasswordHash checks password against a stored pbkdf2:sha256 hash.
func VerifyPasswordHash(stored string, password string) bool {
	parts := strings.Split(stored, "$")
	if len(parts) != 3 {
		return false
	}
	method := strings.Split(parts[0], ":")
	if len(method) != 3 || method[0] != "pbkdf2" || method[1] != "sha256" {
		return false
	}
	iterations, err := strconv.Atoi(method[2])
	if err != nil || iterations < 1 {
		return false
	}

	expected, err := hex.DecodeString(parts[2])
	if err != nil {
		return false
	}
	digest := pbkdf2.Key([]byte(password), []byte(parts[1]), iterations, len(expected), sha256.New)
	return subtle.ConstantTimeCompare(digest, expected) == 1
}

func randomSalt(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = saltAlphabet[int(b)%len(saltAlphabet)]
	}
	return string(buf), nil
}

// newOpaqueToken returns the first segment of a fresh UUIDv4, the shape
// account ids and session keys use in the ledger and on the wire.
func newOpaqueToken() string {
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}

// AuthGateway verifies credentials against the account ledger and issues
// session keys. Admin recognition is a pure email comparison, not a
// stored role.
type AuthGateway struct {
	store      *AccountStore
	adminEmail string
}

func NewAuthGateway(store *AccountStore, adminEmail string) *AuthGateway {
	return &AuthGateway{store: store, adminEmail: adminEmail}
}

// dummyHash keeps the work for "no such email" comparable to a real
// verification so the two failure paths cost the same.
var dummyHash = func() string {
	h, _ := GeneratePasswordHash(uuid.NewString())
	return h
}()

// VerifyEmailAndPassword checks an email/password pair against the ledger.
func (g *AuthGateway) VerifyEmailAndPassword(email string, password string) (bool, Account) {
	account, found := g.store.FindByEmail(email)
	if !found {
		VerifyPasswordHash(dummyHash, password)
		return false, Account{}
	}
	if !VerifyPasswordHash(account.PassHash, password) {
		return false, account
	}
	return true, account
}

// VerifyIDAndKey checks an id/session-key pair against the ledger.
func (g *AuthGateway) VerifyIDAndKey(id string, key string) (bool, Account) {
	account, found := g.store.FindByID(id)
	if !found {
		return false, Account{}
	}
	if key == "" || account.Key != key {
		return false, account
	}
	return true, account
}

// IsAdmin reports whether the account is the configured administrator.
func (g *AuthGateway) IsAdmin(account Account) bool {
	return account.Email == g.adminEmail
}

// RotateKey issues a fresh session key and persists it. The previous key
// stops verifying as soon as the ledger write lands.
func (g *AuthGateway) RotateKey(id string) (string, bool) {
	key := newOpaqueToken()
	if !g.store.UpdateField(id, "key", key) {
		return "", false
	}
	return key, true
}

// NewAccountID allocates an id not present in the ledger snapshot.
func (g *AuthGateway) NewAccountID(accounts map[string]Account) (string, error) {
	for i := 0; i < 10000; i++ {
		id := newOpaqueToken()
		if _, taken := accounts[id]; !taken {
			return id, nil
		}
	}
	return "", errors.New("could not allocate an unused account id")
}

// VerifyRequest authenticates the id/key cookie pair on a request.
// Returns verified, the account, and whether it is the admin.
func (g *AuthGateway) VerifyRequest(r *http.Request) (bool, Account, bool) {
	idCookie, err := r.Cookie(cookieUserID)
	if err != nil {
		return false, Account{}, false
	}
	keyCookie, err := r.Cookie(cookieUserKey)
	if err != nil {
		return false, Account{}, false
	}

	verified, account := g.VerifyIDAndKey(idCookie.Value, keyCookie.Value)
	if !verified {
		return false, account, false
	}
	return true, account, g.IsAdmin(account)
}

func writeUserCookies(w http.ResponseWriter, id string, key string, maxAge time.Duration) {
	expires := time.Now().Add(maxAge)
	for name, value := range map[string]string{cookieUserID: id, cookieUserKey: key} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    value,
			Path:     "/",
			Expires:  expires,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func clearUserCookies(w http.ResponseWriter) {
	for _, name := range []string{cookieUserID, cookieUserKey} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
}
