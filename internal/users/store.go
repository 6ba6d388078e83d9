// Package users manages the provider's local accounts: creation,
// lookup and password verification against the persistent store.
package users

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/solid/oidc-auth-manager/internal/storage"
)

var (
	// ErrNotFound means no account exists under the given username.
	ErrNotFound = errors.New("users: account not found")

	// ErrExists means an account under the given username already exists.
	ErrExists = errors.New("users: account already exists")

	// ErrInvalidCredentials covers both unknown usernames and wrong
	// passwords, so callers cannot probe which one it was.
	ErrInvalidCredentials = errors.New("users: invalid username or password")
)

// usernames become subdomain labels and file names, so the charset is
// deliberately narrow
var usernameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,63}$`)

// User is a persisted local account.
type User struct {
	Username     string    `json:"username"`
	WebID        string    `json:"webid,omitempty"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store reads and writes accounts in the users storage namespace.
type Store struct {
	backend storage.Backend
	cost    int
}

// NewStore creates an account store hashing passwords at the given
// bcrypt cost. Zero means bcrypt's default; out-of-range values are
// clamped.
func NewStore(backend storage.Backend, cost int) *Store {
	switch {
	case cost == 0:
		cost = bcrypt.DefaultCost
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}
	return &Store{backend: backend, cost: cost}
}

// Create registers a new account. The username is lowercased first;
// webid may be empty.
func (s *Store) Create(username, password, webid string) (*User, error) {
	username = normalize(username)
	if !usernameRe.MatchString(username) {
		return nil, fmt.Errorf("users: invalid username %q", username)
	}
	if password == "" {
		return nil, errors.New("users: password must not be empty")
	}

	exists, err := s.backend.Exists(userKey(username))
	if err != nil {
		return nil, fmt.Errorf("users: checking %q: %w", username, err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrExists, username)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("users: hashing password: %w", err)
	}

	user := &User{
		Username:     username,
		WebID:        webid,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	raw, err := json.Marshal(user)
	if err != nil {
		return nil, fmt.Errorf("users: encoding %q: %w", username, err)
	}
	if err := s.backend.Put(userKey(username), raw); err != nil {
		return nil, fmt.Errorf("users: storing %q: %w", username, err)
	}
	return user, nil
}

// Get loads an account by username.
func (s *Store) Get(username string) (*User, error) {
	username = normalize(username)

	raw, err := s.backend.Get(userKey(username))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, username)
	}
	if err != nil {
		return nil, fmt.Errorf("users: loading %q: %w", username, err)
	}

	var user User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("users: account %q is malformed: %w", username, err)
	}
	return &user, nil
}

// Delete removes an account.
func (s *Store) Delete(username string) error {
	username = normalize(username)

	err := s.backend.Delete(userKey(username))
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, username)
	}
	return err
}

// List returns all account usernames.
func (s *Store) List() ([]string, error) {
	keys, err := s.backend.List(storage.NamespaceUsers + "/")
	if err != nil {
		return nil, fmt.Errorf("users: listing accounts: %w", err)
	}
	names := make([]string, 0, len(keys))
	for _, key := range keys {
		name := strings.TrimPrefix(key, storage.NamespaceUsers+"/")
		names = append(names, strings.TrimSuffix(name, ".json"))
	}
	return names, nil
}

// Authenticate checks username and password and returns the account on
// success. Unknown accounts and wrong passwords fail identically with
// ErrInvalidCredentials.
func (s *Store) Authenticate(username, password string) (*User, error) {
	user, err := s.Get(username)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// WebIDFor derives the webid of a local account: a profile document on
// the account's subdomain of the provider, which the trust rule accepts
// for tokens this provider issues.
func WebIDFor(issuer, username string) (string, error) {
	username = normalize(username)
	if !usernameRe.MatchString(username) {
		return "", fmt.Errorf("users: invalid username %q", username)
	}
	u, err := url.Parse(issuer)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("users: issuer %q is not an absolute uri", issuer)
	}
	u.Host = username + "." + u.Host
	u.Path = "/profile/card"
	u.Fragment = "me"
	u.RawQuery = ""
	return u.String(), nil
}

func normalize(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func userKey(username string) string {
	return storage.NamespaceUsers + "/" + username + ".json"
}
