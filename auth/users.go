package auth

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/mnehpets/rpcserve/jsonrpc"
)

// dummyHash is a syntactically valid bcrypt hash matching no password.
// Unknown usernames still cost one full comparison.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// userRecord is one entry in the user file.
type userRecord struct {
	Username     string   `yaml:"username"`
	PasswordHash string   `yaml:"password_hash"`
	Disabled     bool     `yaml:"disabled"`
	Staff        bool     `yaml:"staff"`
	Permissions  []string `yaml:"permissions"`
}

// StaticUsers is a file-backed user store. The file is a YAML list of
// records:
//
//	- username: fred
//	  password_hash: $2a$10$...
//	  staff: true
//	  permissions: [calc.use]
//
// Password hashes are bcrypt. Disabled accounts stay listed but fail
// authentication like a wrong password.
type StaticUsers struct {
	users map[string]userRecord
}

var _ jsonrpc.Authenticator = (*StaticUsers)(nil)
var _ IdentityStore = (*StaticUsers)(nil)

// LoadUsers reads and parses a user file.
func LoadUsers(path string) (*StaticUsers, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read user file: %w", err)
	}
	users, err := ParseUsers(data)
	if err != nil {
		return nil, fmt.Errorf("parse user file %s: %w", path, err)
	}
	return users, nil
}

// ParseUsers parses YAML user records.
func ParseUsers(data []byte) (*StaticUsers, error) {
	var records []userRecord
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, err
	}

	users := make(map[string]userRecord, len(records))
	for _, rec := range records {
		if rec.Username == "" {
			return nil, errors.New("record without username")
		}
		if rec.PasswordHash == "" {
			return nil, fmt.Errorf("user %q has no password hash", rec.Username)
		}
		if _, dup := users[rec.Username]; dup {
			return nil, fmt.Errorf("duplicate user %q", rec.Username)
		}
		users[rec.Username] = rec
	}
	return &StaticUsers{users: users}, nil
}

// Len reports the number of stored users.
func (s *StaticUsers) Len() int {
	return len(s.users)
}

// Identity resolves a username to its stored identity without checking
// credentials. Unknown and disabled accounts report false.
func (s *StaticUsers) Identity(username string) (jsonrpc.Identity, bool) {
	rec, ok := s.users[username]
	if !ok || rec.Disabled {
		return jsonrpc.Identity{}, false
	}
	return jsonrpc.Identity{
		Username:    rec.Username,
		Staff:       rec.Staff,
		Permissions: append([]string(nil), rec.Permissions...),
	}, true
}

// Authenticate checks the password against the stored bcrypt hash.
func (s *StaticUsers) Authenticate(_ context.Context, username, password string) (jsonrpc.Identity, error) {
	rec, ok := s.users[username]
	if !ok {
		bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return jsonrpc.Identity{}, errors.New("unknown user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)); err != nil {
		return jsonrpc.Identity{}, errors.New("wrong password")
	}
	if rec.Disabled {
		return jsonrpc.Identity{}, errors.New("account disabled")
	}
	return jsonrpc.Identity{
		Username:    rec.Username,
		Staff:       rec.Staff,
		Permissions: append([]string(nil), rec.Permissions...),
	}, nil
}
