package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"

	"github.com/folkengine/goname"
	"github.com/rlaneuville/roomchat/config"
)

// ErrAuthFailed is returned for any credential mismatch. The reason is
// deliberately not more specific.
var ErrAuthFailed = errors.New("authentication failed")

// Account is a resolved, authenticated identity.
type Account struct {
	Id        string `json:"id"`
	Login     string `json:"login"`
	Pseudonym string `json:"pseudonym"`
}

// Identity is the external identity collaborator of the chat service.
type Identity interface {
	// Authenticate resolves credentials into an account, or fails with
	// ErrAuthFailed.
	Authenticate(login, secret string) (*Account, error)
	// PseudonymFor returns the display name to use in chat rooms for the
	// account.
	PseudonymFor(account *Account) string
}

// NewIdentity builds the identity backend selected by the configuration: the
// file-backed directory when a users file is configured, OIDC when providers
// are, nil when neither (guest-only operation).
func NewIdentity(cfg *config.Config) (Identity, error) {
	if cfg.AuthConfig.UsersFile != "" {
		return NewDirectory(cfg.AuthConfig.UsersFile)
	}
	if len(cfg.OIDCConfigs) > 0 {
		return NewOIDC(cfg.OIDCConfigs), nil
	}
	return nil, nil
}

type directoryEntry struct {
	Login      string `json:"login"`
	SecretHash string `json:"secret_hash"`
	Pseudonym  string `json:"pseudonym"`
}

// Directory is a file-backed identity service: a JSON array of accounts with
// argon2id secret hashes.
type Directory struct {
	entries map[string]directoryEntry
}

func NewDirectory(usersFile string) (*Directory, error) {
	data, err := ioutil.ReadFile(usersFile)
	if err != nil {
		return nil, fmt.Errorf("could not read users file: %w", err)
	}
	entries := make([]directoryEntry, 0)
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("could not parse users file: %w", err)
	}
	d := &Directory{entries: make(map[string]directoryEntry, len(entries))}
	for _, e := range entries {
		d.entries[e.Login] = e
	}
	return d, nil
}

func (d *Directory) Authenticate(login, secret string) (*Account, error) {
	entry, ok := d.entries[login]
	if !ok {
		return nil, ErrAuthFailed
	}
	match, err := VerifySecret(secret, entry.SecretHash)
	if err != nil || !match {
		return nil, ErrAuthFailed
	}
	return &Account{Id: entry.Login, Login: entry.Login, Pseudonym: entry.Pseudonym}, nil
}

func (d *Directory) PseudonymFor(account *Account) string {
	if account.Pseudonym != "" {
		return account.Pseudonym
	}
	return goname.New(goname.FantasyMap).FirstLast()
}
