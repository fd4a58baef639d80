// Package secrets keeps the ledger API token in a per-user file (0600).
// Values are sealed with AES-GCM under a key derived from the OS user, which
// keeps them out of plain text but is no substitute for an OS keychain.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const (
	fileName    = "tokens.json"
	fileVersion = 2
)

// ErrTokenNotFound is returned when no token is stored under the name.
var ErrTokenNotFound = errors.New("token not found")

// Store is a token file in Dir.
type Store struct {
	Dir string
	Now func() time.Time
}

// Entry is one sealed token.
type Entry struct {
	Sealed  string    `json:"sealed"`
	SavedAt time.Time `json:"saved_at"`
}

type tokenFile struct {
	Version int              `json:"version"`
	Tokens  map[string]Entry `json:"tokens"`
}

// Default is the store under the user config dir.
func Default() (*Store, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, err
	}
	return &Store{Dir: filepath.Join(dir, "ledgersync")}, nil
}

func (s *Store) path() string { return filepath.Join(s.Dir, fileName) }

// Put seals token under name, replacing any previous value.
func (s *Store) Put(name, token string) error {
	if name = norm(name); name == "" {
		return errors.New("token name required")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token is empty")
	}
	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		return err
	}
	tf, err := s.load()
	if err != nil {
		return err
	}
	sealed, err := seal(name, []byte(token))
	if err != nil {
		return err
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	tf.Tokens[name] = Entry{Sealed: base64.StdEncoding.EncodeToString(sealed), SavedAt: now().UTC()}
	return s.save(tf)
}

// Get opens the token stored under name.
func (s *Store) Get(name string) (string, error) {
	if name = norm(name); name == "" {
		return "", errors.New("token name required")
	}
	tf, err := s.load()
	if err != nil {
		return "", err
	}
	e, ok := tf.Tokens[name]
	if !ok {
		return "", ErrTokenNotFound
	}
	raw, err := base64.StdEncoding.DecodeString(e.Sealed)
	if err != nil {
		return "", fmt.Errorf("token %q: %w", name, err)
	}
	plain, err := open(name, raw)
	if err != nil {
		return "", fmt.Errorf("token %q: %w", name, err)
	}
	return string(plain), nil
}

// Delete removes name. Deleting an absent token is not an error.
func (s *Store) Delete(name string) error {
	if name = norm(name); name == "" {
		return errors.New("token name required")
	}
	tf, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := tf.Tokens[name]; !ok {
		return nil
	}
	delete(tf.Tokens, name)
	return s.save(tf)
}

// Resolve prefers the environment variable envName, then the stored token.
func (s *Store) Resolve(envName, name string) (string, error) {
	if envName != "" {
		if v := strings.TrimSpace(os.Getenv(envName)); v != "" {
			return v, nil
		}
	}
	return s.Get(name)
}

func (s *Store) load() (tokenFile, error) {
	tf := tokenFile{Version: fileVersion, Tokens: map[string]Entry{}}
	data, err := os.ReadFile(s.path())
	if errors.Is(err, os.ErrNotExist) {
		return tf, nil
	}
	if err != nil {
		return tf, err
	}
	var head struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return tf, fmt.Errorf("read %s: %w", s.path(), err)
	}
	if head.Version != fileVersion {
		return tf, fmt.Errorf("%s: unsupported version %d, run login again", s.path(), head.Version)
	}
	if err := json.Unmarshal(data, &tf); err != nil {
		return tf, fmt.Errorf("read %s: %w", s.path(), err)
	}
	if tf.Tokens == nil {
		tf.Tokens = map[string]Entry{}
	}
	return tf, nil
}

// save replaces the file via rename.
func (s *Store) save(tf tokenFile) error {
	tf.Version = fileVersion
	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path())
}

// StoreToken saves token in the default store.
func StoreToken(name, token string) error {
	s, err := Default()
	if err != nil {
		return err
	}
	return s.Put(name, token)
}

func FetchToken(name string) (string, error) {
	s, err := Default()
	if err != nil {
		return "", err
	}
	return s.Get(name)
}

func DeleteToken(name string) error {
	s, err := Default()
	if err != nil {
		return err
	}
	return s.Delete(name)
}

// ResolveToken is Store.Resolve on the default store.
func ResolveToken(envName, name string) (string, error) {
	s, err := Default()
	if err != nil {
		return "", err
	}
	return s.Resolve(envName, name)
}

func norm(s string) string {
	return strings.TrimSpace(strings.ToLower(s))
}

func aead() (cipher.AEAD, error) {
	key := sha256.Sum256([]byte(fmt.Sprintf("ledgersync-%s-%s", runtime.GOOS, os.Getenv("USER"))))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// seal binds the ciphertext to name, so an entry copied under another name
// fails to open.
func seal(name string, plain []byte) ([]byte, error) {
	gcm, err := aead()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plain, []byte(name)), nil
}

func open(name string, sealed []byte) ([]byte, error) {
	gcm, err := aead()
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, errors.New("sealed value too short")
	}
	nonce, body := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, []byte(name))
}
