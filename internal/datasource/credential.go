package datasource

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Grounded on internal/storage/types.go's APIKey/HashAPIKey/CompareAPIKeyHash
// from the teacher repo: registered datasource credentials are bcrypt-hashed
// at rest and compared in constant time (via bcrypt.CompareHashAndPassword,
// itself constant-time) before a query is issued against that datasource.
// The STIX datasource-manager contract (spec.md §6) is opaque about
// authentication, so credential handling lives alongside the transport
// rather than in the contract itself.

const bcryptCost = 10

var (
	// ErrCredentialNotFound is returned when no credential is registered
	// for a datasource URI.
	ErrCredentialNotFound = errors.New("kestrel: no credential registered for datasource")
	// ErrCredentialMismatch is returned when a supplied token does not
	// match the registered hash.
	ErrCredentialMismatch = errors.New("kestrel: datasource credential mismatch")
)

// CredentialStore holds bcrypt-hashed API tokens for datasource URIs,
// keeping plaintext tokens out of session memory once registered.
type CredentialStore struct {
	mu     sync.RWMutex
	hashes map[string]string // datasource URI -> bcrypt hash
}

// NewCredentialStore returns an empty CredentialStore.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{hashes: make(map[string]string)}
}

// Register hashes token and stores it for datasourceURI, replacing any
// prior registration.
func (c *CredentialStore) Register(datasourceURI, token string) error {
	input := prepareBcryptInput(token)

	hash, err := bcrypt.GenerateFromPassword(input, bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash datasource credential: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.hashes[datasourceURI] = string(hash)

	return nil
}

// Verify checks token against the registered hash for datasourceURI.
func (c *CredentialStore) Verify(datasourceURI, token string) error {
	c.mu.RLock()
	hash, ok := c.hashes[datasourceURI]
	c.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrCredentialNotFound, datasourceURI)
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), prepareBcryptInput(token)) != nil {
		return fmt.Errorf("%w: %s", ErrCredentialMismatch, datasourceURI)
	}

	return nil
}

// prepareBcryptInput pre-hashes tokens longer than bcrypt's 72-byte limit
// with SHA-256, same as the teacher's HashAPIKey/CompareAPIKeyHash pairing.
func prepareBcryptInput(token string) []byte {
	const bcryptLimit = 72

	if len(token) <= bcryptLimit {
		return []byte(token)
	}

	sum := sha256.Sum256([]byte(token))

	return []byte(hex.EncodeToString(sum[:]))
}
