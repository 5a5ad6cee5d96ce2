// Package keystore provides the reference file-backed acp.KeyStore used by
// acpd and acpctl. acp itself never imports this package (SPEC_FULL.md §4.G
// "Keystore handle"); it only depends on the acp.KeyStore interface.
package keystore

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/skyward-systems/acp"
)

// ErrKeyWrongLength indicates a configured key record is not exactly 32
// raw bytes.
var ErrKeyWrongLength = errors.New("key material must be exactly 32 bytes")

// KeyRecord is a single entry in a keystore YAML file.
type KeyRecord struct {
	// ID is the key ID referenced by Session.KeyID and wire frame headers.
	ID uint32 `yaml:"id"`

	// Material is the raw 32-byte key, typically written as a YAML byte
	// string (e.g. base64 decoded by the operator before committing it, or
	// a literal block scalar of 32 printable bytes). Stored verbatim.
	Material []byte `yaml:"material"`
}

// file is the on-disk shape of a keystore YAML document.
type file struct {
	Keys []KeyRecord `yaml:"keys"`
}

// MapKeyStore is an in-memory acp.KeyStore backed by a map, loadable and
// reloadable from a YAML file. Safe for concurrent use; acpd calls Reload
// from its SIGHUP handler while request-handling goroutines call Get.
type MapKeyStore struct {
	mu   sync.RWMutex
	keys map[uint32][32]byte
}

// New returns an empty MapKeyStore. Call Load or Reload to populate it.
func New() *MapKeyStore {
	return &MapKeyStore{keys: make(map[uint32][32]byte)}
}

// LoadFile reads path and returns a MapKeyStore populated from it.
func LoadFile(path string) (*MapKeyStore, error) {
	ks := New()
	if err := ks.Reload(path); err != nil {
		return nil, err
	}
	return ks, nil
}

// Reload re-reads path and atomically replaces the store's contents. On
// parse or validation error the previous contents are left untouched, so a
// bad SIGHUP reload never blanks a running daemon's keys.
func (ks *MapKeyStore) Reload(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read keystore file %s: %w", path, err)
	}

	var doc file
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse keystore file %s: %w", path, err)
	}

	next := make(map[uint32][32]byte, len(doc.Keys))
	for _, rec := range doc.Keys {
		if len(rec.Material) != 32 {
			return fmt.Errorf("keystore file %s, key id %d: %w", path, rec.ID, ErrKeyWrongLength)
		}
		var buf [32]byte
		copy(buf[:], rec.Material)
		next[rec.ID] = buf
	}

	ks.mu.Lock()
	ks.keys = next
	ks.mu.Unlock()

	return nil
}

// Get implements acp.KeyStore. The returned array is a copy; callers may
// not observe or corrupt the store's backing material through it.
func (ks *MapKeyStore) Get(keyID uint32) ([32]byte, error) {
	ks.mu.RLock()
	key, ok := ks.keys[keyID]
	ks.mu.RUnlock()

	if !ok {
		return [32]byte{}, fmt.Errorf("key id %d: %w", keyID, acp.ErrKeyNotFound)
	}
	return key, nil
}

// Set installs or replaces a single key record, for programmatic
// construction (tests, acpctl) without a backing file.
func (ks *MapKeyStore) Set(keyID uint32, material [32]byte) {
	ks.mu.Lock()
	ks.keys[keyID] = material
	ks.mu.Unlock()
}

// Len returns the number of keys currently loaded.
func (ks *MapKeyStore) Len() int {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return len(ks.keys)
}

var _ acp.KeyStore = (*MapKeyStore)(nil)
