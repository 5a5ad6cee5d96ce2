package acp

// KeyStore is the platform collaborator that resolves a key ID to 32 bytes
// of key material (spec.md §3 "Keystore handle", §6). The core defines
// this interface but does not call it: no core function takes a KeyStore.
// Callers look the key up themselves and pass the material to NewSession,
// Init or Rotate; the core holds only what a Session copies into itself.
//
// Implementations live outside this package (see internal/keystore for the
// reference file-backed one); acp never imports a concrete KeyStore.
type KeyStore interface {
	// Get returns the 32-byte key material for keyID, or an error
	// satisfying errors.Is(err, acp.ErrKeyNotFound) if none is configured.
	Get(keyID uint32) ([32]byte, error)
}

// Clock is the platform collaborator for caller-driven session expiry
// (spec.md §5: "there are no timers in the core"). The core never reads a
// clock itself; Clock exists only so embedders can stamp and later compare
// a Session's CreatedAtMS without reaching for time.Now() ad hoc.
type Clock interface {
	// NowMS returns the current time as milliseconds since an arbitrary
	// monotonic epoch, consistent across calls within one process.
	NowMS() uint64
}
