package acp

// Component E (spec.md §4.E): key material, TX sequence generator, RX
// sliding-window replay filter, rotation, termination. Grounded on the
// teacher's internal/bfd/auth.go AuthState (random XmitAuthSeq init,
// RcvAuthSeq/AuthSeqKnown bookkeeping, SeqInWindow circular-arithmetic
// check) generalized from BFD's 3*DetectMult forward window to the
// fixed-width 64-bit sliding bitmap spec.md §4.E specifies.

const replayWindowWidth = 64

// Session holds the mutable per-peer state the top-level Frame API
// consumes: key material, the TX sequence generator, and the RX replay
// filter (spec.md §3 "Session"). A Session is not thread-safe; callers
// serialize access externally (spec.md §5 "Shared resources").
type Session struct {
	keyID uint32
	key   [32]byte
	nonce uint64

	nextTX uint32

	lastAccepted uint32
	window       uint64

	initialized bool

	// CreatedAtMS is a caller-stamped timestamp (via Clock.NowMS), used only
	// by Expired. The core itself never reads a clock (spec.md §5
	// "Timeouts"); a zero value means the caller never stamped the session.
	CreatedAtMS uint64
}

// NewSession constructs and initializes a Session in one step, the
// common case for callers that don't need a zero-value Session first.
func NewSession(keyID uint32, key []byte, nonce uint64) (*Session, error) {
	s := &Session{}
	if err := s.Init(keyID, key, nonce); err != nil {
		return nil, err
	}
	return s, nil
}

// Init copies up to 32 bytes of key material (zero-padding shorter
// inputs, truncating longer ones), stores keyID and nonce, sets the next
// TX sequence to 1, clears replay state, and marks the session
// initialized (spec.md §4.E "Initialization"). Fails on a nil or
// zero-length key.
func (s *Session) Init(keyID uint32, key []byte, nonce uint64) error {
	if key == nil {
		return newErr("session_init", KindArgument, ErrNilPayload)
	}
	if len(key) == 0 {
		return newErr("session_init", KindArgument, ErrZeroLength)
	}

	var padded [32]byte
	copy(padded[:], key) // truncates if len(key) > 32, zero-pads if shorter

	s.keyID = keyID
	s.key = padded
	s.nonce = nonce
	s.nextTX = 1
	s.lastAccepted = 0
	s.window = 0
	s.initialized = true

	return nil
}

// KeyID returns the session's key identifier.
func (s *Session) KeyID() uint32 { return s.keyID }

// Key returns the session's 32-byte key material. Callers must not
// retain the returned slice past the session's lifetime or a Rotate.
func (s *Session) Key() []byte { return s.key[:] }

// Initialized reports whether the session holds live key material.
func (s *Session) Initialized() bool { return s.initialized }

// ReplayState returns the session's current last-accepted sequence and
// replay-window bitmap, for embedder introspection (acpd's metrics gauge,
// acpctl's `session inspect`). It does not mutate anything.
func (s *Session) ReplayState() (lastAccepted uint32, window uint64) {
	return s.lastAccepted, s.window
}

// NextTX returns the sequence NextTXSequence would hand out next,
// without advancing the generator, for embedder introspection.
func (s *Session) NextTX() uint32 { return s.nextTX }

// Expired reports whether nowMS - s.CreatedAtMS exceeds maxLifetimeMS. The
// comparison is entirely caller-driven (spec.md §5 "Timeouts"): acp.Session
// never calls a clock itself, and CreatedAtMS is never set implicitly — a
// caller that wants expiry sets CreatedAtMS from its own Clock after Init
// or Rotate, then periodically calls Expired with the current time.
func (s *Session) Expired(nowMS, maxLifetimeMS uint64) bool {
	return nowMS-s.CreatedAtMS > maxLifetimeMS
}

// NextTXSequence returns the current next_sequence and advances the
// generator (spec.md §4.E "TX sequence generator"). Sequence 0 is
// reserved for unauthenticated frames and is never returned; if the
// counter would wrap to 0 it skips to 1 instead. Wrap-around is not
// reported: after 0xFFFFFFFF the next value returned is 1.
// ErrSessionExhausted is returned only if the counter holds 0.
func (s *Session) NextTXSequence() (uint32, error) {
	if !s.initialized {
		return 0, newErr("session_next_tx", KindSession, ErrSessionNotInitialized)
	}

	seq := s.nextTX
	if seq == 0 {
		return 0, newErr("session_next_tx", KindSession, ErrSessionExhausted)
	}

	next := seq + 1
	if next == 0 {
		next = 1
	}
	s.nextTX = next

	return seq, nil
}

// CheckAndAdvance validates sequence s against the 64-bit sliding replay
// window and, if accepted, advances the window state (spec.md §4.E
// "Replay window"). It does not itself require s != 0 be rejected as a
// policy matter beyond the algorithm below — s == 0 is defined as
// invalid because 0 is the reserved unauthenticated-frame value.
func (s *Session) CheckAndAdvance(seq uint32) error {
	if !s.initialized {
		return newErr("session_check_replay", KindSession, ErrSessionNotInitialized)
	}
	if seq == 0 {
		return newErr("session_check_replay", KindAuthenticity, ErrReplay)
	}

	if s.lastAccepted == 0 {
		s.lastAccepted = seq
		s.window = 1
		return nil
	}

	if seq > s.lastAccepted {
		shift := uint64(seq - s.lastAccepted)
		if shift >= replayWindowWidth {
			s.window = 1
		} else {
			s.window = (s.window << shift) | 1
		}
		s.lastAccepted = seq
		return nil
	}

	age := uint64(s.lastAccepted - seq)
	if age >= replayWindowWidth {
		return newErr("session_check_replay", KindAuthenticity, ErrReplay)
	}

	bit := uint64(1) << age
	if s.window&bit != 0 {
		return newErr("session_check_replay", KindAuthenticity, ErrReplay)
	}
	s.window |= bit

	return nil
}

// Rotate wipes the current key material with Zeroize and installs newKey
// (if non-nil), installs newNonce, and resets both the TX sequence
// generator and the replay window (spec.md §4.E "Rotate"). A nil newKey
// keeps the existing key material in place — only nonce, sequences and
// window reset.
func (s *Session) Rotate(newKey []byte, newNonce uint64) error {
	if !s.initialized {
		return newErr("session_rotate", KindSession, ErrSessionNotInitialized)
	}

	if newKey != nil {
		if len(newKey) == 0 {
			return newErr("session_rotate", KindArgument, ErrZeroLength)
		}
		Zeroize(s.key[:])
		var padded [32]byte
		copy(padded[:], newKey)
		s.key = padded
	}

	s.nonce = newNonce
	s.nextTX = 1
	s.lastAccepted = 0
	s.window = 0

	return nil
}

// Terminate securely zeroes all sensitive state and marks the session
// uninitialized (spec.md §4.E "Terminate"). Further operations on a
// terminated session fail with ErrSessionNotInitialized until Init is
// called again.
func (s *Session) Terminate() {
	Zeroize(s.key[:])
	s.keyID = 0
	s.nonce = 0
	s.nextTX = 0
	s.lastAccepted = 0
	s.window = 0
	s.initialized = false
}
