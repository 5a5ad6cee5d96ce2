// Package daemon holds acpd's connection-handling and session-guarding
// code: the parts of the reference embedder that go beyond what the acp
// core is willing to own. The core's sessions are not internally locked
// (SPEC_FULL.md §5); acpd may serve several accepted connections against
// the same configured peer key, so it wraps the shared *acp.Session in its
// own mutex here, the way the teacher guards its senders map in
// cmd/gobfd/main.go's udpSenderFactory.
package daemon

import (
	"sync"

	"github.com/skyward-systems/acp"
)

// GuardedSession serializes Encode/Decode calls against one shared
// *acp.Session. The acp core assumes single-threaded cooperative access;
// GuardedSession is the embedder-side adapter that makes a Session safe to
// share across the goroutines spawned per accepted connection.
type GuardedSession struct {
	mu   sync.Mutex
	sess *acp.Session
}

// NewGuardedSession wraps sess for concurrent use. sess must already be
// initialized.
func NewGuardedSession(sess *acp.Session) *GuardedSession {
	return &GuardedSession{sess: sess}
}

// Encode serializes a call to acp.Encode against the wrapped session.
func (g *GuardedSession) Encode(dst []byte, frameType acp.FrameType, flags acp.Flags, payload []byte) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return acp.Encode(dst, frameType, flags, payload, g.sess)
}

// Decode serializes a call to acp.Decode against the wrapped session.
func (g *GuardedSession) Decode(f *acp.Frame, scratch []byte, input []byte) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return acp.Decode(f, scratch, input, g.sess)
}

// KeyID returns the wrapped session's key ID without requiring the
// caller to take the lock itself.
func (g *GuardedSession) KeyID() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sess.KeyID()
}

// ReplayState returns the session's replay-window snapshot for metrics
// and `acpctl session inspect`, taken under the guard's lock.
func (g *GuardedSession) ReplayState() (lastAccepted uint32, window uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sess.ReplayState()
}

// Terminate securely zeroes the wrapped session under the guard's lock.
func (g *GuardedSession) Terminate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sess.Terminate()
}
