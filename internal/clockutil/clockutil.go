// Package clockutil provides the reference acp.Clock implementation used by
// acpd. The acp core never reads a clock itself (SPEC_FULL.md §5)
// -- embedders supply one to stamp and later check
// Session.CreatedAtMS.
package clockutil

import "time"

// System is an acp.Clock backed by the wall clock. It is the Clock acpd
// installs by default; tests that need deterministic time construct their
// own stub rather than use System.
type System struct{}

// NowMS returns the current wall-clock time in milliseconds since the Unix
// epoch.
func (System) NowMS() uint64 {
	return uint64(time.Now().UnixMilli())
}
