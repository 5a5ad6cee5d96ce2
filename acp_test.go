package acp_test

import (
	"bytes"
	"testing"

	"github.com/skyward-systems/acp"
)

// newTwinSessions returns two independently initialized sessions sharing
// the same key and nonce, the TX/RX pair S4 describes.
func newTwinSessions(t *testing.T) (*acp.Session, *acp.Session) {
	t.Helper()

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 1)
	}
	const nonce = 0x1234567890ABCDEF

	tx, err := acp.NewSession(1, key, nonce)
	if err != nil {
		t.Fatalf("NewSession tx: %v", err)
	}
	rx, err := acp.NewSession(1, key, nonce)
	if err != nil {
		t.Fatalf("NewSession rx: %v", err)
	}
	return tx, rx
}

// TestInvariant1RoundTripUnauthenticated covers Universal Invariant 1.
func TestInvariant1RoundTripUnauthenticated(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 255, 256, 1023, 1024} {
		payload := bytes.Repeat([]byte{0x5A}, n)

		enc, err := acp.EncodeAlloc(acp.FrameTypeTelemetry, 0, payload, nil)
		if err != nil {
			t.Fatalf("EncodeAlloc(n=%d): %v", n, err)
		}

		frame, consumed, err := acp.DecodeAlloc(enc, nil)
		if err != nil {
			t.Fatalf("DecodeAlloc(n=%d): %v", n, err)
		}
		if consumed != len(enc) {
			t.Fatalf("consumed = %d, want %d", consumed, len(enc))
		}
		if frame.Type != acp.FrameTypeTelemetry || frame.Flags != 0 || frame.Sequence != 0 {
			t.Fatalf("frame header mismatch: %+v", frame)
		}
		if !bytes.Equal(frame.Payload, payload) {
			t.Fatalf("payload mismatch for n=%d", n)
		}
	}
}

// TestInvariant2RoundTripAuthenticated covers Universal Invariant 2.
func TestInvariant2RoundTripAuthenticated(t *testing.T) {
	t.Parallel()

	tx, rx := newTwinSessions(t)
	payload := []byte("SET_MODE:ACTIVE")

	enc, err := acp.EncodeAlloc(acp.FrameTypeCommand, acp.FlagAuthenticated, payload, tx)
	if err != nil {
		t.Fatalf("EncodeAlloc: %v", err)
	}

	next, err := tx.NextTXSequence()
	if err != nil {
		t.Fatalf("NextTXSequence: %v", err)
	}
	if next != 2 {
		t.Fatalf("tx next sequence = %d, want 2 (one consumed by EncodeAlloc)", next)
	}

	frame, _, err := acp.DecodeAlloc(enc, rx)
	if err != nil {
		t.Fatalf("DecodeAlloc: %v", err)
	}
	if frame.Sequence != 1 {
		t.Fatalf("decoded sequence = %d, want 1", frame.Sequence)
	}
	if !bytes.Equal(frame.Payload, payload) {
		t.Fatalf("payload mismatch: got %q", frame.Payload)
	}
}

// TestInvariant3CRCDeterminism covers Universal Invariant 3 / Scenario S2.
func TestInvariant3CRCDeterminism(t *testing.T) {
	t.Parallel()

	if got := acp.CRC16([]byte("123456789")); got != 0x29B1 {
		t.Errorf("CRC16(\"123456789\") = 0x%04X, want 0x29B1", got)
	}
}

// TestInvariant4HMACDeterminism covers Universal Invariant 4 / Scenario S3.
func TestInvariant4HMACDeterminism(t *testing.T) {
	t.Parallel()

	key := bytes.Repeat([]byte{0x0b}, 20)
	tag := acp.HMACTag(key, []byte("Hi There"))

	want := []byte{0xb0, 0x34, 0x4c, 0x61, 0xd8, 0xdb, 0x38, 0x53, 0x5c, 0xa8, 0xaf, 0xce, 0xaf, 0x0b, 0xf1, 0x2b}
	if !bytes.Equal(tag[:], want) {
		t.Errorf("HMACTag = %x, want %x", tag, want)
	}
}

// TestInvariant5COBSInjectivity covers Universal Invariant 5.
func TestInvariant5COBSInjectivity(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 13, 254, 255, 1024} {
		payload := bytes.Repeat([]byte{0x07}, n)
		enc := make([]byte, acp.COBSMaxEncodedLen(n))
		encN, err := acp.COBSEncode(enc, payload)
		if err != nil {
			t.Fatalf("COBSEncode(n=%d): %v", n, err)
		}
		enc = enc[:encN]
		for _, b := range enc {
			if b == 0 {
				t.Fatalf("encoded output for n=%d contains a zero byte", n)
			}
		}

		dec := make([]byte, n)
		decN, err := acp.COBSDecode(dec, enc)
		if err != nil {
			t.Fatalf("COBSDecode(n=%d): %v", n, err)
		}
		if !bytes.Equal(dec[:decN], payload) {
			t.Fatalf("COBS round trip mismatch for n=%d", n)
		}
	}
}

// TestInvariant6ConstantTimeCompare covers Universal Invariant 6.
func TestInvariant6ConstantTimeCompare(t *testing.T) {
	t.Parallel()

	x := []byte("equal-length-secret-value")
	y := append([]byte(nil), x...)
	if !acp.CTEqual(x, y) {
		t.Error("CTEqual(x, y) = false for identical contents")
	}

	z := append([]byte(nil), x...)
	z[len(z)-1] ^= 1
	if acp.CTEqual(x, z) {
		t.Error("CTEqual(x, z) = true for differing contents")
	}
}

// TestInvariant7ReplayProtection covers Universal Invariant 7 / Scenario S5.
func TestInvariant7ReplayProtection(t *testing.T) {
	t.Parallel()

	tx, rx := newTwinSessions(t)
	enc, err := acp.EncodeAlloc(acp.FrameTypeCommand, acp.FlagAuthenticated, []byte("SET_MODE:ACTIVE"), tx)
	if err != nil {
		t.Fatalf("EncodeAlloc: %v", err)
	}

	if _, _, err := acp.DecodeAlloc(enc, rx); err != nil {
		t.Fatalf("first decode: %v", err)
	}

	if _, _, err := acp.DecodeAlloc(enc, rx); err == nil {
		t.Fatal("expected replay error on second decode of the same frame")
	}
}

// TestInvariant8CommandMustAuth covers Universal Invariant 8 / the encode
// and decode halves of §7's "command-must-auth" policy.
func TestInvariant8CommandMustAuth(t *testing.T) {
	t.Parallel()

	if _, err := acp.EncodeAlloc(acp.FrameTypeCommand, 0, []byte("x"), nil); err == nil {
		t.Error("expected auth-required encoding an unauthenticated command")
	}

	// Forge an unauthenticated command frame by round-tripping telemetry
	// framing with FrameTypeCommand's wire value, to exercise the decode
	// half independent of the encoder's own guard.
	f := acp.Frame{Version: acp.Version, Type: acp.FrameTypeCommand, Payload: []byte("x")}
	raw := make([]byte, acp.FrameWireLen(0, len(f.Payload)))
	n, err := acp.EncodeFrame(raw, &f)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	cobsBuf := make([]byte, acp.COBSMaxEncodedLen(n))
	cobsN, err := acp.COBSEncode(cobsBuf, raw[:n])
	if err != nil {
		t.Fatalf("COBSEncode: %v", err)
	}
	wire := append([]byte{0x00}, cobsBuf[:cobsN]...)
	wire = append(wire, 0x00)

	if _, _, err := acp.DecodeAlloc(wire, nil); err == nil {
		t.Error("expected auth-required decoding an unauthenticated command")
	}
}

// TestInvariant9CRCDetection covers Universal Invariant 9.
func TestInvariant9CRCDetection(t *testing.T) {
	t.Parallel()

	enc, err := acp.EncodeAlloc(acp.FrameTypeTelemetry, 0, []byte{0x01, 0x02, 0x03}, nil)
	if err != nil {
		t.Fatalf("EncodeAlloc: %v", err)
	}

	// The encoded region is everything strictly between the two delimiters.
	last := len(enc) - 1
	for i := 1; i < last; i++ {
		for bit := uint(0); bit < 8; bit++ {
			flipped := append([]byte(nil), enc...)
			flipped[i] ^= 1 << bit

			_, _, err := acp.DecodeAlloc(flipped, nil)
			if err == nil {
				t.Fatalf("bit %d of byte %d: expected malformed or CRC-mismatch error, got none", bit, i)
			}
		}
	}
}

// TestInvariant10TagSensitivity covers Universal Invariant 10 / Scenario S6.
func TestInvariant10TagSensitivity(t *testing.T) {
	t.Parallel()

	tx, rx := newTwinSessions(t)
	enc, err := acp.EncodeAlloc(acp.FrameTypeCommand, acp.FlagAuthenticated, []byte("SET_MODE:ACTIVE"), tx)
	if err != nil {
		t.Fatalf("EncodeAlloc: %v", err)
	}

	flipped := append([]byte(nil), enc...)
	flipped[len(flipped)-1] ^= 0x01

	if _, _, err := acp.DecodeAlloc(flipped, rx); err == nil {
		t.Fatal("expected auth-failed for a tampered tag")
	}

	// rx's window must be unchanged: the untampered frame should still decode.
	if _, _, err := acp.DecodeAlloc(enc, rx); err != nil {
		t.Fatalf("decode after rejected tamper attempt: %v", err)
	}
}

// TestScenarioS1TelemetryLayout covers Scenario S1's exact unencoded layout.
func TestScenarioS1TelemetryLayout(t *testing.T) {
	t.Parallel()

	payload := []byte{0x01, 0x02, 0x03}
	f := acp.Frame{Version: acp.Version, Type: acp.FrameTypeTelemetry, Payload: payload}

	raw := make([]byte, acp.FrameWireLen(0, len(payload)))
	n, err := acp.EncodeFrame(raw, &f)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}

	want := []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x03, 0x01, 0x02, 0x03}
	wantCRC := acp.CRC16(want)
	want = append(want, byte(wantCRC>>8), byte(wantCRC))

	if !bytes.Equal(raw[:n], want) {
		t.Fatalf("unencoded layout = %x, want %x", raw[:n], want)
	}

	enc, err := acp.EncodeAlloc(acp.FrameTypeTelemetry, 0, payload, nil)
	if err != nil {
		t.Fatalf("EncodeAlloc: %v", err)
	}
	for _, b := range enc[1 : len(enc)-1] {
		if b == 0 {
			t.Fatalf("encoded region contains a zero byte: %x", enc)
		}
	}

	frame, consumed, err := acp.DecodeAlloc(enc, nil)
	if err != nil {
		t.Fatalf("DecodeAlloc: %v", err)
	}
	if consumed != len(enc) {
		t.Fatalf("consumed = %d, want %d", consumed, len(enc))
	}
	if !bytes.Equal(frame.Payload, payload) {
		t.Fatalf("payload = %x, want %x", frame.Payload, payload)
	}
}

// TestScenarioS4AuthenticatedCommandRoundTrip covers S4 directly, including
// the receiver's replay-window state after a single accepted frame.
func TestScenarioS4AuthenticatedCommandRoundTrip(t *testing.T) {
	t.Parallel()

	tx, rx := newTwinSessions(t)
	enc, err := acp.EncodeAlloc(acp.FrameTypeCommand, acp.FlagAuthenticated, []byte("SET_MODE:ACTIVE"), tx)
	if err != nil {
		t.Fatalf("EncodeAlloc: %v", err)
	}

	frame, _, err := acp.DecodeAlloc(enc, rx)
	if err != nil {
		t.Fatalf("DecodeAlloc: %v", err)
	}
	if frame.Sequence != 1 {
		t.Fatalf("sequence = %d, want 1", frame.Sequence)
	}

	// rx's window now has last_accepted=1; sequence 1 must be a replay.
	if err := rx.CheckAndAdvance(1); err == nil {
		t.Error("expected replay for sequence already accepted as last_accepted")
	}
}

// TestScenarioS7BoundarySizes covers Scenario S7.
func TestScenarioS7BoundarySizes(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 255, 256, 1023, 1024} {
		payload := bytes.Repeat([]byte{0x11}, n)
		enc, err := acp.EncodeAlloc(acp.FrameTypeTelemetry, 0, payload, nil)
		if err != nil {
			t.Fatalf("EncodeAlloc(n=%d): %v", n, err)
		}
		frame, _, err := acp.DecodeAlloc(enc, nil)
		if err != nil {
			t.Fatalf("DecodeAlloc(n=%d): %v", n, err)
		}
		if !bytes.Equal(frame.Payload, payload) {
			t.Fatalf("payload mismatch at n=%d", n)
		}
	}

	if _, err := acp.EncodeAlloc(acp.FrameTypeTelemetry, 0, make([]byte, 1025), nil); err == nil {
		t.Error("expected payload-too-large encoding 1025 bytes")
	}

	// A forged frame claiming length=1025 must be rejected at decode.
	f := acp.Frame{Version: acp.Version, Type: acp.FrameTypeTelemetry, Payload: make([]byte, 1024)}
	raw := make([]byte, acp.FrameWireLen(0, 1024)+1)
	n, err := acp.EncodeFrame(raw, &f)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	// Bump the big-endian length field from 1024 to 1025 without growing the
	// payload, producing a structurally inconsistent forged header.
	raw[4], raw[5] = 0x04, 0x01
	raw = raw[:n]

	cobsBuf := make([]byte, acp.COBSMaxEncodedLen(len(raw)))
	cobsN, err := acp.COBSEncode(cobsBuf, raw)
	if err != nil {
		t.Fatalf("COBSEncode: %v", err)
	}
	wire := append([]byte{0x00}, cobsBuf[:cobsN]...)
	wire = append(wire, 0x00)

	if _, _, err := acp.DecodeAlloc(wire, nil); err == nil {
		t.Error("expected decode error for a forged length=1025 frame")
	}
}

func TestDecodeNeedsMoreBytes(t *testing.T) {
	t.Parallel()

	enc, err := acp.EncodeAlloc(acp.FrameTypeTelemetry, 0, []byte("partial"), nil)
	if err != nil {
		t.Fatalf("EncodeAlloc: %v", err)
	}

	var f acp.Frame
	scratch := make([]byte, 256)
	if _, err := acp.Decode(&f, scratch, enc[:len(enc)-1], nil); err == nil {
		t.Error("expected ErrNeedMoreBytes for a frame missing its trailing delimiter")
	}
}

func TestDecodeMissingLeadingDelimiter(t *testing.T) {
	t.Parallel()

	var f acp.Frame
	scratch := make([]byte, 256)
	if _, err := acp.Decode(&f, scratch, []byte{0x01, 0x02}, nil); err == nil {
		t.Error("expected error for input not starting with a delimiter")
	}
}
