package acp

import "bytes"

// Component F (spec.md §4.F): the top-level policy gate tying A-E
// together. Grounded on the teacher's Authenticator.Sign/Verify dispatch
// (internal/bfd/auth.go) for the "compute over serialized bytes, then
// attach/compare" shape, and on manager.go's orchestration style for
// sequencing session lookups around a codec call.

// Encode builds a complete wire frame for (frameType, flags, payload)
// into dst and returns the number of bytes written (spec.md §4.F "Encode
// policy" and "The encoder"). Command frames MUST carry
// FlagAuthenticated; encoding one without it fails with ErrAuthRequired.
// Any authenticated frame (command, telemetry, or system) requires a
// non-nil, initialized session to supply the TX sequence and HMAC key.
//
// dst should be sized via MaxEncodedLen(flags, len(payload)) or the
// package-wide maxEncodedFrameSize upper bound.
func Encode(dst []byte, frameType FrameType, flags Flags, payload []byte, session *Session) (int, error) {
	if frameType == FrameTypeCommand && !flags.Authenticated() {
		return 0, newErr("encode", KindAuthenticity, ErrAuthRequired)
	}

	var seq uint32
	if flags.Authenticated() {
		if session == nil || !session.Initialized() {
			return 0, newErr("encode", KindSession, ErrSessionNotInitialized)
		}
		var err error
		seq, err = session.NextTXSequence()
		if err != nil {
			return 0, err
		}
	}

	f := Frame{Version: Version, Type: frameType, Flags: flags, Sequence: seq, Payload: payload}

	var rawBuf [authHeaderSize + MaxPayloadSize + crcSize]byte
	rawLen := FrameWireLen(flags, len(payload))
	if rawLen > len(rawBuf) {
		return 0, newErr("encode", KindArgument, ErrPayloadTooLarge)
	}
	raw := rawBuf[:rawLen]

	n, err := EncodeFrame(raw, &f)
	if err != nil {
		return 0, err
	}
	raw = raw[:n]

	cobsMax := COBSMaxEncodedLen(n)
	needed := 1 + cobsMax + 1
	if flags.Authenticated() {
		needed += TagSize
	}
	if len(dst) < needed {
		return 0, newErr("encode", KindArgument, ErrBufferTooSmall)
	}

	dst[0] = 0x00
	cobsLen, err := COBSEncode(dst[1:1+cobsMax], raw)
	if err != nil {
		return 0, err
	}

	delimPos := 1 + cobsLen
	dst[delimPos] = 0x00
	total := delimPos + 1

	if flags.Authenticated() {
		tag := HMACTag(session.Key(), dst[1:delimPos])
		copy(dst[total:total+TagSize], tag[:])
		total += TagSize
	}

	return total, nil
}

// MaxEncodedLen returns a sizing upper bound for Encode's dst, given the
// frame's flags and payload length: header+payload+CRC, worst-case COBS
// overhead, both delimiters, and (if authenticated) the trailing tag.
func MaxEncodedLen(flags Flags, payloadLen int) int {
	raw := FrameWireLen(flags, payloadLen)
	n := 1 + COBSMaxEncodedLen(raw) + 1
	if flags.Authenticated() {
		n += TagSize
	}
	return n
}

// EncodeAlloc is a convenience wrapper around Encode that allocates its
// own destination buffer. Prefer Encode on any path where allocation
// matters (spec.md §5 "Allocation"); EncodeAlloc exists for callers like
// the operator CLI where an occasional heap allocation is immaterial.
func EncodeAlloc(frameType FrameType, flags Flags, payload []byte, session *Session) ([]byte, error) {
	dst := make([]byte, MaxEncodedLen(flags, len(payload)))
	n, err := Encode(dst, frameType, flags, payload, session)
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}

// Decode locates one delimited frame at the start of input, decodes it
// into f, and returns the number of input bytes consumed (spec.md §4.F
// "Decode policy"). scratch backs f.Payload for the lifetime of f; it
// must hold the frame's COBS-decoded bytes, which for a maximum-size
// authenticated frame is 1036 bytes (10-byte header, MaxPayloadSize
// payload, 2-byte CRC).
//
// If input does not yet contain a complete frame (no trailing delimiter,
// or an authenticated frame's tag bytes haven't all arrived), Decode
// returns ErrNeedMoreBytes; the caller should read more bytes and retry
// with the same starting offset. All other errors are final: no state is
// advanced and the caller should discard up to the next delimiter before
// retrying (spec.md §4.F "Failure semantics").
func Decode(f *Frame, scratch []byte, input []byte, session *Session) (int, error) {
	if len(input) == 0 {
		return 0, newErr("decode", KindIncomplete, ErrNeedMoreBytes)
	}
	if input[0] != 0x00 {
		return 0, newErr("decode", KindFraming, ErrMissingDelimiter)
	}

	end := bytes.IndexByte(input[1:], 0x00)
	if end < 0 {
		return 0, newErr("decode", KindIncomplete, ErrNeedMoreBytes)
	}
	delimPos := 1 + end
	encoded := input[1:delimPos]

	n, err := COBSDecode(scratch, encoded)
	if err != nil {
		return 0, err
	}
	raw := scratch[:n]

	if err := DecodeFrame(f, raw); err != nil {
		return 0, err
	}

	frameEnd := delimPos + 1

	if !f.Flags.Authenticated() {
		if f.Type == FrameTypeCommand {
			return 0, newErr("decode", KindAuthenticity, ErrAuthRequired)
		}
		return frameEnd, nil
	}

	if session == nil || !session.Initialized() {
		return 0, newErr("decode", KindSession, ErrSessionNotInitialized)
	}
	if len(input) < frameEnd+TagSize {
		return 0, newErr("decode", KindIncomplete, ErrNeedMoreBytes)
	}

	var gotTag [TagSize]byte
	copy(gotTag[:], input[frameEnd:frameEnd+TagSize])

	if !VerifyTag(session.Key(), input[1:delimPos], gotTag) {
		return 0, newErr("decode", KindAuthenticity, ErrAuthFailed)
	}

	if err := session.CheckAndAdvance(f.Sequence); err != nil {
		return 0, err
	}

	return frameEnd + TagSize, nil
}

// DecodeAlloc is a convenience wrapper around Decode that allocates its
// own scratch buffer sized to the protocol maximum. See EncodeAlloc for
// when this tradeoff is acceptable.
func DecodeAlloc(input []byte, session *Session) (*Frame, int, error) {
	scratch := make([]byte, authHeaderSize+MaxPayloadSize+crcSize)
	f := &Frame{}
	n, err := Decode(f, scratch, input, session)
	if err != nil {
		return nil, 0, err
	}
	payload := make([]byte, len(f.Payload))
	copy(payload, f.Payload)
	f.Payload = payload
	return f, n, nil
}
