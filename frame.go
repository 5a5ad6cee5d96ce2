package acp

import "encoding/binary"

// Component D (spec.md §4.D): wire header, Framer encode/decode. Grounded
// on internal/bfd/packet.go's MarshalControlPacket/ParseControlPacket:
// explicit network-byte-order field writes at known offsets (never a
// packed struct relying on language layout, per spec.md §9), paired
// size-check-then-serialize / parse-then-validate halves.

// Frame is the host-native decoded representation of one ACP message
// (spec.md §3 "Frame (host-native)").
type Frame struct {
	Version  uint8
	Type     FrameType
	Flags    Flags
	Sequence uint32 // zero unless Flags.Authenticated()
	Payload  []byte
}

// EncodeFrame serializes f's header, payload, and CRC-16 trailer into dst
// in network byte order (spec.md §4.D steps 1-5), returning the number of
// bytes written. dst must be at least headerSize(f.Flags)+len(f.Payload)+2
// bytes; callers typically size it with FrameWireLen.
//
// EncodeFrame does not COBS-encode or add delimiters — see Encode in
// acp.go for the full pipeline spec.md §2 describes.
func EncodeFrame(dst []byte, f *Frame) (int, error) {
	if len(f.Payload) > MaxPayloadSize {
		return 0, newErr("encode_frame", KindArgument, ErrPayloadTooLarge)
	}
	if !f.Type.valid() {
		return 0, newErr("encode_frame", KindArgument, ErrInvalidFrameType)
	}
	if f.Flags.reservedSet() {
		return 0, newErr("encode_frame", KindArgument, ErrReservedFlagsSet)
	}

	hdrSize := headerSize(f.Flags)
	total := hdrSize + len(f.Payload) + crcSize
	if len(dst) < total {
		return 0, newErr("encode_frame", KindArgument, ErrBufferTooSmall)
	}

	dst[0] = f.Version
	dst[1] = byte(f.Type)
	dst[2] = byte(f.Flags)
	dst[3] = 0 // reserved
	binary.BigEndian.PutUint16(dst[4:6], uint16(len(f.Payload)))

	payloadOff := baseHeaderSize
	if f.Flags.Authenticated() {
		binary.BigEndian.PutUint32(dst[baseHeaderSize:authHeaderSize], f.Sequence)
		payloadOff = authHeaderSize
	}

	copy(dst[payloadOff:payloadOff+len(f.Payload)], f.Payload)

	crc := CRC16(dst[:payloadOff+len(f.Payload)])
	binary.BigEndian.PutUint16(dst[payloadOff+len(f.Payload):total], crc)

	return total, nil
}

// FrameWireLen returns the unencoded wire length (header + payload + CRC,
// before COBS stuffing and delimiters) for a frame with the given flags
// and payload length.
func FrameWireLen(flags Flags, payloadLen int) int {
	return headerSize(flags) + payloadLen + crcSize
}

// DecodeFrame parses a raw (non-COBS-encoded) wire buffer into f,
// validating structure and CRC per spec.md §4.D steps 4-9. payload points
// into src; callers that need to retain it past src's lifetime must copy.
func DecodeFrame(f *Frame, src []byte) error {
	const minNoAuth = baseHeaderSize + crcSize
	if len(src) < minNoAuth {
		return newErr("decode_frame", KindFraming, ErrMalformedFrame)
	}

	flags := Flags(src[2])
	if flags.reservedSet() {
		return newErr("decode_frame", KindArgument, ErrReservedFlagsSet)
	}

	hdrSize := headerSize(flags)
	minLen := hdrSize + crcSize
	if len(src) < minLen {
		return newErr("decode_frame", KindFraming, ErrMalformedFrame)
	}

	payloadLen := int(binary.BigEndian.Uint16(src[4:6]))
	if payloadLen > MaxPayloadSize {
		return newErr("decode_frame", KindArgument, ErrPayloadTooLarge)
	}
	if hdrSize+payloadLen+crcSize != len(src) {
		return newErr("decode_frame", KindFraming, ErrMalformedFrame)
	}

	body := src[:hdrSize+payloadLen]
	wantCRC := binary.BigEndian.Uint16(src[hdrSize+payloadLen : len(src)])
	if CRC16(body) != wantCRC {
		return newErr("decode_frame", KindIntegrity, ErrCRCMismatch)
	}

	ft := FrameType(src[1])
	if !ft.valid() {
		return newErr("decode_frame", KindArgument, ErrInvalidFrameType)
	}

	f.Version = src[0]
	f.Type = ft
	f.Flags = flags
	f.Payload = src[hdrSize : hdrSize+payloadLen]

	if flags.Authenticated() {
		f.Sequence = binary.BigEndian.Uint32(src[baseHeaderSize:authHeaderSize])
	} else {
		f.Sequence = 0
	}

	return nil
}
