package wire

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Message is one framed IPC record: a Buffer plus the session/timestamp
// envelope prepended to it on the wire (§4.4). This is the unit published
// and subscribed to on an ipc.Bus service.
type Message struct {
	SessionID string
	Timestamp time.Time
	Buffer    Buffer
}

// Encode serializes m to the exact byte layout defined in §4.4:
//
//	offset | field           | size   | notes
//	0      | data_type       | 1      | Kind byte
//	1      | session_len     | 2 LE   | length of session_id
//	3      | session_id      | var    | utf-8
//	3+L    | timestamp_ns    | 8 LE   | nanoseconds since epoch
//	11+L   | variant payload | var    | see per-variant layout below
func Encode(m Message) ([]byte, error) {
	if err := m.Buffer.Validate(); err != nil {
		return nil, fmt.Errorf("wire: encode: %w", err)
	}
	sessionBytes := []byte(m.SessionID)
	if len(sessionBytes) > 0xFFFF {
		return nil, fmt.Errorf("wire: encode: session id too long (%d bytes)", len(sessionBytes))
	}

	payload, err := encodeVariant(m.Buffer)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, 11+len(sessionBytes)+len(payload))
	buf = append(buf, byte(m.Buffer.Kind))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(sessionBytes)))
	buf = append(buf, sessionBytes...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(m.Timestamp.UnixNano()))
	buf = append(buf, payload...)
	return buf, nil
}

// Decode parses the byte layout produced by Encode. The returned Buffer's
// byte slices borrow from data for variants whose payload is a direct
// sub-slice; callers that retain the Message beyond the lifetime of data
// (e.g. across an IPC shared-memory read) must copy first, per the
// zero-copy-borrowed semantics in §4.4.
func Decode(data []byte) (Message, error) {
	if len(data) < 11 {
		return Message{}, fmt.Errorf("wire: decode: frame too short (%d bytes)", len(data))
	}
	kind := Kind(data[0])
	sessionLen := int(binary.LittleEndian.Uint16(data[1:3]))
	if len(data) < 3+sessionLen+8 {
		return Message{}, fmt.Errorf("wire: decode: frame truncated before timestamp")
	}
	sessionID := string(data[3 : 3+sessionLen])
	tsOffset := 3 + sessionLen
	ts := int64(binary.LittleEndian.Uint64(data[tsOffset : tsOffset+8]))
	payload := data[tsOffset+8:]

	b, err := decodeVariant(kind, payload)
	if err != nil {
		return Message{}, err
	}
	return Message{
		SessionID: sessionID,
		Timestamp: time.Unix(0, ts).UTC(),
		Buffer:    b,
	}, nil
}

func encodeVariant(b Buffer) ([]byte, error) {
	switch b.Kind {
	case KindAudio:
		return encodeAudio(b.Audio), nil
	case KindVideo:
		return encodeVideo(b.Video), nil
	case KindText:
		return encodeLenPrefixed(b.Text.Payload), nil
	case KindTensor:
		return encodeTensor(b.Tensor)
	case KindJSON:
		return encodeLenPrefixed(b.JSON.Payload), nil
	case KindBinary:
		return encodeLenPrefixed(b.Binary.Payload), nil
	default:
		return nil, fmt.Errorf("wire: encode: unsupported kind %d", b.Kind)
	}
}

func decodeVariant(kind Kind, payload []byte) (Buffer, error) {
	switch kind {
	case KindAudio:
		return decodeAudio(payload)
	case KindVideo:
		return decodeVideo(payload)
	case KindText:
		s, err := decodeLenPrefixed(payload)
		if err != nil {
			return Buffer{}, err
		}
		return NewTextBuffer(Text{Payload: s}), nil
	case KindTensor:
		return decodeTensor(payload)
	case KindJSON:
		s, err := decodeLenPrefixed(payload)
		if err != nil {
			return Buffer{}, err
		}
		return NewJSONBuffer(JSON{Payload: s}), nil
	case KindBinary:
		s, err := decodeLenPrefixed(payload)
		if err != nil {
			return Buffer{}, err
		}
		return NewBinaryBuffer(Binary{Payload: s}), nil
	default:
		return Buffer{}, fmt.Errorf("wire: decode: unsupported data_type %d", kind)
	}
}

// encodeAudio lays out: sample_rate(4 LE) | channels(2 LE) | num_samples(8 LE) | samples.
func encodeAudio(a *Audio) []byte {
	buf := make([]byte, 0, 14+len(a.Samples))
	buf = binary.LittleEndian.AppendUint32(buf, a.SampleRate)
	buf = binary.LittleEndian.AppendUint16(buf, a.Channels)
	buf = binary.LittleEndian.AppendUint64(buf, a.NumSamples)
	buf = append(buf, a.Samples...)
	return buf
}

func decodeAudio(payload []byte) (Buffer, error) {
	if len(payload) < 14 {
		return Buffer{}, fmt.Errorf("wire: decode audio: payload too short (%d bytes)", len(payload))
	}
	a := Audio{
		SampleRate: binary.LittleEndian.Uint32(payload[0:4]),
		Channels:   binary.LittleEndian.Uint16(payload[4:6]),
		NumSamples: binary.LittleEndian.Uint64(payload[6:14]),
		Samples:    payload[14:],
	}
	// The layout carries no sample-format byte, so the sample width is
	// recovered from the payload size: a 2-byte width decodes as i16, any
	// other width as f32 (f32 and i32 share a 4-byte width).
	if n := a.NumSamples * uint64(a.Channels); n > 0 && uint64(len(a.Samples)) == 2*n {
		a.Format = SampleFormatI16
	}
	return NewAudioBuffer(a), nil
}

// encodeVideo lays out: width(4 LE) | height(4 LE) | format(1) | codec(1) |
// frame_number(8 LE) | is_keyframe(1) | pixel_data.
func encodeVideo(v *Video) []byte {
	buf := make([]byte, 0, 19+len(v.PixelData))
	buf = binary.LittleEndian.AppendUint32(buf, v.Width)
	buf = binary.LittleEndian.AppendUint32(buf, v.Height)
	buf = append(buf, byte(v.Format))
	buf = append(buf, byte(v.Codec))
	buf = binary.LittleEndian.AppendUint64(buf, v.FrameNumber)
	var kf byte
	if v.IsKeyframe {
		kf = 1
	}
	buf = append(buf, kf)
	buf = append(buf, v.PixelData...)
	return buf
}

func decodeVideo(payload []byte) (Buffer, error) {
	if len(payload) < 19 {
		return Buffer{}, fmt.Errorf("wire: decode video: payload too short (%d bytes)", len(payload))
	}
	v := Video{
		Width:       binary.LittleEndian.Uint32(payload[0:4]),
		Height:      binary.LittleEndian.Uint32(payload[4:8]),
		Format:      PixelFormat(payload[8]),
		Codec:       Codec(payload[9]),
		FrameNumber: binary.LittleEndian.Uint64(payload[10:18]),
		IsKeyframe:  payload[18] != 0,
		PixelData:   payload[19:],
	}
	return NewVideoBuffer(v), nil
}

// encodeTensor lays out: ndim(1) | shape[ndim](8 LE each) | dtype(1) | bytes.
// Region-backed tensors (no inline bytes) encode an empty bytes tail; the
// region id itself is process-local and is not part of the wire ABI.
func encodeTensor(t *Tensor) ([]byte, error) {
	if len(t.Shape) > 0xFF {
		return nil, fmt.Errorf("wire: encode tensor: ndim %d exceeds 255", len(t.Shape))
	}
	buf := make([]byte, 0, 2+8*len(t.Shape)+len(t.Bytes))
	buf = append(buf, byte(len(t.Shape)))
	for _, dim := range t.Shape {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(dim))
	}
	buf = append(buf, byte(t.DType))
	buf = append(buf, t.Bytes...)
	return buf, nil
}

func decodeTensor(payload []byte) (Buffer, error) {
	if len(payload) < 1 {
		return Buffer{}, fmt.Errorf("wire: decode tensor: payload empty")
	}
	ndim := int(payload[0])
	need := 1 + 8*ndim + 1
	if len(payload) < need {
		return Buffer{}, fmt.Errorf("wire: decode tensor: payload too short for ndim=%d", ndim)
	}
	shape := make([]int64, ndim)
	for i := 0; i < ndim; i++ {
		off := 1 + 8*i
		shape[i] = int64(binary.LittleEndian.Uint64(payload[off : off+8]))
	}
	dtype := DType(payload[1+8*ndim])
	bytesTail := payload[need:]
	t := Tensor{Bytes: bytesTail, Shape: shape, DType: dtype}
	return NewTensorBuffer(t), nil
}

func encodeLenPrefixed(payload []byte) []byte {
	buf := make([]byte, 0, 4+len(payload))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(payload)))
	buf = append(buf, payload...)
	return buf
}

func decodeLenPrefixed(payload []byte) ([]byte, error) {
	if len(payload) < 4 {
		return nil, fmt.Errorf("wire: decode: length-prefixed payload too short")
	}
	n := binary.LittleEndian.Uint32(payload[0:4])
	if uint32(len(payload)-4) < n {
		return nil, fmt.Errorf("wire: decode: length-prefixed payload declares %d bytes but only %d available", n, len(payload)-4)
	}
	return payload[4 : 4+n], nil
}
