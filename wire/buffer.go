// Package wire defines the tagged Buffer union that is the unit of data
// exchanged between nodes and across the IPC transport, plus the codec
// that serializes it to the framed byte layout used on both boundaries.
package wire

import "fmt"

// Kind identifies which variant of Buffer is populated.
type Kind uint8

// Kind values double as the data_type byte of the IPC wire format (§4.4),
// so their numeric values are part of the ABI and must not be renumbered.
const (
	KindAudio Kind = iota + 1
	KindVideo
	KindText
	KindTensor
	KindBinary
	KindJSON
)

// ParseKind maps a manifest's declared kind name to a Kind, as used when
// the compiler checks kind compatibility across a connection.
func ParseKind(name string) (Kind, bool) {
	switch name {
	case "audio":
		return KindAudio, true
	case "video":
		return KindVideo, true
	case "text":
		return KindText, true
	case "tensor":
		return KindTensor, true
	case "binary":
		return KindBinary, true
	case "json":
		return KindJSON, true
	default:
		return 0, false
	}
}

func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindVideo:
		return "video"
	case KindText:
		return "text"
	case KindTensor:
		return "tensor"
	case KindBinary:
		return "binary"
	case KindJSON:
		return "json"
	default:
		return "unknown"
	}
}

// SampleFormat is the per-sample encoding of an Audio buffer.
type SampleFormat uint8

const (
	SampleFormatF32 SampleFormat = iota
	SampleFormatI16
	SampleFormatI32
)

// BytesPerSample returns the byte width of one sample in this format.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case SampleFormatF32, SampleFormatI32:
		return 4
	case SampleFormatI16:
		return 2
	default:
		return 0
	}
}

// PixelFormat identifies the raw or encoded layout of a Video buffer.
type PixelFormat uint8

const (
	PixelFormatYUV420P PixelFormat = iota
	PixelFormatI420
	PixelFormatNV12
	PixelFormatRGB24
	PixelFormatRGBA32
	PixelFormatEncoded
)

// Codec identifies the bitstream format when a Video buffer's pixel_data
// is not raw (codec != CodecNone).
type Codec uint8

const (
	CodecNone Codec = iota
	CodecVP8
	CodecH264
	CodecAV1
)

// DType is the element type of a Tensor buffer.
type DType uint8

const (
	DTypeF32 DType = iota
	DTypeF16
	DTypeI32
	DTypeI64
	DTypeU8
)

// DTypeSize returns the byte width of one element of the given dtype.
func DTypeSize(d DType) int {
	switch d {
	case DTypeF32, DTypeI32:
		return 4
	case DTypeF16:
		return 2
	case DTypeI64:
		return 8
	case DTypeU8:
		return 1
	default:
		return 0
	}
}

// StorageHint describes where a Tensor's bytes actually live. A region-id
// hint means the bytes are not inline but resolvable through the storage
// package's region registry (see storage.Reference); node code must not
// assume Bytes is populated when Region is set.
type StorageHint struct {
	Region string // opaque shared-memory region id; empty means heap-resident
}

// Audio is the interleaved PCM buffer variant.
type Audio struct {
	Samples    []byte
	SampleRate uint32
	Channels   uint16
	Format     SampleFormat
	NumSamples uint64
}

// Validate checks the Audio invariant from §3: samples.len() == num_samples * channels * size_of(format).
func (a *Audio) Validate() error {
	want := int(a.NumSamples) * int(a.Channels) * a.Format.BytesPerSample()
	if len(a.Samples) != want {
		return fmt.Errorf("wire: audio samples length %d does not match num_samples*channels*format_size %d", len(a.Samples), want)
	}
	return nil
}

// Video is the raw-or-encoded frame buffer variant.
type Video struct {
	PixelData   []byte
	Width       uint32
	Height      uint32
	Format      PixelFormat
	Codec       Codec
	FrameNumber uint64
	TimestampUs uint64
	IsKeyframe  bool
}

// Validate checks the Video invariant from §3: pixel_data length matches
// the declared dimensions when the frame carries raw (uncoded) pixels.
func (v *Video) Validate() error {
	if v.Codec != CodecNone {
		return nil
	}
	want, err := rawPixelSize(v.Format, v.Width, v.Height)
	if err != nil {
		return err
	}
	if len(v.PixelData) != want {
		return fmt.Errorf("wire: video pixel_data length %d does not match %dx%d raw frame size %d", len(v.PixelData), v.Width, v.Height, want)
	}
	return nil
}

func rawPixelSize(format PixelFormat, width, height uint32) (int, error) {
	w, h := int(width), int(height)
	switch format {
	case PixelFormatYUV420P, PixelFormatI420, PixelFormatNV12:
		return w*h + 2*((w+1)/2)*((h+1)/2), nil
	case PixelFormatRGB24:
		return w * h * 3, nil
	case PixelFormatRGBA32:
		return w * h * 4, nil
	default:
		return 0, fmt.Errorf("wire: pixel format %d has no raw size (encoded variants carry no fixed size)", format)
	}
}

// Tensor is the n-dimensional numeric buffer variant.
type Tensor struct {
	Bytes   []byte
	Shape   []int64
	DType   DType
	Storage StorageHint
}

// Validate checks the Tensor invariant from §3: bytes.len() == product(shape) * size_of(dtype).
// Region-backed tensors carry no inline bytes and are exempt.
func (t *Tensor) Validate() error {
	if t.Storage.Region != "" {
		return nil
	}
	elems := int64(1)
	for _, s := range t.Shape {
		elems *= s
	}
	want := int(elems) * DTypeSize(t.DType)
	if len(t.Bytes) != want {
		return fmt.Errorf("wire: tensor bytes length %d does not match product(shape)*dtype_size %d", len(t.Bytes), want)
	}
	return nil
}

// JSON is the free-form structured-data buffer variant.
type JSON struct {
	Payload []byte // utf-8 JSON text
	Schema  string // optional schema tag, empty if unspecified
}

// Text is the plain utf-8 buffer variant.
type Text struct {
	Payload []byte
}

// Binary is the opaque-bytes buffer variant.
type Binary struct {
	Payload  []byte
	MimeType string // optional, empty if unspecified
}

// Buffer is the tagged union described in §3: exactly one of the variant
// fields is populated, selected by Kind. Constructing one through the
// New* helpers keeps that invariant; zero-value Buffers are invalid.
type Buffer struct {
	Kind   Kind
	Audio  *Audio
	Video  *Video
	Tensor *Tensor
	JSON   *JSON
	Text   *Text
	Binary *Binary
}

func NewAudioBuffer(a Audio) Buffer   { return Buffer{Kind: KindAudio, Audio: &a} }
func NewVideoBuffer(v Video) Buffer   { return Buffer{Kind: KindVideo, Video: &v} }
func NewTensorBuffer(t Tensor) Buffer { return Buffer{Kind: KindTensor, Tensor: &t} }
func NewJSONBuffer(j JSON) Buffer     { return Buffer{Kind: KindJSON, JSON: &j} }
func NewTextBuffer(t Text) Buffer     { return Buffer{Kind: KindText, Text: &t} }
func NewBinaryBuffer(b Binary) Buffer { return Buffer{Kind: KindBinary, Binary: &b} }

// JSONText is a convenience constructor for a JSON buffer from a Go string.
func JSONText(s string) Buffer {
	return NewJSONBuffer(JSON{Payload: []byte(s)})
}

// Validate enforces the "exactly one variant set" invariant plus the
// per-variant size invariants from §3. A variant mismatch at a node input
// must surface here as a validation failure, never as a runtime panic.
func (b Buffer) Validate() error {
	set := 0
	if b.Audio != nil {
		set++
	}
	if b.Video != nil {
		set++
	}
	if b.Tensor != nil {
		set++
	}
	if b.JSON != nil {
		set++
	}
	if b.Text != nil {
		set++
	}
	if b.Binary != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("wire: buffer must carry exactly one variant, got %d", set)
	}
	switch b.Kind {
	case KindAudio:
		if b.Audio == nil {
			return fmt.Errorf("wire: kind=audio but Audio field unset")
		}
		return b.Audio.Validate()
	case KindVideo:
		if b.Video == nil {
			return fmt.Errorf("wire: kind=video but Video field unset")
		}
		return b.Video.Validate()
	case KindTensor:
		if b.Tensor == nil {
			return fmt.Errorf("wire: kind=tensor but Tensor field unset")
		}
		return b.Tensor.Validate()
	case KindJSON:
		if b.JSON == nil {
			return fmt.Errorf("wire: kind=json but JSON field unset")
		}
	case KindText:
		if b.Text == nil {
			return fmt.Errorf("wire: kind=text but Text field unset")
		}
	case KindBinary:
		if b.Binary == nil {
			return fmt.Errorf("wire: kind=binary but Binary field unset")
		}
	default:
		return fmt.Errorf("wire: unknown buffer kind %d", b.Kind)
	}
	return nil
}
