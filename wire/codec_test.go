package wire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCodecRoundTripIdentity(t *testing.T) {
	ts := time.Unix(0, 1_700_000_000_123_456_789).UTC()

	cases := []struct {
		name string
		buf  Buffer
	}{
		{"audio", NewAudioBuffer(Audio{
			SampleRate: 16000,
			Channels:   1,
			Format:     SampleFormatI16,
			NumSamples: 4,
			Samples:    []byte{1, 0, 2, 0, 3, 0, 4, 0},
		})},
		{"video", NewVideoBuffer(Video{
			Width: 2, Height: 2, Format: PixelFormatRGB24, Codec: CodecNone,
			FrameNumber: 7, IsKeyframe: true,
			PixelData: make([]byte, 2*2*3),
		})},
		{"video_encoded", NewVideoBuffer(Video{
			Width: 640, Height: 480, Format: PixelFormatEncoded, Codec: CodecH264,
			FrameNumber: 99, IsKeyframe: false,
			PixelData: []byte{0xde, 0xad, 0xbe, 0xef},
		})},
		{"text", NewTextBuffer(Text{Payload: []byte("hello")})},
		{"json", JSONText(`{"value":10}`)},
		{"binary", NewBinaryBuffer(Binary{Payload: []byte{1, 2, 3}})},
		{"tensor", NewTensorBuffer(Tensor{
			Shape: []int64{2, 3}, DType: DTypeF32,
			Bytes: make([]byte, 2*3*4),
		})},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg := Message{SessionID: "sess-1", Timestamp: ts, Buffer: tc.buf}
			encoded, err := Encode(msg)
			require.NoError(t, err)

			decoded, err := Decode(encoded)
			require.NoError(t, err)

			require.Equal(t, msg.SessionID, decoded.SessionID)
			require.True(t, msg.Timestamp.Equal(decoded.Timestamp))
			require.Equal(t, msg.Buffer.Kind, decoded.Buffer.Kind)

			reEncoded, err := Encode(decoded)
			require.NoError(t, err)
			require.Equal(t, encoded, reEncoded, "decode(encode(b)) must round-trip byte-for-byte")
		})
	}
}

func TestDecodeRejectsTruncatedFrame(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestEncodeRejectsInvalidBuffer(t *testing.T) {
	_, err := Encode(Message{SessionID: "s", Buffer: Buffer{Kind: KindAudio}})
	require.Error(t, err)
}
