package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferValidateExactlyOneVariant(t *testing.T) {
	b := NewAudioBuffer(Audio{SampleRate: 16000, Channels: 1, Format: SampleFormatI16, NumSamples: 1, Samples: []byte{1, 0}})
	require.NoError(t, b.Validate())

	b.Text = &Text{Payload: []byte("x")}
	require.Error(t, b.Validate(), "a buffer carrying two variants must fail validation")
}

func TestAudioSampleLengthInvariant(t *testing.T) {
	a := Audio{SampleRate: 16000, Channels: 2, Format: SampleFormatF32, NumSamples: 10, Samples: make([]byte, 10)}
	require.Error(t, a.Validate(), "10 samples * 2 channels * 4 bytes should not fit in a 10 byte buffer")

	a.Samples = make([]byte, 10*2*4)
	require.NoError(t, a.Validate())
}

func TestVideoRawSizeInvariant(t *testing.T) {
	v := Video{Width: 4, Height: 4, Format: PixelFormatRGB24, Codec: CodecNone, PixelData: make([]byte, 4)}
	require.Error(t, v.Validate())

	v.PixelData = make([]byte, 4*4*3)
	require.NoError(t, v.Validate())

	encoded := Video{Width: 4, Height: 4, Format: PixelFormatEncoded, Codec: CodecH264, PixelData: []byte{1}}
	require.NoError(t, encoded.Validate(), "encoded frames carry no fixed raw size")
}

func TestTensorByteLengthInvariant(t *testing.T) {
	tn := Tensor{Shape: []int64{2, 2}, DType: DTypeU8, Bytes: make([]byte, 3)}
	require.Error(t, tn.Validate())

	tn.Bytes = make([]byte, 4)
	require.NoError(t, tn.Validate())

	region := Tensor{Shape: []int64{1024}, DType: DTypeF32, Storage: StorageHint{Region: "shm://sess/node/0"}}
	require.NoError(t, region.Validate(), "region-backed tensors carry no inline bytes")
}
