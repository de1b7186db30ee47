package hexutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := []byte{0xde, 0xad, 0xbe, 0xef}
	enc := Encode(in)
	require.Equal(t, "0xdeadbeef", enc)

	out, err := Decode(enc)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestDecodeWithoutPrefix(t *testing.T) {
	out, err := Decode("deadbeef")
	require.NoError(t, err)
	require.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, out)
}

func TestDecodeOddLength(t *testing.T) {
	_, err := Decode("0xabc")
	require.Error(t, err)
}

func TestBytesTextRoundTrip(t *testing.T) {
	b := Bytes{1, 2, 3}
	text, err := b.MarshalText()
	require.NoError(t, err)

	var back Bytes
	require.NoError(t, back.UnmarshalText(text))
	require.Equal(t, b, back)
}
