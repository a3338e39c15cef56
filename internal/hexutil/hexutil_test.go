package hexutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	assert.Equal(t, "0x", Encode(nil))
	assert.Equal(t, "0x", Encode([]byte{}))
	assert.Equal(t, "0x00ff", Encode([]byte{0x00, 0xFF}))
}

func TestDecode(t *testing.T) {
	b, err := Decode("0x00ff")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xFF}, b)

	// Uppercase digits are accepted on input
	b, err = Decode("0x00FF")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xFF}, b)

	b, err = Decode("0x")
	require.NoError(t, err)
	assert.Empty(t, b)
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	_, err := Decode("00ff")
	assert.Error(t, err, "missing prefix")

	_, err = Decode("0xzz")
	assert.Error(t, err, "non-hex digits")

	_, err = Decode("0x0")
	assert.Error(t, err, "odd length")
}

func TestRoundTrip(t *testing.T) {
	payload := []byte{0x84, 0x00, 0xDE, 0xAD, 0xBE, 0xEF}
	got, err := Decode(Encode(payload))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestMustDecodePanics(t *testing.T) {
	assert.Panics(t, func() { MustDecode("not hex") })
	assert.NotPanics(t, func() { MustDecode("0x1234") })
}
