package evm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeccak256_KnownVectors(t *testing.T) {
	assert.Equal(t,
		"0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470",
		Keccak256Hex(nil))
	assert.Equal(t,
		"0x4e03657aea45a94fc7d47ba826c8d667c0d1e6e33a64a036ec44f58fa12d6c45",
		Keccak256Hex([]byte("abc")))
}

func TestDecodeHex(t *testing.T) {
	b, err := DecodeHex("0xdeadbeef")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, b)

	b, err = DecodeHex("deadbeef")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, b)

	_, err = DecodeHex("0xabc")
	assert.Error(t, err)
}

func TestStripMetadata(t *testing.T) {
	code := []byte{0x60, 0x80, 0x60, 0x40}
	tail := append([]byte{0x00, 0x33}, metadataMarker...) // length prefix + marker
	withMeta := append(append([]byte{}, code...), tail...)

	assert.Equal(t, code, StripMetadata(withMeta))
	// No marker present: input unchanged.
	assert.Equal(t, code, StripMetadata(code))
}

func TestCompareRuntime(t *testing.T) {
	code := []byte{0x60, 0x80, 0x60, 0x40, 0x52}

	exact := CompareRuntime(code, code)
	assert.True(t, exact.Match)
	assert.True(t, exact.Exact)

	// Same executable code, different metadata tails.
	a := append(append([]byte{}, code...), append([]byte{0x00, 0x10}, metadataMarker...)...)
	a = append(a, 0xaa)
	b := append(append([]byte{}, code...), append([]byte{0x00, 0x10}, metadataMarker...)...)
	b = append(b, 0xbb)
	partial := CompareRuntime(a, b)
	assert.True(t, partial.Match)
	assert.False(t, partial.Exact)

	none := CompareRuntime(code, []byte{0x01, 0x02})
	assert.False(t, none.Match)

	empty := CompareRuntime(nil, code)
	assert.False(t, empty.Match)
}

func TestCompareCreation_ConstructorArgs(t *testing.T) {
	creation := []byte{0x60, 0x80, 0x60, 0x40, 0x52, 0x00}
	args := []byte{0x00, 0x00, 0x00, 0x2a}
	txInput := append(append([]byte{}, creation...), args...)

	cmp, detected := CompareCreation(txInput, creation)
	assert.True(t, cmp.Match)
	assert.False(t, cmp.Exact)
	assert.Equal(t, args, detected)

	cmp, detected = CompareCreation(creation, creation)
	assert.True(t, cmp.Match)
	assert.True(t, cmp.Exact)
	assert.Empty(t, detected)

	cmp, _ = CompareCreation([]byte{0x01}, creation)
	assert.False(t, cmp.Match)
}

func TestParseSalt(t *testing.T) {
	b, err := ParseSalt("0x01")
	require.NoError(t, err)
	require.Len(t, b, 32)
	assert.Equal(t, byte(0x01), b[31])

	b, err = ParseSalt("255")
	require.NoError(t, err)
	assert.Equal(t, byte(0xff), b[31])

	_, err = ParseSalt("")
	assert.Error(t, err)
	_, err = ParseSalt("-1")
	assert.Error(t, err)
}

// Vectors from EIP-1014.
func TestCreate2Address_EIP1014Vectors(t *testing.T) {
	zeroSalt := make([]byte, 32)

	addr, err := Create2Address("0x0000000000000000000000000000000000000000", zeroSalt, []byte{0x00}, nil)
	require.NoError(t, err)
	assert.True(t, SameAddress(addr, "0x4D1A2e2bB4F88F0250f26Ffff098B0b30B26BF38"))

	addr, err = Create2Address("0xdeadbeef00000000000000000000000000000000", zeroSalt, []byte{0x00}, nil)
	require.NoError(t, err)
	assert.True(t, SameAddress(addr, "0xB928f69Bb1D91Cd65274e3c79d8986362984fDA3"))

	initCode, err := DecodeHex("0xdeadbeef")
	require.NoError(t, err)
	addr, err = Create2Address("0x0000000000000000000000000000000000000000", zeroSalt, initCode, nil)
	require.NoError(t, err)
	assert.True(t, SameAddress(addr, "0x70f2b2914A2a4b783FaEFb75f459A580616Fcb5e"))
}

func TestCreate2Address_CtorArgsChangeAddress(t *testing.T) {
	salt, err := ParseSalt("0x01")
	require.NoError(t, err)
	code := []byte{0x60, 0x80}

	plain, err := Create2Address("0xdeadbeef00000000000000000000000000000000", salt, code, nil)
	require.NoError(t, err)
	withArgs, err := Create2Address("0xdeadbeef00000000000000000000000000000000", salt, code, []byte{0x01})
	require.NoError(t, err)
	assert.NotEqual(t, plain, withArgs)
}

func TestCreate2Address_InvalidInputs(t *testing.T) {
	salt := make([]byte, 32)
	_, err := Create2Address("0x1234", salt, []byte{0x00}, nil)
	assert.Error(t, err)
	_, err = Create2Address("0xdeadbeef00000000000000000000000000000000", []byte{0x01}, []byte{0x00}, nil)
	assert.Error(t, err)
	_, err = Create2Address("0xdeadbeef00000000000000000000000000000000", salt, nil, nil)
	assert.Error(t, err)
}
