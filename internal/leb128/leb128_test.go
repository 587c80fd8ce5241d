package leb128

import (
	"bytes"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeUint32(t *testing.T) {
	cases := []uint32{0, 1, 127, 128, 16256, 624485, math.MaxInt32, math.MaxUint32}
	for _, c := range cases {
		enc := EncodeUint32(c)
		got, n, err := DecodeUint32(bytes.NewReader(enc))
		require.NoError(t, err)
		require.Equal(t, c, got)
		require.Equal(t, uint64(len(enc)), n)
	}
}

func TestEncodeDecodeInt64(t *testing.T) {
	cases := []int64{0, 1, -1, -4, -16256, 165675008, -165675008, math.MaxInt64, math.MinInt64}
	for _, c := range cases {
		enc := EncodeInt64(c)
		got, n, err := DecodeInt64(bytes.NewReader(enc))
		require.NoError(t, err)
		require.Equal(t, c, got)
		require.Equal(t, uint64(len(enc)), n)
	}
}

func TestDecodeUint32_Overflow(t *testing.T) {
	// 5 bytes, the first four with continuation set; the terminal byte has bits set beyond 32 bits.
	in := []byte{0xff, 0xff, 0xff, 0xff, 0x1f}
	_, _, err := DecodeUint32(bytes.NewReader(in))
	require.ErrorIs(t, err, ErrOverflow)
}

func TestDecodeUint32_Unterminated(t *testing.T) {
	in := []byte{0x80, 0x80, 0x80, 0x80, 0x80}
	_, _, err := DecodeUint32(bytes.NewReader(in))
	require.ErrorIs(t, err, ErrUnterminated)
}

func TestDecodeUint32_EmptyInput(t *testing.T) {
	_, _, err := DecodeUint32(bytes.NewReader(nil))
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestDecodeInt7(t *testing.T) {
	// i32 valtype encoding is 0x7f, a negative 7-bit value (-1).
	v, err := DecodeInt7(bytes.NewReader([]byte{0x7f}))
	require.NoError(t, err)
	require.EqualValues(t, -1, v)
}
