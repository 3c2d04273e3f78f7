package bytereader

import (
	"testing"

	"chainlens/internal/apierr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReader_Primitives(t *testing.T) {
	r := New([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}, apierr.CodeInvalidTx)

	b, err := r.ReadBytes(1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, b)

	v8, err := r.ReadUint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0x02), v8)

	v16, err := r.ReadUint16LE()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0403), v16)

	v32, err := r.ReadUint32LE()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x08070605), v32)

	assert.Equal(t, 0, r.Remaining())
}

func TestReader_Truncation(t *testing.T) {
	r := New([]byte{0x01, 0x02}, apierr.CodeInvalidTx)
	_, err := r.ReadUint32LE()
	require.Error(t, err)
	tagged, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.CodeInvalidTx, tagged.Code)
}

func TestReader_Peek(t *testing.T) {
	r := New([]byte{0xAA, 0xBB, 0xCC}, apierr.CodeInvalidBlock)
	peeked, err := r.Peek(2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0xBB}, peeked)
	assert.Equal(t, 3, r.Remaining(), "peek must not advance the cursor")
}

func TestReader_VarInt(t *testing.T) {
	tests := []struct {
		name    string
		buf     []byte
		want    uint64
		wantErr bool
	}{
		{name: "direct", buf: []byte{0x2A}, want: 42},
		{name: "direct max", buf: []byte{0xFC}, want: 0xFC},
		{name: "u16 prefix", buf: []byte{0xFD, 0x00, 0x01}, want: 256},
		{name: "u16 non-canonical", buf: []byte{0xFD, 0xFC, 0x00}, wantErr: true},
		{name: "u32 prefix", buf: []byte{0xFE, 0x00, 0x00, 0x01, 0x00}, want: 0x00010000},
		{name: "u32 non-canonical", buf: []byte{0xFE, 0xFF, 0xFF, 0x00, 0x00}, wantErr: true},
		{name: "u64 prefix", buf: []byte{0xFF, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00}, want: 0x0000000100000000},
		{name: "u64 non-canonical", buf: []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00, 0x00, 0x00, 0x00}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := New(tc.buf, apierr.CodeInvalidTx)
			got, err := r.ReadVarInt()
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
