package block

import (
	"encoding/binary"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainlens/internal/apierr"
	"chainlens/internal/chainlens/bytereader"
	"chainlens/internal/chainlens/tx"
)

func TestDeobfuscate(t *testing.T) {
	buf := []byte{0x01, 0x02, 0x03, 0x04}
	key := []byte{0xff, 0xff}
	Deobfuscate(buf, key)
	assert.Equal(t, []byte{0xfe, 0xfd, 0xfc, 0xfb}, buf)
}

func TestDeobfuscate_ZeroKeyNoOp(t *testing.T) {
	buf := []byte{0x01, 0x02}
	Deobfuscate(buf, []byte{0x00, 0x00})
	assert.Equal(t, []byte{0x01, 0x02}, buf)
}

func TestComputeMerkleRoot_Single(t *testing.T) {
	h := chainhash.HashH([]byte("a"))
	root := ComputeMerkleRoot([]chainhash.Hash{h})
	assert.Equal(t, h, root)
}

func TestComputeMerkleRoot_OddDuplicatesLast(t *testing.T) {
	a := chainhash.HashH([]byte("a"))
	b := chainhash.HashH([]byte("b"))
	c := chainhash.HashH([]byte("c"))

	withThree := ComputeMerkleRoot([]chainhash.Hash{a, b, c})
	withFour := ComputeMerkleRoot([]chainhash.Hash{a, b, c, c})
	assert.Equal(t, withFour, withThree)
}

func TestDecodeBIP34Height(t *testing.T) {
	h, err := DecodeBIP34Height([]byte{0x03, 0x40, 0x0d, 0x03}) // push 3 bytes LE 0x00030d40 = 200000
	assert.NoError(t, err)
	assert.Equal(t, int64(200000), h)

	h2, err := DecodeBIP34Height([]byte{0x00})
	assert.NoError(t, err)
	assert.Equal(t, int64(0), h2)

	h3, err := DecodeBIP34Height([]byte{0x51})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), h3)
}

func TestDecodeBIP34Height_MissingPush(t *testing.T) {
	_, err := DecodeBIP34Height([]byte{0x6a})
	assert.Error(t, err)
}

// buildRevPayload encodes one block's worth of undo data for a single
// non-coinbase transaction with one input: leading num_tx_undos(1),
// then that transaction's num_coins(1) and one record (height 0, not a
// coinbase prevout, compressed amount 9 -> 100000000 sats, p2pkh script
// nSize 0 plus a 20-byte hash).
func buildRevPayload() []byte {
	hash := make([]byte, 20)
	for i := range hash {
		hash[i] = byte(i)
	}
	payload := []byte{0x01, 0x01, 0x00, 0x09, 0x00}
	return append(payload, hash...)
}

func TestReadBlockUndo(t *testing.T) {
	r := bytereader.New(buildRevPayload(), apierr.CodeInvalidUndo)
	transactions := []*tx.Transaction{{}, {}}

	prevouts, err := ReadBlockUndo(r, transactions)
	require.NoError(t, err)
	assert.Nil(t, prevouts[0])
	require.Len(t, prevouts[1], 1)
	assert.Equal(t, uint64(100000000), prevouts[1][0].Value)
	assert.False(t, prevouts[1][0].IsCoinbase)
}

func TestReadBlockUndo_CountMismatch(t *testing.T) {
	// num_tx_undos claims 2 groups but only one non-coinbase transaction
	// is present.
	r := bytereader.New([]byte{0x02}, apierr.CodeInvalidUndo)
	transactions := []*tx.Transaction{{}, {}}

	_, err := ReadBlockUndo(r, transactions)
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.CodeInvalidUndo, apiErr.Code)
}

func TestIterateRevRecords(t *testing.T) {
	payload := buildRevPayload()
	length := make([]byte, 4)
	binary.LittleEndian.PutUint32(length, uint32(len(payload)))

	buf := append([]byte{0xf9, 0xbe, 0xb4, 0xd9}, length...)
	buf = append(buf, payload...)
	buf = append(buf, make([]byte, 32)...) // trailing checksum hash

	var got [][]byte
	err := IterateRevRecords(buf, func(p []byte) error {
		got = append(got, p)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, payload, got[0])
}
