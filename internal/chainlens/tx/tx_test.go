package tx

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// a minimal legacy 1-in-1-out P2PKH-style transaction, version 1,
// locktime 800000 (0x000C3500 LE = 00 35 0c 00).
const legacyTxHex = "01000000" + // version
	"01" + // vin count
	"0000000000000000000000000000000000000000000000000000000000000000" + // outpoint hash
	"ffffffff" + // vout index (coinbase-shaped for simplicity)
	"00" + // scriptSig len 0
	"ffffffff" + // sequence
	"01" + // vout count
	"e803000000000000" + // value 1000
	"00" + // scriptPubKey len 0
	"00350c00" // locktime 800000

func TestDecode_Legacy(t *testing.T) {
	raw, err := hex.DecodeString(legacyTxHex)
	require.NoError(t, err)

	transaction, n, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, len(raw), n)
	assert.False(t, transaction.SegWit)
	assert.Equal(t, int32(1), transaction.Version)
	assert.Equal(t, uint32(800000), transaction.Locktime)
	assert.Len(t, transaction.Inputs, 1)
	assert.Len(t, transaction.Outputs, 1)
	assert.Equal(t, uint64(1000), transaction.Outputs[0].Value)
	assert.Equal(t, transaction.TotalBytes, transaction.NonWitnessBytes)
	assert.Equal(t, 0, transaction.WitnessBytes)
	assert.Equal(t, 3*int64(transaction.NonWitnessBytes)+int64(transaction.TotalBytes), transaction.Weight())
}

func TestDecode_ZeroInputsRejected(t *testing.T) {
	// version, SegWit marker/flag, vin_count 0, one output, locktime. The
	// marker/flag is explicit because a bare 00 01 after the version is
	// always read as SegWit, never as vin_count 0 followed by vout_count 1.
	raw, _ := hex.DecodeString("01000000" + "0001" + "00" + "01" + "e803000000000000" + "00" + "00350c00")
	_, _, err := Decode(raw)
	require.Error(t, err)
}

func TestDecode_SegWit(t *testing.T) {
	// version(4) marker(1)=00 flag(1)=01 vin_count(1)=01 outpoint(36) scriptsig_len(1)=00
	// sequence(4) vout_count(1)=01 value(8) scriptpubkey_len(1)=00 witness(1 item count=1, 1 item len=1 byte 0xAB) locktime(4)
	raw, err := hex.DecodeString(
		"01000000" +
			"0001" +
			"01" +
			"0000000000000000000000000000000000000000000000000000000000000000" +
			"ffffffff" +
			"00" +
			"ffffffff" +
			"01" +
			"e803000000000000" +
			"00" +
			"01" + "01" + "ab" +
			"00000000",
	)
	require.NoError(t, err)

	transaction, n, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, len(raw), n)
	assert.True(t, transaction.SegWit)
	assert.NotEqual(t, transaction.TxID, transaction.WTxID)
	assert.Greater(t, transaction.WitnessBytes, 0)
	assert.Equal(t, transaction.TotalBytes, transaction.NonWitnessBytes+transaction.WitnessBytes)
}
