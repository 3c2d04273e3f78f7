package script

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisassemble(t *testing.T) {
	cases := []struct {
		name string
		hex  string
		want string
	}{
		{"p2pkh", "76a914000000000000000000000000000000000000000088ac",
			"OP_DUP OP_HASH160 OP_PUSHBYTES_20 0000000000000000000000000000000000000000 OP_EQUALVERIFY OP_CHECKSIG"},
		{"op_return", "6a0548656c6c6f", "OP_RETURN OP_PUSHBYTES_5 48656c6c6f"},
		{"small_num", "51", "OP_1"},
		{"negate", "4f", "OP_1NEGATE"},
		{"pushdata1", "4c0200ff", "OP_PUSHDATA1 00ff"},
		{"unknown", "fe", "OP_UNKNOWN_0xfe"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Disassemble(tc.hex)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDisassemble_Truncated(t *testing.T) {
	_, err := Disassemble("05ff")
	require.Error(t, err)
}

func TestClassifyOutput(t *testing.T) {
	cases := []struct {
		name string
		hex  string
		want OutputTag
	}{
		{"p2pkh", "76a914000000000000000000000000000000000000000088ac", TagP2PKH},
		{"p2sh", "a914000000000000000000000000000000000000000087", TagP2SH},
		{"p2wpkh", "0014" + "0000000000000000000000000000000000000000", TagP2WPKH},
		{"p2wsh", "0020" + "0000000000000000000000000000000000000000000000000000000000000000", TagP2WSH},
		{"p2tr", "5120" + "0000000000000000000000000000000000000000000000000000000000000000", TagP2TR},
		{"op_return", "6a00", TagOpReturn},
		{"unknown", "51ae", TagUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := hex.DecodeString(tc.hex)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ClassifyOutput(raw))
		})
	}
}

func TestClassifyInput_P2TR(t *testing.T) {
	prevout, _ := hex.DecodeString("5120" + "0000000000000000000000000000000000000000000000000000000000000000")
	keypathWitness := [][]byte{make([]byte, 64)}
	assert.Equal(t, InputP2TRKeypath, ClassifyInput(nil, keypathWitness, prevout))

	scriptpathWitness := [][]byte{make([]byte, 10), make([]byte, 10), make([]byte, 33)}
	assert.Equal(t, InputP2TRScriptpath, ClassifyInput(nil, scriptpathWitness, prevout))
}

func TestClassifyInput_P2SHWrapped(t *testing.T) {
	prevout, _ := hex.DecodeString("a914000000000000000000000000000000000000000087")

	redeemP2WPKH, _ := hex.DecodeString("0014" + "0000000000000000000000000000000000000000")
	scriptSig := append([]byte{byte(len(redeemP2WPKH))}, redeemP2WPKH...)
	assert.Equal(t, InputP2SHP2WPKH, ClassifyInput(scriptSig, nil, prevout))

	redeemP2WSH, _ := hex.DecodeString("0020" + "0000000000000000000000000000000000000000000000000000000000000000")
	scriptSig2 := append([]byte{byte(len(redeemP2WSH))}, redeemP2WSH...)
	assert.Equal(t, InputP2SHP2WSH, ClassifyInput(scriptSig2, nil, prevout))
}

func TestAddressFromScript(t *testing.T) {
	p2wpkh, _ := hex.DecodeString("0014751e76e8199196d454941c45d1b3a323f1433bd6")
	_, ok := AddressFromScript(TagP2WPKH, p2wpkh[:21])
	assert.False(t, ok, "wrong length program rejected")

	p2wpkhOK, _ := hex.DecodeString("0014751e76e8199196d454941c45d1b3a323f1433bd6")
	addr, ok := AddressFromScript(TagP2WPKH, p2wpkhOK)
	require.True(t, ok)
	assert.Equal(t, "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4", addr)
}

func TestOpReturnPayload(t *testing.T) {
	raw, _ := hex.DecodeString("6a0548656c6c6f")
	payload := OpReturnPayload(raw)
	assert.Equal(t, "Hello", string(payload))

	str, ok := OpReturnUTF8(payload)
	require.True(t, ok)
	assert.Equal(t, "Hello", str)

	assert.Equal(t, "unknown", OpReturnProtocol(payload))
}

func TestOpReturnProtocol_Omni(t *testing.T) {
	payload, _ := hex.DecodeString("6f6d6e6900000000")
	assert.Equal(t, "omni", OpReturnProtocol(payload))
}
