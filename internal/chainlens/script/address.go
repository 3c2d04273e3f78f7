package script

import (
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/btcsuite/btcd/chaincfg"
)

// mainNetHRP is the Bech32/Bech32m human-readable part for mainnet
// SegWit addresses (spec.md §4.3: mainnet only).
var mainNetHRP = chaincfg.MainNetParams.Bech32HRPSegwit

// AddressFromScript derives the canonical mainnet address for a
// scriptPubKey already classified as tag, or ("", false) when tag has no
// address (op_return, unknown) or the script is malformed for its own
// tag (spec.md §4.3).
func AddressFromScript(tag OutputTag, pkScript []byte) (string, bool) {
	switch tag {
	case TagP2PKH:
		if len(pkScript) != 25 {
			return "", false
		}
		return base58.CheckEncode(pkScript[3:23], chaincfg.MainNetParams.PubKeyHashAddrID), true

	case TagP2SH:
		if len(pkScript) != 23 {
			return "", false
		}
		return base58.CheckEncode(pkScript[2:22], chaincfg.MainNetParams.ScriptHashAddrID), true

	case TagP2WPKH:
		if len(pkScript) != 22 {
			return "", false
		}
		return segwitAddress(0, pkScript[2:])

	case TagP2WSH:
		if len(pkScript) != 34 {
			return "", false
		}
		return segwitAddress(0, pkScript[2:])

	case TagP2TR:
		if len(pkScript) != 34 {
			return "", false
		}
		return segwitAddress(1, pkScript[2:])

	default:
		return "", false
	}
}

// segwitAddress implements BIP173 (witness version 0, Bech32) and BIP350
// (witness version >=1, Bech32m) address encoding.
func segwitAddress(witnessVersion byte, program []byte) (string, bool) {
	converted, err := bech32.ConvertBits(program, 8, 5, true)
	if err != nil {
		return "", false
	}
	data := make([]byte, 0, len(converted)+1)
	data = append(data, witnessVersion)
	data = append(data, converted...)

	var addr string
	if witnessVersion == 0 {
		addr, err = bech32.Encode(mainNetHRP, data)
	} else {
		addr, err = bech32.EncodeM(mainNetHRP, data)
	}
	if err != nil {
		return "", false
	}
	return addr, true
}
