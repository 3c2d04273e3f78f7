package script

// OutputTag is one of the closed set of output script classifications
// (spec.md §4.3).
type OutputTag string

const (
	TagP2PKH     OutputTag = "p2pkh"
	TagP2SH      OutputTag = "p2sh"
	TagP2WPKH    OutputTag = "p2wpkh"
	TagP2WSH     OutputTag = "p2wsh"
	TagP2TR      OutputTag = "p2tr"
	TagOpReturn  OutputTag = "op_return"
	TagUnknown   OutputTag = "unknown"
)

// InputTag is one of the closed set of input spend classifications
// (spec.md §4.3).
type InputTag string

const (
	InputP2PKH          InputTag = "p2pkh"
	InputP2WPKH         InputTag = "p2wpkh"
	InputP2WSH          InputTag = "p2wsh"
	InputP2TRKeypath    InputTag = "p2tr_keypath"
	InputP2TRScriptpath InputTag = "p2tr_scriptpath"
	InputP2SHP2WPKH     InputTag = "p2sh-p2wpkh"
	InputP2SHP2WSH      InputTag = "p2sh-p2wsh"
	InputUnknown        InputTag = "unknown"
)

// ClassifyOutput tags a scriptPubKey by exact byte pattern (spec.md §4.3).
func ClassifyOutput(pkScript []byte) OutputTag {
	n := len(pkScript)

	switch {
	case n == 25 && pkScript[0] == 0x76 && pkScript[1] == 0xa9 && pkScript[2] == 0x14 &&
		pkScript[23] == 0x88 && pkScript[24] == 0xac:
		return TagP2PKH

	case n == 23 && pkScript[0] == 0xa9 && pkScript[1] == 0x14 && pkScript[22] == 0x87:
		return TagP2SH

	case n == 22 && pkScript[0] == 0x00 && pkScript[1] == 0x14:
		return TagP2WPKH

	case n == 34 && pkScript[0] == 0x00 && pkScript[1] == 0x20:
		return TagP2WSH

	case n == 34 && pkScript[0] == 0x51 && pkScript[1] == 0x20:
		return TagP2TR

	case n >= 1 && pkScript[0] == 0x6a:
		return TagOpReturn

	default:
		return TagUnknown
	}
}

// ClassifyInput tags an input's spend shape using the prevout's output
// tag plus the scriptSig/witness shape (spec.md §4.3).
func ClassifyInput(scriptSig []byte, witness [][]byte, prevoutScript []byte) InputTag {
	prevoutTag := ClassifyOutput(prevoutScript)

	switch prevoutTag {
	case TagP2PKH:
		return InputP2PKH

	case TagP2WPKH:
		return InputP2WPKH

	case TagP2WSH:
		return InputP2WSH

	case TagP2TR:
		if len(witness) == 1 && (len(witness[0]) == 64 || len(witness[0]) == 65) {
			return InputP2TRKeypath
		}
		return InputP2TRScriptpath

	case TagP2SH:
		redeem, ok := extractLastPush(scriptSig)
		if !ok {
			return InputUnknown
		}
		switch {
		case len(redeem) == 22 && redeem[0] == 0x00 && redeem[1] == 0x14:
			return InputP2SHP2WPKH
		case len(redeem) == 34 && redeem[0] == 0x00 && redeem[1] == 0x20:
			return InputP2SHP2WSH
		default:
			return InputUnknown
		}

	default:
		return InputUnknown
	}
}

// WitnessScriptTag reports whether tag carries a witness_script_asm field
// (spec.md §6.3): p2wsh and p2sh-p2wsh inputs disassemble their last
// witness item as the witness script.
func WitnessScriptTag(tag InputTag) bool {
	return tag == InputP2WSH || tag == InputP2SHP2WSH
}

// extractLastPush returns the final data push in a scriptSig, which is
// the redeemScript for a P2SH input (spec.md §4.3). Reuses the
// disassembler's push-decoding rules rather than a second push scanner.
func extractLastPush(scriptSig []byte) ([]byte, bool) {
	tokens, err := tokenize(scriptSig)
	if err != nil {
		return nil, false
	}
	var last []byte
	found := false
	for _, tok := range tokens {
		if tok.Data != nil {
			last = tok.Data
			found = true
		}
	}
	return last, found
}
