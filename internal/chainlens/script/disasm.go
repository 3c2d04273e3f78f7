// Package script implements the disassembler, the output/input script
// classifier, and mainnet address derivation (spec.md §4.2-§4.3).
package script

import (
	"encoding/hex"
	"fmt"
	"strings"

	"chainlens/internal/apierr"
)

// Token is one decoded element of a script. Opcode is always set; Data
// holds the pushed bytes for push opcodes (nil otherwise).
type Token struct {
	Opcode string
	Data   []byte
}

// Disassemble renders scriptHex as a space-joined token stream
// (spec.md §4.2). An empty script renders as the empty string.
func Disassemble(scriptHex string) (string, error) {
	raw, err := hex.DecodeString(scriptHex)
	if err != nil {
		return "", apierr.Wrapf(apierr.CodeInvalidTx, err, "decode script hex")
	}
	asm, _, err := DisassembleBytes(raw)
	return asm, err
}

// DisassembleBytes is the byte-oriented form of Disassemble; it also
// returns the structured token stream the classifier and OP_RETURN
// payload extraction consume.
func DisassembleBytes(raw []byte) (string, []Token, error) {
	tokens, err := tokenize(raw)
	if err != nil {
		return "", nil, err
	}
	parts := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if tok.Data != nil {
			parts = append(parts, fmt.Sprintf("%s %s", tok.Opcode, hex.EncodeToString(tok.Data)))
		} else {
			parts = append(parts, tok.Opcode)
		}
	}
	return strings.Join(parts, " "), tokens, nil
}

// tokenize walks raw script bytes emitting one Token per opcode. It fails
// only when a push's declared length overruns the remaining script bytes
// (spec.md §4.2): the disassembler never enforces script semantics.
func tokenize(raw []byte) ([]Token, error) {
	tokens := make([]Token, 0, len(raw))
	i := 0
	for i < len(raw) {
		op := raw[i]
		i++

		switch {
		case op == 0x00:
			tokens = append(tokens, Token{Opcode: "OP_0"})

		case op >= 0x01 && op <= 0x4b:
			n := int(op)
			if i+n > len(raw) {
				return nil, apierr.Newf(apierr.CodeInvalidTx, "truncated push: need %d bytes at offset %d, have %d", n, i, len(raw)-i)
			}
			tokens = append(tokens, Token{Opcode: fmt.Sprintf("OP_PUSHBYTES_%d", n), Data: raw[i : i+n]})
			i += n

		case op == 0x4c || op == 0x4d || op == 0x4e:
			lenBytes := 1
			if op == 0x4d {
				lenBytes = 2
			} else if op == 0x4e {
				lenBytes = 4
			}
			if i+lenBytes > len(raw) {
				return nil, apierr.Newf(apierr.CodeInvalidTx, "truncated pushdata length at offset %d", i)
			}
			n := 0
			for b := 0; b < lenBytes; b++ {
				n |= int(raw[i+b]) << (8 * b)
			}
			i += lenBytes
			if i+n > len(raw) {
				return nil, apierr.Newf(apierr.CodeInvalidTx, "truncated pushdata body: need %d bytes at offset %d, have %d", n, i, len(raw)-i)
			}
			name := map[byte]string{0x4c: "OP_PUSHDATA1", 0x4d: "OP_PUSHDATA2", 0x4e: "OP_PUSHDATA4"}[op]
			tokens = append(tokens, Token{Opcode: name, Data: raw[i : i+n]})
			i += n

		case op == 0x4f:
			tokens = append(tokens, Token{Opcode: "OP_1NEGATE"})

		case op >= 0x51 && op <= 0x60:
			tokens = append(tokens, Token{Opcode: fmt.Sprintf("OP_%d", op-0x50)})

		default:
			if name, ok := namedOpcodes[op]; ok {
				tokens = append(tokens, Token{Opcode: name})
			} else {
				tokens = append(tokens, Token{Opcode: fmt.Sprintf("OP_UNKNOWN_0x%02x", op)})
			}
		}
	}
	return tokens, nil
}
