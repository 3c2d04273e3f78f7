// Package undo implements Bitcoin Core's undo-file record layout:
// the CompactSize-adjacent 7-bit-continuation VarInt, amount
// decompression, and script decompression (spec.md §4.5).
package undo

import (
	"github.com/btcsuite/btcd/btcec/v2"

	"chainlens/internal/apierr"
	"chainlens/internal/chainlens/bytereader"
	"chainlens/pkg/safe"
)

// Record is one decoded undo record: the prevout value and script
// consumed by a non-coinbase input (spec.md §4.5).
type Record struct {
	Value        uint64
	ScriptPubKey []byte
	Height       uint64
	IsCoinbase   bool
}

// ReadCompactVarInt reads Bitcoin Core's base-128 continuation VarInt
// (distinct from the CompactSize scheme in bytereader): each byte's high
// bit marks continuation; the low 7 bits accumulate as
// n = (n<<7)|(b&0x7F), incremented by one between all but the last byte.
func ReadCompactVarInt(r *bytereader.Reader) (uint64, error) {
	var n uint64
	for {
		b, err := r.ReadUint8()
		if err != nil {
			return 0, apierr.Wrap(apierr.CodeInvalidUndo, err)
		}
		if n > (1<<63)>>7 {
			return 0, apierr.New(apierr.CodeInvalidUndo, "compact varint overflow")
		}
		n = (n << 7) | uint64(b&0x7F)
		if b&0x80 != 0 {
			n++
		} else {
			return n, nil
		}
	}
}

// decompressAmount reverses Bitcoin Core's amount-compression scheme
// used to shrink undo-record values (spec.md §4.5).
func decompressAmount(x uint64) uint64 {
	if x == 0 {
		return 0
	}
	x--
	e := x % 10
	x /= 10
	var n uint64
	if e < 9 {
		d := (x % 9) + 1
		x /= 9
		n = x*10 + d
	} else {
		n = x + 1
	}
	for i := uint64(0); i < e; i++ {
		n *= 10
	}
	return n
}

// readCompressedAmount reads and decompresses the CompressedVarInt
// amount field of an undo record.
func readCompressedAmount(r *bytereader.Reader) (uint64, error) {
	x, err := ReadCompactVarInt(r)
	if err != nil {
		return 0, err
	}
	return decompressAmount(x), nil
}

// readCompressedScript reads and decompresses the CompressedScript
// field of an undo record, dispatching on the leading nSize (spec.md
// §4.5).
func readCompressedScript(r *bytereader.Reader) ([]byte, error) {
	nSize, err := ReadCompactVarInt(r)
	if err != nil {
		return nil, err
	}

	switch nSize {
	case 0:
		hash, err := r.ReadBytes(20)
		if err != nil {
			return nil, apierr.Wrap(apierr.CodeInvalidUndo, err)
		}
		script := make([]byte, 0, 25)
		script = append(script, 0x76, 0xa9, 0x14)
		script = append(script, hash...)
		script = append(script, 0x88, 0xac)
		return script, nil

	case 1:
		hash, err := r.ReadBytes(20)
		if err != nil {
			return nil, apierr.Wrap(apierr.CodeInvalidUndo, err)
		}
		script := make([]byte, 0, 23)
		script = append(script, 0xa9, 0x14)
		script = append(script, hash...)
		script = append(script, 0x87)
		return script, nil

	case 2, 3:
		x, err := r.ReadBytes(32)
		if err != nil {
			return nil, apierr.Wrap(apierr.CodeInvalidUndo, err)
		}
		pubkey := make([]byte, 0, 33)
		pubkey = append(pubkey, byte(nSize))
		pubkey = append(pubkey, x...)
		return p2pkScript(pubkey), nil

	case 4, 5:
		x, err := r.ReadBytes(32)
		if err != nil {
			return nil, apierr.Wrap(apierr.CodeInvalidUndo, err)
		}
		compressed := make([]byte, 0, 33)
		compressed = append(compressed, byte(nSize-2))
		compressed = append(compressed, x...)

		pubkey, err := btcec.ParsePubKey(compressed)
		if err != nil {
			return nil, apierr.Wrapf(apierr.CodeInvalidUndo, err, "decompress undo pubkey")
		}
		return p2pkScript(pubkey.SerializeUncompressed()), nil

	default:
		n, err := safe.Int(nSize - 6)
		if err != nil || n > r.Remaining() {
			return nil, apierr.New(apierr.CodeInvalidUndo, "raw script length exceeds remaining buffer")
		}
		raw, err := r.ReadBytes(n)
		if err != nil {
			return nil, apierr.Wrap(apierr.CodeInvalidUndo, err)
		}
		return raw, nil
	}
}

// p2pkScript wraps a raw public key in a bare pay-to-pubkey script:
// <push pubkey> OP_CHECKSIG.
func p2pkScript(pubkey []byte) []byte {
	script := make([]byte, 0, len(pubkey)+2)
	script = append(script, byte(len(pubkey)))
	script = append(script, pubkey...)
	script = append(script, 0xac)
	return script
}

// ReadRecord decodes one undo record: nHeightCode, the conditional
// dummy nVersion, then the compressed amount and script (spec.md §4.5).
// The dummy nVersion VarInt is read iff the decoded height is nonzero,
// matching Bitcoin Core's TxInUndo::Unserialize gate.
func ReadRecord(r *bytereader.Reader) (Record, error) {
	code, err := ReadCompactVarInt(r)
	if err != nil {
		return Record{}, err
	}
	height := code >> 1
	isCoinbase := code&1 != 0

	if height > 0 {
		if _, err := ReadCompactVarInt(r); err != nil {
			return Record{}, apierr.Wrap(apierr.CodeInvalidUndo, err)
		}
	}

	value, err := readCompressedAmount(r)
	if err != nil {
		return Record{}, err
	}
	script, err := readCompressedScript(r)
	if err != nil {
		return Record{}, err
	}

	return Record{Value: value, ScriptPubKey: script, Height: height, IsCoinbase: isCoinbase}, nil
}

// ReadTxUndo decodes the undo records for one non-coinbase transaction:
// a CompactSize count of inputs followed by that many records, returned
// in input order for positional pairing (spec.md §4.5).
func ReadTxUndo(r *bytereader.Reader) ([]Record, error) {
	rawCount, err := r.ReadVarInt()
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeInvalidUndo, err)
	}
	count, err := safe.Int(rawCount)
	if err != nil || count > r.Remaining()/3 {
		return nil, apierr.New(apierr.CodeInvalidUndo, "undo record count exceeds remaining buffer")
	}
	records := make([]Record, count)
	for i := range records {
		rec, err := ReadRecord(r)
		if err != nil {
			return nil, err
		}
		records[i] = rec
	}
	return records, nil
}
