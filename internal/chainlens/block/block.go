// Package block implements the blk/rev-file parsers, XOR de-obfuscation,
// merkle-root verification, and BIP34 coinbase height decoding
// (spec.md §4.7).
package block

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"chainlens/internal/apierr"
	"chainlens/internal/chainlens/bytereader"
	"chainlens/internal/chainlens/tx"
	"chainlens/internal/chainlens/undo"
	"chainlens/pkg/safe"
)

// Header is the 80-byte block header (spec.md §3).
type Header struct {
	Version       int32
	PrevBlockHash chainhash.Hash
	MerkleRoot    chainhash.Hash
	Timestamp     uint32
	Bits          uint32
	Nonce         uint32

	Hash            chainhash.Hash
	MerkleRootValid bool
}

// Block is one parsed block: its header and ordered transactions (the
// first is the coinbase) (spec.md §3).
type Block struct {
	Header       Header
	Transactions []*tx.Transaction

	// Prevouts is left nil by ParseBlock; the undo records for a block
	// are returned separately by ReadBlockUndo.
	Prevouts [][]undo.Record
}

// Deobfuscate XORs buf in place against a cyclic key, a no-op when key
// is all-zero (spec.md §4.7).
func Deobfuscate(buf, key []byte) {
	if len(key) == 0 || allZero(key) {
		return
	}
	for i := range buf {
		buf[i] ^= key[i%len(key)]
	}
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// DecodeHeader parses the fixed 80-byte block header.
func DecodeHeader(r *bytereader.Reader) (Header, error) {
	raw, err := r.Peek(80)
	if err != nil {
		return Header{}, err
	}

	version, err := r.ReadInt32LE()
	if err != nil {
		return Header{}, err
	}
	prevHashBytes, err := r.ReadBytes(32)
	if err != nil {
		return Header{}, err
	}
	merkleBytes, err := r.ReadBytes(32)
	if err != nil {
		return Header{}, err
	}
	timestamp, err := r.ReadUint32LE()
	if err != nil {
		return Header{}, err
	}
	bits, err := r.ReadUint32LE()
	if err != nil {
		return Header{}, err
	}
	nonce, err := r.ReadUint32LE()
	if err != nil {
		return Header{}, err
	}

	var prevHash, merkleRoot chainhash.Hash
	copy(prevHash[:], prevHashBytes)
	copy(merkleRoot[:], merkleBytes)

	return Header{
		Version:       version,
		PrevBlockHash: prevHash,
		MerkleRoot:    merkleRoot,
		Timestamp:     timestamp,
		Bits:          bits,
		Nonce:         nonce,
		Hash:          chainhash.DoubleHashH(raw),
	}, nil
}

// ComputeMerkleRoot reduces a list of txids (internal byte order) to a
// single root by pairwise double-SHA256, duplicating the last element of
// any odd-length layer (spec.md §4.7).
func ComputeMerkleRoot(txids []chainhash.Hash) chainhash.Hash {
	if len(txids) == 0 {
		return chainhash.Hash{}
	}
	layer := make([]chainhash.Hash, len(txids))
	copy(layer, txids)

	for len(layer) > 1 {
		if len(layer)%2 == 1 {
			layer = append(layer, layer[len(layer)-1])
		}
		next := make([]chainhash.Hash, len(layer)/2)
		for i := 0; i < len(next); i++ {
			var concat [64]byte
			copy(concat[:32], layer[2*i][:])
			copy(concat[32:], layer[2*i+1][:])
			next[i] = chainhash.DoubleHashH(concat[:])
		}
		layer = next
	}
	return layer[0]
}

// ParseBlock decodes one block payload (header + transaction vector)
// from raw bytes already stripped of the outer magic/length frame
// (spec.md §4.7).
func ParseBlock(raw []byte) (*Block, error) {
	r := bytereader.New(raw, apierr.CodeInvalidBlock)

	header, err := DecodeHeader(r)
	if err != nil {
		return nil, err
	}

	txCount, err := r.ReadVarInt()
	if err != nil {
		return nil, err
	}
	if txCount == 0 {
		return nil, apierr.New(apierr.CodeInvalidBlock, "block has zero transactions")
	}
	count, err := safe.Int(txCount)
	if err != nil || count > r.Remaining()/10 {
		return nil, apierr.New(apierr.CodeInvalidBlock, "transaction count exceeds remaining buffer")
	}

	txs := make([]*tx.Transaction, count)
	txids := make([]chainhash.Hash, count)
	for i := range txs {
		remaining := r.Buf()[r.Pos():]
		decoded, n, err := tx.Decode(remaining)
		if err != nil {
			return nil, apierr.Wrapf(apierr.CodeInvalidBlock, err, "decode transaction %d", i)
		}
		if err := r.Skip(n); err != nil {
			return nil, err
		}
		txs[i] = decoded
		txids[i] = decoded.TxID
	}

	computedRoot := ComputeMerkleRoot(txids)
	header.MerkleRootValid = computedRoot == header.MerkleRoot

	return &Block{Header: header, Transactions: txs}, nil
}

// iterateFramedRecords walks the magic(4)||length(u32 LE)||payload framing
// shared by blk- and rev-files, calling fn with each record's payload
// (trailerLen trailing bytes, if any, stripped) in file order. Iteration
// stops cleanly when fewer than 8 bytes remain or the magic field is
// all-zero; unknown magic values are accepted without validation
// (spec.md §4.7).
func iterateFramedRecords(buf []byte, trailerLen int, code apierr.Code, fn func([]byte) error) error {
	pos := 0
	for len(buf)-pos >= 8 {
		magic := buf[pos : pos+4]
		if allZero(magic) {
			break
		}
		length := uint32(buf[pos+4]) | uint32(buf[pos+5])<<8 | uint32(buf[pos+6])<<16 | uint32(buf[pos+7])<<24
		payloadStart := pos + 8
		payloadEnd := payloadStart + int(length)
		recordEnd := payloadEnd + trailerLen
		if recordEnd > len(buf) {
			return apierr.Newf(code, "record payload at offset %d overruns buffer", pos)
		}

		if err := fn(buf[payloadStart:payloadEnd]); err != nil {
			return err
		}
		pos = recordEnd
	}
	return nil
}

// IterateBlocks walks the magic(4)||length(u32 LE)||payload framing of a
// blk-file buffer, calling fn for each parsed block in file order
// (spec.md §4.7).
func IterateBlocks(buf []byte, fn func(*Block) error) error {
	return iterateFramedRecords(buf, 0, apierr.CodeInvalidBlock, func(payload []byte) error {
		blk, err := ParseBlock(payload)
		if err != nil {
			return err
		}
		return fn(blk)
	})
}

// IterateRevRecords walks a rev-file buffer's magic(4)||length(u32
// LE)||payload||hash(32) framing, calling fn with each record's payload
// (the trailing 32-byte checksum stripped) in file order. Each record
// holds one block's worth of undo data, read in lockstep with
// IterateBlocks (spec.md §4.7).
func IterateRevRecords(buf []byte, fn func([]byte) error) error {
	return iterateFramedRecords(buf, 32, apierr.CodeInvalidUndo, fn)
}

// ReadBlockUndo reads one block's worth of undo records from a
// de-obfuscated, already-framed rev-record payload, in lockstep with the
// corresponding block's transactions (spec.md §4.7). transactions is the
// same-indexed transaction list (coinbase first). The payload leads with
// a CompactSize num_tx_undos count (CBlockUndo.vtxundo's length) that
// must equal len(transactions)-1, followed by that many per-transaction
// undo groups.
func ReadBlockUndo(r *bytereader.Reader, transactions []*tx.Transaction) ([][]undo.Record, error) {
	numTxUndos, err := r.ReadVarInt()
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeInvalidUndo, err)
	}
	want := uint64(len(transactions) - 1)
	if numTxUndos != want {
		return nil, apierr.Newf(apierr.CodeInvalidUndo, "rev record has %d tx undo groups, want %d", numTxUndos, want)
	}

	prevouts := make([][]undo.Record, len(transactions))
	for i := 1; i < len(transactions); i++ {
		records, err := undo.ReadTxUndo(r)
		if err != nil {
			return nil, err
		}
		prevouts[i] = records
	}
	return prevouts, nil
}

// DecodeBIP34Height reads the coinbase height from the first push of a
// coinbase script_sig. Accepts either a single OP_0 (0x00) or
// OP_1..OP_16 (0x51-0x60) opcode for heights 0-16, or a push of up to 8
// bytes interpreted as a signed little-endian integer (spec.md §4.7).
func DecodeBIP34Height(scriptSig []byte) (int64, error) {
	if len(scriptSig) == 0 {
		return 0, apierr.New(apierr.CodeInvalidCoinbase, "empty coinbase script_sig")
	}

	first := scriptSig[0]
	switch {
	case first == 0x00:
		return 0, nil
	case first >= 0x51 && first <= 0x60:
		return int64(first - 0x50), nil
	case first >= 0x01 && first <= 0x4b:
		n := int(first)
		if len(scriptSig) < 1+n {
			return 0, apierr.New(apierr.CodeInvalidCoinbase, "truncated BIP34 height push")
		}
		if n > 8 {
			return 0, apierr.New(apierr.CodeInvalidCoinbase, "BIP34 height push too long")
		}
		return decodeScriptNum(scriptSig[1 : 1+n]), nil
	default:
		return 0, apierr.New(apierr.CodeInvalidCoinbase, "coinbase script_sig missing BIP34 height push")
	}
}

// decodeScriptNum interprets b as Bitcoin Script's signed little-endian
// minimal-encoding integer: the high bit of the last byte is the sign.
func decodeScriptNum(b []byte) int64 {
	if len(b) == 0 {
		return 0
	}
	var result int64
	for i, v := range b {
		result |= int64(v) << (8 * i)
	}
	if b[len(b)-1]&0x80 != 0 {
		result &^= int64(0x80) << (8 * (len(b) - 1))
		result = -result
	}
	return result
}
