// Package tx implements the transaction deserializer for legacy and
// segregated-witness formats (spec.md §4.4).
package tx

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"chainlens/internal/apierr"
	"chainlens/internal/chainlens/bytereader"
	"chainlens/pkg/safe"
)

// Outpoint identifies a previous output: the internal (unreversed)
// 32-byte txid plus vout index. The coinbase outpoint is an all-zero
// hash with vout 0xFFFFFFFF (spec.md §3).
type Outpoint struct {
	Hash chainhash.Hash
	Vout uint32
}

// IsCoinbase reports whether the outpoint is the all-zero coinbase
// marker.
func (o Outpoint) IsCoinbase() bool {
	return o.Hash == chainhash.Hash{} && o.Vout == 0xFFFFFFFF
}

// Input is one transaction input as decoded from the wire, before
// pairing with a PrevOut (spec.md §3).
type Input struct {
	PrevOut   Outpoint
	ScriptSig []byte
	Sequence  uint32
	Witness   [][]byte
}

// Output is one transaction output as decoded from the wire
// (spec.md §3).
type Output struct {
	Value        uint64
	ScriptPubKey []byte
}

// Transaction is a fully decoded transaction together with the byte
// spans needed for weight accounting (spec.md §4.4).
type Transaction struct {
	Version  int32
	Inputs   []Input
	Outputs  []Output
	Locktime uint32
	SegWit   bool

	TxID  chainhash.Hash
	WTxID chainhash.Hash

	NonWitnessBytes int
	WitnessBytes    int
	TotalBytes      int
}

// Weight implements BIP141: weight = 3*non_witness_bytes + total_bytes.
func (t *Transaction) Weight() int64 {
	return 3*int64(t.NonWitnessBytes) + int64(t.TotalBytes)
}

// VBytes is ceil(weight/4).
func (t *Transaction) VBytes() int64 {
	w := t.Weight()
	return (w + 3) / 4
}

// Decode parses one transaction from raw wire bytes (spec.md §4.4).
// raw must start with one complete transaction; trailing bytes are not
// an error (block mode relies on this to iterate a transaction vector).
// It returns the transaction and the number of bytes consumed.
func Decode(raw []byte) (*Transaction, int, error) {
	r := bytereader.New(raw, apierr.CodeInvalidTx)

	version, err := r.ReadInt32LE()
	if err != nil {
		return nil, 0, err
	}

	segwit := false
	marker, errPeek := r.Peek(2)
	if errPeek == nil && marker[0] == 0x00 && marker[1] == 0x01 {
		segwit = true
		if err := r.Skip(2); err != nil {
			return nil, 0, err
		}
	}

	witnessSpanStart := r.Pos()

	vinCount, err := r.ReadVarInt()
	if err != nil {
		return nil, 0, err
	}
	if vinCount == 0 {
		return nil, 0, apierr.New(apierr.CodeInvalidTx, "transaction has zero inputs")
	}

	inputCount, err := boundedCount(r, vinCount, 41)
	if err != nil {
		return nil, 0, err
	}
	inputs := make([]Input, inputCount)
	for i := range inputs {
		outpoint, err := decodeOutpoint(r)
		if err != nil {
			return nil, 0, err
		}
		scriptSig, err := readVarBytes(r)
		if err != nil {
			return nil, 0, err
		}
		sequence, err := r.ReadUint32LE()
		if err != nil {
			return nil, 0, err
		}
		inputs[i] = Input{PrevOut: outpoint, ScriptSig: scriptSig, Sequence: sequence}
	}

	voutCount, err := r.ReadVarInt()
	if err != nil {
		return nil, 0, err
	}
	if voutCount == 0 {
		return nil, 0, apierr.New(apierr.CodeInvalidTx, "transaction has zero outputs")
	}

	outputCount, err := boundedCount(r, voutCount, 9)
	if err != nil {
		return nil, 0, err
	}
	outputs := make([]Output, outputCount)
	for i := range outputs {
		value, err := r.ReadUint64LE()
		if err != nil {
			return nil, 0, err
		}
		pkScript, err := readVarBytes(r)
		if err != nil {
			return nil, 0, err
		}
		outputs[i] = Output{Value: value, ScriptPubKey: pkScript}
	}

	nonWitnessEnd := r.Pos()

	if segwit {
		for i := range inputs {
			itemCount, err := r.ReadVarInt()
			if err != nil {
				return nil, 0, err
			}
			witnessCount, err := boundedCount(r, itemCount, 1)
			if err != nil {
				return nil, 0, err
			}
			witness := make([][]byte, witnessCount)
			for j := range witness {
				item, err := readVarBytes(r)
				if err != nil {
					return nil, 0, err
				}
				witness[j] = item
			}
			inputs[i].Witness = witness
		}
	}

	locktime, err := r.ReadUint32LE()
	if err != nil {
		return nil, 0, err
	}

	totalEnd := r.Pos()

	nonWitness := nonWitnessSerialization(raw, version, witnessSpanStart, nonWitnessEnd, locktime)
	txid := chainhash.DoubleHashH(nonWitness)

	tx := &Transaction{
		Version:         version,
		Inputs:          inputs,
		Outputs:         outputs,
		Locktime:        locktime,
		SegWit:          segwit,
		TxID:            txid,
		NonWitnessBytes: len(nonWitness),
		TotalBytes:      totalEnd,
	}

	if segwit {
		tx.WTxID = chainhash.DoubleHashH(raw[:totalEnd])
		tx.WitnessBytes = totalEnd - len(nonWitness)
	}

	return tx, totalEnd, nil
}

// nonWitnessSerialization reconstructs the legacy-form serialization
// (version || vin || vout || locktime, no marker/flag, no witnesses)
// from the byte spans captured during the single forward parse, per
// spec.md §9 ("remember ranges" strategy).
func nonWitnessSerialization(raw []byte, version int32, vinVoutStart, vinVoutEnd int, locktime uint32) []byte {
	out := make([]byte, 0, 4+(vinVoutEnd-vinVoutStart)+4)
	out = appendUint32LE(out, uint32(version))
	out = append(out, raw[vinVoutStart:vinVoutEnd]...)
	out = appendUint32LE(out, locktime)
	return out
}

func appendUint32LE(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func decodeOutpoint(r *bytereader.Reader) (Outpoint, error) {
	hashBytes, err := r.ReadBytes(32)
	if err != nil {
		return Outpoint{}, err
	}
	vout, err := r.ReadUint32LE()
	if err != nil {
		return Outpoint{}, err
	}
	var h chainhash.Hash
	copy(h[:], hashBytes)
	return Outpoint{Hash: h, Vout: vout}, nil
}

// boundedCount converts a VarInt-decoded element count to int, rejecting
// counts that could not possibly fit in the reader's remaining bytes
// given each element's minimum wire size. This keeps a malicious count
// from driving an oversized allocation before the truncation it would
// eventually cause is detected.
func boundedCount(r *bytereader.Reader, count uint64, minElemSize int) (int, error) {
	n, err := safe.Int(count)
	if err != nil {
		return 0, apierr.Wrap(apierr.CodeInvalidTx, err)
	}
	if n > r.Remaining()/minElemSize {
		return 0, apierr.Newf(apierr.CodeInvalidTx, "element count %d exceeds remaining buffer", n)
	}
	return n, nil
}

func readVarBytes(r *bytereader.Reader) ([]byte, error) {
	n, err := r.ReadVarInt()
	if err != nil {
		return nil, err
	}
	count, err := safe.Int(n)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeInvalidTx, err)
	}
	return r.ReadBytes(count)
}
