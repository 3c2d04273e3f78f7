// Package report defines the JSON response shapes for transaction and
// block analysis (spec.md §6.3-6.4) plus small formatting helpers. The
// reports are assembled by the analyzer package.
package report

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"chainlens/internal/chainlens/script"
)

// Warning is the wire shape of one non-fatal policy flag (spec.md §6.3).
type Warning struct {
	Code string `json:"code"`
}

// PrevOutSummary is the prevout echoed back on each input (spec.md §6.3).
type PrevOutSummary struct {
	ValueSats       uint64 `json:"value_sats"`
	ScriptPubKeyHex string `json:"script_pubkey_hex"`
}

// RelativeTimelock is the wire shape of one input's BIP68 classification.
type RelativeTimelock struct {
	Enabled bool    `json:"enabled"`
	IsTime  *bool   `json:"is_time,omitempty"`
	Value   *uint32 `json:"value,omitempty"`
}

// Input is one vin[] entry of the transaction report schema (spec.md §6.3).
type Input struct {
	TxID             string           `json:"txid"`
	Vout             uint32           `json:"vout"`
	Sequence         uint32           `json:"sequence"`
	ScriptSigHex     string           `json:"script_sig_hex"`
	ScriptAsm        string           `json:"script_asm"`
	Witness          []string         `json:"witness"`
	ScriptType       string           `json:"script_type"`
	Address          *string          `json:"address"`
	PrevOut          PrevOutSummary   `json:"prevout"`
	RelativeTimelock RelativeTimelock `json:"relative_timelock"`
	WitnessScriptAsm *string          `json:"witness_script_asm,omitempty"`
}

// Output is one vout[] entry of the transaction report schema (spec.md §6.3).
type Output struct {
	N                uint32  `json:"n"`
	ValueSats        uint64  `json:"value_sats"`
	ScriptPubKeyHex  string  `json:"script_pubkey_hex"`
	ScriptAsm        string  `json:"script_asm"`
	ScriptType       string  `json:"script_type"`
	Address          *string `json:"address"`
	OpReturnDataHex  *string `json:"op_return_data_hex,omitempty"`
	OpReturnDataUTF8 *string `json:"op_return_data_utf8,omitempty"`
	OpReturnProtocol *string `json:"op_return_protocol,omitempty"`
}

// SegWitSavings mirrors accounting.SegWitSavings for JSON (spec.md §6.3).
type SegWitSavings struct {
	WitnessBytes    int     `json:"witness_bytes"`
	NonWitnessBytes int     `json:"non_witness_bytes"`
	TotalBytes      int     `json:"total_bytes"`
	WeightActual    int64   `json:"weight_actual"`
	WeightIfLegacy  int64   `json:"weight_if_legacy"`
	SavingsPct      float64 `json:"savings_pct"`
}

// Transaction is the top-level transaction report schema (spec.md §6.3).
type Transaction struct {
	OK              bool           `json:"ok"`
	Network         string         `json:"network"`
	SegWit          bool           `json:"segwit"`
	TxID            string         `json:"txid"`
	WTxID           *string        `json:"wtxid"`
	Version         int32          `json:"version"`
	Locktime        uint32         `json:"locktime"`
	SizeBytes       int            `json:"size_bytes"`
	Weight          int64          `json:"weight"`
	VBytes          int64          `json:"vbytes"`
	TotalInputSats  uint64         `json:"total_input_sats"`
	TotalOutputSats uint64         `json:"total_output_sats"`
	FeeSats         *int64         `json:"fee_sats"`
	FeeRateSatVB    *float64       `json:"fee_rate_sat_vb"`
	RBFSignaling    bool           `json:"rbf_signaling"`
	LocktimeType    string         `json:"locktime_type"`
	LocktimeValue   uint32         `json:"locktime_value"`
	SegwitSavings   *SegWitSavings `json:"segwit_savings"`
	Vin             []Input        `json:"vin"`
	Vout            []Output       `json:"vout"`
	Warnings        []Warning      `json:"warnings"`
}

// Coinbase is the coinbase summary of a block report (spec.md §6.4).
type Coinbase struct {
	BIP34Height       int64  `json:"bip34_height"`
	CoinbaseScriptHex string `json:"coinbase_script_hex"`
	TotalOutputSats   uint64 `json:"total_output_sats"`
}

// BlockStats are the aggregated per-block totals (spec.md §6.4).
type BlockStats struct {
	TotalFeesSats     int64          `json:"total_fees_sats"`
	TotalWeight       int64          `json:"total_weight"`
	AvgFeeRateSatVB   float64        `json:"avg_fee_rate_sat_vb"`
	ScriptTypeSummary map[string]int `json:"script_type_summary"`
}

// BlockHeader is the wire shape of a block header (spec.md §6.4). All
// hashes are rendered reverse-hex (display order).
type BlockHeader struct {
	Version         int32  `json:"version"`
	PrevBlockHash   string `json:"prev_block_hash"`
	MerkleRoot      string `json:"merkle_root"`
	MerkleRootValid bool   `json:"merkle_root_valid"`
	Timestamp       uint32 `json:"timestamp"`
	Bits            string `json:"bits"`
	Nonce           uint32 `json:"nonce"`
	BlockHash       string `json:"block_hash"`
}

// Block is one block report entry (spec.md §6.4).
type Block struct {
	OK           bool          `json:"ok"`
	Mode         string        `json:"mode"`
	BlockHeader  BlockHeader   `json:"block_header"`
	TxCount      int           `json:"tx_count"`
	Coinbase     Coinbase      `json:"coinbase"`
	Transactions []Transaction `json:"transactions"`
	BlockStats   BlockStats    `json:"block_stats"`
}

// BlockResponse wraps multiple block reports for a single blk/rev/xor
// submission (spec.md §6.2).
type BlockResponse struct {
	OK     bool    `json:"ok"`
	Mode   string  `json:"mode"`
	Blocks []Block `json:"blocks"`
}

// DisplayHash renders a chainhash.Hash in reverse-byte (display) order,
// the convention used for every hash in the report schema (spec.md §3,
// §9).
func DisplayHash(h chainhash.Hash) string {
	return h.String()
}

// BitsHex renders the 4-byte bits field as 8 hex characters in the
// standard big-endian display order (the wire bytes reversed), per
// spec.md §6.4.
func BitsHex(bits uint32) string {
	b := []byte{byte(bits >> 24), byte(bits >> 16), byte(bits >> 8), byte(bits)}
	return hex.EncodeToString(b)
}

// AddressField converts a derived address into the schema's nullable
// pointer form.
func AddressField(addr string, ok bool) *string {
	if !ok {
		return nil
	}
	return &addr
}

// ScriptTypeCounts tallies output tags across a set of outputs, the
// basis of block_stats.script_type_summary (spec.md §4.7).
func ScriptTypeCounts(tags []script.OutputTag) map[string]int {
	counts := make(map[string]int)
	for _, tag := range tags {
		counts[string(tag)]++
	}
	return counts
}
