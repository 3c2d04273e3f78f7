// Package analyzer orchestrates the core decoders into the two public
// operations of the engine: single-transaction analysis and block-file
// analysis (spec.md §6.1-6.4).
package analyzer

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"chainlens/internal/apierr"
	"chainlens/internal/chainlens/accounting"
	"chainlens/internal/chainlens/block"
	"chainlens/internal/chainlens/bytereader"
	"chainlens/internal/chainlens/report"
	"chainlens/internal/chainlens/script"
	"chainlens/internal/chainlens/tx"
	"chainlens/internal/chainlens/undo"
)

// PrevOutInput is one caller-supplied prevout record keyed by outpoint
// (spec.md §6.1).
type PrevOutInput struct {
	TxID           string
	Vout           uint32
	ValueSats      uint64
	ScriptPubKeyHex string
}

// TransactionRequest is the single-transaction analysis request body
// (spec.md §6.1).
type TransactionRequest struct {
	Network  string
	RawTxHex string
	Prevouts []PrevOutInput
}

// AnalyzeTransaction decodes a single transaction and pairs it with the
// caller-supplied prevouts, producing the §6.3 report (spec.md §6.1).
func AnalyzeTransaction(req TransactionRequest) (*report.Transaction, error) {
	raw, err := hex.DecodeString(req.RawTxHex)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeInvalidFixture, err)
	}

	decoded, n, err := tx.Decode(raw)
	if err != nil {
		return nil, err
	}
	if n != len(raw) {
		return nil, apierr.New(apierr.CodeInvalidTx, "trailing bytes after transaction")
	}

	prevouts, err := matchPrevouts(decoded, req.Prevouts)
	if err != nil {
		return nil, err
	}

	return assembleTransactionReport(req.Network, decoded, prevouts)
}

// matchPrevouts pairs the caller-supplied prevout list to the
// transaction's inputs by (txid, vout), rejecting missing, duplicated,
// or extraneous prevouts (spec.md §6.1).
func matchPrevouts(t *tx.Transaction, supplied []PrevOutInput) ([]*tx.Output, error) {
	type key struct {
		hash chainhash.Hash
		vout uint32
	}

	byKey := make(map[key]*tx.Output, len(supplied))
	for _, p := range supplied {
		hashBytes, err := hex.DecodeString(p.TxID)
		if err != nil || len(hashBytes) != 32 {
			return nil, apierr.New(apierr.CodeInvalidFixture, "malformed prevout txid")
		}
		var h chainhash.Hash
		// display-order hex is reversed relative to the internal form.
		for i := 0; i < 32; i++ {
			h[i] = hashBytes[31-i]
		}
		scriptBytes, err := hex.DecodeString(p.ScriptPubKeyHex)
		if err != nil {
			return nil, apierr.New(apierr.CodeInvalidFixture, "malformed prevout script_pubkey_hex")
		}
		k := key{hash: h, vout: p.Vout}
		if _, exists := byKey[k]; exists {
			return nil, apierr.New(apierr.CodeInconsistentPrevouts, "duplicate prevout supplied")
		}
		byKey[k] = &tx.Output{Value: p.ValueSats, ScriptPubKey: scriptBytes}
	}

	matched := make([]*tx.Output, len(t.Inputs))
	used := make(map[key]bool, len(supplied))
	for i, in := range t.Inputs {
		if in.PrevOut.IsCoinbase() {
			continue
		}
		k := key{hash: in.PrevOut.Hash, vout: in.PrevOut.Vout}
		out, ok := byKey[k]
		if !ok {
			return nil, apierr.New(apierr.CodeInconsistentPrevouts, "missing prevout for an input")
		}
		matched[i] = out
		used[k] = true
	}
	if len(used) != len(byKey) {
		return nil, apierr.New(apierr.CodeInconsistentPrevouts, "extraneous prevout not matching any input")
	}

	return matched, nil
}

// assembleTransactionReport builds the §6.3 report from a decoded
// transaction and its positionally paired prevouts (nil for coinbase
// inputs).
func assembleTransactionReport(network string, t *tx.Transaction, prevouts []*tx.Output) (*report.Transaction, error) {
	isCoinbase := len(t.Inputs) == 1 && t.Inputs[0].PrevOut.IsCoinbase()

	vin := make([]report.Input, len(t.Inputs))
	var totalInput uint64
	for i, in := range t.Inputs {
		witnessHex := make([]string, len(in.Witness))
		for j, w := range in.Witness {
			witnessHex[j] = hex.EncodeToString(w)
		}
		asm, _, err := script.DisassembleBytes(in.ScriptSig)
		if err != nil {
			return nil, err
		}

		entry := report.Input{
			TxID:         reverseHex(in.PrevOut.Hash),
			Vout:         in.PrevOut.Vout,
			Sequence:     in.Sequence,
			ScriptSigHex: hex.EncodeToString(in.ScriptSig),
			ScriptAsm:    asm,
			Witness:      witnessHex,
		}

		rel := accounting.ClassifyRelativeTimelock(in.Sequence)
		entry.RelativeTimelock = relativeTimelockField(rel)

		if prevouts[i] != nil {
			totalInput += prevouts[i].Value
			entry.PrevOut = report.PrevOutSummary{
				ValueSats:       prevouts[i].Value,
				ScriptPubKeyHex: hex.EncodeToString(prevouts[i].ScriptPubKey),
			}
			tag := script.ClassifyInput(in.ScriptSig, in.Witness, prevouts[i].ScriptPubKey)
			entry.ScriptType = string(tag)
			prevoutTag := script.ClassifyOutput(prevouts[i].ScriptPubKey)
			addr, ok := script.AddressFromScript(prevoutTag, prevouts[i].ScriptPubKey)
			entry.Address = report.AddressField(addr, ok)

			if script.WitnessScriptTag(tag) && len(in.Witness) > 0 {
				witnessAsm, _, err := script.DisassembleBytes(in.Witness[len(in.Witness)-1])
				if err != nil {
					return nil, err
				}
				entry.WitnessScriptAsm = &witnessAsm
			}
		} else {
			entry.ScriptType = string(script.InputUnknown)
		}

		vin[i] = entry
	}

	vout := make([]report.Output, len(t.Outputs))
	var totalOutput uint64
	var hasDust, hasUnknown bool
	for i, out := range t.Outputs {
		totalOutput += out.Value
		tag := script.ClassifyOutput(out.ScriptPubKey)
		asm, _, err := script.DisassembleBytes(out.ScriptPubKey)
		if err != nil {
			return nil, err
		}
		addr, ok := script.AddressFromScript(tag, out.ScriptPubKey)

		entry := report.Output{
			N:               uint32(i),
			ValueSats:       out.Value,
			ScriptPubKeyHex: hex.EncodeToString(out.ScriptPubKey),
			ScriptAsm:       asm,
			ScriptType:      string(tag),
			Address:         report.AddressField(addr, ok),
		}

		if tag == script.TagOpReturn {
			payload := script.OpReturnPayload(out.ScriptPubKey)
			dataHex := hex.EncodeToString(payload)
			entry.OpReturnDataHex = &dataHex
			if utf8Str, ok := script.OpReturnUTF8(payload); ok {
				entry.OpReturnDataUTF8 = &utf8Str
			}
			protocol := script.OpReturnProtocol(payload)
			entry.OpReturnProtocol = &protocol
		} else if accounting.IsDust(out.Value, false) {
			hasDust = true
		}
		if tag == script.TagUnknown {
			hasUnknown = true
		}

		vout[i] = entry
	}

	rbf := accounting.RBFSignaling(t.Inputs)

	var feeSats *int64
	var feeRate *float64
	hasFee := false
	if !isCoinbase {
		fee := int64(totalInput) - int64(totalOutput)
		feeSats = &fee
		rate := accounting.FeeRateSatVB(fee, t.VBytes())
		feeRate = &rate
		hasFee = true
	}

	segwitSavings := accounting.ComputeSegWitSavings(t)
	var reportSavings *report.SegWitSavings
	if segwitSavings != nil {
		reportSavings = &report.SegWitSavings{
			WitnessBytes:    segwitSavings.WitnessBytes,
			NonWitnessBytes: segwitSavings.NonWitnessBytes,
			TotalBytes:      segwitSavings.TotalBytes,
			WeightActual:    segwitSavings.WeightActual,
			WeightIfLegacy:  segwitSavings.WeightIfLegacy,
			SavingsPct:      segwitSavings.SavingsPct,
		}
	}

	conditions := accounting.Conditions{HasFee: hasFee, RBFSignaling: rbf, DustOutputs: hasDust, UnknownOutput: hasUnknown}
	if hasFee {
		conditions.FeeSats = *feeSats
		conditions.FeeRateSatVB = *feeRate
	}
	warnings := toReportWarnings(accounting.EvaluateWarnings(conditions))

	var wtxid *string
	if t.SegWit {
		s := reverseHex(t.WTxID)
		wtxid = &s
	}

	return &report.Transaction{
		OK:              true,
		Network:         network,
		SegWit:          t.SegWit,
		TxID:            reverseHex(t.TxID),
		WTxID:           wtxid,
		Version:         t.Version,
		Locktime:        t.Locktime,
		SizeBytes:       t.TotalBytes,
		Weight:          t.Weight(),
		VBytes:          t.VBytes(),
		TotalInputSats:  totalInput,
		TotalOutputSats: totalOutput,
		FeeSats:         feeSats,
		FeeRateSatVB:    feeRate,
		RBFSignaling:    rbf,
		LocktimeType:    string(accounting.ClassifyLocktime(t.Locktime)),
		LocktimeValue:   t.Locktime,
		SegwitSavings:   reportSavings,
		Vin:             vin,
		Vout:            vout,
		Warnings:        warnings,
	}, nil
}

func relativeTimelockField(rel accounting.RelativeTimelock) report.RelativeTimelock {
	field := report.RelativeTimelock{Enabled: rel.Enabled}
	if rel.Enabled {
		isTime := rel.IsTime
		value := rel.Value
		field.IsTime = &isTime
		field.Value = &value
	}
	return field
}

func toReportWarnings(warnings []accounting.Warning) []report.Warning {
	out := make([]report.Warning, len(warnings))
	for i, w := range warnings {
		out[i] = report.Warning{Code: string(w)}
	}
	return out
}

func reverseHex(h chainhash.Hash) string {
	return h.String()
}

// AnalyzeBlockFile decodes a blk-file buffer alongside its matching
// rev-file buffer, de-obfuscating both with xorKey, and assembles one
// block report per block in file order (spec.md §6.2, §4.7). strict
// controls whether a merkle mismatch aborts the whole call (used by the
// CLI) or is recorded per-block via merkle_root_valid (used by the HTTP
// transport).
func AnalyzeBlockFile(blkBuf, revBuf, xorKey []byte, strict bool) (*report.BlockResponse, error) {
	blkCopy := append([]byte(nil), blkBuf...)
	revCopy := append([]byte(nil), revBuf...)
	block.Deobfuscate(blkCopy, xorKey)
	block.Deobfuscate(revCopy, xorKey)

	var revPayloads [][]byte
	if err := block.IterateRevRecords(revCopy, func(payload []byte) error {
		revPayloads = append(revPayloads, payload)
		return nil
	}); err != nil {
		return nil, err
	}

	var blocks []report.Block
	blockIdx := 0
	err := block.IterateBlocks(blkCopy, func(b *block.Block) error {
		if strict && !b.Header.MerkleRootValid {
			return apierr.New(apierr.CodeMerkleMismatch, "computed merkle root does not match header")
		}
		if blockIdx >= len(revPayloads) {
			return apierr.New(apierr.CodeInvalidUndo, "rev file has fewer records than blk file has blocks")
		}

		revReader := bytereader.New(revPayloads[blockIdx], apierr.CodeInvalidUndo)
		blockIdx++

		prevouts, err := block.ReadBlockUndo(revReader, b.Transactions)
		if err != nil {
			return err
		}

		blockReport, err := assembleBlockReport(b, prevouts)
		if err != nil {
			return err
		}
		blocks = append(blocks, *blockReport)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &report.BlockResponse{OK: true, Mode: "block", Blocks: blocks}, nil
}

// assembleBlockReport builds the §6.4 report for one parsed block,
// reusing the single-transaction assembler for each embedded
// transaction report.
func assembleBlockReport(b *block.Block, prevouts [][]undo.Record) (*report.Block, error) {
	if len(b.Transactions) == 0 {
		return nil, apierr.New(apierr.CodeInvalidBlock, "block has no transactions")
	}

	coinbaseTx := b.Transactions[0]
	if len(coinbaseTx.Inputs) != 1 || !coinbaseTx.Inputs[0].PrevOut.IsCoinbase() {
		return nil, apierr.New(apierr.CodeInvalidCoinbase, "first transaction is not a valid coinbase")
	}
	height, err := block.DecodeBIP34Height(coinbaseTx.Inputs[0].ScriptSig)
	if err != nil {
		return nil, err
	}
	var coinbaseOutputTotal uint64
	for _, out := range coinbaseTx.Outputs {
		coinbaseOutputTotal += out.Value
	}

	txReports := make([]report.Transaction, len(b.Transactions))
	var totalFees int64
	var totalWeight int64
	var nonCoinbaseVBytes int64
	var allTags []script.OutputTag

	for i, t := range b.Transactions {
		var txPrevouts []*tx.Output
		if i == 0 {
			txPrevouts = make([]*tx.Output, len(t.Inputs))
		} else {
			txPrevouts = make([]*tx.Output, len(t.Inputs))
			for j, rec := range prevouts[i] {
				if j < len(txPrevouts) {
					txPrevouts[j] = &tx.Output{Value: rec.Value, ScriptPubKey: rec.ScriptPubKey}
				}
			}
		}

		txReport, err := assembleTransactionReport("mainnet", t, txPrevouts)
		if err != nil {
			return nil, err
		}
		txReports[i] = *txReport

		if i > 0 && txReport.FeeSats != nil {
			totalFees += *txReport.FeeSats
			nonCoinbaseVBytes += t.VBytes()
		}
		totalWeight += t.Weight()

		for _, out := range t.Outputs {
			allTags = append(allTags, script.ClassifyOutput(out.ScriptPubKey))
		}
	}

	var avgFeeRate float64
	if nonCoinbaseVBytes > 0 {
		avgFeeRate = accounting.Round2(float64(totalFees) / float64(nonCoinbaseVBytes))
	}

	return &report.Block{
		OK:      true,
		Mode:    "block",
		TxCount: len(b.Transactions),
		BlockHeader: report.BlockHeader{
			Version:         b.Header.Version,
			PrevBlockHash:   reverseHex(b.Header.PrevBlockHash),
			MerkleRoot:      reverseHex(b.Header.MerkleRoot),
			MerkleRootValid: b.Header.MerkleRootValid,
			Timestamp:       b.Header.Timestamp,
			Bits:            report.BitsHex(b.Header.Bits),
			Nonce:           b.Header.Nonce,
			BlockHash:       reverseHex(b.Header.Hash),
		},
		Coinbase: report.Coinbase{
			BIP34Height:       height,
			CoinbaseScriptHex: hex.EncodeToString(coinbaseTx.Inputs[0].ScriptSig),
			TotalOutputSats:   coinbaseOutputTotal,
		},
		Transactions: txReports,
		BlockStats: report.BlockStats{
			TotalFeesSats:     totalFees,
			TotalWeight:       totalWeight,
			AvgFeeRateSatVB:   avgFeeRate,
			ScriptTypeSummary: report.ScriptTypeCounts(allTags),
		},
	}, nil
}
