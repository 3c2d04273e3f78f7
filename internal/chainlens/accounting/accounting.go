// Package accounting implements the fee, timelock, SegWit-savings and
// warning policy layer (spec.md §4.6).
package accounting

import (
	"math"

	"chainlens/internal/chainlens/tx"
)

// LocktimeType is the classification of a transaction's absolute
// locktime (spec.md §4.6).
type LocktimeType string

const (
	LocktimeNone          LocktimeType = "none"
	LocktimeBlockHeight   LocktimeType = "block_height"
	LocktimeUnixTimestamp LocktimeType = "unix_timestamp"
)

// ClassifyLocktime tags a transaction's absolute locktime field.
func ClassifyLocktime(locktime uint32) LocktimeType {
	switch {
	case locktime == 0:
		return LocktimeNone
	case locktime < 500_000_000:
		return LocktimeBlockHeight
	default:
		return LocktimeUnixTimestamp
	}
}

// RelativeTimelock is the BIP68 interpretation of one input's sequence
// field (spec.md §4.6).
type RelativeTimelock struct {
	Enabled  bool
	IsTime   bool
	Value    uint32
	Disabled bool
}

// ClassifyRelativeTimelock implements BIP68: bit 31 disables the field
// entirely; otherwise bit 22 selects a 512-second time unit over a block
// count, and the low 16 bits carry the value.
func ClassifyRelativeTimelock(sequence uint32) RelativeTimelock {
	const disableFlag = 1 << 31
	const typeFlag = 1 << 22
	const valueMask = 0xFFFF

	if sequence&disableFlag != 0 {
		return RelativeTimelock{Enabled: false}
	}
	return RelativeTimelock{
		Enabled: true,
		IsTime:  sequence&typeFlag != 0,
		Value:   sequence & valueMask,
	}
}

// RBFSignaling reports BIP125 replace-by-fee signaling: true iff any
// input's sequence is below 0xFFFFFFFE.
func RBFSignaling(inputs []tx.Input) bool {
	for _, in := range inputs {
		if in.Sequence < 0xFFFFFFFE {
			return true
		}
	}
	return false
}

// Round2 rounds to 2 decimal places using round-half-away-from-zero,
// matching the fee-rate and savings-percentage rounding used throughout
// the report (spec.md §4.6).
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// FeeRateSatVB computes sat/vB given a fee in satoshis and the
// transaction's virtual byte size.
func FeeRateSatVB(feeSats int64, vbytes int64) float64 {
	if vbytes == 0 {
		return 0
	}
	return Round2(float64(feeSats) / float64(vbytes))
}

// SegWitSavings is the BIP141 size comparison exposed for SegWit
// transactions (spec.md §4.6). Nil for non-SegWit transactions.
type SegWitSavings struct {
	WitnessBytes    int
	NonWitnessBytes int
	TotalBytes      int
	WeightActual    int64
	WeightIfLegacy  int64
	SavingsPct      float64
}

// ComputeSegWitSavings returns nil for non-SegWit transactions, matching
// the nullable segwit_savings report field.
func ComputeSegWitSavings(t *tx.Transaction) *SegWitSavings {
	if !t.SegWit {
		return nil
	}
	weightActual := t.Weight()
	weightIfLegacy := 4 * int64(t.TotalBytes)
	savingsPct := Round2((1 - float64(weightActual)/float64(weightIfLegacy)) * 100)
	return &SegWitSavings{
		WitnessBytes:    t.WitnessBytes,
		NonWitnessBytes: t.NonWitnessBytes,
		TotalBytes:      t.TotalBytes,
		WeightActual:    weightActual,
		WeightIfLegacy:  weightIfLegacy,
		SavingsPct:      savingsPct,
	}
}

// Warning is one non-fatal policy flag attached to a successful report
// (spec.md §4.6).
type Warning string

const (
	WarningHighFee             Warning = "HIGH_FEE"
	WarningDustOutput          Warning = "DUST_OUTPUT"
	WarningUnknownOutputScript Warning = "UNKNOWN_OUTPUT_SCRIPT"
	WarningRBFSignaling        Warning = "RBF_SIGNALING"
)

// Conditions is the minimal fact set the warning rules are evaluated
// against, decoupled from any particular report shape so it can be
// reused for both transaction and block-embedded transaction reports.
type Conditions struct {
	FeeSats       int64
	HasFee        bool
	FeeRateSatVB  float64
	DustOutputs   bool
	UnknownOutput bool
	RBFSignaling  bool
}

// EvaluateWarnings implements the four warning rules of spec.md §4.6.
// Order is stable but not significant.
func EvaluateWarnings(c Conditions) []Warning {
	var warnings []Warning
	if c.HasFee && (c.FeeSats > 1_000_000 || c.FeeRateSatVB > 200) {
		warnings = append(warnings, WarningHighFee)
	}
	if c.DustOutputs {
		warnings = append(warnings, WarningDustOutput)
	}
	if c.UnknownOutput {
		warnings = append(warnings, WarningUnknownOutputScript)
	}
	if c.RBFSignaling {
		warnings = append(warnings, WarningRBFSignaling)
	}
	return warnings
}

// IsDust reports whether a non-OP_RETURN output value falls below the
// dust threshold used by the DUST_OUTPUT warning.
func IsDust(valueSats uint64, isOpReturn bool) bool {
	return !isOpReturn && valueSats < 546
}
