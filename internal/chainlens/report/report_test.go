package report

import (
	"testing"

	"chainlens/internal/chainlens/script"
)

func TestBitsHex(t *testing.T) {
	got := BitsHex(0x1d00ffff)
	want := "1d00ffff"
	if got != want {
		t.Errorf("BitsHex() = %q, want %q", got, want)
	}
}

func TestAddressField(t *testing.T) {
	if got := AddressField("bc1q...", false); got != nil {
		t.Errorf("AddressField(ok=false) = %v, want nil", got)
	}
	got := AddressField("bc1q...", true)
	if got == nil || *got != "bc1q..." {
		t.Errorf("AddressField(ok=true) = %v, want pointer to bc1q...", got)
	}
}

func TestScriptTypeCounts(t *testing.T) {
	tags := []script.OutputTag{script.TagP2PKH, script.TagP2WPKH, script.TagP2PKH, script.TagUnknown}
	counts := ScriptTypeCounts(tags)

	if counts[string(script.TagP2PKH)] != 2 {
		t.Errorf("p2pkh count = %d, want 2", counts[string(script.TagP2PKH)])
	}
	if counts[string(script.TagP2WPKH)] != 1 {
		t.Errorf("p2wpkh count = %d, want 1", counts[string(script.TagP2WPKH)])
	}
	if counts[string(script.TagUnknown)] != 1 {
		t.Errorf("unknown count = %d, want 1", counts[string(script.TagUnknown)])
	}
}
