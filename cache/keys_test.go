package cache

import "testing"

func TestKeyLayout(t *testing.T) {
	if got, want := marketKey("0xabc"), "market:derivative:0xabc"; got != want {
		t.Fatalf("marketKey = %q, want %q", got, want)
	}
	if got, want := positionKey("0xabc", "0xsub"), "position:0xabc:0xsub"; got != want {
		t.Fatalf("positionKey = %q, want %q", got, want)
	}
	if got, want := positionsMarketSetKey("0xabc"), "positions:market:0xabc"; got != want {
		t.Fatalf("positionsMarketSetKey = %q, want %q", got, want)
	}
	if got, want := positionsSubaccountSetKey("0xsub"), "positions:subaccount:0xsub"; got != want {
		t.Fatalf("positionsSubaccountSetKey = %q, want %q", got, want)
	}
	if got, want := liquidatableMember("0xabc", "0xsub"), "0xabc:0xsub"; got != want {
		t.Fatalf("liquidatableMember = %q, want %q", got, want)
	}
}

func TestParseFloatField(t *testing.T) {
	if f, ok := parseFloatField("94.7368"); !ok || f != 94.7368 {
		t.Fatalf("parseFloatField(valid) = (%v, %v)", f, ok)
	}
	if _, ok := parseFloatField(nil); ok {
		t.Fatalf("parseFloatField(nil): expected not ok")
	}
	if _, ok := parseFloatField("not-a-number"); ok {
		t.Fatalf("parseFloatField(malformed): expected not ok")
	}
}

func TestParseBoolField(t *testing.T) {
	if b, ok := parseBoolField("true"); !ok || !b {
		t.Fatalf("parseBoolField(true) = (%v, %v)", b, ok)
	}
	if b, ok := parseBoolField("false"); !ok || b {
		t.Fatalf("parseBoolField(false) = (%v, %v)", b, ok)
	}
	if _, ok := parseBoolField(nil); ok {
		t.Fatalf("parseBoolField(nil): expected not ok")
	}
}
