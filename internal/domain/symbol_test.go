package domain

import "testing"

func TestParseSymbol(t *testing.T) {
	s, err := ParseSymbol("btc/usdt")
	if err != nil {
		t.Fatalf("ParseSymbol: %v", err)
	}
	if s.Base != "BTC" || s.Quote != "USDT" {
		t.Fatalf("got %+v, want BTC/USDT", s)
	}
	if s.String() != "BTC/USDT" {
		t.Fatalf("String() = %q", s.String())
	}

	for _, bad := range []string{"", "BTC", "/USDT", "BTC/"} {
		if _, err := ParseSymbol(bad); err == nil {
			t.Fatalf("ParseSymbol(%q) should fail", bad)
		}
	}
}

func TestSymbolTextRoundTrip(t *testing.T) {
	orig := NewSymbol("ETH", "USDT")
	b, err := orig.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	var got Symbol
	if err := got.UnmarshalText(b); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if got != orig {
		t.Fatalf("round trip: got %v, want %v", got, orig)
	}
}

func TestSymbolSpecEnabledOn(t *testing.T) {
	sp := SymbolSpec{Symbol: NewSymbol("BTC", "USDT"), Venues: []string{"alpha", "beta"}}
	if !sp.EnabledOn("alpha") || sp.EnabledOn("gamma") {
		t.Fatalf("venue filter broken: %+v", sp)
	}
	open := SymbolSpec{Symbol: NewSymbol("BTC", "USDT")}
	if !open.EnabledOn("anything") {
		t.Fatal("empty venue list should enable everywhere")
	}
}
