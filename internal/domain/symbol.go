package domain

import (
	"fmt"
	"strings"
)

// Symbol identifies a trading pair as base/quote, e.g. BTC/USDT. It is
// comparable and safe to use as a map key.
type Symbol struct {
	Base  string
	Quote string
}

// NewSymbol builds a Symbol, normalizing both assets to upper case.
func NewSymbol(base, quote string) Symbol {
	return Symbol{Base: strings.ToUpper(base), Quote: strings.ToUpper(quote)}
}

// ParseSymbol parses the display form "BASE/QUOTE".
func ParseSymbol(s string) (Symbol, error) {
	base, quote, ok := strings.Cut(s, "/")
	if !ok || base == "" || quote == "" {
		return Symbol{}, fmt.Errorf("domain: malformed symbol %q", s)
	}
	return NewSymbol(base, quote), nil
}

// String returns the display form "BASE/QUOTE".
func (s Symbol) String() string { return s.Base + "/" + s.Quote }

// IsZero reports whether the symbol is unset.
func (s Symbol) IsZero() bool { return s.Base == "" && s.Quote == "" }

// MarshalText renders the display form so Symbol works as a JSON object key
// and in query parameters.
func (s Symbol) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText parses the display form.
func (s *Symbol) UnmarshalText(b []byte) error {
	sym, err := ParseSymbol(string(b))
	if err != nil {
		return err
	}
	*s = sym
	return nil
}

// SymbolSpec carries per-symbol trading metadata: precisions used when
// rounding order amounts and prices, and the venues the pair trades on.
type SymbolSpec struct {
	Symbol          Symbol   `json:"symbol"`
	AmountPrecision int32    `json:"amountPrecision"`
	PricePrecision  int32    `json:"pricePrecision"`
	Venues          []string `json:"venues"`
}

// EnabledOn reports whether the symbol trades on the given venue. An empty
// venue list means the symbol is enabled everywhere.
func (sp SymbolSpec) EnabledOn(venueID string) bool {
	if len(sp.Venues) == 0 {
		return true
	}
	for _, v := range sp.Venues {
		if v == venueID {
			return true
		}
	}
	return false
}
