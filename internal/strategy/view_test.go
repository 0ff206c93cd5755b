package strategy

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
)

// fakeView is an in-memory MarketView for tests.
type fakeView struct {
	markets map[string]map[domain.Symbol]VenueMarket
	funding map[string]map[domain.Symbol]domain.FundingRate
}

func newFakeView() *fakeView {
	return &fakeView{
		markets: make(map[string]map[domain.Symbol]VenueMarket),
		funding: make(map[string]map[domain.Symbol]domain.FundingRate),
	}
}

func (v *fakeView) add(m VenueMarket) {
	id := m.Venue.ID
	if v.markets[id] == nil {
		v.markets[id] = make(map[domain.Symbol]VenueMarket)
	}
	v.markets[id][m.Ticker.Symbol] = m
}

func (v *fakeView) addFunding(f domain.FundingRate) {
	if v.funding[f.Venue] == nil {
		v.funding[f.Venue] = make(map[domain.Symbol]domain.FundingRate)
	}
	v.funding[f.Venue][f.Symbol] = f
}

func (v *fakeView) FreshVenues(sym domain.Symbol) []VenueMarket {
	var out []VenueMarket
	for _, bySym := range v.markets {
		if m, ok := bySym[sym]; ok {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Venue.ID < out[j].Venue.ID })
	return out
}

func (v *fakeView) FreshPair(venueID string, sym domain.Symbol) (VenueMarket, bool) {
	m, ok := v.markets[venueID][sym]
	return m, ok
}

func (v *fakeView) Funding(venueID string, sym domain.Symbol) (domain.FundingRate, bool) {
	f, ok := v.funding[venueID][sym]
	return f, ok
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// market builds a VenueMarket with a two-level book around the quoted
// prices, 1.0 base units per level.
func market(venueID string, sym domain.Symbol, bid, ask string, takerFee string, vol string, at time.Time) VenueMarket {
	b := dec(bid)
	a := dec(ask)
	tick := dec("0.1")
	return VenueMarket{
		Venue: domain.Venue{
			ID:   venueID,
			Kind: domain.VenueKindSpot,
			Fees: domain.FeeSchedule{TakerRate: dec(takerFee)},
		},
		Ticker: domain.Ticker{
			Venue:      venueID,
			Symbol:     sym,
			Bid:        b,
			Ask:        a,
			Last:       b.Add(a).Div(dec("2")),
			Volume24h:  dec(vol),
			ObservedAt: at,
		},
		Book: domain.Book{
			Venue:  venueID,
			Symbol: sym,
			Bids: []domain.PriceLevel{
				{Price: b, Size: dec("1")},
				{Price: b.Sub(tick), Size: dec("1")},
			},
			Asks: []domain.PriceLevel{
				{Price: a, Size: dec("1")},
				{Price: a.Add(tick), Size: dec("1")},
			},
			ObservedAt: at,
		},
	}
}

// recomputeProfit replays an opportunity's leg plan: sell notionals minus
// buy notionals minus the estimated fees. Used to pin the stored projection
// to the legs that carry it.
func recomputeProfit(op domain.Opportunity) decimal.Decimal {
	total := decimal.Zero
	for _, l := range op.Legs {
		n := l.Amount.Mul(l.ReferencePrice)
		if l.Side == domain.OrderSideSell {
			total = total.Add(n)
		} else {
			total = total.Sub(n)
		}
	}
	return total.Sub(op.TotalFeeEstimate())
}
