package domain

import (
	"testing"
	"time"
)

func sampleOpportunity() Opportunity {
	sym := NewSymbol("BTC", "USDT")
	return Opportunity{
		ID:   "op-1",
		Kind: OpportunityKindSimple,
		Legs: []Leg{
			{Step: 0, Venue: "alpha", Symbol: sym, Side: OrderSideBuy, Amount: dec("0.1"), ReferencePrice: dec("50000")},
			{Step: 1, Venue: "beta", Symbol: sym, Side: OrderSideSell, Amount: dec("0.1"), ReferencePrice: dec("50100")},
		},
		Status:    OpportunityStatusDetected,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(30 * time.Second),
	}
}

func TestFingerprintIgnoresPrices(t *testing.T) {
	a := sampleOpportunity()
	b := sampleOpportunity()
	b.Legs[0].ReferencePrice = dec("51000")
	b.Legs[1].Amount = dec("0.2")

	if a.Fingerprint() != b.Fingerprint() {
		t.Fatalf("fingerprints differ for structurally equal opportunities:\n%s\n%s",
			a.Fingerprint(), b.Fingerprint())
	}
}

func TestFingerprintDistinguishesStructure(t *testing.T) {
	base := sampleOpportunity()

	flipped := sampleOpportunity()
	flipped.Legs[0].Venue, flipped.Legs[1].Venue = flipped.Legs[1].Venue, flipped.Legs[0].Venue
	if base.Fingerprint() == flipped.Fingerprint() {
		t.Fatal("venue order should change the fingerprint")
	}

	otherKind := sampleOpportunity()
	otherKind.Kind = OpportunityKindTriangular
	if base.Fingerprint() == otherKind.Fingerprint() {
		t.Fatal("kind should change the fingerprint")
	}

	otherSide := sampleOpportunity()
	otherSide.Legs[0].Side = OrderSideSell
	if base.Fingerprint() == otherSide.Fingerprint() {
		t.Fatal("leg side should change the fingerprint")
	}
}

func TestValidTransition(t *testing.T) {
	allowed := []struct{ from, to OpportunityStatus }{
		{OpportunityStatusDetected, OpportunityStatusApproved},
		{OpportunityStatusDetected, OpportunityStatusRejected},
		{OpportunityStatusDetected, OpportunityStatusExpired},
		{OpportunityStatusApproved, OpportunityStatusExecuting},
		{OpportunityStatusExecuting, OpportunityStatusCompleted},
		{OpportunityStatusExecuting, OpportunityStatusFailed},
	}
	for _, tc := range allowed {
		if !ValidTransition(tc.from, tc.to) {
			t.Fatalf("%s -> %s should be allowed", tc.from, tc.to)
		}
	}

	forbidden := []struct{ from, to OpportunityStatus }{
		{OpportunityStatusDetected, OpportunityStatusExecuting},
		{OpportunityStatusDetected, OpportunityStatusCompleted},
		{OpportunityStatusApproved, OpportunityStatusExpired},
		{OpportunityStatusApproved, OpportunityStatusRejected},
		{OpportunityStatusExecuting, OpportunityStatusExpired},
		{OpportunityStatusCompleted, OpportunityStatusFailed},
		{OpportunityStatusExpired, OpportunityStatusApproved},
	}
	for _, tc := range forbidden {
		if ValidTransition(tc.from, tc.to) {
			t.Fatalf("%s -> %s should be forbidden", tc.from, tc.to)
		}
	}
}

func TestOpportunityExpired(t *testing.T) {
	op := sampleOpportunity()
	now := op.ExpiresAt.Add(-time.Second)
	if op.Expired(now) {
		t.Fatal("not yet expired")
	}
	if !op.Expired(op.ExpiresAt.Add(time.Millisecond)) {
		t.Fatal("should be expired after TTL")
	}
}

func TestOpportunityVenues(t *testing.T) {
	op := sampleOpportunity()
	vs := op.Venues()
	if len(vs) != 2 || vs[0] != "alpha" || vs[1] != "beta" {
		t.Fatalf("venues = %v", vs)
	}

	op.Legs = append(op.Legs, Leg{Venue: "alpha"})
	if got := op.Venues(); len(got) != 2 {
		t.Fatalf("duplicate venue not collapsed: %v", got)
	}
}
