package core

import (
	"testing"
)

func TestQuote_IsValid(t *testing.T) {
	if !(Quote{Price: 42, Quantity: 10}).IsValid() {
		t.Error("expected valid quote")
	}

	for _, q := range []Quote{{Price: 0}, {Price: 100}, {Price: 50, Quantity: -1}} {
		if q.IsValid() {
			t.Errorf("expected invalid quote: %+v", q)
		}
	}
}

func TestSide(t *testing.T) {
	if SideYes.Opposite() != SideNo || SideNo.Opposite() != SideYes {
		t.Error("opposite sides wrong")
	}
	if Side("maybe").IsValid() {
		t.Error("unknown side should be invalid")
	}
}

func TestOrderBook_Best(t *testing.T) {
	book := OrderBook{
		Yes: []Quote{{Price: 55, Quantity: 100}, {Price: 54, Quantity: 20}},
	}

	q, ok := book.Best(SideYes)
	if !ok || q.Price != 55 {
		t.Errorf("expected best yes 55, got %v (ok=%v)", q.Price, ok)
	}

	if _, ok := book.Best(SideNo); ok {
		t.Error("expected no quote on empty side")
	}
}

func TestPosition_MarketValue(t *testing.T) {
	p := Position{Quantity: 10, CurrentPrice: 40}
	if p.MarketValue() != 4 {
		t.Errorf("expected 4, got %f", p.MarketValue())
	}
}

func TestParamRange(t *testing.T) {
	r := ParamRange{Min: 1, Max: 5}
	if err := r.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !r.Contains(5) || r.Contains(5.1) {
		t.Error("contains wrong")
	}
	if err := (ParamRange{Min: 2, Max: 1}).Validate(); err == nil {
		t.Error("expected inverted range error")
	}
}
