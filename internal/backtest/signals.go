// Package backtest implements the moving-average-crossover backtest engine:
// a signal generator over daily closes and a single-pass simulation that
// produces a summary result, a trade list, and daily portfolio snapshots.
package backtest

import (
	"github.com/shopspring/decimal"

	"backlab/internal/domain"
)

// CrossoverSignals emits one signal per pushed close price based on the
// simple moving averages over the trailing short and long windows. Signals
// are undefined (none) until long closes have been seen. A buy fires on the
// bar where the short MA crosses from at-or-below the long MA to above it,
// a sell on the symmetric downward cross; while the relative level merely
// persists, no signal repeats.
//
// On the first bar where both averages are defined the prior state is
// treated as equal, so a short MA already above the long MA at the end of
// the warm-up fires a single buy.
type CrossoverSignals struct {
	short int
	long  int

	window   []decimal.Decimal // ring buffer of the last long closes
	count    int
	shortSum decimal.Decimal
	longSum  decimal.Decimal

	prevCmp int
	prevSet bool
}

// NewCrossoverSignals creates a generator for the given window lengths.
// Callers must ensure 0 < short < long.
func NewCrossoverSignals(short, long int) *CrossoverSignals {
	return &CrossoverSignals{
		short:  short,
		long:   long,
		window: make([]decimal.Decimal, long),
	}
}

// Push consumes the next close price and returns the signal for that bar.
func (g *CrossoverSignals) Push(close decimal.Decimal) domain.Signal {
	// Evict the closes falling out of each trailing window before storing
	// the new one. The long ring still holds the close leaving the short
	// window because short < long.
	if g.count >= g.long {
		g.longSum = g.longSum.Sub(g.window[g.count%g.long])
	}
	if g.count >= g.short {
		g.shortSum = g.shortSum.Sub(g.window[(g.count-g.short)%g.long])
	}
	g.window[g.count%g.long] = close
	g.shortSum = g.shortSum.Add(close)
	g.longSum = g.longSum.Add(close)
	g.count++

	if g.count < g.long {
		return domain.SignalNone
	}

	shortMA := g.shortSum.Div(decimal.NewFromInt(int64(g.short)))
	longMA := g.longSum.Div(decimal.NewFromInt(int64(g.long)))
	cmp := shortMA.Cmp(longMA)

	prev := 0
	if g.prevSet {
		prev = g.prevCmp
	}
	g.prevCmp = cmp
	g.prevSet = true

	switch {
	case prev <= 0 && cmp > 0:
		return domain.SignalBuy
	case prev >= 0 && cmp < 0:
		return domain.SignalSell
	}
	return domain.SignalNone
}
