package domain

import (
	"math"
	"time"
)

// IndicatorSnapshot holds the indicator values derived for one kline.
// Values that are not yet defined (warm-up) are NaN.
type IndicatorSnapshot struct {
	OpenTime      time.Time
	Close         float64
	EMA7          float64
	EMA14         float64
	EMA50         float64
	RSI           float64
	ATR           float64
	VolatilityPct float64
}

// Ready reports whether every indicator value is defined.
func (s IndicatorSnapshot) Ready() bool {
	for _, v := range []float64{s.Close, s.EMA7, s.EMA14, s.EMA50, s.RSI, s.ATR, s.VolatilityPct} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// PriceInfo is the payload attached to a firing signal.
type PriceInfo struct {
	Symbol        string
	EntryPrice    float64
	EMA7          float64
	EMA14         float64
	RSI           float64
	VolatilityPct float64
	DCALevels     []float64 // Only set for buy signals
}

// Decision is the result of evaluating a snapshot.
// Info is only meaningful when Kind is SignalBuy or SignalSell.
type Decision struct {
	Kind SignalKind
	Info PriceInfo
}

// Fired reports whether the decision is a buy or a sell.
func (d Decision) Fired() bool {
	return d.Kind != SignalNone
}

// WithSymbol returns a copy of the decision tagged with symbol.
func (d Decision) WithSymbol(symbol string) Decision {
	d.Info.Symbol = symbol
	return d
}

// Alert is a decision ready for delivery.
type Alert struct {
	Decision Decision
	Interval string
	At       time.Time
}
