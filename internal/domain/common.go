package domain

// Direction is the side of an alert. Cooldowns are tracked per direction.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// SignalKind tags the outcome of a signal evaluation.
type SignalKind int

const (
	SignalNone SignalKind = iota
	SignalBuy
	SignalSell
)

// String returns the string representation of the SignalKind.
func (k SignalKind) String() string {
	switch k {
	case SignalBuy:
		return "BUY"
	case SignalSell:
		return "SELL"
	default:
		return "NONE"
	}
}

// Direction maps a firing signal to its alert direction.
// The boolean is false for SignalNone.
func (k SignalKind) Direction() (Direction, bool) {
	switch k {
	case SignalBuy:
		return Buy, true
	case SignalSell:
		return Sell, true
	default:
		return "", false
	}
}
