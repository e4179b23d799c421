package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"dcaAlertBot/internal/domain"
)

const timeLayout = "2006-01-02 15:04:05"

// FormatAlert renders an alert as a Telegram Markdown message.
// The timestamp is shown in loc.
func FormatAlert(alert domain.Alert, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	info := alert.Decision.Info
	at := alert.At.In(loc)

	var b strings.Builder
	switch alert.Decision.Kind {
	case domain.SignalBuy:
		b.WriteString(fmt.Sprintf("🚨 *%s DCA Buy Signal* 🚨\n\n", info.Symbol))
	case domain.SignalSell:
		b.WriteString(fmt.Sprintf("💰 *%s SELL Signal* 💰\n\n", info.Symbol))
	default:
		b.WriteString(fmt.Sprintf("*%s Signal*\n\n", info.Symbol))
	}

	b.WriteString(fmt.Sprintf("*Time (%s):* %s\n", zoneLabel(at), at.Format(timeLayout)))
	b.WriteString(fmt.Sprintf("*Symbol:* %s\n", info.Symbol))
	b.WriteString(fmt.Sprintf("*Timeframe:* %s\n\n", TimeframeLabel(alert.Interval)))

	priceLabel := "Current Price"
	if alert.Decision.Kind == domain.SignalBuy {
		priceLabel = "Entry Price"
	}
	b.WriteString(fmt.Sprintf("*%s:* %.2f\n", priceLabel, info.EntryPrice))
	b.WriteString(fmt.Sprintf("*EMA7:* %.2f\n", info.EMA7))
	b.WriteString(fmt.Sprintf("*EMA14:* %.2f\n", info.EMA14))
	b.WriteString(fmt.Sprintf("*RSI:* %.2f\n", info.RSI))
	b.WriteString(fmt.Sprintf("*Volatility:* %.2f%%\n", info.VolatilityPct))

	if alert.Decision.Kind == domain.SignalBuy && len(info.DCALevels) > 0 {
		b.WriteString("\n*DCA Levels:*\n")
		for i, price := range info.DCALevels {
			b.WriteString(fmt.Sprintf("Level %d: %.2f\n", i+1, price))
		}
	}
	return b.String()
}

// zoneLabel renders the UTC offset of t, e.g. "UTC+7" or "UTC+5:30".
func zoneLabel(t time.Time) string {
	_, offset := t.Zone()
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	hours, minutes := offset/3600, (offset%3600)/60
	if minutes == 0 {
		return fmt.Sprintf("UTC%s%d", sign, hours)
	}
	return fmt.Sprintf("UTC%s%d:%02d", sign, hours, minutes)
}

// TimeframeLabel turns a Binance interval such as "4h" into "4 Hours".
// Unknown formats are returned unchanged.
func TimeframeLabel(interval string) string {
	if len(interval) < 2 {
		return interval
	}
	n, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || n <= 0 {
		return interval
	}
	var unit string
	switch interval[len(interval)-1] {
	case 's':
		unit = "Second"
	case 'm':
		unit = "Minute"
	case 'h':
		unit = "Hour"
	case 'd':
		unit = "Day"
	case 'w':
		unit = "Week"
	case 'M':
		unit = "Month"
	default:
		return interval
	}
	if n > 1 {
		unit += "s"
	}
	return fmt.Sprintf("%d %s", n, unit)
}
