package indicators

import (
	"context"
	"math"
	"testing"
	"time"

	"dcaAlertBot/internal/domain"
)

func closeKlines(closes ...float64) []*domain.Kline {
	now := time.Now()
	klines := make([]*domain.Kline, len(closes))
	for i, c := range closes {
		klines[i] = &domain.Kline{
			OpenTime: now.Add(time.Duration(i-len(closes)) * time.Hour),
			Open:     c,
			High:     c,
			Low:      c,
			Close:    c,
		}
	}
	return klines
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 0.0001
}

func TestEMA_Calculate(t *testing.T) {
	klines := closeKlines(100, 102, 101, 103, 104)

	tests := []struct {
		name        string
		period      int
		klines      []*domain.Kline
		expected    []float64 // NaN marks warm-up positions
		expectError bool
	}{
		{
			name:     "EMA with sufficient data",
			period:   3,
			klines:   klines,
			expected: []float64{math.NaN(), math.NaN(), 101, 102, 103},
		},
		{
			name:     "period equals length gives only the seed",
			period:   5,
			klines:   klines,
			expected: []float64{math.NaN(), math.NaN(), math.NaN(), math.NaN(), 102},
		},
		{
			name:        "Insufficient data",
			period:      6,
			klines:      klines,
			expectError: true,
		},
		{
			name:        "Invalid period",
			period:      0,
			klines:      klines,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ema := NewEMA(IndicatorConfig{Period: tt.period})
			values, err := ema.Calculate(context.Background(), tt.klines)

			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(values) != len(tt.expected) {
				t.Fatalf("Expected %d values, got %d", len(tt.expected), len(values))
			}
			for i, want := range tt.expected {
				if math.IsNaN(want) {
					if !math.IsNaN(values[i]) {
						t.Errorf("index %d: expected NaN, got %f", i, values[i])
					}
					continue
				}
				if !almostEqual(values[i], want) {
					t.Errorf("index %d: expected %f, got %f", i, want, values[i])
				}
			}
		})
	}
}

func TestEMA_Deterministic(t *testing.T) {
	values := []float64{5, 7, 6, 9, 12, 11, 10, 14, 13, 15}
	first := EMA(values, 4)
	second := EMA(values, 4)
	for i := range first {
		if math.IsNaN(first[i]) != math.IsNaN(second[i]) || (!math.IsNaN(first[i]) && first[i] != second[i]) {
			t.Fatalf("index %d differs between runs: %f vs %f", i, first[i], second[i])
		}
	}
}

func TestRSI_Calculate(t *testing.T) {
	tests := []struct {
		name        string
		period      int
		klines      []*domain.Kline
		expectLast  float64
		expectError bool
	}{
		{
			name:       "RSI with sufficient data",
			period:     3,
			klines:     closeKlines(100, 102, 101, 103, 102, 104),
			expectLast: 77.272727, // Wilder's smoothing
		},
		{
			name:        "Insufficient data",
			period:      7,
			klines:      closeKlines(100, 102, 101, 103, 102, 104),
			expectError: true,
		},
		{
			name:       "All gains",
			period:     3,
			klines:     closeKlines(100, 102, 104, 106),
			expectLast: 100.0,
		},
		{
			name:       "All losses",
			period:     3,
			klines:     closeKlines(106, 104, 102, 100),
			expectLast: 0.0,
		},
		{
			name:       "Flat prices",
			period:     3,
			klines:     closeKlines(100, 100, 100, 100, 100),
			expectLast: 50.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rsi := NewRSI(IndicatorConfig{Period: tt.period})
			values, err := rsi.Calculate(context.Background(), tt.klines)

			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			for i := 0; i < tt.period; i++ {
				if !math.IsNaN(values[i]) {
					t.Errorf("index %d: expected NaN during warm-up, got %f", i, values[i])
				}
			}
			if last := values[len(values)-1]; !almostEqual(last, tt.expectLast) {
				t.Errorf("Expected value %f, got %f", tt.expectLast, last)
			}
		})
	}
}

func TestRSI_SeedValue(t *testing.T) {
	values := RSIValues([]float64{100, 102, 101, 103, 102, 104}, 3)
	// Seed: avg gain 4/3, avg loss 1/3 -> RS 4
	if !almostEqual(values[3], 80.0) {
		t.Errorf("Expected seed RSI 80, got %f", values[3])
	}
}

func TestATR_Calculate(t *testing.T) {
	now := time.Now()
	klines := []*domain.Kline{
		{OpenTime: now.Add(-4 * time.Hour), High: 10, Low: 8, Close: 9},
		{OpenTime: now.Add(-3 * time.Hour), High: 11, Low: 9, Close: 10},   // TR 2
		{OpenTime: now.Add(-2 * time.Hour), High: 12, Low: 10, Close: 11},  // TR 2
		{OpenTime: now.Add(-1 * time.Hour), High: 13, Low: 9, Close: 12},   // TR 4
		{OpenTime: now, High: 12, Low: 11, Close: 11.5},                     // TR 1
	}

	atr := NewATR(IndicatorConfig{Period: 3})
	values, err := atr.Calculate(context.Background(), klines)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	for i := 0; i < 3; i++ {
		if !math.IsNaN(values[i]) {
			t.Errorf("index %d: expected NaN during warm-up, got %f", i, values[i])
		}
	}
	if !almostEqual(values[3], 8.0/3.0) {
		t.Errorf("Expected seed ATR %f, got %f", 8.0/3.0, values[3])
	}
	if !almostEqual(values[4], (8.0/3.0*2+1)/3) {
		t.Errorf("Expected smoothed ATR %f, got %f", (8.0/3.0*2+1)/3, values[4])
	}

	if _, err := atr.Calculate(context.Background(), klines[:3]); err == nil {
		t.Error("Expected error for insufficient data")
	}
}

func TestIndicator_Names(t *testing.T) {
	tests := []struct {
		indicator Indicator
		expected  string
	}{
		{NewEMA(IndicatorConfig{Period: 7}), "EMA7"},
		{NewRSI(IndicatorConfig{Period: 14}), "RSI"},
		{NewATR(IndicatorConfig{Period: 14}), "ATR"},
	}
	for _, tt := range tests {
		if name := tt.indicator.Name(); name != tt.expected {
			t.Errorf("Expected name %s, got %s", tt.expected, name)
		}
	}
}
