package utils

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"dcaAlertBot/internal/domain"
)

var csvHeader = []string{"open_time", "close_time", "symbol", "interval", "open", "high", "low", "close", "volume"}

// WriteKlinesToCSV writes klines to filename, one row per kline, with a header row.
func WriteKlinesToCSV(klines []*domain.Kline, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	// Write header
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, k := range klines {
		if k == nil {
			continue
		}
		if err := writer.Write([]string{
			k.OpenTime.Format(time.RFC3339),
			k.CloseTime.Format(time.RFC3339),
			k.Symbol,
			k.Interval,
			strconv.FormatFloat(k.Open, 'f', -1, 64),
			strconv.FormatFloat(k.High, 'f', -1, 64),
			strconv.FormatFloat(k.Low, 'f', -1, 64),
			strconv.FormatFloat(k.Close, 'f', -1, 64),
			strconv.FormatFloat(k.Volume, 'f', -1, 64),
		}); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}
