// Package csvio reads and writes the legacy per-ticker CSV files:
// orderbook_{TICKER}.csv, trades_{TICKER}.csv and candle series dumps.
// Loaders are forgiving: short or unparseable rows are skipped, never
// fatal, because these files are appended by an unsynchronized daemon.
package csvio

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"dydx-ladder/internal/model"
)

// BookEvent is one row of an orderbook CSV:
// ts,ticker,kind,side,price,size with kind ∈ {book_init, delta, orderbook}.
type BookEvent struct {
	TS     int64
	Ticker string
	Kind   string
	Side   model.Side
	Price  float64
	Size   float64
}

// TradeEvent is one row of a trades CSV: ts,ticker,source,side,size.
type TradeEvent struct {
	TS     int64
	Ticker string
	Source string
	Side   string
	Size   string
}

// BookPath returns the orderbook CSV path for a ticker under dir.
func BookPath(dir, ticker string) string {
	return filepath.Join(dir, "orderbook_"+ticker+".csv")
}

// TradesPath returns the trades CSV path for a ticker under dir.
func TradesPath(dir, ticker string) string {
	return filepath.Join(dir, "trades_"+ticker+".csv")
}

// LoadBookCSV loads and time-sorts book events for one ticker. A
// missing file yields an empty slice.
func LoadBookCSV(path, ticker string) []BookEvent {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var out []BookEvent
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		parts := splitRow(sc.Text())
		if len(parts) < 6 {
			continue
		}
		ts, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			continue
		}
		if parts[1] != ticker {
			continue
		}
		price, err := strconv.ParseFloat(parts[4], 64)
		if err != nil {
			continue
		}
		size, err := strconv.ParseFloat(parts[5], 64)
		if err != nil {
			continue
		}
		out = append(out, BookEvent{
			TS:     ts,
			Ticker: parts[1],
			Kind:   parts[2],
			Side:   model.SideFromString(parts[3]),
			Price:  price,
			Size:   size,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TS < out[j].TS })
	return out
}

// LoadTradesCSV loads and time-sorts trade events for one ticker.
func LoadTradesCSV(path, ticker string) []TradeEvent {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var out []TradeEvent
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		parts := splitRow(sc.Text())
		if len(parts) < 5 {
			continue
		}
		ts, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			continue
		}
		if parts[1] != ticker {
			continue
		}
		out = append(out, TradeEvent{
			TS:     ts,
			Ticker: parts[1],
			Source: parts[2],
			Side:   parts[3],
			Size:   parts[4],
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TS < out[j].TS })
	return out
}

// AppendTradeCSV appends one trade row, creating the file if needed.
func AppendTradeCSV(dir, ticker, source, side, size string, tsUnix int64) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(TradesPath(dir, ticker), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%d,%s,%s,%s,%s\n", tsUnix, ticker, source, side, size)
	return err
}

const candleHeader = "ts,tf_secs,open,high,low,close,volume"

// SaveCandlesCSV writes a candle series with the standard header,
// values formatted to 8 decimal places.
func SaveCandlesCSV(path string, tfSecs int64, series []model.Candle) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, candleHeader)
	for _, c := range series {
		fmt.Fprintf(w, "%d,%d,%.8f,%.8f,%.8f,%.8f,%.8f\n",
			c.T, tfSecs, c.Open, c.High, c.Low, c.Close, c.Volume)
	}
	return w.Flush()
}

// LoadCandlesCSV reads a candle series dump, sorted ascending by
// bucket start. Rows for other timeframes are skipped.
func LoadCandlesCSV(path string, tfSecs int64) ([]model.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []model.Candle
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line == candleHeader {
			continue
		}
		parts := splitRow(line)
		if len(parts) < 7 {
			continue
		}
		t, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			continue
		}
		tf, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || tf != tfSecs {
			continue
		}
		vals := make([]float64, 5)
		ok := true
		for i := 0; i < 5; i++ {
			vals[i], err = strconv.ParseFloat(parts[2+i], 64)
			if err != nil {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		out = append(out, model.Candle{
			T: t, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: vals[4],
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].T < out[j].T })
	return out, sc.Err()
}

// splitRow splits a CSV row, trimming whitespace and stray quotes from
// each field. The daemon occasionally pads fields with spaces.
func splitRow(line string) []string {
	parts := strings.Split(line, ",")
	for i, p := range parts {
		parts[i] = strings.Trim(strings.TrimSpace(p), `"`)
	}
	return parts
}
