// replay reconstructs book + candle + recent-trade state at a target
// timestamp from the per-ticker CSV event files in the data directory,
// printing the result and writing the candle series to a CSV file in the
// working directory.
//
// Usage: replay <target_ts> [ticker] [tf_secs]
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"dydx-ladder/internal/analytics"
	"dydx-ladder/internal/csvio"
	"dydx-ladder/internal/datadir"
	"dydx-ladder/internal/model"
	"dydx-ladder/internal/replay"
)

func main() {
	log.SetFlags(0)

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: replay <target_ts> [ticker] [tf_secs]")
		os.Exit(1)
	}
	targetTS, err := strconv.ParseInt(os.Args[1], 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: bad target_ts %q: %v\n", os.Args[1], err)
		os.Exit(1)
	}
	ticker := "ETH-USD"
	if len(os.Args) > 2 {
		ticker = os.Args[2]
	}
	tfSecs := int64(60)
	if len(os.Args) > 3 {
		tfSecs, err = strconv.ParseInt(os.Args[3], 10, 64)
		if err != nil || tfSecs <= 0 {
			fmt.Fprintf(os.Stderr, "replay: bad tf_secs %q\n", os.Args[3])
			os.Exit(1)
		}
	}

	dataDir := datadir.Dir()
	data, ok := replay.Load(dataDir, ticker)
	if !ok {
		fmt.Fprintf(os.Stderr, "replay: no event files for %s under %s\n", ticker, dataDir)
		os.Exit(1)
	}

	res := replay.ComputeAt(data, targetTS, []int64{tfSecs}, 0)
	m := analytics.Compute(res.Book)
	bidWall, askWall, bidOK, askOK := analytics.Walls(res.Book, analytics.WallDepth)

	fmt.Printf("ticker:      %s\n", ticker)
	fmt.Printf("target_ts:   %d (events span [%d, %d])\n", targetTS, data.MinTS, data.MaxTS)
	fmt.Printf("best_bid:    %.4f\n", m.BestBid)
	fmt.Printf("best_ask:    %.4f\n", m.BestAsk)
	fmt.Printf("mid:         %.4f\n", m.Mid)
	fmt.Printf("spread:      %.4f\n", m.Spread)
	fmt.Printf("imbalance:   %.4f (bid_liq %.4f / ask_liq %.4f)\n", m.Imbalance, m.BidLiq, m.AskLiq)
	if bidOK {
		fmt.Printf("bid wall:    %.4f x %.4f (score %.2f)\n", bidWall.Price, bidWall.Size, bidWall.Score)
	}
	if askOK {
		fmt.Printf("ask wall:    %.4f x %.4f (score %.2f)\n", askWall.Price, askWall.Size, askWall.Score)
	}
	fmt.Printf("bid levels:  %d\n", res.Book.Len(model.Bid))
	fmt.Printf("ask levels:  %d\n", res.Book.Len(model.Ask))
	fmt.Printf("trades:      %d (last %d kept)\n", len(res.Trades), len(res.Trades))

	series := res.Candles.Agg(tfSecs).Series()
	fmt.Printf("candles:     %d at tf=%ds\n", len(series), tfSecs)

	out := fmt.Sprintf("replay_%s_%ds_%d.csv", ticker, tfSecs, targetTS)
	if err := csvio.SaveCandlesCSV(out, tfSecs, series); err != nil {
		fmt.Fprintf(os.Stderr, "replay: save candles: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("series dump: %s\n", out)
}
