// Command gen_ticks writes a synthetic tick CSV suitable for CSV_PATH: a
// random walk with one 5m candle attached per bar close.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"
	"time"
)

func main() {
	var (
		out       = flag.String("out", "./data/ticks.csv", "output file")
		symbol    = flag.String("symbol", "NIFTY", "symbol column value")
		timeframe = flag.String("timeframe", "5m", "timeframe column value")
		n         = flag.Int("n", 22500, "number of ticks")
		start     = flag.Float64("price", 22000, "starting price")
		seed      = flag.Int64("seed", 42, "random seed")
	)
	flag.Parse()

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("create %s: %v", *out, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()
	if err := w.Write([]string{"timestamp", "symbol", "timeframe", "price", "open", "high", "low", "close", "volume"}); err != nil {
		log.Fatalf("write header: %v", err)
	}

	rng := rand.New(rand.NewSource(*seed))
	ts := time.Date(2025, 3, 10, 9, 15, 0, 0, time.UTC)
	price := *start
	open, high, low := price, price, price
	volume := 0

	for i := 0; i < *n; i++ {
		price += (rng.Float64() - 0.5) * 8
		if price > high {
			high = price
		}
		if price < low {
			low = price
		}
		volume += rng.Intn(500)

		rec := []string{
			ts.Format(time.RFC3339),
			*symbol,
			*timeframe,
			fmtF(price),
			fmtF(open), fmtF(high), fmtF(low), fmtF(price),
			strconv.Itoa(volume),
		}
		if err := w.Write(rec); err != nil {
			log.Fatalf("write row %d: %v", i, err)
		}

		ts = ts.Add(time.Second)
		if ts.Second() == 0 && ts.Minute()%5 == 0 {
			open, high, low = price, price, price
			volume = 0
		}
	}

	fmt.Printf("wrote %d ticks to %s\n", *n, *out)
}

func fmtF(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
