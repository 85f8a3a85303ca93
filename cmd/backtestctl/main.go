package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/arjunkv/paperdesk/internal/backtest"
	"github.com/arjunkv/paperdesk/internal/calendar"
	"github.com/arjunkv/paperdesk/internal/catalog"
	"github.com/arjunkv/paperdesk/internal/config"
	"github.com/arjunkv/paperdesk/internal/strategy"
)

func main() {
	catalogPath := flag.String("catalog", "data/catalog.db", "path to the SQLite bar catalog")
	symbol := flag.String("symbol", "", "instrument symbol, e.g. SBIN-EQ")
	kind := flag.String("strategy", "", "strategy kind: ema_crossover, rsi_reversion, supertrend")
	interval := flag.Duration("interval", time.Minute, "bar interval")
	fromArg := flag.String("from", "", "window start (YYYY-MM-DD or RFC 3339)")
	toArg := flag.String("to", "", "window end (YYYY-MM-DD or RFC 3339)")
	capital := flag.Float64("capital", 1_000_000, "initial capital in rupees")
	quantity := flag.Int64("qty", 1, "order quantity in units")
	commission := flag.Float64("commission", 0.0003, "commission as a fraction of order value")
	slippage := flag.Float64("slippage", 0.0001, "slippage as a fraction of price")
	params := flag.String("params", "", "strategy params, e.g. fast=9,slow=21")
	jsonOut := flag.Bool("json", false, "emit the full result as JSON")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if *symbol == "" || *kind == "" || *fromArg == "" {
		fmt.Fprintln(os.Stderr, "usage: backtestctl -symbol SBIN-EQ -strategy supertrend -from 2026-08-01 [-to 2026-08-29]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	from, to, err := parseWindow(*fromArg, *toArg)
	if err != nil {
		fatal(err)
	}

	tuning, err := parseParams(*params)
	if err != nil {
		fatal(err)
	}

	strat, err := strategy.New(config.StrategyConfig{
		Name:     *kind,
		Kind:     *kind,
		Symbol:   *symbol,
		Quantity: *quantity,
		Interval: *interval,
		Params:   tuning,
	})
	if err != nil {
		fatal(err)
	}

	store, err := catalog.Open(*catalogPath, logger)
	if err != nil {
		fatal(fmt.Errorf("open catalog: %w", err))
	}
	defer store.Close()

	engine := backtest.NewEngine(store, logger)
	result, err := engine.Run(context.Background(), strat, backtest.Config{
		Symbol:         *symbol,
		Interval:       *interval,
		From:           from,
		To:             to,
		InitialCapital: *capital,
		Quantity:       *quantity,
		CommissionPct:  *commission,
		SlippagePct:    *slippage,
	})
	if err != nil {
		fatal(err)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			fatal(err)
		}
		return
	}
	fmt.Println(result.Summary())
}

// parseWindow resolves the -from/-to flags. An empty -to means now.
func parseWindow(fromArg, toArg string) (time.Time, time.Time, error) {
	from, err := parseTimeArg(fromArg)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid -from: %w", err)
	}
	to := time.Now()
	if toArg != "" {
		if to, err = parseTimeArg(toArg); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -to: %w", err)
		}
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("window is empty: %s to %s", from, to)
	}
	return from, to, nil
}

func parseTimeArg(v string) (time.Time, error) {
	if t, err := time.ParseInLocation("2006-01-02", v, calendar.IST); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, v)
}

// parseParams turns "fast=9,slow=21" into a params map.
func parseParams(v string) (map[string]float64, error) {
	if v == "" {
		return nil, nil
	}
	out := make(map[string]float64)
	for _, pair := range strings.Split(v, ",") {
		key, val, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return nil, fmt.Errorf("invalid param %q, want key=value", pair)
		}
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid param %q: %w", pair, err)
		}
		out[key] = f
	}
	return out, nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "backtestctl:", err)
	os.Exit(1)
}
