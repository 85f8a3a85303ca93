package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/arjunkv/paperdesk/internal/api"
	"github.com/arjunkv/paperdesk/internal/bars"
	"github.com/arjunkv/paperdesk/internal/calendar"
	"github.com/arjunkv/paperdesk/internal/catalog"
	"github.com/arjunkv/paperdesk/internal/compliance"
	"github.com/arjunkv/paperdesk/internal/config"
	"github.com/arjunkv/paperdesk/internal/database"
	"github.com/arjunkv/paperdesk/internal/dispatch"
	"github.com/arjunkv/paperdesk/internal/feed"
	"github.com/arjunkv/paperdesk/internal/model"
	"github.com/arjunkv/paperdesk/internal/paper"
	"github.com/arjunkv/paperdesk/internal/risk"
	"github.com/arjunkv/paperdesk/internal/strategy"
	"github.com/arjunkv/paperdesk/internal/version"
	"github.com/arjunkv/paperdesk/internal/writer"
)

// fillFanout delivers every fill to each registered sink.
type fillFanout []paper.FillSink

func (f fillFanout) Record(fill model.Fill) {
	for _, s := range f {
		s.Record(fill)
	}
}

// fillFunc adapts a function to the FillSink interface.
type fillFunc func(model.Fill)

func (f fillFunc) Record(fill model.Fill) { f(fill) }

func main() {
	configPath := flag.String("config", "configs/traderd.local.yaml", "path to config file")
	replayFrom := flag.String("replay-from", "", "replay window start (YYYY-MM-DD or RFC 3339)")
	replayTo := flag.String("replay-to", "", "replay window end (YYYY-MM-DD or RFC 3339)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	// Local overrides (.env is optional).
	_ = godotenv.Load()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting traderd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"feed_mode", cfg.Feed.Mode,
		"symbols", len(cfg.Feed.Symbols),
		"strategies", len(cfg.Strategies),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Session calendar and monitor.
	cal := calendar.New(cfg.Session.Holidays)
	monitor := calendar.NewMonitor(cal, 30*time.Second, logger)

	// Local historical catalog (SQLite). Optional.
	var store *catalog.Store
	if cfg.Catalog.Path != "" {
		store, err = catalog.Open(cfg.Catalog.Path, logger)
		if err != nil {
			logger.Error("failed to open catalog", "path", cfg.Catalog.Path, "error", err)
			os.Exit(1)
		}
		defer store.Close()
	}

	var refresher *catalog.Refresher
	if store != nil && cfg.Catalog.ScripMasterURL != "" {
		client := catalog.NewScripClient(cfg.Catalog.ScripMasterURL)
		refresher = catalog.NewRefresher(cfg.Catalog.RefreshInterval, exchanges(cfg.Feed.Symbols), client, store, logger)
	}

	// Tick source.
	src, err := buildFeed(cfg, store, *replayFrom, *replayTo, logger)
	if err != nil {
		logger.Error("failed to build feed", "error", err)
		os.Exit(1)
	}

	dispatcher := dispatch.NewDispatcher(src.Ticks(), logger)

	// Optional live persistence (TimescaleDB).
	var (
		tickWriter *writer.TickWriter
		barWriter  *writer.BarWriter
		journal    *writer.JournalWriter
		tickQueue  *dispatch.Queue[model.Tick]
		barQueue   *dispatch.Queue[model.Bar]
	)
	wcfg := writer.Config{BatchSize: cfg.Writers.BatchSize, FlushInterval: cfg.Writers.FlushInterval}
	if cfg.Database.Enabled {
		logger.Info("connecting to database", "host", cfg.Database.Host, "database", cfg.Database.Name)
		db, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := database.EnsureSchema(ctx, db); err != nil {
			logger.Error("failed to ensure schema", "error", err)
			os.Exit(1)
		}
		logger.Info("database connected")

		tickQueue = dispatch.NewQueue[model.Tick](cfg.Writers.BufferSize)
		barQueue = dispatch.NewQueue[model.Bar](cfg.Writers.BufferSize)
		tickWriter = writer.NewTickWriter(wcfg, tickQueue, db, logger)
		barWriter = writer.NewBarWriter(wcfg, barQueue, db, logger)
		journal = writer.NewJournalWriter(wcfg, db, logger)
	}

	// Risk and compliance.
	sizer := risk.NewSizer(cfg.Paper.InitialCapital, cfg.Risk, logger)
	breakers := risk.NewBreakers(cal, logger)
	guard := compliance.NewGuard(cfg.Compliance, logger)

	// Paper engine. Fills fan out to the stream hub, the risk sizer and,
	// when persistence is on, the journal writer.
	hub := api.NewHub(logger)
	sink := fillFanout{
		fillFunc(hub.BroadcastFill),
		fillFunc(func(f model.Fill) { sizer.RecordPnL(f.PnL) }),
	}
	if journal != nil {
		sink = append(sink, journal)
	}
	portfolio := paper.NewPortfolio(cfg.Paper, sink, logger)
	gtts := paper.NewGTTBook(portfolio, logger)
	brackets := paper.NewBracketBook(portfolio, gtts, logger)

	// Bar aggregation and strategies.
	aggregator, err := bars.NewAggregator(cfg.Bars.Intervals, cfg.Writers.BufferSize, logger)
	if err != nil {
		logger.Error("failed to build aggregator", "error", err)
		os.Exit(1)
	}

	managerInput := make(chan model.Bar, 256)
	gates := []strategy.Gate{
		guard,
		strategy.GateFunc(func(symbol string, side model.Side, qty int64, price float64) error {
			if !breakers.Allowed(symbol) {
				return fmt.Errorf("circuit breaker active for %s", symbol)
			}
			return nil
		}),
		strategy.GateFunc(func(symbol string, side model.Side, qty int64, price float64) error {
			if side == model.SideSell {
				return nil // Exits are always allowed
			}
			return sizer.ValidateOrder(symbol, qty, price, model.ProductIntraday)
		}),
	}
	manager := strategy.NewManager(managerInput, portfolio, gates, logger)
	manager.SetSignalSink(hub.BroadcastSignal)
	for _, sc := range cfg.Strategies {
		if err := manager.Add(sc); err != nil {
			logger.Error("failed to add strategy", "name", sc.Name, "error", err)
			os.Exit(1)
		}
	}

	server := api.NewServer(cfg.API, api.Deps{
		Portfolio:  portfolio,
		GTTs:       gtts,
		Brackets:   brackets,
		Strategies: manager,
		Dispatcher: dispatcher,
		Catalog:    store,
		Sizer:      sizer,
		Breakers:   breakers,
		Calendar:   cal,
		Guard:      guard,
		Hub:        hub,
	}, logger)

	// Start components: consumers first, then the dispatcher, then the feed.
	if refresher != nil {
		if err := refresher.Start(ctx); err != nil {
			logger.Error("failed to start catalog refresher", "error", err)
			os.Exit(1)
		}
	}
	if tickWriter != nil {
		if err := tickWriter.Start(ctx); err != nil {
			logger.Error("failed to start tick writer", "error", err)
			os.Exit(1)
		}
	}
	if barWriter != nil {
		if err := barWriter.Start(ctx); err != nil {
			logger.Error("failed to start bar writer", "error", err)
			os.Exit(1)
		}
	}
	if journal != nil {
		if err := journal.Start(ctx); err != nil {
			logger.Error("failed to start journal writer", "error", err)
			os.Exit(1)
		}
	}

	paperTicks := dispatcher.Subscribe("paper", 1024)
	aggTicks := dispatcher.Subscribe("bars", 1024)
	streamTicks := dispatcher.Subscribe("stream", 1024)
	manager.SetTickInput(dispatcher.Subscribe("strategy", 1024))
	var persistTicks <-chan model.Tick
	if tickQueue != nil {
		persistTicks = dispatcher.Subscribe("persist", 1024)
	}

	// Resting orders and GTT triggers evaluate on every tick.
	go func() {
		for tick := range paperTicks {
			portfolio.OnTick(tick.Symbol, tick.LTP)
			gtts.OnTick(tick.Symbol, tick.LTP)
		}
	}()
	go func() {
		for tick := range aggTicks {
			aggregator.Process(tick)
		}
	}()
	go func() {
		for tick := range streamTicks {
			hub.BroadcastTick(tick)
		}
	}()
	if persistTicks != nil {
		go func() {
			for tick := range persistTicks {
				tickQueue.Push(tick)
			}
		}()
	}

	// Closed bars feed the strategies, the stream and the bar writer.
	go func() {
		for bar := range aggregator.Bars() {
			hub.BroadcastBar(bar)
			if barQueue != nil {
				barQueue.Push(bar)
			}
			select {
			case managerInput <- bar:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Session transitions drive daily resets and the MIS square-off.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case tr := <-monitor.Transitions():
				if tr.To == calendar.SessionPreOpen {
					portfolio.ResetDaily()
					sizer.ResetDaily(portfolio.TotalValue(dispatcher.LastPrices()))
					logger.Info("daily counters reset", "session", string(tr.To))
				}
			case at := <-monitor.SquareOff():
				if !cfg.Session.AutoSquareOff {
					continue
				}
				closed := portfolio.SquareOffAll(dispatcher.LastPrices(), "square_off")
				logger.Info("auto square-off executed", "orders", len(closed), "at", at)
			}
		}
	}()

	if err := monitor.Start(ctx); err != nil {
		logger.Error("failed to start session monitor", "error", err)
		os.Exit(1)
	}
	if err := manager.Start(ctx); err != nil {
		logger.Error("failed to start strategy manager", "error", err)
		os.Exit(1)
	}
	if err := dispatcher.Start(ctx); err != nil {
		logger.Error("failed to start dispatcher", "error", err)
		os.Exit(1)
	}
	if err := src.Start(ctx); err != nil {
		logger.Error("failed to start feed", "error", err)
		os.Exit(1)
	}
	if err := server.Start(ctx); err != nil {
		logger.Error("failed to start api server", "error", err)
		os.Exit(1)
	}

	logger.Info("traderd running",
		"instance_id", cfg.Instance.ID,
		"addr", cfg.API.Addr,
		"session", string(cal.CurrentSession()),
	)

	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	_ = server.Stop(shutdownCtx)
	_ = hub.Stop(shutdownCtx)
	_ = src.Stop(shutdownCtx)
	_ = dispatcher.Stop(shutdownCtx)
	manager.StopAll()
	_ = manager.Stop(shutdownCtx)
	aggregator.Flush()
	if tickWriter != nil {
		_ = tickWriter.Stop(shutdownCtx)
	}
	if barWriter != nil {
		_ = barWriter.Stop(shutdownCtx)
	}
	if journal != nil {
		_ = journal.Stop(shutdownCtx)
	}
	_ = monitor.Stop(shutdownCtx)
	if refresher != nil {
		_ = refresher.Stop(shutdownCtx)
	}

	logger.Info("traderd stopped")
}

// tickSource is the common surface of the live and replay feeds.
type tickSource interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Ticks() <-chan model.Tick
}

func buildFeed(cfg *config.Config, store *catalog.Store, fromArg, toArg string, logger *slog.Logger) (tickSource, error) {
	switch cfg.Feed.Mode {
	case "replay":
		if store == nil {
			return nil, fmt.Errorf("replay mode requires a catalog path")
		}
		from, to, err := replayWindow(fromArg, toArg)
		if err != nil {
			return nil, err
		}
		logger.Info("replay window", "from", from, "to", to)
		return feed.NewReplayFeed(cfg.Feed, store, from, to, logger), nil
	default:
		return feed.NewLiveFeed(cfg.Feed, logger), nil
	}
}

// replayWindow parses the -replay-from/-replay-to flags. Defaults to the
// current IST day.
func replayWindow(fromArg, toArg string) (time.Time, time.Time, error) {
	now := time.Now().In(calendar.IST)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, calendar.IST)
	to := now

	var err error
	if fromArg != "" {
		if from, err = parseTimeArg(fromArg); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -replay-from: %w", err)
		}
	}
	if toArg != "" {
		if to, err = parseTimeArg(toArg); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -replay-to: %w", err)
		}
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("replay window is empty: %s to %s", from, to)
	}
	return from, to, nil
}

func parseTimeArg(v string) (time.Time, error) {
	if t, err := time.ParseInLocation("2006-01-02", v, calendar.IST); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, v)
}

// exchanges collects the distinct exchanges of the configured symbols.
func exchanges(symbols []config.SymbolConfig) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range symbols {
		ex := s.Exchange
		if ex == "" {
			ex = "NSE"
		}
		if _, ok := seen[ex]; ok {
			continue
		}
		seen[ex] = struct{}{}
		out = append(out, ex)
	}
	if len(out) == 0 {
		out = []string{"NSE"}
	}
	return out
}
