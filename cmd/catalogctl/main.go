package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/arjunkv/paperdesk/internal/catalog"
)

const usage = `usage: catalogctl [-catalog path] <command> [args]

commands:
  refresh -url URL [-exchange NSE]   sync the instrument master
  coverage                           list stored bar ranges per symbol
  validate -symbol SYM -interval 1m  check stored bars for defects
  search -q QUERY [-limit 20]        search the instrument master
`

func main() {
	catalogPath := flag.String("catalog", "data/catalog.db", "path to the SQLite bar catalog")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	store, err := catalog.Open(*catalogPath, logger)
	if err != nil {
		fatal(fmt.Errorf("open catalog: %w", err))
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "refresh":
		err = runRefresh(ctx, store, args)
	case "coverage":
		err = runCoverage(ctx, store)
	case "validate":
		err = runValidate(ctx, store, args)
	case "search":
		err = runSearch(ctx, store, args)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fatal(err)
	}
}

func runRefresh(ctx context.Context, store *catalog.Store, args []string) error {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	url := fs.String("url", "", "instrument master JSON endpoint")
	exchange := fs.String("exchange", "NSE", "exchange segment to keep")
	fs.Parse(args)

	if *url == "" {
		return fmt.Errorf("refresh requires -url")
	}

	client := catalog.NewScripClient(*url, catalog.WithRetries(3, time.Second))
	instruments, err := client.Fetch(ctx, *exchange)
	if err != nil {
		return fmt.Errorf("fetch instrument master: %w", err)
	}
	if err := store.SaveInstruments(ctx, instruments); err != nil {
		return fmt.Errorf("save instruments: %w", err)
	}
	fmt.Printf("saved %d instruments\n", len(instruments))
	return nil
}

func runCoverage(ctx context.Context, store *catalog.Store) error {
	coverage, err := store.ListCoverage(ctx)
	if err != nil {
		return err
	}
	if len(coverage) == 0 {
		fmt.Println("catalog is empty")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tINTERVAL\tBARS\tFIRST\tLAST")
	for _, c := range coverage {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			c.Symbol, c.Interval, c.Bars,
			c.First.Format("2006-01-02 15:04"),
			c.Last.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func runValidate(ctx context.Context, store *catalog.Store, args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	symbol := fs.String("symbol", "", "instrument symbol")
	interval := fs.Duration("interval", time.Minute, "bar interval")
	fs.Parse(args)

	if *symbol == "" {
		return fmt.Errorf("validate requires -symbol")
	}

	defects, err := store.ValidateBars(ctx, *symbol, *interval)
	if err != nil {
		return err
	}
	if len(defects) == 0 {
		fmt.Printf("%s %s: ok\n", *symbol, *interval)
		return nil
	}
	for _, d := range defects {
		fmt.Println(d)
	}
	return fmt.Errorf("%d defects found", len(defects))
}

func runSearch(ctx context.Context, store *catalog.Store, args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	query := fs.String("q", "", "search query")
	limit := fs.Int("limit", 20, "maximum results")
	fs.Parse(args)

	if *query == "" {
		return fmt.Errorf("search requires -q")
	}

	instruments, err := store.SearchInstruments(ctx, *query, *limit)
	if err != nil {
		return err
	}
	if len(instruments) == 0 {
		fmt.Println("no matches")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tTOKEN\tEXCHANGE\tNAME\tLOT")
	for _, in := range instruments {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", in.Symbol, in.Token, in.Exchange, in.Name, in.LotSize)
	}
	return tw.Flush()
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "catalogctl:", err)
	os.Exit(1)
}
