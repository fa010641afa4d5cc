// Command ledgerctl runs maintenance tasks against the ledger database: schema
// migrations, reputation decay passes and platform statistics.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/spf13/pflag"

	"github.com/inaiurai/shellmarket/internal/config"
	"github.com/inaiurai/shellmarket/internal/store/postgres"
)

const usage = `usage: ledgerctl [--database-url URL] <command>

commands:
  migrate               apply the ledger and job queue schemas
  stats                 show the platform fee pool and completed job count
  decay preview         show what a decay pass would change
  decay apply           run a decay pass now
  decay agent <id>      show one agent's inactivity and pending decay
`

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Getenv); err != nil {
		fmt.Fprintln(os.Stderr, "ledgerctl:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer, getenv func(string) string) error {
	fs := pflag.NewFlagSet("ledgerctl", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }

	defaultDSN := getenv("DATABASE_URL")
	if defaultDSN == "" {
		defaultDSN = config.Default().DatabaseURL
	}
	dsn := fs.String("database-url", defaultDSN, "Postgres connection string")
	verbose := fs.BoolP("verbose", "v", false, "log debug output to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("missing command")
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	pg, err := postgres.Open(ctx, *dsn)
	if err != nil {
		return err
	}
	defer pg.Close()

	c := &cli{st: pg, out: out, log: logger, migrate: func(ctx context.Context) error {
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		migrator, err := rivermigrate.New(riverpgxv5.New(pg.Pool()), nil)
		if err != nil {
			return fmt.Errorf("create river migrator: %w", err)
		}
		res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
		if err != nil {
			return fmt.Errorf("river migrate up: %w", err)
		}
		fmt.Fprintf(out, "ledger schema applied, %d river migrations run\n", len(res.Versions))
		return nil
	}}
	return c.dispatch(ctx, fs.Args())
}
