// Command demo runs a small banking workload against a Postgres event store:
// it opens a set of accounts, performs random deposits and withdrawals through
// the command handler, and finally prints every balance computed by streaming
// the events back through a projection.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"

	"github.com/replay-es/replay-go/cqrs"
	"github.com/replay-es/replay-go/eserrors"
	"github.com/replay-es/replay-go/eventstore"
	"github.com/replay-es/replay-go/eventstore/oteladapters"
	"github.com/replay-es/replay-go/eventstore/postgresengine"
	"github.com/replay-es/replay-go/example/bankaccount"
)

type config struct {
	dsn           string
	accounts      int
	operations    int
	observability bool
}

type services struct{}

func (services) ValidateAccountNumber(_ context.Context, accountNumber string) bool {
	return len(accountNumber) >= 5
}

func main() {
	cfg := parseFlags()
	if cfg.dsn == "" {
		log.Fatal("no database configured, pass -dsn or set EVENTSTORE_DSN")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("demo failed: %v", err)
	}
}

func run(ctx context.Context, cfg config) error {
	pool, err := pgxpool.New(ctx, cfg.dsn)
	if err != nil {
		return fmt.Errorf("creating pgx pool: %w", err)
	}
	defer pool.Close()

	if err = pool.Ping(ctx); err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}

	store, err := postgresengine.NewEventStoreFromPGXPool(pool, storeOptions(cfg)...)
	if err != nil {
		return fmt.Errorf("creating event store: %w", err)
	}

	handler, err := cqrs.NewHandler(store, bankaccount.Type())
	if err != nil {
		return fmt.Errorf("creating command handler: %w", err)
	}

	ids, err := openAccounts(ctx, handler, cfg.accounts)
	if err != nil {
		return err
	}

	if err = runOperations(ctx, handler, ids, cfg.operations); err != nil {
		return err
	}

	return printBalances(ctx, store)
}

func storeOptions(cfg config) []postgresengine.Option {
	if !cfg.observability {
		return nil
	}

	// Providers are whatever was installed globally; without an exporter
	// configured these are no-ops.
	return []postgresengine.Option{
		postgresengine.WithContextualLogger(oteladapters.NewSlogBridgeLogger("bankaccount-demo")),
		postgresengine.WithMetrics(oteladapters.NewMetricsCollector(otel.Meter("bankaccount-demo"))),
		postgresengine.WithTracing(oteladapters.NewTracingCollector(otel.Tracer("bankaccount-demo"))),
	}
}

func openAccounts(
	ctx context.Context,
	handler *cqrs.Handler[*bankaccount.Account, bankaccount.Event, bankaccount.Command, bankaccount.Services],
	count int,
) ([]eventstore.StreamID, error) {

	ids := make([]eventstore.StreamID, 0, count)

	for i := range count {
		id, err := eventstore.NewStreamID(bankaccount.Namespace, fmt.Sprintf("demo-%04d", i))
		if err != nil {
			return nil, err
		}

		command := bankaccount.OpenAccount{AccountNumber: fmt.Sprintf("ACC-%04d", i)}

		_, err = handler.Execute(ctx, id, eventstore.Metadata{}, command, services{}, eventstore.ExactVersion(0))
		switch {
		case err == nil:
			log.Printf("opened account %s", id)
		case eserrors.IsConflict(err):
			log.Printf("account %s already exists, reusing it", id)
		default:
			return nil, fmt.Errorf("opening account %s: %w", id, err)
		}

		ids = append(ids, id)
	}

	return ids, nil
}

// runOperations performs random deposits and withdrawals, each guarded by an
// exact version expectation taken from a fresh replay. A conflict means a
// concurrent writer got there first; the demo just moves on.
func runOperations(
	ctx context.Context,
	handler *cqrs.Handler[*bankaccount.Account, bankaccount.Event, bankaccount.Command, bankaccount.Services],
	ids []eventstore.StreamID,
	count int,
) error {

	for range count {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		id := ids[rand.Intn(len(ids))]

		_, version, err := handler.Load(ctx, id)
		if err != nil {
			return fmt.Errorf("replaying account %s: %w", id, err)
		}

		amount := int64(rand.Intn(10000) + 1)
		var command bankaccount.Command = bankaccount.Deposit{Amount: amount}
		if rand.Intn(2) == 0 {
			command = bankaccount.Withdraw{Amount: amount}
		}

		_, err = handler.Execute(ctx, id, eventstore.Metadata{}, command, services{}, eventstore.ExactVersion(version))
		switch {
		case err == nil:
		case eserrors.IsConflict(err):
			log.Printf("account %s: lost a concurrency race, skipping", id)
		case eserrors.IsKind(err, eserrors.KindBusinessRuleViolation):
			log.Printf("account %s: command rejected: %v", id, err)
		default:
			return fmt.Errorf("executing command on %s: %w", id, err)
		}
	}

	return nil
}

func printBalances(ctx context.Context, store eventstore.EventStore) error {
	projection := bankaccount.NewBalanceProjection(eventstore.ForStreamTypes(bankaccount.StreamType))

	if err := cqrs.RunQuery(ctx, store, bankaccount.UnmarshalEvent, projection); err != nil {
		return fmt.Errorf("running balance projection: %w", err)
	}

	accounts := make([]string, 0, len(projection.Balances))
	for account := range projection.Balances {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)

	for _, account := range accounts {
		balance := projection.Balances[account]
		fmt.Printf("%s\t%d.%02d\n", account, balance/100, balance%100)
	}

	return nil
}

func parseFlags() config {
	var cfg config

	flag.StringVar(&cfg.dsn, "dsn", os.Getenv("EVENTSTORE_DSN"), "Postgres connection string")
	flag.IntVar(&cfg.accounts, "accounts", 10, "number of accounts to open")
	flag.IntVar(&cfg.operations, "operations", 100, "number of deposits and withdrawals to perform")
	flag.BoolVar(&cfg.observability, "observability-enabled", false, "wire OpenTelemetry adapters into the event store")

	flag.Parse()

	return cfg
}
