// Command bazaar runs the commodity-exchange engine as a standalone
// process: `bazaar server` exposes a SQL-backed market over the wire
// protocol, `bazaar client` connects a REPL front-end to one.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/hexwell/bazaar"
	"github.com/hexwell/bazaar/catalog"
	"github.com/hexwell/bazaar/wire"
)

func main() {
	// A missing .env file is fine; plain environment variables still apply.
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	bazaar.SetLogger(logger)
	wire.SetLogger(logger)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "server":
		err = runServer(os.Args[2:], logger)
	case "client":
		err = runClient(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "bazaar:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  bazaar server --address <inet:host:port|socket:path> [--db file] [--catalog file]
  bazaar client --address <inet:host:port|socket:path>`)
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func runServer(args []string, logger *zap.Logger) error {
	flags := flag.NewFlagSet("server", flag.ExitOnError)
	address := flags.String("address", envOr("BAZAAR_ADDRESS", "inet:127.0.0.1:25600"), "listen address")
	dbPath := flags.String("db", envOr("BAZAAR_DB", "bazaar.db"), "sqlite database file")
	catalogPath := flags.String("catalog", envOr("BAZAAR_CATALOG", "catalog.json"), "catalogue definition file")
	if err := flags.Parse(args); err != nil {
		return err
	}

	provider, err := loadCatalogue(*catalogPath)
	if err != nil {
		return err
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		return err
	}
	// The engine serializes all access; a second sqlite connection would
	// only contend on the file lock.
	db.SetMaxOpenConns(1)

	store := bazaar.NewSQLStore(db, provider)
	market := bazaar.NewMarket(store, provider)
	svc := bazaar.NewQueuedMarketService(market)

	server, err := wire.Listen(*address, svc)
	if err != nil {
		return err
	}
	logger.Info("server listening",
		zap.String("address", *address),
		zap.String("db", *dbPath),
		zap.Int("products", len(provider.Products())))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		logger.Info("shutting down")
		_ = server.Close()
	}()

	if err := server.Serve(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return svc.Close(ctx)
}

func runClient(args []string) error {
	flags := flag.NewFlagSet("client", flag.ExitOnError)
	address := flags.String("address", envOr("BAZAAR_ADDRESS", "inet:127.0.0.1:25600"), "server address")
	if err := flags.Parse(args); err != nil {
		return err
	}

	client, err := wire.Dial(*address)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close(context.Background()) }()

	return runREPL(client)
}

// catalogueFile is the on-disk catalogue definition consumed by the
// server. The engine never writes it; the game/economy side owns it.
type catalogueFile struct {
	Categories []catalog.Category `json:"categories"`
	Products   []catalog.Product  `json:"products"`
}

func loadCatalogue(path string) (*catalog.MemoryProvider, error) {
	provider := catalog.NewMemoryProvider()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// An empty catalogue is legal; orders just cannot be placed
			// until products exist.
			return provider, nil
		}
		return nil, err
	}

	var file catalogueFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("catalogue %s: %w", path, err)
	}
	for i := range file.Categories {
		provider.PutCategory(&file.Categories[i])
	}
	for i := range file.Products {
		provider.PutProduct(&file.Products[i])
	}
	return provider, nil
}
