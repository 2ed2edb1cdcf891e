// Package main provides CLI for identifier counter management.
// Usage: sequence create --key EMPLOYEE:FE --next 1
//
//	sequence show EMPLOYEE:FE
//	sequence backfill --prefix BX
//	sequence migrate
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"backoffice/internal/config"
	"backoffice/internal/core/sequence"
	infraseq "backoffice/internal/infrastructure/sequence"
	"backoffice/internal/infrastructure/storage/postgres"
	"backoffice/internal/infrastructure/storage/postgres/label_repo"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx := context.Background()

	switch os.Args[1] {
	case "create":
		createSequence(ctx)
	case "show":
		showSequence(ctx)
	case "activate":
		setActive(ctx, true)
	case "deactivate":
		setActive(ctx, false)
	case "backfill":
		backfill(ctx)
	case "migrate":
		migrate()
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Identifier Counter Management CLI

Usage:
  sequence <command> [options]

Commands:
  create      Create a counter
  show        Show a counter
  activate    Allow allocation from a counter
  deactivate  Refuse allocation from a counter
  backfill    Seed a barcode counter from existing serials
  migrate     Run database migrations (requires goose)
  help        Show this help

Environment Variables:
  BACKOFFICE_DATABASE_DSN   Connection string (required)

Examples:
  sequence create --key EMPLOYEE:FE --next 1
  sequence show EMPLOYEE:FE
  sequence deactivate EMPLOYEE:FE
  sequence backfill --prefix BX
  sequence migrate`)
}

type env struct {
	pool      *postgres.Pool
	txManager *postgres.TxManager
	audit     *postgres.AuditService
	counters  *infraseq.CounterService
}

func connect(ctx context.Context) *env {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.Database.DSN))
	if err != nil {
		fmt.Printf("Error connecting to database: %v\n", err)
		os.Exit(1)
	}

	txManager := postgres.NewTxManager(pool, postgres.DefaultTxOptions())
	auditService, err := postgres.NewAuditService(txManager)
	if err != nil {
		pool.Close()
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	return &env{
		pool:      pool,
		txManager: txManager,
		audit:     auditService,
		counters:  infraseq.NewCounterService(txManager, auditService),
	}
}

// flagValue returns the argument following name, or "".
func flagValue(name string) string {
	for i := 2; i < len(os.Args)-1; i++ {
		if os.Args[i] == name {
			return os.Args[i+1]
		}
	}
	return ""
}

// keyArg reads a KIND:PREFIX key from --key or the first positional argument.
func keyArg(usage string) (sequence.Kind, string) {
	key := flagValue("--key")
	if key == "" && len(os.Args) > 2 {
		key = os.Args[2]
	}
	if key == "" {
		fmt.Println("Usage: " + usage)
		os.Exit(1)
	}
	kind, prefix, err := sequence.ParseKey(key)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	return kind, prefix
}

func createSequence(ctx context.Context) {
	kind, prefix := keyArg("sequence create --key <KIND:PREFIX> [--next <n>]")

	next := int64(1)
	if raw := flagValue("--next"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 {
			fmt.Println("Error: --next must be a positive integer")
			os.Exit(1)
		}
		next = n
	}

	e := connect(ctx)
	defer e.pool.Close()

	info, err := e.counters.Create(ctx, kind.Key(prefix), next)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Counter '%s' created\n", info.Key)
	printInfo(kind, prefix, info)
}

func showSequence(ctx context.Context) {
	kind, prefix := keyArg("sequence show <KIND:PREFIX>")

	e := connect(ctx)
	defer e.pool.Close()

	key := kind.Key(prefix)
	info, err := e.counters.Get(ctx, key)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	printInfo(kind, prefix, info)

	entries, err := e.audit.History(ctx, key, 10)
	if err != nil {
		fmt.Printf("Error reading history: %v\n", err)
		os.Exit(1)
	}
	if len(entries) == 0 {
		return
	}
	fmt.Println("\n  Recent activity:")
	for _, entry := range entries {
		fmt.Printf("    %s  %-22s %s\n", entry.CreatedAt.Format("2006-01-02 15:04:05"), entry.Action, entry.Payload)
	}
}

func setActive(ctx context.Context, active bool) {
	kind, prefix := keyArg("sequence activate|deactivate <KIND:PREFIX>")

	e := connect(ctx)
	defer e.pool.Close()

	key := kind.Key(prefix)
	if err := e.counters.SetActive(ctx, key, active); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	state := "deactivated"
	if active {
		state = "activated"
	}
	fmt.Printf("✓ Counter '%s' %s\n", key, state)
}

func backfill(ctx context.Context) {
	prefix := flagValue("--prefix")
	if prefix == "" {
		fmt.Println("Usage: sequence backfill --prefix <PREFIX>")
		os.Exit(1)
	}

	e := connect(ctx)
	defer e.pool.Close()

	barcodes := label_repo.NewBarcodeRepo(e.txManager)
	scan := infraseq.NewScanAllocator(e.txManager, e.txManager, barcodes, infraseq.DefaultScanWindow)
	allocator := infraseq.NewCounterBatchAllocator(e.txManager, e.counters, e.counters, scan)

	next, err := allocator.Backfill(ctx, prefix)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	serial, _ := sequence.Format(sequence.KindBarcode, prefix, next)
	fmt.Printf("✓ Counter '%s' next value %d (%s)\n", sequence.KindBarcode.Key(prefix), next, serial)
}

func migrate() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Migrating...")
	cmd := exec.Command("goose", "-dir", "db/migrations", "postgres", cfg.Database.DSN, "up")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		fmt.Printf("  ✗ Failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("  ✓ Done\n")
}

func printInfo(kind sequence.Kind, prefix string, info *sequence.Info) {
	next, err := sequence.Format(kind, prefix, info.NextValue)
	if err != nil {
		next = "exhausted"
	}
	fmt.Printf("  Key:        %s\n", info.Key)
	fmt.Printf("  Next value: %d (%s)\n", info.NextValue, next)
	fmt.Printf("  Active:     %t\n", info.Active)
	fmt.Printf("  Updated:    %s\n", info.UpdatedAt.Format("2006-01-02 15:04:05"))
}
