package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/alim08/cryptobook/pkg/database"
	"github.com/alim08/cryptobook/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	cmd := flag.String("cmd", "up", "migration command: up, down or status")
	timeout := flag.Duration("timeout", time.Minute, "overall deadline")
	flag.Parse()

	// Initialize logger
	if err := logger.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	defer logger.Log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := database.New(ctx, database.NewConfig())
	if err != nil {
		logger.Log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := runCommand(ctx, db, *cmd, os.Stdout); err != nil {
		logger.Log.Error("migration command failed", zap.String("cmd", *cmd), zap.Error(err))
		db.Close()
		os.Exit(1)
	}
}

func runCommand(ctx context.Context, db *database.DB, cmd string, out io.Writer) error {
	switch cmd {
	case "up":
		if err := db.RunMigrations(ctx); err != nil {
			return err
		}
		logger.Log.Info("migrations applied")
		return nil
	case "down":
		return db.RollbackMigration(ctx)
	case "status":
		status, err := db.GetMigrationStatus(ctx)
		if err != nil {
			return err
		}
		return printStatus(out, status)
	default:
		return fmt.Errorf("unknown command %q (want up, down or status)", cmd)
	}
}

func printStatus(out io.Writer, status []database.MigrationStatus) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tAPPLIED\tAPPLIED AT\tDESCRIPTION")
	for _, s := range status {
		at := "-"
		if s.Applied {
			at = s.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%d\t%t\t%s\t%s\n", s.Version, s.Applied, at, s.Description)
	}
	return tw.Flush()
}
