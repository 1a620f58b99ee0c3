package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"

	"github.com/hiveworks/hive/internal/adapter/postgres"
	"github.com/hiveworks/hive/internal/config"
	"github.com/hiveworks/hive/internal/secrets"
)

// runAdmin dispatches admin subcommands (set-secret, migrate-down).
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "set-secret":
		return runAdminSetSecret(args[1:])
	case "migrate-down":
		return runAdminMigrateDown(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: hive admin <command> [options]

Commands:
  set-secret     Store a secret in the secrets file
  migrate-down   Roll back the last N database migrations
  help           Show this help message

Examples:
  hive admin set-secret --key LITELLM_API_KEY
  hive admin migrate-down --steps 1
`)
}

func runAdminSetSecret(args []string) error {
	fs := flag.NewFlagSet("set-secret", flag.ContinueOnError)
	key := fs.String("key", "", "secret key (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *key == "" {
		return fmt.Errorf("--key is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Secrets.File == "" {
		return fmt.Errorf("secrets.file is not configured")
	}

	value, err := promptSecret("Value: ")
	if err != nil {
		return fmt.Errorf("read value: %w", err)
	}
	if value == "" {
		return fmt.Errorf("value must not be empty")
	}

	if err := secrets.WriteSecret(cfg.Secrets.File, *key, value); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Secret %s stored in %s\n", *key, cfg.Secrets.File)
	return nil
}

func runAdminMigrateDown(args []string) error {
	fs := flag.NewFlagSet("migrate-down", flag.ContinueOnError)
	steps := fs.Int("steps", 1, "number of migrations to roll back")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *steps < 1 {
		return fmt.Errorf("--steps must be at least 1")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := postgres.RollbackMigrations(context.Background(), cfg.Postgres.DSN, *steps); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Rolled back %d migration(s)\n", *steps)
	return nil
}

// promptSecret reads a value from the terminal without echoing.
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
