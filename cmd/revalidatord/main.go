// Package main is the entrypoint for the revalidation dispatcher (binary name "revalidatord").
package main

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"

	"github.com/morezero/revalidation-dispatch/internal/config"
	"github.com/morezero/revalidation-dispatch/internal/server"
	"github.com/morezero/revalidation-dispatch/pkg/commsutil"
	"github.com/morezero/revalidation-dispatch/pkg/control"
	"github.com/morezero/revalidation-dispatch/pkg/db"
)

const usage = `Usage: revalidatord [command]
       revalidatord serve                 Start the dispatcher (NATS, HTTP, control API).
       revalidatord migrate up            Run database migrations.
       revalidatord migrate down          Roll back one migration (optional; not supported by all migrations).
       revalidatord migrate status        Show migration status.
       revalidatord ensure-db [name]      Create database if missing (default name: revalidate_test). Uses DATABASE_URL host/user.
       revalidatord clear                 Truncate stored settings; schema is preserved.
       revalidatord settings list         List stored settings (secret values redacted).
       revalidatord settings set K V      Store a setting (base_url, secret, control_token).
       revalidatord revalidate SLUG...    Trigger revalidation via a running dispatcher (uses CONTROL_TOKEN).
       revalidatord revalidate-all        Trigger the common-pages batch via a running dispatcher.

Environment: DATABASE_URL (required for DB commands), COMMS_URL, CONTROL_TOKEN,
REVALIDATE_BASE_URL, REVALIDATE_SECRET, REVALIDATE_ROUTES_FILE.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("revalidatord migrate: require subcommand (up, down, status)")
		}
		sub := args[1]
		switch sub {
		case "up":
			if err := runMigrateUp(); err != nil {
				log.Fatalf("revalidatord migrate up: %v", err)
			}
		case "status":
			if err := runMigrateStatus(); err != nil {
				log.Fatalf("revalidatord migrate status: %v", err)
			}
		case "down":
			if err := runMigrateDown(); err != nil {
				log.Fatalf("revalidatord migrate down: %v", err)
			}
		default:
			log.Fatalf("revalidatord migrate: unknown subcommand %q (use up, down, status)", sub)
		}
		return
	case "clear":
		if err := runClear(); err != nil {
			log.Fatalf("revalidatord clear: %v", err)
		}
		return
	case "ensure-db":
		dbName := "revalidate_test"
		if len(args) > 1 && args[1] != "" {
			dbName = args[1]
		}
		if err := runEnsureDB(dbName); err != nil {
			log.Fatalf("revalidatord ensure-db: %v", err)
		}
		return
	case "settings":
		if len(args) < 2 {
			log.Fatalf("revalidatord settings: require subcommand (list, set)")
		}
		switch args[1] {
		case "list":
			if err := runSettingsList(); err != nil {
				log.Fatalf("revalidatord settings list: %v", err)
			}
		case "set":
			if len(args) < 4 {
				log.Fatalf("revalidatord settings set: require key and value")
			}
			if err := runSettingsSet(args[2], args[3]); err != nil {
				log.Fatalf("revalidatord settings set: %v", err)
			}
		default:
			log.Fatalf("revalidatord settings: unknown subcommand %q (use list, set)", args[1])
		}
		return
	case "revalidate":
		if len(args) < 2 {
			log.Fatalf("revalidatord revalidate: require at least one slug")
		}
		if err := runControl(control.ActionRevalidate, args[1:]); err != nil {
			log.Fatalf("revalidatord revalidate: %v", err)
		}
		return
	case "revalidate-all":
		if err := runControl(control.ActionRevalidateAll, nil); err != nil {
			log.Fatalf("revalidatord revalidate-all: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
		break
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("revalidatord: %v", err)
	}
}

func runMigrateUp() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	migrationSQL, err := db.LoadMigrationFiles(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	if err := db.RunMigrations(ctx, pool, migrationSQL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func runMigrateStatus() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	return db.MigrationStatus(ctx, pool, cfg.MigrationPath)
}

func runMigrateDown() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	return db.MigrationDown(ctx, pool, cfg.MigrationPath)
}

func runClear() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := db.ClearSettings(ctx, pool); err != nil {
		return fmt.Errorf("clear settings: %w", err)
	}
	return nil
}

func runEnsureDB(dbName string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	u, err := url.Parse(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	// Replace path with target database name; query (e.g. sslmode) is kept on u.RawQuery.
	u.Path = "/" + dbName
	targetURL := u.String()
	ctx := context.Background()
	if err := db.EnsureDatabase(ctx, targetURL); err != nil {
		return err
	}
	fmt.Printf("Database %q is ready.\n", dbName)
	return nil
}

// secretSettings are redacted in list output.
var secretSettings = map[string]bool{
	"secret":        true,
	"control_token": true,
}

func runSettingsList() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	settings, err := db.NewSettingsRepository(pool).ListSettings(ctx)
	if err != nil {
		return err
	}
	if len(settings) == 0 {
		fmt.Println("No settings stored.")
		return nil
	}
	for _, s := range settings {
		value := s.Value
		if secretSettings[s.Key] {
			value = "(redacted)"
		}
		fmt.Printf("%-16s %s\n", s.Key, value)
	}
	return nil
}

func runSettingsSet(key, value string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := db.NewSettingsRepository(pool).SetSetting(ctx, key, value); err != nil {
		return err
	}
	fmt.Printf("Setting %q stored.\n", key)
	return nil
}

// runControl sends a control request to a running dispatcher over COMMS
// and prints the per-slug outcomes.
func runControl(action string, slugs []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.TokenOverride == "" {
		return fmt.Errorf("CONTROL_TOKEN is required")
	}

	nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName+"-cli")
	if err != nil {
		return err
	}
	defer nc.Close()

	req := &control.ControlRequest{
		ID:     fmt.Sprintf("cli-%d", os.Getpid()),
		Token:  cfg.TokenOverride,
		Action: action,
	}
	if action == control.ActionRevalidate {
		params, err := commsutil.EncodePayload(control.RevalidateParams{Slugs: slugs})
		if err != nil {
			return fmt.Errorf("encode params: %w", err)
		}
		req.Params = params
	}

	subject := cfg.ControlSubject
	if subject == "" {
		subject = commsutil.SubjectControl
	}
	var resp control.ControlResponse
	if err := commsutil.RequestJSON(nc, subject, req, &resp, cfg.BatchTimeout); err != nil {
		return err
	}

	if resp.Error != nil {
		return fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Message)
	}
	fmt.Println(resp.Message)
	for _, o := range resp.Outcomes {
		fmt.Printf("  %s\n", o)
	}
	if !resp.Ok {
		return fmt.Errorf("some targets failed")
	}
	return nil
}
