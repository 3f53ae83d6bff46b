package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"xsync-go/internal/app"
	"xsync-go/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.ServerConfig, string, error) {
	defaults, err := app.GetServerDefaults()
	if err != nil {
		return nil, "", fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.ReadFromFile[config.ServerConfig](defaults["config_path"])
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}
	return cfg, defaults["config_path"], nil
}

// newApp reads the config and creates a ServerApp. The caller must defer
// a.Close().
func newApp(ctx context.Context) (*app.ServerApp, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.NewServerApp(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing server: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:          "xsyncd",
	Short:        "Deduplicating file sync server",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and periodic garbage collection",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Serve(cmd.Context())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if err := app.Migrate(cfg); err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}
		fmt.Println("Database is up to date.")
		return nil
	},
}

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Run one garbage collection pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.CollectGarbage(cmd.Context())
		fmt.Printf("Scanned %d orphan chunk(s), deleted %d, freed %d bytes\n", report.Scanned, report.Deleted, report.BytesFreed)
		if err != nil {
			return err
		}
		chunks, size, err := a.Stats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Registry holds %d chunk(s), %d bytes\n", chunks, size)
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetServerDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		cfg, err := config.NewServerConfig(defaults["base_dir"])
		if err != nil {
			return err
		}
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Database:     %s\n", cfg.Database.Path)
		fmt.Printf("Object store: %s %s\n", cfg.ObjectStore.Type, cfg.ObjectStore.FSRoot)
		fmt.Println("Run `xsyncd migrate` before the first `xsyncd serve`.")
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Printf("Configuration from %s:\n\n", path)
		redacted := *cfg
		redacted.Auth.JWTSecret = "<redacted>"
		redacted.ObjectStore.S3SecretKey = redact(redacted.ObjectStore.S3SecretKey)
		redacted.ObjectStore.MinioSecretKey = redact(redacted.ObjectStore.MinioSecretKey)
		return config.Write(os.Stdout, &redacted)
	},
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "<redacted>"
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database maintenance",
}

var dbBackupCmd = &cobra.Command{
	Use:   "backup PATH",
	Short: "Write a consistent copy of the database to PATH",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if err := app.BackupDatabase(cfg, args[0]); err != nil {
			return err
		}
		fmt.Printf("Database backed up to %s\n", args[0])
		return nil
	},
}

// user command
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage accounts",
}

var userAddCmd = &cobra.Command{
	Use:   "add EMAIL",
	Short: "Create an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Fprint(os.Stderr, "Password: ")
		pw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		if err := a.AddUser(cmd.Context(), args[0], string(pw)); err != nil {
			return err
		}
		fmt.Printf("Created user %s\n", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	dbCmd.AddCommand(dbBackupCmd)
	userCmd.AddCommand(userAddCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(gcCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(userCmd)
}
