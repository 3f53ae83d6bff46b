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
	"xsync-go/internal/xsync"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, "", fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.ReadFromFile[config.Config](defaults["config_path"])
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}
	return cfg, defaults["config_path"], nil
}

// newApp reads the config and creates a ClientApp. The caller must defer
// a.Close().
func newApp() (*app.ClientApp, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.NewClientApp(cfg, func() (string, error) {
		return readPassword("Key passphrase: ")
	})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// readPassword prompts on stderr and reads without echo.
func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(b), nil
}

var rootCmd = &cobra.Command{
	Use:          "xsync",
	Short:        "Deduplicating file sync client",
	SilenceUsage: true,
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
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		root, _ := cmd.Flags().GetString("root")
		if root == "" {
			if root, err = os.Getwd(); err != nil {
				return fmt.Errorf("getting current directory: %w", err)
			}
		}
		server, _ := cmd.Flags().GetString("server")

		cfg := config.NewConfig(defaults["base_dir"], root)
		if server != "" {
			cfg.ServerURL = server
		}
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Sync root: %s\n", cfg.RootDir)
		fmt.Printf("Server:    %s\n", cfg.ServerURL)
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
		return config.Write(os.Stdout, cfg)
	},
}

// key command
var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the encryption key",
}

var keyInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the encryption key file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		pw, err := readPassword("New key passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := readPassword("Repeat passphrase: ")
		if err != nil {
			return err
		}
		if pw != confirm {
			return fmt.Errorf("passphrases do not match")
		}
		path, err := app.InitKey(cfg, pw)
		if err != nil {
			return err
		}
		fmt.Printf("Key created at %s\n", path)
		fmt.Println("Keep the file and passphrase safe: encrypted chunks cannot be read without them.")
		return nil
	},
}

// register and login commands
func credentialsCmd(use, short string, run func(context.Context, *config.Config, string, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " EMAIL",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			pw, err := readPassword("Password: ")
			if err != nil {
				return err
			}
			if err := run(cmd.Context(), cfg, args[0], pw); err != nil {
				return err
			}
			fmt.Printf("Logged in as %s\n", args[0])
			return nil
		},
	}
}

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync [PATH]",
	Short: "Sync a file or directory with the server",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recursive, _ := cmd.Flags().GetBool("recursive")
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		target := ""
		if len(args) > 0 {
			target = args[0]
		}
		results, err := a.Sync(cmd.Context(), target, recursive)
		failed := 0
		for _, r := range results {
			if r.Err != nil {
				failed++
				fmt.Printf("%-8s %s: %v\n", "failed", r.Path, r.Err)
				continue
			}
			if r.Action == xsync.ActionNoop {
				continue
			}
			fmt.Printf("%-8s %s (%d chunks, %d transferred)\n", r.Action, r.Path, r.Chunks, r.Transferred)
		}
		if err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d file(s) failed to sync", failed, len(results))
		}
		fmt.Printf("Synced %d file(s)\n", len(results))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status PATH",
	Short: "Compare a file with its remote record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.Status(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s  %s\n", st.State, st.Path)
		if st.LocalHash != "" {
			fmt.Printf("  local:  %d bytes  mtime %d  %s\n", st.LocalSize, st.LocalModTime, st.LocalHash)
		}
		if st.RemoteHash != "" {
			fmt.Printf("  remote: %d bytes  mtime %d  %s\n", st.RemoteSize, st.RemoteModTime, st.RemoteHash)
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete PATH",
	Short: "Delete a file's remote record (the local file is kept)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		existed, err := a.Delete(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !existed {
			fmt.Println("No remote record.")
			return nil
		}
		fmt.Println("Remote record deleted.")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("root", "", "Sync root directory (default: current directory)")
	configInitCmd.Flags().String("server", "", "Server URL")

	keyCmd.AddCommand(keyInitCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keyCmd)
	rootCmd.AddCommand(credentialsCmd("register", "Create an account and log in", app.Register))
	rootCmd.AddCommand(credentialsCmd("login", "Log in to the server", app.Login))
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().BoolP("recursive", "r", false, "Recurse into subdirectories")
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(deleteCmd)
}
