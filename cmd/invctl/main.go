// Command invctl is a terminal client of the inventory backend. It keeps the
// session token in a local DuckDB file and applies the same session and
// permission checks as the web gateway.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stockroom-labs/inventory-gate/auth"
	"github.com/stockroom-labs/inventory-gate/client"
	"github.com/stockroom-labs/inventory-gate/session"
	"github.com/stockroom-labs/inventory-gate/storage"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// errSilent makes main exit non-zero without printing anything more; the
// command already reported the outcome.
var errSilent = errors.New("")

func main() {
	if err := execute(os.Stdin, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		if err != errSilent {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

// config is the resolved CLI configuration.
type config struct {
	BackendURL         string        `mapstructure:"backend_url"`
	StoragePath        string        `mapstructure:"storage_path"`
	Timeout            time.Duration `mapstructure:"timeout"`
	Verbose            bool          `mapstructure:"verbose"`
	KeepSessionOnError bool          `mapstructure:"keep_session_on_error"`
}

// app holds what a command needs once configuration is loaded.
type app struct {
	cfg     config
	logger  *zap.Logger
	storage *storage.DuckDB
	client  *client.Client
	store   *session.Store
	guards  auth.GuardOptions

	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

func defaultStoragePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "invctl.duckdb"
	}
	return filepath.Join(home, ".config", "invctl", "session.duckdb")
}

// loadConfig reads invctl.yaml from $HOME/.config/invctl or the working
// directory, then INVCTL_* environment variables, then flags.
func loadConfig(v *viper.Viper) (config, error) {
	v.SetConfigName("invctl")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "invctl"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("INVCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("backend_url", "http://localhost:8000")
	v.SetDefault("storage_path", defaultStoragePath())
	v.SetDefault("timeout", client.DefaultTimeout)
	v.SetDefault("verbose", false)
	v.SetDefault("keep_session_on_error", false)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return config{}, fmt.Errorf("unable to decode config: %w", err)
	}
	return cfg, nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

// execute runs one invctl invocation and releases the session database
// whatever the outcome.
func execute(in io.Reader, out, errOut io.Writer, args []string) error {
	a := &app{in: in, out: out, errOut: errOut}
	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	err := cmd.Execute()
	if closeErr := a.close(); err == nil {
		err = closeErr
	}
	return err
}

func newRootCmd(a *app) *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "invctl",
		Short: "Terminal client for the inventory backend",
		Long: `A CLI client for the inventory backend.

This tool allows you to:
  - Log in and out, and show the current user and its permissions
  - Print the navigation menu visible to you
  - Check whether you may open an application page
  - Manage users (admin only)

The session token is kept in a local DuckDB file between runs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(v)
		},
	}
	rootCmd.SetIn(a.in)
	rootCmd.SetOut(a.out)
	rootCmd.SetErr(a.errOut)

	flags := rootCmd.PersistentFlags()
	flags.String("backend-url", "", "Base URL of the inventory backend")
	flags.String("storage", "", "Path to the local session database")
	flags.Duration("timeout", 0, "Backend request timeout")
	flags.BoolP("verbose", "v", false, "Verbose logging")
	flags.Bool("keep-session-on-error", false, "Keep the session when the backend is unreachable instead of logging out")
	v.BindPFlag("backend_url", flags.Lookup("backend-url"))
	v.BindPFlag("storage_path", flags.Lookup("storage"))
	v.BindPFlag("timeout", flags.Lookup("timeout"))
	v.BindPFlag("verbose", flags.Lookup("verbose"))
	v.BindPFlag("keep_session_on_error", flags.Lookup("keep-session-on-error"))

	rootCmd.AddCommand(loginCmd(a))
	rootCmd.AddCommand(logoutCmd(a))
	rootCmd.AddCommand(whoamiCmd(a))
	rootCmd.AddCommand(statusCmd(a))
	rootCmd.AddCommand(navCmd(a))
	rootCmd.AddCommand(routesCmd(a))
	rootCmd.AddCommand(openCmd(a))
	rootCmd.AddCommand(userCmd(a))

	return rootCmd
}

// setup loads configuration and opens the session.
func (a *app) setup(v *viper.Viper) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.logger, err = newLogger(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	a.client, err = client.New(client.Config{
		BaseURL: cfg.BackendURL,
		Timeout: cfg.Timeout,
		Logger:  a.logger.Named("backend"),
	})
	if err != nil {
		return err
	}

	a.storage, err = storage.OpenDuckDB(storage.Config{
		Path:   cfg.StoragePath,
		Logger: a.logger.Named("storage"),
	})
	if err != nil {
		return err
	}

	a.store = session.NewStore(session.Config{
		Storage:      a.storage,
		Backend:      a.client,
		FetchTimeout: cfg.Timeout,
		Logger:       a.logger.Named("session"),
	})
	if err := a.store.Init(context.Background()); err != nil {
		return err
	}

	policy := auth.InvalidateOnAnyError
	if cfg.KeepSessionOnError {
		policy = auth.KeepSessionOnTransientError
	}
	a.guards = auth.GuardOptions{
		LoginPath: auth.DefaultLoginPath,
		Policy:    policy,
		Logger:    a.logger.Named("guard"),
	}
	return nil
}

func (a *app) close() error {
	if a.logger != nil {
		a.logger.Sync()
	}
	if a.storage != nil {
		err := a.storage.Close()
		a.storage = nil
		return err
	}
	return nil
}

// authenticate runs the authentication guard and reports anything other
// than an authenticated session.
func (a *app) authenticate(ctx context.Context) (*auth.User, error) {
	d := auth.NewAuthenticationGuard(a.store, a.guards).Resolve(ctx)
	switch d.Kind {
	case auth.DecisionRender:
		return a.store.User(), nil
	case auth.DecisionRedirect:
		if d.Reason == auth.ReasonSessionInvalid {
			return nil, errors.New("session expired or invalid, run 'invctl login'")
		}
		return nil, errors.New("not logged in, run 'invctl login'")
	case auth.DecisionUnavailable:
		return nil, fmt.Errorf("backend unavailable: %s", d.Reason)
	default:
		return nil, fmt.Errorf("authentication %s", d.Kind)
	}
}
