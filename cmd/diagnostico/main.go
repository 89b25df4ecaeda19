package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tetrispositiva/diagnostico/internal/handler"
	"github.com/tetrispositiva/diagnostico/internal/model"
	"github.com/tetrispositiva/diagnostico/internal/quizbank"
	"github.com/tetrispositiva/diagnostico/internal/store"
	"github.com/tetrispositiva/diagnostico/internal/store/postgres"
	"github.com/tetrispositiva/diagnostico/internal/store/postgres/migrations"
	"github.com/tetrispositiva/diagnostico/internal/wire"
)

func main() {
	// A missing .env is normal; real environment variables still apply.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "diagnostico",
		Short: "Score Lucro Livre: financial maturity quiz and lead dashboard",
	}

	serve := serveCmd()
	root.AddCommand(serve, playCmd(), importCmd(), exportCmd(), migrateCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `diagnostico --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

// addStorageFlags registers the database selection shared by most commands.
func addStorageFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db", "diagnostico.db", "SQLite database path")
	f.String("postgres-url", "", "PostgreSQL DSN; when set it is used instead of SQLite")
}

func addLoggingFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("DIAGNOSTICO")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	// The admin credentials keep their historical unprefixed names too.
	_ = v.BindEnv("admin-user", "DIAGNOSTICO_ADMIN_USER", "ADMIN_USER")
	_ = v.BindEnv("admin-password", "DIAGNOSTICO_ADMIN_PASSWORD", "ADMIN_PASSWORD")

	v.SetConfigName("diagnostico")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/diagnostico")
	v.AddConfigPath("/etc/diagnostico")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// repository is what the commands need from either database backend.
type repository interface {
	handler.Repository
	GetDiagnostic(ctx context.Context, slug string) (model.Diagnostic, error)
	DiagnosticCount(ctx context.Context) (int, error)
	SaveLead(ctx context.Context, p wire.LeadPayload) error
	CleanupExpiredSessions(ctx context.Context) (int64, error)
	Close() error
}

var (
	_ repository = (*store.Store)(nil)
	_ repository = (*postgres.Store)(nil)
)

// openRepository opens PostgreSQL when a DSN is configured, SQLite otherwise.
// PostgreSQL migrations are applied first.
func openRepository(ctx context.Context, v *viper.Viper) (repository, error) {
	if dsn := v.GetString("postgres-url"); dsn != "" {
		if err := migrations.Apply(ctx, dsn); err != nil {
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		db, err := postgres.Connect(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		slog.Info("using postgres database")
		return db, nil
	}
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	slog.Info("using sqlite database", "path", v.GetString("db"))
	return db, nil
}

// seedDefault stores the built-in diagnostic when the database has none.
func seedDefault(ctx context.Context, repo repository) error {
	count, err := repo.DiagnosticCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	d, err := quizbank.Default()
	if err != nil {
		return err
	}
	if _, err := repo.SaveDiagnostic(ctx, d); err != nil {
		return fmt.Errorf("save default diagnostic: %w", err)
	}
	slog.Info("seeded default diagnostic", "slug", d.Slug, "questions", len(d.Questions))
	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
