package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tetrispositiva/diagnostico/internal/handler"
	appI18n "github.com/tetrispositiva/diagnostico/internal/i18n"
	"github.com/tetrispositiva/diagnostico/internal/llm"
	"github.com/tetrispositiva/diagnostico/internal/llm/prompts"
	"github.com/tetrispositiva/diagnostico/internal/model"
	"github.com/tetrispositiva/diagnostico/internal/quizbank"
	"github.com/tetrispositiva/diagnostico/internal/scheduler"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and admin dashboard",
		RunE:  runServe,
	}
	addStorageFlags(cmd)
	addLoggingFlags(cmd)
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringP("lang", "l", appI18n.DefaultLang, "UI language (pt-BR, en)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /quiz)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.String("admin-user", "admin", "Admin username (or set ADMIN_USER)")
	f.String("admin-password", "", "Admin password (or set ADMIN_PASSWORD); empty disables login")
	f.String("default-slug", quizbank.DefaultSlug, "Diagnostic served at /")
	f.Bool("seed-default", true, "Store the built-in diagnostic when the database has none")
	f.String("static-dir", "", "Serve a single-page app build from this directory at /")
	f.String("redis-addr", "", "Redis address for the diagnostic cache (in-memory when empty)")
	f.String("redis-password", "", "Redis password")
	f.Int("redis-db", 0, "Redis database number")
	f.Duration("cache-ttl", 5*time.Minute, "Diagnostic cache TTL")
	f.Duration("session-cleanup", time.Hour, "Interval between expired admin session purges")
	f.String("llm-url", "", "OpenAI-compatible API base URL; empty disables lead insights")
	f.String("llm-key", "", "API key for the LLM")
	f.String("llm-model", "gpt-4o-mini", "LLM model name")
	f.String("prompt-variant", string(prompts.PromptStandard), "Insight prompt variant (brief, standard, detailed)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := openRepository(ctx, v)
	if err != nil {
		return err
	}
	defer repo.Close()

	if v.GetBool("seed-default") {
		if err := seedDefault(ctx, repo); err != nil {
			return fmt.Errorf("seed default diagnostic: %w", err)
		}
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	bank, closeCache, err := newBankCache(ctx, v, repo)
	if err != nil {
		return err
	}
	defer closeCache()

	var insighter handler.Insighter
	llmClient, err := newLLMClient(ctx, v)
	if err != nil {
		return err
	}
	if llmClient != nil {
		insighter = llmClient
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	appCfg := model.AppConfig{
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
		AdminUser:     v.GetString("admin-user"),
		DefaultSlug:   v.GetString("default-slug"),
		StaticDir:     v.GetString("static-dir"),
	}
	adminPassword := v.GetString("admin-password")
	if adminPassword == "" {
		slog.Warn("no admin password configured; dashboard login is disabled")
	}

	h, err := handler.New(repo, bank, insighter, appCfg, adminPassword)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	jobs := scheduler.New(repo, v.GetDuration("session-cleanup"))
	if err := jobs.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer jobs.Stop()

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	addr := v.GetString("addr")
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", addr,
			"lang", lang,
			"base_path", basePath,
			"default_slug", appCfg.DefaultSlug,
			"insights", insighter != nil,
			"redis", v.GetString("redis-addr") != "",
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// newBankCache puts a Redis or in-memory cache in front of the repository.
func newBankCache(ctx context.Context, v *viper.Viper, src quizbank.Source) (quizbank.Cache, func(), error) {
	ttl := v.GetDuration("cache-ttl")
	addr := v.GetString("redis-addr")
	if addr == "" {
		return quizbank.NewMemoryCache(src, ttl), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: v.GetString("redis-password"),
		DB:       v.GetInt("redis-db"),
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	slog.Info("using redis diagnostic cache", "addr", addr, "ttl", ttl)
	return quizbank.NewRedisCache(client, src, ttl), func() { _ = client.Close() }, nil
}

// newLLMClient returns nil when no endpoint is configured.
func newLLMClient(ctx context.Context, v *viper.Viper) (*llm.Client, error) {
	url := v.GetString("llm-url")
	if url == "" {
		slog.Info("LLM endpoint not configured; lead insights disabled")
		return nil, nil
	}
	promptVariant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
	if !prompts.IsValidVariant(promptVariant) {
		slog.Warn("invalid prompt-variant, using standard", "variant", promptVariant)
		promptVariant = string(prompts.PromptStandard)
	}
	client, err := llm.New(url, v.GetString("llm-key"), v.GetString("llm-model"), promptVariant)
	if err != nil {
		return nil, fmt.Errorf("create LLM client: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("LLM health check: %w", err)
	}
	slog.Info("LLM endpoint OK", "url", url, "model", v.GetString("llm-model"))
	return client, nil
}
