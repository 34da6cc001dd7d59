package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/exampaper/internal/grading"
	"github.com/pavelanni/exampaper/internal/handler"
	appI18n "github.com/pavelanni/exampaper/internal/i18n"
	"github.com/pavelanni/exampaper/internal/ingest"
	"github.com/pavelanni/exampaper/internal/llm"
	"github.com/pavelanni/exampaper/internal/llm/prompts"
	"github.com/pavelanni/exampaper/internal/model"
	"github.com/pavelanni/exampaper/internal/pdftext"
	"github.com/pavelanni/exampaper/internal/storage"
	"github.com/pavelanni/exampaper/internal/store"
	"github.com/pavelanni/exampaper/internal/structurer"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "exampaper",
		Short: "Digitize exam papers and grade answers with an LLM",
	}

	serve := serveCmd()
	root.AddCommand(serve, ingestCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addStoreFlags(f *pflag.FlagSet) {
	f.String("db", "exampaper.db", "Database path (sqlite) or DSN (postgres)")
	f.String("db-driver", string(store.DriverSQLite), "Database driver (sqlite, postgres)")
}

func addLLMFlags(f *pflag.FlagSet) {
	f.String("llm-provider", llm.ProviderOpenAI, "LLM provider (openai, gemini)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for the LLM provider")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.Duration("structure-timeout", structurer.DefaultTimeout, "Timeout for the exam structuring call")
}

func addLogFlags(f *pflag.FlagSet) {
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	addStoreFlags(f)
	f.String("blob-dir", "./data/uploads", "Directory for uploaded exam papers")
	addLLMFlags(f)
	f.String("prompt-variant", string(prompts.PromptStandard), "Grading prompt variant (strict, standard, lenient)")
	f.Duration("grade-timeout", grading.DefaultCallTimeout, "Timeout for one grading call")
	f.Int("max-parallel", grading.DefaultMaxParallel, "Concurrent grading calls per submission")
	f.Int("max-upload-mb", 20, "Maximum upload size in megabytes")
	f.StringP("lang", "l", "en", "Default UI language (en, ru)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /exams)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.StringSlice("allowed-origins", []string{"http://localhost:3000"}, "CORS origins allowed on /api")
	f.String("admin-email", "admin@localhost", "Email of the seeded admin user")
	f.String("admin-password", "", "Initial admin password (or set EXAMPAPER_ADMIN_PASSWORD)")
	addLogFlags(f)
	return cmd
}

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file.pdf>",
		Short: "Digitize an exam paper from the command line",
		Args:  cobra.ExactArgs(1),
		RunE:  runIngest,
	}
	f := cmd.Flags()
	addStoreFlags(f)
	f.String("blob-dir", "./data/uploads", "Directory for uploaded exam papers")
	addLLMFlags(f)
	f.String("owner", "", "Email of the user who owns the exam (required)")
	addLogFlags(f)
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export an exam's attempts as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	addStoreFlags(f)
	f.Int64("exam-id", 0, "Exam to export (required)")
	f.String("prompt-variant", string(prompts.PromptStandard), "Prompt variant included in export metadata")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(f)
	_ = cmd.MarkFlagRequired("exam-id")
	return cmd
}

func setupLogging(v *viper.Viper) {
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

	v.SetEnvPrefix("EXAMPAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("exampaper")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/exampaper")
	v.AddConfigPath("/etc/exampaper")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func openStore(ctx context.Context, v *viper.Viper) (*store.Store, error) {
	driver := store.Driver(strings.ToLower(v.GetString("db-driver")))
	db, err := store.Open(ctx, driver, v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func openLLM(ctx context.Context, v *viper.Viper) (llm.Client, error) {
	client, err := llm.New(ctx,
		strings.ToLower(v.GetString("llm-provider")),
		v.GetString("llm-url"),
		v.GetString("llm-key"),
		v.GetString("llm-model"),
	)
	if err != nil {
		return nil, fmt.Errorf("create LLM client: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("LLM health check: %w", err)
	}
	slog.Info("LLM endpoint OK",
		"provider", v.GetString("llm-provider"),
		"url", v.GetString("llm-url"),
		"model", v.GetString("llm-model"),
	)
	return client, nil
}

func newIngester(v *viper.Viper, db *store.Store, client llm.Completer, p *prompts.Set) (*ingest.Ingester, error) {
	blobs, err := storage.NewFSStore(v.GetString("blob-dir"))
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	return ingest.New(blobs, pdftext.PDF{}, structurer.New(client, p, v.GetDuration("structure-timeout")), db), nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := seedAdmin(ctx, db, v.GetString("admin-email"), v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	reportStaleState(ctx, db)

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	promptVariant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
	if !prompts.IsValidVariant(promptVariant) {
		slog.Warn("invalid prompt-variant, using standard", "variant", promptVariant)
		promptVariant = string(prompts.PromptStandard)
	}

	p, err := prompts.Default()
	if err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}
	client, err := openLLM(ctx, v)
	if err != nil {
		return err
	}
	defer client.Close()

	in, err := newIngester(v, db, client, p)
	if err != nil {
		return err
	}
	orch := grading.NewOrchestrator(db,
		grading.NewGrader(client, p, prompts.PromptVariant(promptVariant)),
		grading.Config{
			MaxParallel: v.GetInt("max-parallel"),
			CallTimeout: v.GetDuration("grade-timeout"),
		},
	)

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	h := handler.New(db, in, orch, model.AppConfig{
		BasePath:       basePath,
		SecureCookies:  v.GetBool("secure-cookies"),
		MaxUploadMB:    v.GetInt("max-upload-mb"),
		PromptVariant:  promptVariant,
		AllowedOrigins: v.GetStringSlice("allowed-origins"),
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(appI18n.Middleware)

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
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	slog.Info("starting server",
		"addr", addr,
		"db_driver", v.GetString("db-driver"),
		"llm_provider", v.GetString("llm-provider"),
		"model", v.GetString("llm-model"),
		"lang", lang,
		"prompt_variant", promptVariant,
		"max_parallel", v.GetInt("max-parallel"),
		"grade_timeout", v.GetDuration("grade-timeout"),
		"base_path", basePath,
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// reportStaleState logs attempts whose grading never finished and clears
// expired login sessions.
func reportStaleState(ctx context.Context, db *store.Store) {
	stale, err := db.ListIncompleteAttempts(ctx)
	if err != nil {
		slog.Warn("failed to list incomplete attempts", "error", err)
	} else if len(stale) > 0 {
		ids := make([]int64, 0, len(stale))
		for _, a := range stale {
			ids = append(ids, a.ID)
		}
		slog.Warn("found attempts with unfinished grading", "count", len(stale), "attempt_ids", ids)
	}

	if n, err := db.CleanupExpiredSessions(ctx); err != nil {
		slog.Warn("failed to clean up expired sessions", "error", err)
	} else if n > 0 {
		slog.Info("removed expired sessions", "count", n)
	}
}

func runIngest(cmd *cobra.Command, args []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)
	ctx := cmd.Context()

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	owner, err := db.GetUserByEmail(ctx, v.GetString("owner"))
	if err != nil {
		return fmt.Errorf("look up owner: %w", err)
	}
	if owner == nil {
		return fmt.Errorf("no user with email %q", v.GetString("owner"))
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}

	p, err := prompts.Default()
	if err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}
	client, err := openLLM(ctx, v)
	if err != nil {
		return err
	}
	defer client.Close()

	in, err := newIngester(v, db, client, p)
	if err != nil {
		return err
	}
	view, err := in.Ingest(ctx, owner.ID, filepath.Base(args[0]), data)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "exam %d: %s (%s), %d questions, %d marks\n",
		view.Exam.ID, view.Exam.Title, view.Exam.Subject, len(view.Questions), view.TotalMarks())
	for _, q := range view.Questions {
		fmt.Fprintf(out, "  %-6s [%d] %s\n", q.QuestionNumber, q.Marks, q.Type)
	}
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)
	ctx := cmd.Context()

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	export, err := db.ExportExam(ctx, v.GetInt64("exam-id"))
	if err != nil {
		return fmt.Errorf("export exam: %w", err)
	}
	export.PromptVariant = v.GetString("prompt-variant")

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)
	return nil
}

func seedAdmin(ctx context.Context, db *store.Store, email, password string) error {
	count, err := db.UserCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or EXAMPAPER_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(ctx, model.User{
		Email:        email,
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "email", email)
	return nil
}
