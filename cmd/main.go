package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"student_system/internal/auth"
	"student_system/internal/config"
	loginHandler "student_system/internal/http_server/handlers/login"
	registerHandler "student_system/internal/http_server/handlers/register"
	resetPasswordHandler "student_system/internal/http_server/handlers/reset_password"
	sendCodeHandler "student_system/internal/http_server/handlers/send_code"
	studentHandlers "student_system/internal/http_server/handlers/students"
	verifyCodeHandler "student_system/internal/http_server/handlers/verify_code"
	"student_system/internal/lib/jwt"
	sl "student_system/internal/lib/logger"
	"student_system/internal/mail"
	authMiddleware "student_system/internal/middleware/auth"
	rateLimit "student_system/internal/middleware/ratelimit"
	"student_system/internal/models"
	"student_system/internal/storage/postgres"
	"student_system/internal/students"
	"student_system/internal/verification"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-playground/validator/v10"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad("./config/config.yaml")

	log := setupLogger(cfg.Env)

	log.Info("starting student system", slog.String("env", cfg.Env))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("shutdown signal received")
		cancel()
	}()

	storage, err := postgres.New(ctx, cfg)
	if err != nil {
		log.Error("failed to connect postgres", sl.Err(err))
		os.Exit(1)
	}
	defer storage.Close()

	dispatcher, closeMail, err := setupMail(log, cfg)
	if err != nil {
		log.Error("failed to set up mail backends", sl.Err(err))
		os.Exit(1)
	}
	defer closeMail()

	tokens := jwt.New(log, cfg.Tokens.JWTSecret, cfg.Tokens.AccessTokenTTL)

	verificationService := verification.New(log, storage, storage, dispatcher)
	authService := auth.New(log, storage, storage, verificationService, tokens)
	studentService := students.New(log, storage)

	bootstrapCtx, bootstrapCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := authService.EnsureAdmin(bootstrapCtx, cfg.Admin.Username, cfg.Admin.Password); err != nil {
		bootstrapCancel()
		log.Error("failed to ensure bootstrap admin", sl.Err(err))
		os.Exit(1)
	}
	bootstrapCancel()

	router := setupRouter(log, tokens, storage, authService, verificationService, studentService)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server is running", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", sl.Err(err))
			cancel()
		}
	}()

	<-ctx.Done()

	log.Info("shutting down HTTP server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", sl.Err(err))
	} else {
		log.Info("server stopped gracefully")
	}
}

func setupRouter(
	log *slog.Logger,
	tokens *jwt.TokenManager,
	storage *postgres.PostgresRepo,
	authService *auth.Auth,
	verificationService *verification.Service,
	studentService *students.Service,
) *chi.Mux {
	validate := validator.New()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Authentication resolves before any business handler runs; it never
	// rejects a request on its own.
	r.Use(authMiddleware.New(log, tokens, storage))

	r.Route("/api/auth", func(r chi.Router) {
		r.With(rateLimit.Register()).Post("/register",
			registerHandler.New(log, validate, authService),
		)
		r.With(rateLimit.Login()).Post("/login",
			loginHandler.New(log, validate, authService),
		)
		r.With(rateLimit.ResetPassword()).Post("/reset-password",
			resetPasswordHandler.New(log, validate, authService),
		)
		r.With(rateLimit.SendCode()).Post("/email/code/send",
			sendCodeHandler.New(log, validate, verificationService),
		)
		r.With(rateLimit.VerifyCode()).Post("/email/code/verify",
			verifyCodeHandler.New(log, validate, verificationService),
		)
	})

	r.Route("/api/students", func(r chi.Router) {
		r.Use(authMiddleware.RequireAuth())

		r.Get("/", studentHandlers.List(log, studentService))
		r.Post("/", studentHandlers.Create(log, validate, studentService))
		r.Get("/{id}", studentHandlers.Get(log, studentService))
		r.Put("/{id}", studentHandlers.Update(log, validate, studentService))
		r.With(authMiddleware.RequireRoles(models.RoleAdmin)).Delete("/{id}",
			studentHandlers.Delete(log, studentService),
		)
	})

	return r
}

func setupMail(log *slog.Logger, cfg *config.Config) (mail.Dispatcher, func(), error) {
	var backends []mail.Dispatcher

	if cfg.Mail.Primary.Host != "" {
		backends = append(backends, mail.NewSMTP(
			cfg.Mail.Primary.Host,
			cfg.Mail.Primary.Port,
			cfg.Mail.Primary.Username,
			cfg.Mail.Primary.Password,
			cfg.Mail.Primary.From,
		))
	}
	if cfg.Mail.Secondary.Host != "" {
		backends = append(backends, mail.NewSMTP(
			cfg.Mail.Secondary.Host,
			cfg.Mail.Secondary.Port,
			cfg.Mail.Secondary.Username,
			cfg.Mail.Secondary.Password,
			cfg.Mail.Secondary.From,
		))
	}

	closeMail := func() {}

	if cfg.Mail.Queue.URL != "" {
		queue, err := mail.NewQueue(cfg.Mail.Queue.URL, cfg.Mail.Queue.QueueName)
		if err != nil {
			return nil, nil, err
		}
		backends = append(backends, queue)
		closeMail = queue.Close
	}

	return mail.NewChain(log, backends...), closeMail, nil
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
