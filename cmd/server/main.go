package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/itspokchop93/fasho-backend/internal/checkout"
	"github.com/itspokchop93/fasho-backend/internal/confirm"
	"github.com/itspokchop93/fasho-backend/internal/coupon"
	h "github.com/itspokchop93/fasho-backend/internal/http"
	"github.com/itspokchop93/fasho-backend/internal/notify"
	"github.com/itspokchop93/fasho-backend/internal/order"
	"github.com/itspokchop93/fasho-backend/internal/payment"
	"github.com/itspokchop93/fasho-backend/internal/postpurchase"
	"github.com/itspokchop93/fasho-backend/internal/publisher"
	"github.com/itspokchop93/fasho-backend/internal/session"
)

type Config struct {
	HTTPPort        string
	RedisAddr       string
	DBHost          string
	DBPort          int
	DBUser          string
	DBPassword      string
	DBName          string
	MigrationsPath  string
	CouponDBPath    string
	CouponMigations string
	KafkaBrokers    string
	WebhookURL      string
	IntakeURL       string
	RefusalPercent  int
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

func loadConfig() *Config {
	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		DBHost:          getEnv("DB_HOST", ""),
		DBPort:          getEnvInt("DB_PORT", 5432),
		DBUser:          getEnv("DB_USER", "postgres"),
		DBPassword:      getEnv("DB_PASSWORD", "postgres"),
		DBName:          getEnv("DB_NAME", "orders"),
		MigrationsPath:  getEnv("MIGRATIONS_PATH", "internal/order/migrations"),
		CouponDBPath:    getEnv("COUPON_DB_PATH", ""),
		CouponMigations: getEnv("COUPON_MIGRATIONS_PATH", "internal/coupon/migrations"),
		KafkaBrokers:    getEnv("KAFKA_BROKERS", ""),
		WebhookURL:      getEnv("WEBHOOK_URL", ""),
		IntakeURL:       getEnv("INTAKE_URL", ""),
		RefusalPercent:  getEnvInt("PAYMENT_REFUSAL_PERCENT", 0),
		RequestTimeout:  30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("invalid %s value %q, using %d", key, value, defaultValue)
	}
	return defaultValue
}

func main() {
	cfg := loadConfig()

	sessions := buildSessionStore(cfg)
	defer sessions.Close()

	orders := buildOrderRepository(cfg)
	defer orders.Close()

	coupons := buildCouponRepository(cfg)
	defer coupons.Close()

	handoff := confirm.NewHandoffCache()
	gateway := confirm.NewGateway(orders)
	service := checkout.NewService(sessions, orders, coupons, handoff)

	notifier := notify.NewWebhookNotifier(cfg.WebhookURL)
	var intake notify.IntakeChecker = completedIntake{}
	if cfg.IntakeURL != "" {
		intake = notify.NewIntakeClient(cfg.IntakeURL)
	}

	gatewayClient := payment.NewStubClient(cfg.RefusalPercent, time.Now().UnixNano())

	pollerCtx, stopPoller := context.WithCancel(context.Background())
	defer stopPoller()
	if cfg.KafkaBrokers != "" {
		poller := publisher.NewOutboxPoller(orders, cfg.KafkaBrokers)
		defer poller.Close()
		go poller.Run(pollerCtx)
		log.Printf("outbox poller publishing to %s", cfg.KafkaBrokers)
	}

	checkoutHandler := h.NewCheckoutHandler(service, cfg.RequestTimeout)
	paymentHandler := h.NewPaymentHandler(service, gatewayClient, cfg.RequestTimeout)
	confirmationHandler := h.NewConfirmationHandler(gateway, handoff, cfg.RequestTimeout)
	flowHandler := h.NewFlowHandler(func() *postpurchase.Orchestrator {
		return postpurchase.NewOrchestrator(gateway, handoff, intake, notifier)
	}, cfg.RequestTimeout)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(h.RequestIDMiddleware)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/checkout", checkoutHandler.BeginCheckout)
		r.Route("/payment", func(r chi.Router) {
			r.Post("/charge", paymentHandler.Charge)
			r.Post("/confirm", paymentHandler.Confirm)
		})
		r.Get("/thank-you", confirmationHandler.ThankYou)
		r.Route("/confirmation/flow", func(r chi.Router) {
			r.Post("/", flowHandler.Start)
			r.Get("/{id}", flowHandler.Get)
			r.Post("/{id}/answer", flowHandler.Answer)
			r.Post("/{id}/back", flowHandler.Back)
			r.Post("/{id}/dismiss", flowHandler.Dismiss)
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(r, "fasho-backend"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("server starting on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Println("server exited")
}

func buildSessionStore(cfg *Config) session.Store {
	if cfg.RedisAddr == "" {
		log.Println("REDIS_ADDR not set, using in-memory session store")
		return session.NewMemoryStore()
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	log.Printf("using redis session store at %s", cfg.RedisAddr)
	return session.NewRedisStore(client)
}

func buildOrderRepository(cfg *Config) order.Repository {
	if cfg.DBHost == "" {
		log.Println("DB_HOST not set, using in-memory order repository")
		return order.NewMemoryRepository()
	}

	cred := &order.Credentials{
		Host:              cfg.DBHost,
		Port:              cfg.DBPort,
		User:              cfg.DBUser,
		Password:          cfg.DBPassword,
		DBName:            cfg.DBName,
		MigrationsDirPath: cfg.MigrationsPath,
	}
	repo, err := order.NewPostgresRepository(cred)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	if err := repo.RunMigrations(cred); err != nil {
		log.Fatalf("failed to run order migrations: %v", err)
	}
	return repo
}

func buildCouponRepository(cfg *Config) coupon.Repository {
	if cfg.CouponDBPath == "" {
		log.Println("COUPON_DB_PATH not set, using built-in coupon list")
		return coupon.NewStaticRepository(
			coupon.Coupon{Code: "LAUNCH10", DiscountAmount: 1000, Active: true},
			coupon.Coupon{Code: "FIRSTTRACK", DiscountAmount: 500, Active: true},
		)
	}

	repo, err := coupon.NewSQLiteRepository(cfg.CouponDBPath)
	if err != nil {
		log.Fatalf("failed to open coupon database: %v", err)
	}
	if err := repo.RunMigrations(cfg.CouponMigations); err != nil {
		log.Fatalf("failed to run coupon migrations: %v", err)
	}
	return repo
}

// completedIntake is the no-op gate used when no intake service is
// configured: everyone goes straight to the celebration.
type completedIntake struct{}

func (completedIntake) Completed(context.Context, string) (bool, error) {
	return true, nil
}
