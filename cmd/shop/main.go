package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joao-fontenele/shopledger/internal/catalog"
	"github.com/joao-fontenele/shopledger/internal/identity"
	"github.com/joao-fontenele/shopledger/internal/ledger"
	"github.com/joao-fontenele/shopledger/internal/messaging"
	"github.com/joao-fontenele/shopledger/internal/orders"
	"github.com/joao-fontenele/shopledger/internal/support"
	"github.com/joao-fontenele/shopledger/internal/telemetry"
	"github.com/joao-fontenele/shopledger/internal/wishlist"
)

const (
	serviceName    = "shop"
	serviceVersion = "0.1.0"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	lockTimeout := 2 * time.Second
	if raw := os.Getenv("LOCK_TIMEOUT"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed < 0 {
			logger.Error("LOCK_TIMEOUT must be a non-negative duration", "value", raw)
			os.Exit(1)
		}
		lockTimeout = parsed
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, serviceName, serviceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(serviceName, serviceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	db, err := telemetry.OpenDB(ctx, postgresURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	var publisher ledger.EventPublisher
	if kafkaBrokers := os.Getenv("KAFKA_BROKERS"); kafkaBrokers != "" {
		producer := messaging.NewProducer(strings.Split(kafkaBrokers, ","), messaging.TopicOrderPlaced)
		defer func() { _ = producer.Close() }()
		publisher = producer
	}

	service, err := ledger.NewService(ledger.NewPostgresStore(db, lockTimeout), publisher, logger)
	if err != nil {
		logger.Error("failed to create ledger service", "error", err)
		os.Exit(1)
	}

	cartHandler := ledger.NewHandler(service, logger)
	catalogHandler := catalog.NewHandler(catalog.NewProductRepository(db, lockTimeout), logger)
	ordersHandler := orders.NewHandler(orders.NewOrderRepository(db), logger)
	wishlistHandler := wishlist.NewHandler(wishlist.NewWishlistRepository(db), logger)
	supportHandler := support.NewHandler(support.NewMessageRepository(db), logger)

	route := func(h http.HandlerFunc) http.HandlerFunc {
		return telemetry.WithHTTPRoute(h)
	}
	authed := func(h http.HandlerFunc) http.HandlerFunc {
		return telemetry.WithHTTPRoute(identity.Require(h))
	}
	admin := func(h http.HandlerFunc) http.HandlerFunc {
		return telemetry.WithHTTPRoute(identity.RequireAdmin(h))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /cart", authed(cartHandler.HandleGetCart))
	mux.HandleFunc("POST /cart/items", authed(cartHandler.HandleAddItem))
	mux.HandleFunc("POST /cart/items/remove", authed(cartHandler.HandleRemoveItem))
	mux.HandleFunc("PUT /cart/items/{productId}", authed(cartHandler.HandleSetQuantity))
	mux.HandleFunc("DELETE /cart", authed(cartHandler.HandleClearCart))
	mux.HandleFunc("POST /orders", authed(cartHandler.HandlePlaceOrder))

	mux.HandleFunc("GET /orders", authed(ordersHandler.HandleList))
	mux.HandleFunc("GET /orders/{id}", authed(ordersHandler.HandleGet))
	mux.HandleFunc("PATCH /orders/{id}/status", route(ordersHandler.HandleUpdateStatus))

	mux.HandleFunc("GET /products", route(catalogHandler.HandleListProducts))
	mux.HandleFunc("GET /products/featured", route(catalogHandler.HandleListFeatured))
	mux.HandleFunc("GET /products/trending", route(catalogHandler.HandleListTrending))
	mux.HandleFunc("GET /products/best-sellers", route(catalogHandler.HandleListBestSellers))
	mux.HandleFunc("GET /products/{id}", route(catalogHandler.HandleGetProduct))
	mux.HandleFunc("POST /products", route(catalogHandler.HandleCreateProduct))
	mux.HandleFunc("PATCH /products/{id}/pricing", route(catalogHandler.HandleUpdatePricing))
	mux.HandleFunc("POST /products/{id}/restock", route(catalogHandler.HandleRestock))
	mux.HandleFunc("PATCH /products/{id}/flags", route(catalogHandler.HandleSetFlags))

	mux.HandleFunc("GET /wishlist", authed(wishlistHandler.HandleList))
	mux.HandleFunc("POST /wishlist", authed(wishlistHandler.HandleAdd))
	mux.HandleFunc("DELETE /wishlist/{productId}", authed(wishlistHandler.HandleRemove))

	mux.HandleFunc("GET /support/messages", authed(supportHandler.HandleList))
	mux.HandleFunc("POST /support/messages", authed(supportHandler.HandlePost))
	mux.HandleFunc("DELETE /support/messages/expired", admin(supportHandler.HandleClearExpired))

	mux.Handle("GET /metrics", metricsHandler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      telemetry.NewServerHandler(mux, serviceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting shop service", "port", port, "lock_timeout", lockTimeout.String(), "events", publisher != nil)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
