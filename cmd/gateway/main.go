package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joao-fontenele/shopledger/internal/gateway"
	"github.com/joao-fontenele/shopledger/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "gateway", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	shopServiceURL := os.Getenv("SHOP_SERVICE_URL")
	if shopServiceURL == "" {
		logger.Error("SHOP_SERVICE_URL is required")
		os.Exit(1)
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if len(jwtSecret) < 32 {
		logger.Error("JWT_SECRET is required and must be at least 32 bytes")
		os.Exit(1)
	}
	var authOpts []gateway.AuthOption
	if issuer := os.Getenv("JWT_ISSUER"); issuer != "" {
		authOpts = append(authOpts, gateway.WithIssuer(issuer))
	}
	auth := gateway.NewAuthenticator([]byte(jwtSecret), logger, authOpts...)

	shopProxy := gateway.NewServiceProxy(shopServiceURL, telemetry.NewHTTPClient(10*time.Second))
	handler := gateway.NewHandler(shopProxy, logger)

	public := func(h http.HandlerFunc) http.HandlerFunc {
		return telemetry.WithHTTPRoute(h)
	}
	authed := func(h http.HandlerFunc) http.HandlerFunc {
		return telemetry.WithHTTPRoute(auth.Require(h))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /cart", authed(handler.HandleShop))
	mux.HandleFunc("POST /cart/items", authed(handler.HandleShop))
	mux.HandleFunc("POST /cart/items/remove", authed(handler.HandleShop))
	mux.HandleFunc("PUT /cart/items/{productId}", authed(handler.HandleShop))
	mux.HandleFunc("DELETE /cart", authed(handler.HandleShop))
	mux.HandleFunc("POST /orders", authed(handler.HandleShop))
	mux.HandleFunc("GET /orders", authed(handler.HandleShop))
	mux.HandleFunc("GET /orders/{id}", authed(handler.HandleShop))
	mux.HandleFunc("GET /products", public(handler.HandleShop))
	mux.HandleFunc("GET /products/featured", public(handler.HandleShop))
	mux.HandleFunc("GET /products/trending", public(handler.HandleShop))
	mux.HandleFunc("GET /products/best-sellers", public(handler.HandleShop))
	mux.HandleFunc("GET /products/{id}", public(handler.HandleShop))
	mux.HandleFunc("GET /wishlist", authed(handler.HandleShop))
	mux.HandleFunc("POST /wishlist", authed(handler.HandleShop))
	mux.HandleFunc("DELETE /wishlist/{productId}", authed(handler.HandleShop))
	mux.HandleFunc("GET /support/messages", authed(handler.HandleShop))
	mux.HandleFunc("POST /support/messages", authed(handler.HandleShop))
	mux.HandleFunc("DELETE /support/messages/expired", authed(handler.HandleShop))

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      telemetry.NewServerHandler(mux, "gateway"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting gateway service", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
