package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
)

// copiedResponseHeaders are passed back from the shop service to the caller.
var copiedResponseHeaders = []string{"Content-Type", "Retry-After"}

type Handler struct {
	shopProxy *ServiceProxy
	logger    *slog.Logger
}

func NewHandler(shopProxy *ServiceProxy, logger *slog.Logger) *Handler {
	return &Handler{
		shopProxy: shopProxy,
		logger:    logger,
	}
}

// HandleShop forwards the request to the shop service on the same path.
func (h *Handler) HandleShop(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, h.shopProxy, r.URL.Path)
}

func (h *Handler) proxyRequest(w http.ResponseWriter, r *http.Request, proxy *ServiceProxy, path string) {
	resp, err := proxy.ForwardRequest(r.Context(), r, path)
	if err != nil {
		h.logger.Error("failed to forward request", "error", err, "path", path)
		h.writeError(w, http.StatusBadGateway, "service unavailable")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	for _, name := range copiedResponseHeaders {
		if value := resp.Header.Get(name); value != "" {
			w.Header().Set(name, value)
		}
	}

	w.WriteHeader(resp.StatusCode)

	h.logger.Info("request proxied", "method", r.Method, "path", path, "status", resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.Error("failed to copy response body", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	writeJSONError(w, h.logger, status, message)
}

func writeJSONError(w http.ResponseWriter, logger *slog.Logger, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		logger.Error("failed to encode error response", "error", err)
	}
}
