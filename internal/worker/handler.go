package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/joao-fontenele/shopledger/internal/domain"
	"github.com/joao-fontenele/shopledger/internal/messaging"
)

// NotificationHandler reacts to placed orders: it emails the buyer and then
// moves the order to processing.
type NotificationHandler struct {
	emailServiceURL string
	shopServiceURL  string
	httpClient      *http.Client
	logger          *slog.Logger
}

func NewNotificationHandler(emailServiceURL, shopServiceURL string, client *http.Client, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		emailServiceURL: emailServiceURL,
		shopServiceURL:  shopServiceURL,
		httpClient:      client,
		logger:          logger,
	}
}

func (h *NotificationHandler) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderPlacedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return messaging.Permanent(fmt.Errorf("unmarshal order placed event: %w", err))
	}
	if event.OrderID == "" {
		return messaging.Permanent(errors.New("order placed event without order id"))
	}

	h.logger.Info("processing order placed event", "order_id", event.OrderID, "user_id", event.UserID)

	switch err := h.sendConfirmationEmail(ctx, event); {
	case errors.Is(err, errNoRecipient):
		h.logger.Info("no contact email, skipping confirmation", "order_id", event.OrderID)
	case messaging.IsPermanent(err):
		// The email service will never accept this message; the order still moves on.
		h.logger.Warn("confirmation email rejected", "error", err, "order_id", event.OrderID)
	case err != nil:
		h.logger.Error("failed to send confirmation email", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("send confirmation email: %w", err)
	}

	if err := h.updateOrderStatus(ctx, event.OrderID, domain.OrderStatusProcessing); err != nil {
		h.logger.Error("failed to update order status", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("update order status: %w", err)
	}

	h.logger.Info("order processing complete", "order_id", event.OrderID)
	return nil
}

var errNoRecipient = errors.New("event carries no contact email")

func (h *NotificationHandler) sendConfirmationEmail(ctx context.Context, event domain.OrderPlacedEvent) error {
	to := strings.TrimSpace(event.Email)
	if to == "" {
		return errNoRecipient
	}

	var lines strings.Builder
	for _, item := range event.Items {
		fmt.Fprintf(&lines, "\n- %s x%d @ %s", item.ProductName, item.Quantity, item.Price.StringFixed(2))
	}

	body := map[string]string{
		"to":      to,
		"subject": "Order Confirmation: " + event.OrderID,
		"body": fmt.Sprintf("Your order %s has been placed. Total: %s%s",
			event.OrderID, event.Total.StringFixed(2), lines.String()),
	}

	return h.post(ctx, http.MethodPost, h.emailServiceURL+"/send", body, "email service")
}

func (h *NotificationHandler) updateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) error {
	body := map[string]string{
		"status": string(status),
	}

	url := fmt.Sprintf("%s/orders/%s/status", h.shopServiceURL, orderID)
	return h.post(ctx, http.MethodPatch, url, body, "shop service")
}

func (h *NotificationHandler) post(ctx context.Context, method, url string, body map[string]string, service string) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	err = fmt.Errorf("%s returned status %d", service, resp.StatusCode)
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusTooManyRequests:
		return err
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// The request itself is wrong; redelivering the same event cannot fix it.
		return messaging.Permanent(err)
	default:
		return err
	}
}
