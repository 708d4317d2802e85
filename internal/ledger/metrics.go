package ledger

import (
	"errors"

	"go.opentelemetry.io/otel/metric"
)

type ledgerMetrics struct {
	operations metric.Int64Counter
	reserved   metric.Int64Counter
	released   metric.Int64Counter
}

func newLedgerMetrics(meter metric.Meter) (*ledgerMetrics, error) {
	operations, err := meter.Int64Counter("ledger.operations",
		metric.WithDescription("Stock ledger operations by outcome"))
	if err != nil {
		return nil, err
	}
	reserved, err := meter.Int64Counter("ledger.units.reserved",
		metric.WithDescription("Units moved from stock into carts"),
		metric.WithUnit("{unit}"))
	if err != nil {
		return nil, err
	}
	released, err := meter.Int64Counter("ledger.units.released",
		metric.WithDescription("Units returned from carts to stock"),
		metric.WithUnit("{unit}"))
	if err != nil {
		return nil, err
	}
	return &ledgerMetrics{operations: operations, reserved: reserved, released: released}, nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsRetryable(err):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrOutOfStock), errors.Is(err, ErrExceedsStock), errors.Is(err, ErrInsufficientStock):
		return "stock"
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}
