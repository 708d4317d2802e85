package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/joao-fontenele/shopledger/internal/pgtx"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrOutOfStock        = errors.New("out of stock")
	ErrExceedsStock      = errors.New("exceeds available stock")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrConflict          = errors.New("conflict, retry later")
)

// IsRetryable reports whether the caller may retry the same request unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsClientError reports whether the request itself must change before a retry.
func IsClientError(err error) bool {
	for _, target := range []error{ErrInvalidInput, ErrNotFound, ErrOutOfStock, ErrExceedsStock, ErrInsufficientStock, ErrEmptyCart} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// classify leaves ledger errors untouched and turns everything else that
// escapes a transaction into a retryable conflict.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsClientError(err) || IsRetryable(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrConflict, err)
}

func isContention(err error) bool {
	return pgtx.IsContention(err)
}
