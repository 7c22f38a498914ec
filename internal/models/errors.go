package models

import (
	"errors"
	"fmt"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrNotFound             = errors.New("not found")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrDuplicateName        = errors.New("name already exists")
	ErrRestoreTargetMissing = errors.New("product to restore no longer exists")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrRateLimited          = errors.New("too many requests")
	ErrMediaDisabled        = errors.New("media uploads are not configured")
)

// Validationf returns an ErrValidation carrying a formatted reason.
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf returns an ErrNotFound carrying a formatted reason.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// StockError reports a line item that cannot be served from current stock.
type StockError struct {
	ProductID string
	Name      string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	name := e.Name
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("insufficient stock for %s: available=%d, requested=%d", name, e.Available, e.Requested)
}

func (e *StockError) Unwrap() error {
	return ErrInsufficientStock
}

// MissingProductsError lists products referenced by an order that were deleted.
type MissingProductsError struct {
	ProductIDs []string
}

func (e *MissingProductsError) Error() string {
	return fmt.Sprintf("products no longer exist: %v", e.ProductIDs)
}

func (e *MissingProductsError) Unwrap() error {
	return ErrRestoreTargetMissing
}
