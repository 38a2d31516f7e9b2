package utils

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrorRecordNotFound = errors.New("record not found")

// ErrorInvalidArgument marks malformed input rejected before any database
// work starts. Wrap with InvalidArgumentf so callers can errors.Is on it.
var ErrorInvalidArgument = errors.New("invalid argument")

func InvalidArgumentf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrorInvalidArgument}, args...)...)
}

// NotFoundError reports a missing catalog resource together with the key
// that was looked up.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found (%s)", e.Resource, e.Key)
}

// Is lets errors.Is(err, ErrorRecordNotFound) match typed lookups.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrorRecordNotFound
}

// InsufficientStockError is a business rejection: admitting the order would
// drive the named ingredient's ledger balance below zero.
type InsufficientStockError struct {
	IngredientName string
	Required       decimal.Decimal
	Available      decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough stock for ingredient %s: required %s, available %s",
		e.IngredientName, e.Required, e.Available)
}

// TableUnavailableError is a business rejection: the requested table slot
// overlaps an existing reservation. AvailableTableIds lists tables free in
// the same window; empty means none are available at all.
type TableUnavailableError struct {
	TableNumber       int
	AvailableTableIds []int
}

func (e *TableUnavailableError) Error() string {
	if len(e.AvailableTableIds) == 0 {
		return fmt.Sprintf("table %d is not available for the requested time slot. No tables are available", e.TableNumber)
	}
	return fmt.Sprintf("table %d is not available for the requested time slot. Available tables: %v", e.TableNumber, e.AvailableTableIds)
}

// MissingPriceError reports a margin/total computation on a dish that has
// no sale price. The dish cost stays computable either way.
type MissingPriceError struct {
	DishName string
}

func (e *MissingPriceError) Error() string {
	return fmt.Sprintf("price not set for dish %s", e.DishName)
}

// TransactionFailure wraps a store-level error raised during the
// transactional phase, to keep it distinguishable from business rejections.
type TransactionFailure struct {
	Op  string
	Err error
}

func (e *TransactionFailure) Error() string {
	return fmt.Sprintf("transaction failed during %s: %v", e.Op, e.Err)
}

func (e *TransactionFailure) Unwrap() error {
	return e.Err
}

// IsBusinessRejection reports whether err is a deterministic rejection that
// retrying against unchanged state would reproduce.
func IsBusinessRejection(err error) bool {
	var stock *InsufficientStockError
	var table *TableUnavailableError
	var price *MissingPriceError
	return errors.Is(err, ErrorInvalidArgument) ||
		errors.Is(err, ErrorRecordNotFound) ||
		errors.As(err, &stock) ||
		errors.As(err, &table) ||
		errors.As(err, &price)
}
