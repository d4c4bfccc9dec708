// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrItemNotFound    = errors.New("tracked item not found")
	ErrInvalidQuantity = errors.New("quantity must be non-negative")
	ErrUnknownPeriod   = errors.New("unknown statistics period")
	ErrUnauthorized    = errors.New("caller is not authorized")
	ErrConfigInvalid   = errors.New("invalid configuration")
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrNotPending      = errors.New("delivery status already settled")
)

// FetchError represents a failure to obtain a quantity from the remote
// inventory source: transport errors, timeouts, non-success statuses and
// malformed responses all end up here.
type FetchError struct {
	ProductID string
	StoreID   string
	Reason    string
	Err       error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch error [%s@%s]: %s: %v", e.ProductID, e.StoreID, e.Reason, e.Err)
	}
	return fmt.Sprintf("fetch error [%s@%s]: %s", e.ProductID, e.StoreID, e.Reason)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError creates a new FetchError.
func NewFetchError(productID, storeID, reason string, err error) *FetchError {
	return &FetchError{
		ProductID: productID,
		StoreID:   storeID,
		Reason:    reason,
		Err:       err,
	}
}

// StorageError represents an unavailable or failing persistence medium.
type StorageError struct {
	Operation string
	ItemID    string
	Err       error
}

func (e *StorageError) Error() string {
	if e.ItemID != "" {
		return fmt.Sprintf("storage error [%s] %s: %v", e.Operation, e.ItemID, e.Err)
	}
	return fmt.Sprintf("storage error [%s]: %v", e.Operation, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a new StorageError.
func NewStorageError(operation, itemID string, err error) *StorageError {
	return &StorageError{
		Operation: operation,
		ItemID:    itemID,
		Err:       err,
	}
}

// DeliveryError represents a failed notification delivery.
type DeliveryError struct {
	Channel string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery error [%s]: %v", e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// NewDeliveryError creates a new DeliveryError.
func NewDeliveryError(channel string, err error) *DeliveryError {
	return &DeliveryError{
		Channel: channel,
		Err:     err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrConfigInvalid
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// IsFetchError reports whether err carries a FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// IsStorageError reports whether err carries a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// IsDeliveryError reports whether err carries a DeliveryError.
func IsDeliveryError(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de)
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
