package catalog

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("product not found")
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
)

// InsufficientStockError identifies the offending product so callers can
// surface the specific line that failed.
type InsufficientStockError struct {
	ProductID string
	Required  int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: required %d, available %d",
		e.ProductID, e.Required, e.Available)
}
