package ledger

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("order not found")

type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}
