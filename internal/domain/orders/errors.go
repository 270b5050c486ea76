package orders

import (
	"errors"
	"fmt"
	"strings"
)

// ErrVersionConflict signals a stale optimistic-lock version. The caller must
// re-read the order and retry; concurrent writes are never merged.
var ErrVersionConflict = errors.New("order version conflict: stale version, re-read and retry")

// InvalidTransitionError is returned when an illegal edge is attempted or a
// target-state invariant does not hold. The order is left unchanged.
type InvalidTransitionError struct {
	From   OrderStatus
	To     OrderStatus
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid transition %s -> %s: %s", e.From, e.To, e.Reason)
	}
	nexts := NextStatuses(e.From)
	if len(nexts) == 0 {
		return fmt.Sprintf("invalid transition %s -> %s: %s is a terminal state", e.From, e.To, e.From)
	}
	names := make([]string, len(nexts))
	for i, s := range nexts {
		names[i] = string(s)
	}
	return fmt.Sprintf("invalid transition %s -> %s: valid next states are %s", e.From, e.To, strings.Join(names, ", "))
}
