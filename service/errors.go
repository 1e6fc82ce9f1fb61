package service

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stevemurr/butterfly-api/store"
)

// ErrInvalidReference matches every *InvalidReferenceError via errors.Is.
var ErrInvalidReference = errors.New("invalid reference")

// InvalidReferenceError is returned when a rating points at a butterfly
// or user that does not exist. Fields is the lookup that came back empty.
type InvalidReferenceError struct {
	Collection string
	Fields     store.Fields
}

func (e *InvalidReferenceError) Error() string {
	b, err := json.Marshal(e.Fields)
	if err != nil {
		return fmt.Sprintf("Invalid field details %v", e.Fields)
	}
	return "Invalid field details " + string(b)
}

func (e *InvalidReferenceError) Is(target error) bool {
	return target == ErrInvalidReference
}
