package store

import (
	"errors"
	"fmt"

	"newsdigest/internal/services"
)

var (
	// ErrInvalidTransition is returned for status changes outside the lifecycle graph.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrEmbeddingExists is returned when an item already carries an embedding.
	ErrEmbeddingExists = errors.New("embedding already set")
)

// ErrorClassifier allows errors to declare their classification.
type ErrorClassifier interface {
	ErrorKind() string
}

// NotFoundError reports a lookup for a record that does not exist.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

// ErrorKind implements ErrorClassifier.
func (e *NotFoundError) ErrorKind() string { return "not_found" }

// Is lets errors.Is(err, services.ErrNotFound) match.
func (e *NotFoundError) Is(target error) bool {
	return target == services.ErrNotFound
}

func itemNotFound(id int64) error {
	return &NotFoundError{Entity: "item", Key: fmt.Sprintf("%d", id)}
}

func invalidTransition(from, to Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
