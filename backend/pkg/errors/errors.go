package errors

import (
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeLineage represents lineage-graph invariant errors
	ErrorTypeLineage ErrorType = "lineage"
	// ErrorTypeInput represents input validation errors
	ErrorTypeInput ErrorType = "input"
	// ErrorTypeStore represents backing-store errors
	ErrorTypeStore ErrorType = "store"
	// ErrorTypeEmbedding represents embedding service errors
	ErrorTypeEmbedding ErrorType = "embedding"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeContext represents context cancellation/timeout errors
	ErrorTypeContext ErrorType = "context"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Lineage Errors

// ErrNodeNotFound is returned when a referenced node is absent from the graph
type ErrNodeNotFound struct {
	*BaseError
	NodeID string
}

func NewNodeNotFound(nodeID string) *ErrNodeNotFound {
	return &ErrNodeNotFound{
		BaseError: NewBaseError(ErrorTypeLineage, fmt.Sprintf("node not found: %s", nodeID), nil),
		NodeID:    nodeID,
	}
}

// ErrDuplicateNode is returned when a node id is inserted twice
type ErrDuplicateNode struct {
	*BaseError
	NodeID string
}

func NewDuplicateNode(nodeID string) *ErrDuplicateNode {
	return &ErrDuplicateNode{
		BaseError: NewBaseError(ErrorTypeLineage, fmt.Sprintf("duplicate node: %s", nodeID), nil),
		NodeID:    nodeID,
	}
}

// ErrDuplicateEdge is returned when an edge id is inserted twice
type ErrDuplicateEdge struct {
	*BaseError
	EdgeID string
}

func NewDuplicateEdge(edgeID string) *ErrDuplicateEdge {
	return &ErrDuplicateEdge{
		BaseError: NewBaseError(ErrorTypeLineage, fmt.Sprintf("duplicate edge: %s", edgeID), nil),
		EdgeID:    edgeID,
	}
}

// ErrBackwardEdge is returned when an edge would point backward in time.
// The child must have been created strictly after the parent.
type ErrBackwardEdge struct {
	*BaseError
	SourceID        string
	TargetID        string
	SourceCreatedAt time.Time
	TargetCreatedAt time.Time
}

func NewBackwardEdge(sourceID, targetID string, sourceCreatedAt, targetCreatedAt time.Time) *ErrBackwardEdge {
	return &ErrBackwardEdge{
		BaseError: NewBaseError(ErrorTypeLineage,
			fmt.Sprintf("backward edge %s -> %s: target created %s, source created %s",
				sourceID, targetID, targetCreatedAt.Format(time.RFC3339Nano), sourceCreatedAt.Format(time.RFC3339Nano)), nil),
		SourceID:        sourceID,
		TargetID:        targetID,
		SourceCreatedAt: sourceCreatedAt,
		TargetCreatedAt: targetCreatedAt,
	}
}

// Input Errors

// ErrInvalidInput is returned for empty/oversized content or malformed embeddings
type ErrInvalidInput struct {
	*BaseError
	Field  string
	Reason string
}

func NewInvalidInput(field, reason string) *ErrInvalidInput {
	return &ErrInvalidInput{
		BaseError: NewBaseError(ErrorTypeInput, fmt.Sprintf("invalid input: %s - %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// Store Errors

// ErrStoreUnavailable is returned when the backing store cannot be reached.
// Transient: callers may retry.
type ErrStoreUnavailable struct {
	*BaseError
	Operation string
}

func NewStoreUnavailable(operation string, err error) *ErrStoreUnavailable {
	return &ErrStoreUnavailable{
		BaseError: NewBaseError(ErrorTypeStore, fmt.Sprintf("backing store unavailable: %s", operation), err),
		Operation: operation,
	}
}

// ErrStoreRejected is returned when the backing store permanently rejects a
// record. Not retryable.
type ErrStoreRejected struct {
	*BaseError
	ExecutionRef string
	Reason       string
}

func NewStoreRejected(executionRef, reason string) *ErrStoreRejected {
	return &ErrStoreRejected{
		BaseError:    NewBaseError(ErrorTypeStore, fmt.Sprintf("backing store rejected record %s: %s", executionRef, reason), nil),
		ExecutionRef: executionRef,
		Reason:       reason,
	}
}

// ErrRecordNotFound is returned when a decision record is absent from the store
type ErrRecordNotFound struct {
	*BaseError
	ExecutionRef string
}

func NewRecordNotFound(executionRef string) *ErrRecordNotFound {
	return &ErrRecordNotFound{
		BaseError:    NewBaseError(ErrorTypeStore, fmt.Sprintf("decision record not found: %s", executionRef), nil),
		ExecutionRef: executionRef,
	}
}

// ErrStoreConnectionFailed is returned when the Neo4j connection fails
type ErrStoreConnectionFailed struct {
	*BaseError
	URI string
}

func NewStoreConnectionFailed(uri string, err error) *ErrStoreConnectionFailed {
	return &ErrStoreConnectionFailed{
		BaseError: NewBaseError(ErrorTypeStore, fmt.Sprintf("failed to connect to Neo4j: %s", uri), err),
		URI:       uri,
	}
}

// Embedding Errors

// ErrEmbeddingFailed is returned when the embedding request fails
type ErrEmbeddingFailed struct {
	*BaseError
	Model string
}

func NewEmbeddingFailed(model string, err error) *ErrEmbeddingFailed {
	return &ErrEmbeddingFailed{
		BaseError: NewBaseError(ErrorTypeEmbedding, fmt.Sprintf("embedding request failed: %s", model), err),
		Model:     model,
	}
}

// Config Errors

// ErrConfigValidationFailed is returned when configuration validation fails
type ErrConfigValidationFailed struct {
	*BaseError
	Field  string
	Reason string
}

func NewConfigValidationFailed(field, reason string) *ErrConfigValidationFailed {
	return &ErrConfigValidationFailed{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("config validation failed: %s - %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// Context Errors

// ErrContextCancelled is returned when context is cancelled mid-operation
type ErrContextCancelled struct {
	*BaseError
	Operation string
}

func NewContextCancelled(operation string, err error) *ErrContextCancelled {
	return &ErrContextCancelled{
		BaseError: NewBaseError(ErrorTypeContext, fmt.Sprintf("context cancelled: %s", operation), err),
		Operation: operation,
	}
}

// Helper functions

// ErrType reports the category of the error. Promoted through embedding so
// typed wrappers answer for themselves.
func (e *BaseError) ErrType() ErrorType {
	return e.Type
}

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	if typed, ok := err.(interface{ ErrType() ErrorType }); ok {
		return typed.ErrType() == errType
	}
	if wrapped, ok := err.(interface{ Unwrap() error }); ok {
		inner := wrapped.Unwrap()
		if inner != nil {
			return IsErrorType(inner, errType)
		}
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	// Context errors are not retryable
	if IsErrorType(err, ErrorTypeContext) {
		return false
	}
	// Permanent store rejections are never retried
	if _, ok := err.(*ErrStoreRejected); ok {
		return false
	}
	if wrapped, ok := err.(interface{ Unwrap() error }); ok {
		if inner := wrapped.Unwrap(); inner != nil {
			if _, rejected := inner.(*ErrStoreRejected); rejected {
				return false
			}
		}
	}
	// Unavailable store and embedding hiccups are transient
	if IsErrorType(err, ErrorTypeStore) {
		return true
	}
	if IsErrorType(err, ErrorTypeEmbedding) {
		return true
	}
	return false
}
