package storage

import (
	"errors"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnavailable indicates the backend is temporarily rejecting requests,
	// e.g. while its circuit breaker is open.
	ErrUnavailable = errors.New("storage unavailable")
)

// PaginatedResult represents a paginated result set with type safety using generics.
type PaginatedResult[T any] struct {
	// Items is the slice of results for the current page.
	Items []T

	// Total is the total number of items across all pages.
	Total int

	// Page is the current page number (1-indexed).
	Page int

	// PageSize is the number of items per page.
	PageSize int

	// HasMore indicates whether there are more pages available.
	HasMore bool
}

// ListOptions provides pagination and filtering options for list operations.
type ListOptions struct {
	// Page is the page number to retrieve (1-indexed, default: 1).
	Page int

	// Limit is the number of items per page (default: 10, max: 100).
	Limit int

	// SortBy specifies the field to sort by (e.g., "created_at", "updated_at").
	SortBy string

	// SortOrder specifies the sort direction ("asc" or "desc", default: "desc").
	SortOrder string

	// Topic filters records by topic label. Empty string means no filter.
	Topic string

	// Tag filters records carrying the given tag. Empty string means no filter.
	Tag string

	// Emotion filters records bound to the named profile. Empty string means
	// no filter.
	Emotion string

	// IncludeRemoved includes removed records in results.
	// By default (false), removed records are excluded from all queries.
	IncludeRemoved bool

	// IncludeShielded includes shielded records in results. Defaults to true
	// for storage listings; the retrieval scorer applies its own exclusion.
	IncludeShielded bool
}

// Normalize applies defaults and validates the ListOptions.
func (o *ListOptions) Normalize() {
	// Whitelist validation for SortBy to prevent SQL injection
	allowedSortFields := map[string]bool{
		"created_at": true,
		"updated_at": true,
		"id":         true,
		"weight":     true,
		"trust":      true,
	}

	if !allowedSortFields[o.SortBy] {
		o.SortBy = "updated_at" // Default sort field
	}

	if o.SortOrder != "asc" && o.SortOrder != "desc" {
		o.SortOrder = "desc" // Default sort order
	}

	if o.Page < 1 {
		o.Page = 1
	}

	if o.Limit < 1 {
		o.Limit = 10 // Default limit
	}

	if o.Limit > 100 {
		o.Limit = 100 // Max limit
	}
}

// Offset calculates the offset for SQL queries based on page and limit.
func (o *ListOptions) Offset() int {
	return (o.Page - 1) * o.Limit
}
