package search

import (
	"errors"
	"fmt"

	"github.com/hyperjump/toolkeeper/internal/models"
)

// ErrInvalidQuery is returned for search requests that fail validation.
var ErrInvalidQuery = errors.New("invalid search query")

// ProcessQuery validates and trims the search request.
func ProcessQuery(req *models.SearchRequest) error {
	if req == nil {
		return fmt.Errorf("%w: missing request", ErrInvalidQuery)
	}
	if err := req.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	return nil
}
