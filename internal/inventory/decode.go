package inventory

import (
	"encoding/json"
	"fmt"

	"github.com/hyperjump/toolkeeper/internal/storage"
)

func decodeInto(doc storage.Document, v any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %v: %w", doc[storage.IDField], err)
	}
	return nil
}
