package domain

import (
	"encoding/json"
	"fmt"
)

// MarshalSnapshot encodes the complete cart as a JSON array of lines.
func MarshalSnapshot(c Cart) ([]byte, error) {
	data, err := json.Marshal(c.Clone())
	if err != nil {
		return nil, fmt.Errorf("marshal cart snapshot: %w", err)
	}
	return data, nil
}

// UnmarshalSnapshot decodes a snapshot written by MarshalSnapshot and checks
// that it describes a well-formed cart. A JSON null decodes to an empty cart.
func UnmarshalSnapshot(data []byte) (Cart, error) {
	var c Cart
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshal cart snapshot: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cart snapshot: %w", err)
	}
	return c.Clone(), nil
}
