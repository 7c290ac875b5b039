package commsutil

import (
	"encoding/json"
	"fmt"
)

// EncodePayload serializes a message payload to JSON bytes.
func EncodePayload(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("commsutil:codec - encode: %w", err)
	}
	return data, nil
}

// DecodePayload deserializes JSON bytes into v.
func DecodePayload(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("commsutil:codec - decode: %w", err)
	}
	return nil
}
