package intake

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ParsePayload flattens a JSON object into the string map Normalize expects.
// Scalars are stringified, nulls dropped, and nested objects and arrays kept
// as JSON text.
func ParsePayload(value []byte) (map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(value))
	dec.UseNumber()

	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid JSON payload: %w", err)
	}
	if raw == nil {
		return nil, errors.New("payload is not a JSON object")
	}

	payload := make(map[string]string, len(raw))
	for key, v := range raw {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			payload[key] = val
		case json.Number:
			payload[key] = val.String()
		case bool:
			payload[key] = strconv.FormatBool(val)
		default:
			nested, err := json.Marshal(val)
			if err != nil {
				return nil, fmt.Errorf("failed to encode field %q: %w", key, err)
			}
			payload[key] = string(nested)
		}
	}
	return payload, nil
}
