// Package payload wraps stored JSON blobs in a versioned envelope so the
// persisted shape can evolve without guessing at what an old row contains.
package payload

import (
	"encoding/json"
	"fmt"
)

// Version is the current envelope schema version.
const Version = 1

// Envelope tags serialized data with its schema version.
type Envelope struct {
	Version int             `json:"v"`
	Data    json.RawMessage `json:"data"`
}

// Marshal serializes v inside a versioned envelope.
func Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return json.Marshal(Envelope{Version: Version, Data: data})
}

// Unmarshal decodes an enveloped blob into out. Blobs written before the
// envelope was introduced are decoded as-is.
func Unmarshal(b []byte, out any) error {
	var env Envelope
	if err := json.Unmarshal(b, &env); err == nil && env.Version > 0 && len(env.Data) > 0 {
		if env.Version > Version {
			return fmt.Errorf("unsupported payload version %d", env.Version)
		}
		return json.Unmarshal(env.Data, out)
	}
	return json.Unmarshal(b, out)
}
