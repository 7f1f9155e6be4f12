package types

import (
	"encoding/json"
	"log/slog"
)

const redactedPlaceholder = "[redacted]"

// SecretString is a configuration value that must not reach logs or API
// output: database URLs, the Redis password, the admin key hash. Every
// formatting path prints redactedPlaceholder; Unmask is the only way out.
type SecretString string

func (s SecretString) String() string   { return redactedPlaceholder }
func (s SecretString) GoString() string { return redactedPlaceholder }

func (s SecretString) MarshalJSON() ([]byte, error) {
	return json.Marshal(redactedPlaceholder)
}

func (s SecretString) LogValue() slog.Value {
	return slog.StringValue(redactedPlaceholder)
}

// Unmask returns the plaintext. Call it only where the value is consumed.
func (s SecretString) Unmask() string { return string(s) }

func (s SecretString) IsSet() bool { return s != "" }
