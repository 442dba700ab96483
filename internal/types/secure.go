package types

import "log/slog"

const redacted = "[REDACTED]"

// SecretString holds a credential such as the database URL or the payment
// webhook signing secret. It never renders its value through fmt, JSON or
// slog; call Unmask where the raw value is required.
type SecretString string

func (s SecretString) String() string {
	return redacted
}

// GoString covers %#v.
func (s SecretString) GoString() string {
	return redacted
}

func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

// LogValue implements slog.LogValuer.
func (s SecretString) LogValue() slog.Value {
	return slog.StringValue(redacted)
}

// IsSet reports whether a non-empty secret was configured.
func (s SecretString) IsSet() bool {
	return s != ""
}

// Unmask returns the plaintext value.
func (s SecretString) Unmask() string {
	return string(s)
}
