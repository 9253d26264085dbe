package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields added to every log record emitted
// with a context that carries them.
type LogFields struct {
	NegotiationID *int64  // Ledger negotiation ID
	DeviceID      *string // Browser context (device cookie) owning the app session
	Role          *string // "employer" or "candidate"
	Step          *string // Derived UI step at the time of logging
	Instruction   *string // Ledger instruction being sent
	Component     string  // e.g. "river.synchronizer"
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, newer non-nil/non-empty values win.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, new LogFields) LogFields {
	result := existing

	if new.NegotiationID != nil {
		result.NegotiationID = new.NegotiationID
	}
	if new.DeviceID != nil {
		result.DeviceID = new.DeviceID
	}
	if new.Role != nil {
		result.Role = new.Role
	}
	if new.Step != nil {
		result.Step = new.Step
	}
	if new.Instruction != nil {
		result.Instruction = new.Instruction
	}
	if new.Component != "" {
		result.Component = new.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
