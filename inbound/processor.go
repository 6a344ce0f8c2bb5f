package inbound

import (
	"context"
	"encoding/json"
	"fmt"
)

// Processor consumes a verified inbound webhook payload. The dashboard's
// domain handlers (call logging, appointment sync, payment reconciliation)
// implement this; a processing error sends the raw payload to the retry
// store for replay.
type Processor interface {
	Process(ctx context.Context, provider string, payload []byte) error
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, provider string, payload []byte) error

func (f ProcessorFunc) Process(ctx context.Context, provider string, payload []byte) error {
	return f(ctx, provider, payload)
}

// ValidateJSON is a minimal processor that only checks the payload parses.
// Used when no domain handler is registered for a provider.
func ValidateJSON(_ context.Context, provider string, payload []byte) error {
	if !json.Valid(payload) {
		return fmt.Errorf("provider %s sent a payload that is not valid JSON", provider)
	}
	return nil
}
