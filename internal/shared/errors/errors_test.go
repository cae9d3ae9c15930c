package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPredicatesMatchConstructors(t *testing.T) {
	assert.True(t, IsNotFound(NewNotFoundError("no chain for ticket")))
	assert.True(t, IsProviderTransport(NewProviderTransportError("timeout", nil)))
	assert.True(t, IsProviderValidation(NewProviderValidationError("bad shape", "raw")))
	assert.True(t, IsResourceSetup(NewResourceSetupError("corpus create failed", nil)))

	assert.False(t, IsNotFound(NewInternalError("boom")))
	assert.False(t, IsProviderTransport(nil))
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("analysis run: %w", NewProviderValidationError("bad shape", "raw"))

	assert.True(t, IsProviderValidation(wrapped))
	assert.False(t, IsProviderTransport(wrapped))
}

func TestDetails(t *testing.T) {
	raw := `{"half a response`
	err := NewProviderValidationError("response did not parse", raw)

	assert.Equal(t, raw, Details(err))
	assert.Equal(t, raw, Details(fmt.Errorf("unit 3000001: %w", err)))
	assert.Equal(t, "", Details(fmt.Errorf("plain error")))
	assert.Equal(t, "", Details(nil))
}

func TestTransportErrorKeepsCause(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := NewProviderTransportError("send failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection reset")
}
