package generation

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorClassification(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("chat: %w", &Error{Provider: "groq", Kind: Connectivity, Err: cause})

	require.ErrorIs(t, err, ErrGenerationFailed)
	require.ErrorIs(t, err, cause)
	require.Equal(t, Connectivity, KindOf(err))
	require.Equal(t, Kind(""), KindOf(cause))
}

func TestErrorMessageIncludesStatus(t *testing.T) {
	err := &Error{Provider: "groq", Kind: ProviderStatus, StatusCode: 503, Err: errors.New("overloaded")}
	require.Contains(t, err.Error(), "status 503")
	require.Contains(t, err.Error(), "provider_status")
}
