package imagepipe

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadingError_UnwrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewLoadingError(cause)

	var le *LoadingError
	require.True(t, errors.As(err, &le))
	require.Equal(t, cause, le.Cause)
	require.ErrorIs(t, err, cause)
}

func TestWrapProcessingFailed_MatchesSentinel(t *testing.T) {
	err := wrapProcessingFailed("resize", errors.New("bad bounds"))
	require.ErrorIs(t, err, ErrProcessingFailed)
	require.Contains(t, err.Error(), "resize")
}

func TestWrapProcessingFailed_NoProcessorName(t *testing.T) {
	err := wrapProcessingFailed("", nil)
	require.ErrorIs(t, err, ErrProcessingFailed)
}
