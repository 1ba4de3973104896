package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"
)

func TestUnretriable(t *testing.T) {
	err := Unretriable(fmt.Errorf("bar"))
	require.True(t, IsUnretriable(err))
	var permErr *backoff.PermanentError
	require.True(t, errors.As(err, &permErr))
}

func TestUnretriableIsIdempotent(t *testing.T) {
	inner := Unretriable(fmt.Errorf("bar"))
	require.Equal(t, inner, Unretriable(inner))
	require.Nil(t, Unretriable(nil))
}

func TestCodeOf(t *testing.T) {
	err := Wrap(CodeDownloadFailed, "fetching source", fmt.Errorf("socket closed"))
	require.Equal(t, CodeDownloadFailed, CodeOf(err))
	require.True(t, IsCode(err, CodeDownloadFailed))
	require.Equal(t, "fetching source: socket closed", err.Error())

	require.Equal(t, CodeUnknown, CodeOf(fmt.Errorf("plain")))
	require.Nil(t, Wrap(CodeDownloadFailed, "fetching source", nil))
}

func TestCodeSurvivesWrapping(t *testing.T) {
	inner := New(CodeVideoTooLong, "duration 7200s exceeds limit")
	outer := fmt.Errorf("probing input: %w", inner)
	require.Equal(t, CodeVideoTooLong, CodeOf(outer))

	marked := Unretriable(New(CodeInvalidInput, "no video stream"))
	require.True(t, IsUnretriable(marked))
	require.Equal(t, CodeInvalidInput, CodeOf(marked))
}
