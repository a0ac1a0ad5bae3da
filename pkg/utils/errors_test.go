package utils

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_ComposesOperationCauseDetails(t *testing.T) {
	cause := fmt.Errorf("permission denied")
	err := NewError("failed to write zone", cause, "path /etc/coredns", "mode 0644")

	assert.Equal(t, "failed to write zone: permission denied: path /etc/coredns; mode 0644", err.Error())
}

func TestError_OperationOnly(t *testing.T) {
	err := NewError("refusing to overwrite identity", nil, "sandbox is running; stop it or pass --force")
	assert.Equal(t, "refusing to overwrite identity: sandbox is running; stop it or pass --force", err.Error())
}

func TestError_UnwrapExposesCause(t *testing.T) {
	cause := fmt.Errorf("underlying")
	err := NewError("operation", cause)

	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestWrapf_AddsContextAndPreservesChain(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrapf(cause, "failed to probe %s", "docker")

	require.Error(t, err)
	assert.Equal(t, "failed to probe docker: connection refused", err.Error())
	assert.True(t, errors.Is(err, cause))
}

func TestWrapf_NilPassthrough(t *testing.T) {
	assert.NoError(t, Wrapf(nil, "never seen"))
}
