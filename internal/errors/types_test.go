package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStageError_Kinds(t *testing.T) {
	cause := stderrors.New("boom")

	fatal := Fatal("fetch", cause)
	assert.True(t, IsFatal(fatal))
	assert.Equal(t, "fetch stage fatal: boom", fatal.Error())
	assert.ErrorIs(t, fatal, cause)

	degraded := Degraded("caption", cause)
	assert.False(t, IsFatal(degraded))
	assert.Equal(t, "caption", StageOf(degraded))
}

func TestStageError_Wrapped(t *testing.T) {
	err := fmt.Errorf("ingestion: %w", Fatalf("validate", "missing %s", "ai.APIKey"))
	assert.True(t, IsFatal(err))
	assert.Equal(t, "validate", StageOf(err))
	assert.Equal(t, "", StageOf(stderrors.New("plain")))
}

func TestGetAppError(t *testing.T) {
	validation := NewValidationError("query is required")
	assert.Same(t, validation, GetAppError(fmt.Errorf("wrap: %w", validation)))
	assert.Equal(t, http.StatusBadRequest, validation.HTTPCode)

	generic := GetAppError(stderrors.New("db down"))
	assert.Equal(t, ErrCodeInternalServer, generic.Code)
	assert.Equal(t, "Internal server error: db down", generic.Error())

	external := NewExternalError("milvus", stderrors.New("unavailable"))
	assert.Equal(t, http.StatusBadGateway, external.HTTPCode)
	assert.Contains(t, external.Error(), "milvus request failed")
}

func TestRequestErrors(t *testing.T) {
	bad := NewBadRequestError("invalid request body")
	assert.Equal(t, ErrCodeBadRequest, bad.Code)
	assert.Equal(t, http.StatusBadRequest, bad.HTTPCode)

	missing := NewMissingFieldError("query")
	assert.Equal(t, ErrCodeMissingRequired, missing.Code)
	assert.Equal(t, "query is required", missing.Message)

	timeout := NewSystemError(ErrCodeTimeout, "generation timed out")
	assert.Equal(t, http.StatusInternalServerError, timeout.HTTPCode)
	assert.Same(t, timeout, GetAppError(timeout))
}
