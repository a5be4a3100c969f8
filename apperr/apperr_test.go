package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zlnvch/collabdocs/apperr"
)

func TestStatusByKind(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{apperr.Authentication("bad token"), http.StatusUnauthorized},
		{apperr.Authorization("owner only"), http.StatusForbidden},
		{apperr.NotFound("document"), http.StatusNotFound},
		{apperr.Validation("bad input"), http.StatusBadRequest},
		{apperr.Dependency(errors.New("timeout"), "failed to load"), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.status, apperr.Status(tt.err), tt.err.Error())
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("select document: %w", apperr.NotFound("document"))

	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Equal(t, "document not found", apperr.PublicMessage(err))
}

func TestDependencyMessageIsHidden(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.1:6379: connection refused")
	err := apperr.Dependency(cause, "failed to store token")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "internal server error", apperr.PublicMessage(err))
	assert.Equal(t, apperr.KindDependency, apperr.KindOf(errors.New("untyped")))
}

func TestWithContext(t *testing.T) {
	err := apperr.Validation("edit without read").WithContext("ids", []string{"x"})

	assert.Equal(t, []string{"x"}, err.Context["ids"])
	assert.Contains(t, err.Error(), "VALIDATION_FAILURE")
}
