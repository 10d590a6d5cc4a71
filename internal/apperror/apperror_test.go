package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		err        *Error
		name       string
		wantCode   string
		wantStatus int
		wantKind   Kind
	}{
		{
			name:       "not found",
			err:        NotFound("snapshot", "snap-1"),
			wantKind:   KindNotFound,
			wantCode:   CodeNotFound,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "validation",
			err:        Validation("snapshot %s is not indexed", "snap-1"),
			wantKind:   KindValidation,
			wantCode:   CodeValidation,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "conflict",
			err:        Conflict("run already active"),
			wantKind:   KindConflict,
			wantCode:   CodeConflict,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "internal",
			err:        Internal(CodeFindingsCreate, "failed to create findings", errors.New("disk full")),
			wantKind:   KindInternal,
			wantCode:   CodeFindingsCreate,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "queue full",
			err:        Internal(CodeAnalysisQueueFull, "queue full", nil),
			wantKind:   KindInternal,
			wantCode:   CodeAnalysisQueueFull,
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantKind, tt.err.Kind)
			assert.Equal(t, tt.wantCode, tt.err.Code)
			assert.Equal(t, tt.wantStatus, tt.err.HTTPStatus())
			assert.Contains(t, tt.err.Error(), tt.wantCode)
		})
	}
}

func TestWrap(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeFindingsCreate, "x"))
	})

	t.Run("plain error is wrapped", func(t *testing.T) {
		cause := errors.New("constraint failed")
		err := Wrap(cause, CodeFindingsCreate, "failed to create findings")

		appErr, ok := As(err)
		require.True(t, ok)
		assert.Equal(t, CodeFindingsCreate, appErr.Code)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("typed error passes through", func(t *testing.T) {
		notFound := NotFound("snapshot", "snap-1")
		wrapped := fmt.Errorf("loading: %w", notFound)

		err := Wrap(wrapped, CodeFindingsCreate, "failed to create findings")
		assert.Same(t, wrapped, err)
		assert.True(t, IsNotFound(err))
		assert.False(t, HasCode(err, CodeFindingsCreate))
	})
}

func TestKindHelpers(t *testing.T) {
	assert.True(t, IsConflict(Conflict("dup")))
	assert.True(t, IsValidation(Validation("bad")))
	assert.False(t, IsNotFound(errors.New("plain")))
	assert.True(t, HasCode(Internal(CodeAnalysisStart, "x", nil), CodeAnalysisStart))
}
