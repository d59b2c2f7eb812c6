package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeCategories(t *testing.T) {
	cases := map[Code]Category{
		CodeBadRequest:       CategoryMalformed,
		CodeUnauthorized:     CategoryPolicy,
		CodeClaimUnavailable: CategoryPolicy,
		CodeUnknownLink:      CategorySession,
		CodeNotYetAvailable:  CategoryNotYetAvailable,
		CodeInternal:         CategoryInfrastructure,
		Code("made_up"):      CategoryInfrastructure,
	}
	for code, want := range cases {
		assert.Equal(t, want, code.Category(), "code %s", code)
	}
	assert.True(t, CodeTimeout.Retryable())
	assert.False(t, CodeConflict.Retryable())
}

func TestHasCodeThroughWrapping(t *testing.T) {
	base := New(CodeConflict, "nym already exists")
	wrapped := fmt.Errorf("execute: %w", base)

	assert.True(t, HasCode(wrapped, CodeConflict))
	assert.False(t, HasCode(wrapped, CodeInternal))
	assert.False(t, HasCode(nil, CodeConflict))
	assert.False(t, HasCode(errors.New("plain"), CodeConflict))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}

func TestWithFieldsDoesNotMutate(t *testing.T) {
	base := New(CodeValidation, "missing field")
	annotated := base.WithFields("dest")

	assert.Empty(t, base.Fields)
	assert.Equal(t, []string{"dest"}, FieldsOf(annotated))
}

func TestMessageOfHidesInfrastructureDetail(t *testing.T) {
	assert.Equal(t, "internal error", MessageOf(Wrap(errors.New("pq: connection refused"), CodeInternal, "append failed")))
	assert.Equal(t, "role is not valid", MessageOf(New(CodeValidation, "role is not valid")))
}
