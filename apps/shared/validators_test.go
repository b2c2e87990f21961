package shared

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uclouvain/osis-partnership-sub000/core/funding"
)

func TestNewValidator(t *testing.T) {
	translator := NewTranslator()
	validate := NewValidator(translator)

	data := funding.SourceData{}
	err := data.Validate(validate)
	require.Error(t, err)

	errs, ok := err.(validator.ValidationErrors)
	require.True(t, ok)
	require.Len(t, errs, 1)
	assert.Equal(t, "name", errs[0].Field())
	assert.Equal(t, "this field is required", errs[0].Translate(translator))
}
