package chat

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelChoice_Resolve(t *testing.T) {
	tests := []struct {
		name     string
		choice   ModelChoice
		expected string
	}{
		{
			name:     "default resolves to configured model",
			choice:   DefaultModel(),
			expected: "gpt-4o-mini",
		},
		{
			name:     "zero value resolves to configured model",
			choice:   ModelChoice{},
			expected: "gpt-4o-mini",
		},
		{
			name:     "specific model wins over default",
			choice:   Model("gpt-4o"),
			expected: "gpt-4o",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.choice.Resolve("gpt-4o-mini"))
		})
	}
}

func TestModelChoice_IsDefault(t *testing.T) {
	assert.True(t, DefaultModel().IsDefault())
	assert.False(t, Model("gpt-4o").IsDefault())
}

func TestRequest_Clone(t *testing.T) {
	original := &Request{
		Model: Model("gpt-4o"),
		Messages: []Message{
			{Role: RoleSystem, Content: "Be terse."},
			{Role: RoleUser, Content: "Hello"},
		},
		Stream: false,
	}

	clone := original.Clone()
	clone.Stream = true
	clone.Messages[0].Content = "changed"

	assert.False(t, original.Stream, "clone must not mutate the original")
	assert.Equal(t, "Be terse.", original.Messages[0].Content)
	assert.True(t, clone.Stream)
	assert.Equal(t, original.Model, clone.Model)
}

func TestRequestFailedError_Message(t *testing.T) {
	err := &RequestFailedError{StatusCode: 500, Status: "500 Internal Server Error"}
	assert.Contains(t, err.Error(), "500")

	bare := &RequestFailedError{StatusCode: 403}
	assert.Contains(t, bare.Error(), "403")
}

func TestRequestFailedError_As(t *testing.T) {
	var wrapped error = &RequestFailedError{StatusCode: 429}

	var reqErr *RequestFailedError
	require.True(t, errors.As(wrapped, &reqErr))
	assert.Equal(t, 429, reqErr.StatusCode)
}

func TestStatusOK(t *testing.T) {
	assert.True(t, StatusOK(200))
	assert.True(t, StatusOK(299))
	assert.False(t, StatusOK(199))
	assert.False(t, StatusOK(300))
	assert.False(t, StatusOK(500))
}
