package api

import (
	"encoding/json/v2"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeTransformer_AlwaysIncludesVersion(t *testing.T) {
	tests := []struct {
		name   string
		status string
		input  any
	}{
		{"success response", "200", map[string]string{"key": "value"}},
		{"created response", "201", map[string]string{"id": "123"}},
		{"no content response", "204", nil},
		{"bad request error", "400", errors.New("invalid input")},
		{"not found error", "404", &APIError{Message: "room not found"}},
		{"coded error", "409", &APIError{Code: "ALREADY_EXISTS", Message: "room already exists"}},
		{"internal server error", "500", errors.New("internal error")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := EnvelopeTransformer(nil, tt.status, tt.input)
			require.NoError(t, err)

			envelope := marshalToMap(t, result)
			require.Contains(t, envelope, "v")
			assert.Equal(t, float64(EnvelopeVersion), envelope["v"])
		})
	}
}

func TestEnvelopeTransformer_SuccessResponse(t *testing.T) {
	data := map[string]string{"name": "Kitchen"}

	result, err := EnvelopeTransformer(nil, "200", data)
	require.NoError(t, err)

	envelope, ok := result.(APIEnvelope)
	require.True(t, ok, "Expected APIEnvelope type")
	assert.True(t, envelope.Success)
	assert.Equal(t, data, envelope.Data)
	assert.Empty(t, envelope.Error)
}

func TestEnvelopeTransformer_ErrorResponse(t *testing.T) {
	result, err := EnvelopeTransformer(nil, "400", errors.New("validation failed"))
	require.NoError(t, err)

	envelope, ok := result.(APIEnvelope)
	require.True(t, ok, "Expected APIEnvelope type")
	assert.False(t, envelope.Success)
	assert.Nil(t, envelope.Data)
	assert.Equal(t, "validation failed", envelope.Error)
}

func TestEnvelopeTransformer_ErrorWithCode(t *testing.T) {
	apiErr := &APIError{
		Code:    "VALIDATION",
		Message: "validation failed",
		Details: map[string]string{"name": "must not be blank"},
	}

	result, err := EnvelopeTransformer(nil, "400", apiErr)
	require.NoError(t, err)

	envelope, ok := result.(APIErrorEnvelope)
	require.True(t, ok, "Expected APIErrorEnvelope type")
	assert.False(t, envelope.Success)
	assert.Equal(t, "VALIDATION", envelope.Code)
	assert.Equal(t, "validation failed", envelope.Message)
	assert.Equal(t, "validation failed", envelope.Error)
	assert.Equal(t, map[string]string{"name": "must not be blank"}, envelope.Details)
}

func TestEnvelopeTransformer_AlreadyWrapped(t *testing.T) {
	in := APIEnvelope{Version: EnvelopeVersion, Success: true, Data: "x"}

	result, err := EnvelopeTransformer(nil, "200", in)
	require.NoError(t, err)
	assert.Equal(t, in, result)
}

// The fixtures are shared with clients, which parse the same files.
func TestEnvelopeContract_MatchesFixtures(t *testing.T) {
	tests := []struct {
		fixture string
		status  string
		input   any
	}{
		{"success.json", "200", map[string]string{"id": "room-V1StGXR8_Z5jdHi6B-myT", "name": "Kitchen"}},
		{"success_null_data.json", "200", nil},
		{"error_simple.json", "404", &APIError{Message: "Resource not found"}},
		{"error_detailed.json", "400", &APIError{
			Code:    "VALIDATION",
			Message: "validation failed",
			Details: map[string]string{"name": "must not be blank"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.fixture, func(t *testing.T) {
			raw, err := os.ReadFile(filepath.Join("testdata", "envelope", tt.fixture))
			require.NoError(t, err)

			var expected map[string]any
			require.NoError(t, json.Unmarshal(raw, &expected))

			result, err := EnvelopeTransformer(nil, tt.status, tt.input)
			require.NoError(t, err)

			assert.Equal(t, expected, marshalToMap(t, result))
		})
	}
}

// The version field must be named exactly "v"; clients break silently otherwise.
func TestEnvelopeContract_VersionFieldName(t *testing.T) {
	result, err := EnvelopeTransformer(nil, "200", nil)
	require.NoError(t, err)

	out := marshalToMap(t, result)
	assert.Contains(t, out, "v")
	assert.NotContains(t, out, "version")
	assert.NotContains(t, out, "Version")
}

func TestStatusToCode(t *testing.T) {
	assert.Equal(t, "VALIDATION", statusToCode(422))
	assert.Equal(t, "TOO_MANY_REQUESTS", statusToCode(429))
	assert.Equal(t, "UNSUPPORTED", statusToCode(501))
	assert.Equal(t, "INTERNAL", statusToCode(502))
}

func TestClientIP(t *testing.T) {
	assert.Equal(t, "203.0.113.7", clientIP("203.0.113.7, 10.0.0.1", "", "10.0.0.2:5000"))
	assert.Equal(t, "198.51.100.4", clientIP("", "198.51.100.4", "10.0.0.2:5000"))
	assert.Equal(t, "10.0.0.2", clientIP("", "", "10.0.0.2:5000"))
	assert.Equal(t, "::1", clientIP("", "", "[::1]:5000"))
	assert.Equal(t, "unix", clientIP("", "", "unix"))
}

func marshalToMap(t *testing.T, v any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}
