package testutils

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskconvertai/taskconvert-api/internal/api/shared"
)

// AssertErrorResponse checks the status of rr and that its JSON error
// message contains expectedErrorMsgPart.
func AssertErrorResponse(
	t *testing.T,
	rr *httptest.ResponseRecorder,
	expectedStatus int,
	expectedErrorMsgPart string,
) {
	t.Helper()

	assert.Equal(t, expectedStatus, rr.Code, "unexpected status code")
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var resp shared.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), "error body must be JSON: %s", rr.Body.String())
	assert.Contains(t, resp.Error, expectedErrorMsgPart)
}
