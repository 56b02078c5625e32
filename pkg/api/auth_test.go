package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBearerAuth(t *testing.T) {
	tests := []struct {
		name           string
		tokens         []string
		header         string
		query          string
		expectedStatus int
	}{
		{
			name:           "no tokens configured disables auth",
			tokens:         nil,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "valid header token",
			tokens:         []string{"secret-1", "secret-2"},
			header:         "Bearer secret-2",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "valid query token for EventSource clients",
			tokens:         []string{"secret-1"},
			query:          "?token=secret-1",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "missing token",
			tokens:         []string{"secret-1"},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "wrong token",
			tokens:         []string{"secret-1"},
			header:         "Bearer wrong",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "header without bearer prefix",
			tokens:         []string{"secret-1"},
			header:         "secret-1",
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := newTestServer(tt.tokens...)

			headers := map[string]string{}
			if tt.header != "" {
				headers["Authorization"] = tt.header
			}
			rec := performRequest(server, http.MethodGet, "/api/v1/agents"+tt.query+queryJoin(tt.query, "organizationId=org-1"), "", headers)
			assert.Equal(t, tt.expectedStatus, rec.Code)
		})
	}
}

func TestHealthEndpointsBypassAuth(t *testing.T) {
	server, _ := newTestServer("secret-1")

	rec := performRequest(server, http.MethodGet, "/api/v1/health/live", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func queryJoin(existing, param string) string {
	if existing == "" {
		return "?" + param
	}
	return "&" + param
}
