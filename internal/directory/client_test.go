package directory

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Matsukatm/callcenter/internal/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const activeResponse = `{
  "data": {
    "assignments": [
      {
        "id": 17,
        "user_id": 42,
        "extension_id": 9,
        "extension": {"extension_number": "1001", "max_concurrent_calls": 3},
        "user": {"name": "Wanjiru", "status": "online"},
        "assigned_at": "2026-03-02T08:15:00Z",
        "assignment_reason": "shift_start",
        "metadata": {"performance_data": {"calls_handled": 4}}
      },
      {
        "id": "18",
        "user_id": "43",
        "extension_id": "10",
        "extension": {"extension_number": 1002, "capabilities": {"max_concurrent_calls": 2}},
        "user": {"name": "Otieno", "status": "away"},
        "assigned_at": "2026-03-02 08:20:00"
      }
    ]
  }
}`

func TestHTTPClientActiveAssignments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/extension-assignments/active", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(activeResponse))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/", "secret", time.Second, zerolog.Nop())
	list, err := c.ActiveAssignments(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, types.Assignment{
		ID:                 "17",
		AgentID:            "42",
		AgentName:          "Wanjiru",
		Extension:          "1001",
		ExtensionID:        "9",
		MaxConcurrentCalls: 3,
		PresenceStatus:     "online",
		AssignedAt:         time.Date(2026, 3, 2, 8, 15, 0, 0, time.UTC),
		AssignmentReason:   "shift_start",
		Metadata:           map[string]any{"performance_data": map[string]any{"calls_handled": float64(4)}},
	}, list[0])

	assert.Equal(t, "43", list[1].AgentID)
	assert.Equal(t, "1002", list[1].Extension)
	assert.Equal(t, 2, list[1].MaxConcurrentCalls)
	assert.Equal(t, time.Date(2026, 3, 2, 8, 20, 0, 0, time.UTC), list[1].AssignedAt)
}

func TestHTTPClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", time.Second, zerolog.Nop())
	_, err := c.ActiveAssignments(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStatus)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.Code)
	assert.Equal(t, "maintenance", statusErr.Body)
}

func TestHTTPClientTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := NewHTTPClient(srv.URL, "", 50*time.Millisecond, zerolog.Nop())
	_, err := c.ActiveAssignments(context.Background())
	assert.Error(t, err)
}

func TestHTTPClientWrites(t *testing.T) {
	type captured struct {
		method string
		path   string
		body   map[string]any
	}
	calls := make(chan captured, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		calls <- captured{method: r.Method, path: r.URL.Path, body: body}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "k", time.Second, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, c.UpdateAgentStatus(ctx, "42", StatusUpdate{
		Status:      types.AgentMultiCall,
		ActiveCalls: []string{"s1", "s2"},
		MaxCalls:    3,
		UpdatedAt:   time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}))
	got := <-calls
	assert.Equal(t, http.MethodPatch, got.method)
	assert.Equal(t, "/api/users/42/status", got.path)
	assert.Equal(t, "multi_call", got.body["status"])
	meta := got.body["metadata"].(map[string]any)
	assert.Equal(t, "ccr_system", meta["updated_by"])
	cc := meta["concurrent_calls"].(map[string]any)
	assert.Equal(t, float64(2), cc["active_count"])
	assert.Equal(t, float64(3), cc["max_capacity"])

	require.NoError(t, c.AssignExtension(ctx, "42", "1001", "manual"))
	got = <-calls
	assert.Equal(t, "/api/users/42/assign-extension", got.path)
	assert.Equal(t, "1001", got.body["extension_number"])

	require.NoError(t, c.ReleaseAssignment(ctx, "17", "shift_end"))
	got = <-calls
	assert.Equal(t, "/api/extension-assignments/17/release", got.path)
	assert.Equal(t, "shift_end", got.body["release_reason"])

	require.NoError(t, c.UpdateAssignmentMetadata(ctx, "17", map[string]any{"x": 1}))
	got = <-calls
	assert.Equal(t, http.MethodPatch, got.method)
	assert.Equal(t, "/api/extension-assignments/17/metadata", got.path)
}
