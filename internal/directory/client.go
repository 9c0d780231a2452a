package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Matsukatm/callcenter/internal/types"
	"github.com/rs/zerolog"
)

// HTTPClient talks to the directory REST service
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewHTTPClient creates a client for the directory at baseURL
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, logger zerolog.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With().Str("component", "directory_http").Logger(),
	}
}

func (c *HTTPClient) Name() string { return "http" }

// flexID accepts both numeric and string identifiers
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", string(b), err)
	}
	*f = flexID(n.String())
	return nil
}

type assignmentsResponse struct {
	Data struct {
		Assignments []wireAssignment `json:"assignments"`
	} `json:"data"`
}

type wireAssignment struct {
	ID          flexID `json:"id"`
	UserID      flexID `json:"user_id"`
	ExtensionID flexID `json:"extension_id"`
	Extension   struct {
		Number             flexID `json:"extension_number"`
		MaxConcurrentCalls int    `json:"max_concurrent_calls"`
		Capabilities       struct {
			MaxConcurrentCalls int `json:"max_concurrent_calls"`
		} `json:"capabilities"`
	} `json:"extension"`
	User struct {
		Name   string `json:"name"`
		Status string `json:"status"`
	} `json:"user"`
	AssignedAt       string         `json:"assigned_at"`
	AssignmentReason string         `json:"assignment_reason"`
	Metadata         map[string]any `json:"metadata"`
}

func (w wireAssignment) toAssignment() types.Assignment {
	maxCalls := w.Extension.MaxConcurrentCalls
	if maxCalls <= 0 {
		maxCalls = w.Extension.Capabilities.MaxConcurrentCalls
	}
	return types.Assignment{
		ID:                 string(w.ID),
		AgentID:            string(w.UserID),
		AgentName:          w.User.Name,
		Extension:          string(w.Extension.Number),
		ExtensionID:        string(w.ExtensionID),
		MaxConcurrentCalls: maxCalls,
		PresenceStatus:     w.User.Status,
		AssignedAt:         parseTime(w.AssignedAt),
		AssignmentReason:   w.AssignmentReason,
		Metadata:           w.Metadata,
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000000",
	"2006-01-02 15:04:05",
}

func parseTime(v string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

// ActiveAssignments fetches every active assignment
func (c *HTTPClient) ActiveAssignments(ctx context.Context) ([]types.Assignment, error) {
	var resp assignmentsResponse
	if err := c.do(ctx, http.MethodGet, "/api/extension-assignments/active", nil, &resp); err != nil {
		return nil, err
	}

	out := make([]types.Assignment, 0, len(resp.Data.Assignments))
	for _, w := range resp.Data.Assignments {
		out = append(out, w.toAssignment())
	}
	return out, nil
}

// UpdateAgentStatus pushes derived status and occupancy for an agent
func (c *HTTPClient) UpdateAgentStatus(ctx context.Context, agentID string, update StatusUpdate) error {
	body := map[string]any{
		"status": update.Status,
		"metadata": map[string]any{
			"updated_by": systemActor,
			"timestamp":  update.UpdatedAt.UTC().Format(time.RFC3339),
			"concurrent_calls": map[string]any{
				"active_count": len(update.ActiveCalls),
				"active_calls": update.ActiveCalls,
				"max_capacity": update.MaxCalls,
			},
		},
	}
	return c.do(ctx, http.MethodPatch, "/api/users/"+agentID+"/status", body, nil)
}

// AssignExtension assigns an extension to an agent
func (c *HTTPClient) AssignExtension(ctx context.Context, agentID, extension, reason string) error {
	body := map[string]any{
		"extension_number":  extension,
		"assigned_by":       systemActor,
		"assignment_reason": reason,
		"metadata": map[string]any{
			"assigned_via": "ccr_backend",
		},
	}
	return c.do(ctx, http.MethodPost, "/api/users/"+agentID+"/assign-extension", body, nil)
}

// ReleaseAssignment ends an assignment
func (c *HTTPClient) ReleaseAssignment(ctx context.Context, assignmentID, reason string) error {
	body := map[string]any{
		"release_reason": reason,
		"released_by":    systemActor,
	}
	return c.do(ctx, http.MethodPost, "/api/extension-assignments/"+assignmentID+"/release", body, nil)
}

// UpdateAssignmentMetadata replaces an assignment's metadata
func (c *HTTPClient) UpdateAssignmentMetadata(ctx context.Context, assignmentID string, metadata map[string]any) error {
	body := map[string]any{"metadata": metadata}
	return c.do(ctx, http.MethodPatch, "/api/extension-assignments/"+assignmentID+"/metadata", body, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{
			Method: method,
			Path:   path,
			Code:   resp.StatusCode,
			Body:   strings.TrimSpace(string(msg)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	c.logger.Debug().Str("method", method).Str("path", path).Msg("directory request completed")
	return nil
}
