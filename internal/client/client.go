// Package client provides a GraphQL client for the carechat server.
//
// Client satisfies chat.Directory and chat.MessageLog, so a chat.Controller
// can run directly against a remote server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/carechat/internal/chat"
)

// DefaultEndpoint is used when no endpoint is configured.
const DefaultEndpoint = "http://localhost:8585/query"

// DefaultTimeout bounds a single request.
const DefaultTimeout = 15 * time.Second

// Error codes carried in GraphQL error extensions.
const (
	CodeNotFound   = "NOT_FOUND"
	CodeValidation = "VALIDATION"
	CodeInternal   = "INTERNAL"
)

// Client is a GraphQL client for the carechat server.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

var (
	_ chat.Directory  = (*Client)(nil)
	_ chat.MessageLog = (*Client)(nil)
)

// New creates a new GraphQL client.
// An empty endpoint uses DefaultEndpoint; a non-positive timeout uses DefaultTimeout.
func New(endpoint string, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Endpoint returns the server URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// graphQLRequest is the request payload for GraphQL operations.
type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphQLResponse is the response payload from GraphQL operations.
type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors,omitempty"`
}

// graphQLError represents a GraphQL error.
type graphQLError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// code returns the extensions.code value, if any.
func (e graphQLError) code() string {
	code, _ := e.Extensions["code"].(string)
	return code
}

// Execute sends a GraphQL query/mutation and returns the result.
//
// Failures to reach the server or decode its reply wrap chat.ErrTransport.
// GraphQL errors wrap chat.ErrNotFound or chat.ErrValidation according to
// their extensions code, and chat.ErrTransport otherwise.
func (c *Client) Execute(ctx context.Context, query string, variables map[string]any, result any) error {
	reqBody, err := json.Marshal(graphQLRequest{
		Query:     query,
		Variables: variables,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: execute request: %w", chat.ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %w", chat.ErrTransport, err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: server error: %s - %s", chat.ErrTransport, resp.Status, strings.TrimSpace(string(body)))
	}

	var gqlResp graphQLResponse
	if err := json.Unmarshal(body, &gqlResp); err != nil {
		return fmt.Errorf("%w: unmarshal response: %w", chat.ErrTransport, err)
	}

	if len(gqlResp.Errors) > 0 {
		first := gqlResp.Errors[0]
		switch first.code() {
		case CodeNotFound:
			return fmt.Errorf("%w: %s", chat.ErrNotFound, first.Message)
		case CodeValidation:
			return fmt.Errorf("%w: %s", chat.ErrValidation, first.Message)
		default:
			return fmt.Errorf("%w: graphql error: %s", chat.ErrTransport, first.Message)
		}
	}

	if result != nil && len(gqlResp.Data) > 0 {
		if err := json.Unmarshal(gqlResp.Data, result); err != nil {
			return fmt.Errorf("%w: unmarshal data: %w", chat.ErrTransport, err)
		}
	}

	return nil
}

// =============================================================================
// TYPES (matching GraphQL schema)
// =============================================================================

// Subject is a profiled individual.
type Subject struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Summary *string `json:"summary,omitempty"`
}

// Message is one entry of a subject's log. Role is the GraphQL enum value.
type Message struct {
	ID        string    `json:"id"`
	SubjectID string    `json:"subjectId"`
	Role      string    `json:"role"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// OperationStats holds metrics for a single operation type.
type OperationStats struct {
	Count             int     `json:"count"`
	Failures          int     `json:"failures"`
	TotalTimeMs       int     `json:"totalTimeMs"`
	AvgTimeMs         float64 `json:"avgTimeMs"`
	MinTimeMs         int     `json:"minTimeMs"`
	MaxTimeMs         int     `json:"maxTimeMs"`
	TotalInputTokens  *int    `json:"totalInputTokens,omitempty"`
	TotalOutputTokens *int    `json:"totalOutputTokens,omitempty"`
}

// ServerStats holds in-memory runtime statistics (resets on server restart).
type ServerStats struct {
	UptimeSeconds float64         `json:"uptimeSeconds"`
	GraphQL       *OperationStats `json:"graphql,omitempty"`
	DBQuery       *OperationStats `json:"dbQuery,omitempty"`
	LLMGenerate   *OperationStats `json:"llmGenerate,omitempty"`
	ResponderJob  *OperationStats `json:"responderJob,omitempty"`
}

// ToChat converts the wire subject to the chat domain type.
func (s Subject) ToChat() chat.Subject {
	out := chat.Subject{ID: s.ID, Name: s.Name}
	if s.Summary != nil {
		out.Summary = *s.Summary
	}
	return out
}

// ToChat converts the wire message to the chat domain type.
func (m Message) ToChat() chat.Message {
	return chat.Message{
		ID:        m.ID,
		SubjectID: m.SubjectID,
		Role:      RoleFromEnum(m.Role),
		Body:      m.Body,
		CreatedAt: m.CreatedAt,
	}
}

// RoleEnum converts a chat role to its GraphQL enum value.
func RoleEnum(r chat.Role) string {
	return strings.ToUpper(string(r))
}

// RoleFromEnum converts a GraphQL enum value to a chat role.
func RoleFromEnum(s string) chat.Role {
	return chat.Role(strings.ToLower(s))
}

// =============================================================================
// SUBJECT OPERATIONS
// =============================================================================

const subjectFields = `id name summary`

// GetSubject retrieves a subject by ID. A missing subject is chat.ErrNotFound.
func (c *Client) GetSubject(ctx context.Context, id string) (*chat.Subject, error) {
	const query = `
		query GetSubject($id: ID!) {
			subject(id: $id) { ` + subjectFields + ` }
		}
	`

	var result struct {
		Subject *Subject `json:"subject"`
	}
	if err := c.Execute(ctx, query, map[string]any{"id": id}, &result); err != nil {
		return nil, err
	}
	if result.Subject == nil {
		return nil, fmt.Errorf("%w: %s", chat.ErrNotFound, id)
	}
	s := result.Subject.ToChat()
	return &s, nil
}

// ListSubjects returns all subjects.
func (c *Client) ListSubjects(ctx context.Context) ([]chat.Subject, error) {
	const query = `
		query ListSubjects {
			subjects { ` + subjectFields + ` }
		}
	`

	var result struct {
		Subjects []Subject `json:"subjects"`
	}
	if err := c.Execute(ctx, query, nil, &result); err != nil {
		return nil, err
	}
	out := make([]chat.Subject, len(result.Subjects))
	for i, s := range result.Subjects {
		out[i] = s.ToChat()
	}
	return out, nil
}

// CreateSubjectInput is the input for creating or replacing a subject.
type CreateSubjectInput struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Summary *string `json:"summary,omitempty"`
}

// CreateSubject creates a subject, replacing an existing one with the same ID.
func (c *Client) CreateSubject(ctx context.Context, input CreateSubjectInput) (*chat.Subject, error) {
	const query = `
		mutation CreateSubject($input: SubjectInput!) {
			createSubject(input: $input) { ` + subjectFields + ` }
		}
	`

	var result struct {
		CreateSubject Subject `json:"createSubject"`
	}
	if err := c.Execute(ctx, query, map[string]any{"input": input}, &result); err != nil {
		return nil, err
	}
	s := result.CreateSubject.ToChat()
	return &s, nil
}

// =============================================================================
// MESSAGE OPERATIONS
// =============================================================================

const messageFields = `id subjectId role body createdAt`

// ListMessages returns a subject's full log, oldest first.
func (c *Client) ListMessages(ctx context.Context, subjectID string) ([]chat.Message, error) {
	const query = `
		query ListMessages($subjectId: ID!) {
			messages(subjectId: $subjectId) { ` + messageFields + ` }
		}
	`

	var result struct {
		Messages []Message `json:"messages"`
	}
	if err := c.Execute(ctx, query, map[string]any{"subjectId": subjectID}, &result); err != nil {
		return nil, err
	}
	out := make([]chat.Message, len(result.Messages))
	for i, m := range result.Messages {
		out[i] = m.ToChat()
	}
	return out, nil
}

// AppendMessage appends a message to a subject's log.
func (c *Client) AppendMessage(ctx context.Context, subjectID, body string, role chat.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", chat.ErrValidation, role)
	}

	const query = `
		mutation AppendMessage($subjectId: ID!, $body: String!, $role: Role!) {
			appendMessage(subjectId: $subjectId, body: $body, role: $role) { id }
		}
	`

	vars := map[string]any{
		"subjectId": subjectID,
		"body":      body,
		"role":      RoleEnum(role),
	}
	var result struct {
		AppendMessage struct {
			ID string `json:"id"`
		} `json:"appendMessage"`
	}
	if err := c.Execute(ctx, query, vars, &result); err != nil {
		return err
	}
	if result.AppendMessage.ID == "" {
		return fmt.Errorf("%w: append message: server returned no id", chat.ErrTransport)
	}
	return nil
}

// =============================================================================
// STATS OPERATIONS
// =============================================================================

// GetServerStats returns in-memory runtime statistics.
func (c *Client) GetServerStats(ctx context.Context) (*ServerStats, error) {
	const opFields = `count failures totalTimeMs avgTimeMs minTimeMs maxTimeMs`
	const query = `
		query GetServerStats {
			serverStats {
				uptimeSeconds
				graphql { ` + opFields + ` }
				dbQuery { ` + opFields + ` }
				llmGenerate { ` + opFields + ` totalInputTokens totalOutputTokens }
				responderJob { ` + opFields + ` }
			}
		}
	`

	var result struct {
		ServerStats ServerStats `json:"serverStats"`
	}
	if err := c.Execute(ctx, query, nil, &result); err != nil {
		return nil, err
	}
	return &result.ServerStats, nil
}
