package graph_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/raphaelgruber/carechat/internal/chat"
	"github.com/raphaelgruber/carechat/internal/client"
	"github.com/raphaelgruber/carechat/internal/graph"
	"github.com/raphaelgruber/carechat/internal/metrics"
	"github.com/raphaelgruber/carechat/internal/models"
	"github.com/raphaelgruber/carechat/internal/service"
	"github.com/raphaelgruber/carechat/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type backend struct {
	store   *store.Memory
	metrics *metrics.Collector
	handler *graph.Handler
	server  *httptest.Server
	client  *client.Client
}

func newBackend(t *testing.T, responder func(*store.Memory) *service.Responder) *backend {
	t.Helper()
	s := store.NewMemory()
	summary := "Retired nurse who loves gardening"
	_, err := s.UpsertSubject(context.Background(), models.SubjectInput{ID: "42", Name: "Jane Doe", Summary: &summary})
	require.NoError(t, err)

	var r *service.Responder
	if responder != nil {
		r = responder(s)
	}
	mc := metrics.NewCollector()
	h := graph.NewHandler(graph.NewResolver(service.NewChatService(s, r, quietLogger()), mc), quietLogger(), mc)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return &backend{store: s, metrics: mc, handler: h, server: srv, client: client.New(srv.URL, 2*time.Second)}
}

func (b *backend) post(t *testing.T, body string) map[string]any {
	t.Helper()
	resp, err := http.Post(b.server.URL, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func errorCode(t *testing.T, out map[string]any) string {
	t.Helper()
	errs, ok := out["errors"].([]any)
	require.True(t, ok, "expected errors in %v", out)
	require.NotEmpty(t, errs)
	ext, _ := errs[0].(map[string]any)["extensions"].(map[string]any)
	code, _ := ext["code"].(string)
	return code
}

func TestClientRoundTrip(t *testing.T) {
	b := newBackend(t, nil)
	ctx := context.Background()

	s, err := b.client.GetSubject(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", s.Name)
	assert.Equal(t, "Retired nurse who loves gardening", s.Summary)

	_, err = b.client.GetSubject(ctx, "nobody")
	assert.ErrorIs(t, err, chat.ErrNotFound)

	require.NoError(t, b.client.AppendMessage(ctx, "42", "  Hi there ", chat.RoleCaregiver))
	require.NoError(t, b.client.AppendMessage(ctx, "42", "Hello!", chat.RoleAssistant))

	msgs, err := b.client.ListMessages(ctx, "42")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Hi there", msgs[0].Body)
	assert.Equal(t, chat.RoleCaregiver, msgs[0].Role)
	assert.Equal(t, chat.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "42", msgs[1].SubjectID)
	assert.True(t, msgs[1].CreatedAt.After(msgs[0].CreatedAt))

	err = b.client.AppendMessage(ctx, "42", "   ", chat.RoleCaregiver)
	assert.ErrorIs(t, err, chat.ErrValidation)

	err = b.client.AppendMessage(ctx, "nobody", "hi", chat.RoleCaregiver)
	assert.ErrorIs(t, err, chat.ErrNotFound)

	_, err = b.client.ListMessages(ctx, "nobody")
	assert.ErrorIs(t, err, chat.ErrNotFound)
}

func TestClientSubjectsAndStats(t *testing.T) {
	b := newBackend(t, nil)
	ctx := context.Background()

	summary := "Former pilot"
	created, err := b.client.CreateSubject(ctx, client.CreateSubjectInput{ID: "7", Name: "Arthur", Summary: &summary})
	require.NoError(t, err)
	assert.Equal(t, chat.Subject{ID: "7", Name: "Arthur", Summary: "Former pilot"}, *created)

	_, err = b.client.CreateSubject(ctx, client.CreateSubjectInput{ID: "8", Name: " "})
	assert.ErrorIs(t, err, chat.ErrValidation)

	all, err := b.client.ListSubjects(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Arthur", all[0].Name)

	stats, err := b.client.GetServerStats(ctx)
	require.NoError(t, err)
	require.NotNil(t, stats.GraphQL)
	assert.GreaterOrEqual(t, stats.GraphQL.Count, 3)
	assert.GreaterOrEqual(t, stats.GraphQL.Failures, 1)
	assert.Nil(t, stats.LLMGenerate)
}

func TestSelectionProjection(t *testing.T) {
	b := newBackend(t, nil)

	out := b.post(t, `{"query":"query Q { who: subject(id: \"42\") { __typename ...F name @skip(if: true) } } fragment F on Subject { id n: name }"}`)
	assert.Nil(t, out["errors"])
	data := out["data"].(map[string]any)
	who := data["who"].(map[string]any)
	assert.Equal(t, map[string]any{"__typename": "Subject", "id": "42", "n": "Jane Doe"}, who)
}

func TestSelectionOrderPreserved(t *testing.T) {
	b := newBackend(t, nil)

	resp, err := http.Post(b.server.URL, "application/json",
		bytes.NewBufferString(`{"query":"{ subject(id: \"42\") { name id } }"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":{"subject":{"name":"Jane Doe","id":"42"}}}`, string(raw))
	assert.Contains(t, string(raw), `{"name":"Jane Doe","id":"42"}`)
}

func TestVariablesAndOperationName(t *testing.T) {
	b := newBackend(t, nil)

	out := b.post(t, `{
		"query": "query A($id: ID!) { subject(id: $id) { name } } query B { subjects { id } }",
		"operationName": "A",
		"variables": {"id": "42"}
	}`)
	assert.Nil(t, out["errors"])
	assert.Equal(t, "Jane Doe", out["data"].(map[string]any)["subject"].(map[string]any)["name"])

	out = b.post(t, `{"query": "query A($id: ID!) { subject(id: $id) { name } }"}`)
	assert.Equal(t, "GRAPHQL_VALIDATION_FAILED", errorCode(t, out), "missing required variable")

	out = b.post(t, `{"query": "query A { subjects { id } } query B { subjects { id } }", "operationName": "C"}`)
	assert.Equal(t, "GRAPHQL_VALIDATION_FAILED", errorCode(t, out))
}

func TestInvalidDocuments(t *testing.T) {
	b := newBackend(t, nil)

	tests := []struct {
		name  string
		query string
	}{
		{"syntax", `{ subject(id: `},
		{"unknown field", `{ nope }`},
		{"bad enum", `mutation { appendMessage(subjectId: \"42\", body: \"x\", role: ROBOT) { id } }`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := b.post(t, `{"query":"`+tt.query+`"}`)
			assert.Nil(t, out["data"])
			assert.Equal(t, "GRAPHQL_VALIDATION_FAILED", errorCode(t, out))
		})
	}
}

func TestNonNullRootFailureNullsData(t *testing.T) {
	b := newBackend(t, nil)

	out := b.post(t, `{"query":"{ messages(subjectId: \"nobody\") { id } }"}`)
	assert.Contains(t, out, "data")
	assert.Nil(t, out["data"])
	assert.Equal(t, graph.CodeNotFound, errorCode(t, out))
}

func TestHTTPErrors(t *testing.T) {
	b := newBackend(t, nil)

	resp, err := http.Get(b.server.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Post(b.server.URL, "application/json", bytes.NewBufferString("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExecuteCachesDocuments(t *testing.T) {
	b := newBackend(t, nil)
	ctx := context.Background()
	req := graph.Request{Query: `{ subjects { id } }`}

	first := b.handler.Execute(ctx, req)
	second := b.handler.Execute(ctx, req)
	assert.Empty(t, first.Errors)
	assert.JSONEq(t, string(first.Data), string(second.Data))
}

type echoGenerator struct{}

func (echoGenerator) Reply(_ context.Context, subject chat.Subject, history []chat.Message) (string, error) {
	return "Suggestion for " + subject.Name + ": " + history[len(history)-1].Body, nil
}

// TestControllerEndToEnd runs a chat session against the HTTP backend with a
// live responder: greeting, send, and the reply arriving by polling.
func TestControllerEndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var responder *service.Responder
	b := newBackend(t, func(s *store.Memory) *service.Responder {
		responder = service.NewResponder(s, echoGenerator{}, service.ResponderOptions{Logger: quietLogger()})
		return responder
	})
	done := make(chan error, 1)
	go func() { done <- responder.Run(ctx) }()

	ctrl := chat.NewController(b.client, b.client,
		chat.WithPollInterval(10*time.Millisecond),
		chat.WithLogger(quietLogger()))

	snap, err := ctrl.Initialize(ctx, "42")
	require.NoError(t, err)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, chat.Greeting("Jane Doe"), snap.Messages[0].Body)
	assert.Equal(t, chat.RoleAssistant, snap.Messages[0].Role)

	require.NoError(t, ctrl.Send(ctx, "What are her favorite activities?"))
	snap = ctrl.Snapshot()
	require.GreaterOrEqual(t, len(snap.Messages), 2)
	assert.Equal(t, "What are her favorite activities?", snap.Messages[1].Body)

	assert.Eventually(t, func() bool {
		msgs := ctrl.Snapshot().Messages
		return len(msgs) == 3 && msgs[2].Role == chat.RoleAssistant
	}, 3*time.Second, 10*time.Millisecond, "reply arrives by polling")
	assert.Equal(t, "Suggestion for Jane Doe: What are her favorite activities?", ctrl.Snapshot().Messages[2].Body)

	ctrl.Teardown()
	ctrl.Wait()
	cancel()
	<-done
}
