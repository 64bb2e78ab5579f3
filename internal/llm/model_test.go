package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/raphaelgruber/carechat/internal/chat"
	"github.com/raphaelgruber/carechat/internal/config"
	"github.com/raphaelgruber/carechat/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func TestIsFatalAPIError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"nil error", nil, false},
		{"generic error", errors.New("connection reset"), false},
		{"credit balance", errors.New("insufficient credit balance"), true},
		{"rate limit", errors.New("rate limit exceeded"), true},
		{"quota exceeded", errors.New("quota exceeded for model"), true},
		{"billing issue", errors.New("billing account inactive"), true},
		{"invalid api key", errors.New("invalid api key"), true},
		{"authentication failed", errors.New("authentication failed"), true},
		{"unauthorized", errors.New("unauthorized request"), true},
		{"401 status", errors.New("HTTP 401: not allowed"), true},
		{"403 status", errors.New("HTTP 403: forbidden"), true},
		{"wrapped error", fmt.Errorf("embed: %w", errors.New("credit balance too low")), true},
		{"404 not fatal", errors.New("HTTP 404: not found"), false},
		{"timeout not fatal", errors.New("context deadline exceeded"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isFatalAPIError(tt.err)
			if got != tt.fatal {
				t.Errorf("isFatalAPIError(%v) = %v, want %v", tt.err, got, tt.fatal)
			}
		})
	}
}

func TestWrapFatalError(t *testing.T) {
	t.Run("wraps fatal error", func(t *testing.T) {
		err := errors.New("invalid api key provided")
		wrapped := wrapFatalError(err)
		if !errors.Is(wrapped, ErrFatalAPI) {
			t.Errorf("expected wrapped error to match ErrFatalAPI")
		}
	})

	t.Run("passes through non-fatal error", func(t *testing.T) {
		err := errors.New("network timeout")
		result := wrapFatalError(err)
		if errors.Is(result, ErrFatalAPI) {
			t.Errorf("non-fatal error should not be wrapped with ErrFatalAPI")
		}
		if result != err {
			t.Errorf("expected original error returned, got %v", result)
		}
	})

	t.Run("nil error", func(t *testing.T) {
		result := wrapFatalError(nil)
		if result != nil {
			t.Errorf("expected nil, got %v", result)
		}
	})
}

type fakeLLM struct {
	got  []llms.MessageContent
	resp *llms.ContentResponse
	err  error
}

func (f *fakeLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.got = messages
	return f.resp, f.err
}

func (f *fakeLLM) Call(context.Context, string, ...llms.CallOption) (string, error) {
	return "", errors.New("not used")
}

func textOf(t *testing.T, m llms.MessageContent) string {
	t.Helper()
	require.Len(t, m.Parts, 1)
	part, ok := m.Parts[0].(llms.TextContent)
	require.True(t, ok)
	return part.Text
}

func TestReply(t *testing.T) {
	fake := &fakeLLM{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content:        "  How about a morning in the garden?  ",
		GenerationInfo: map[string]any{"InputTokens": 120, "OutputTokens": 14},
	}}}}
	mc := metrics.NewCollector()
	m := &Model{llm: fake, modelName: "test", metrics: mc}

	subject := chat.Subject{ID: "42", Name: "Jane Doe", Summary: "Retired nurse who loves gardening"}
	history := []chat.Message{
		{Role: chat.RoleAssistant, Body: "Hello! How can I help?"},
		{Role: chat.RoleCaregiver, Body: "What could we do on Saturday?"},
	}

	reply, err := m.Reply(context.Background(), subject, history)
	require.NoError(t, err)
	assert.Equal(t, "How about a morning in the garden?", reply)

	require.Len(t, fake.got, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, fake.got[0].Role)
	system := textOf(t, fake.got[0])
	assert.Contains(t, system, "Jane Doe")
	assert.Contains(t, system, "loves gardening")
	user := textOf(t, fake.got[1])
	assert.Contains(t, user, "Caregiver: What could we do on Saturday?")
	assert.True(t, strings.HasSuffix(user, "Assistant:"))

	snap := mc.Op(metrics.OpLLMGenerate)
	require.NotNil(t, snap)
	assert.Equal(t, int64(1), snap.Count)
	require.NotNil(t, snap.TotalInputTokens)
	assert.Equal(t, int64(120), *snap.TotalInputTokens)
	assert.Equal(t, int64(14), *snap.TotalOutputTokens)
}

func TestReplyFatalError(t *testing.T) {
	mc := metrics.NewCollector()
	m := &Model{llm: &fakeLLM{err: errors.New("HTTP 401: invalid x-api-key")}, metrics: mc}

	_, err := m.Reply(context.Background(), chat.Subject{Name: "Jane"}, nil)
	assert.ErrorIs(t, err, ErrFatalAPI)
	assert.Equal(t, int64(1), mc.Op(metrics.OpLLMGenerate).Failures)
}

func TestReplyNoChoices(t *testing.T) {
	m := &Model{llm: &fakeLLM{resp: &llms.ContentResponse{}}}
	_, err := m.Reply(context.Background(), chat.Subject{Name: "Jane"}, nil)
	assert.Error(t, err)
}

func TestNewModelProviderNone(t *testing.T) {
	m, err := NewModel(context.Background(), config.Config{LLMProvider: config.ProviderNone}, nil)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestNewModelMissingKeys(t *testing.T) {
	for _, p := range []string{config.ProviderOpenAI, config.ProviderAnthropic} {
		_, err := NewModel(context.Background(), config.Config{LLMProvider: p}, nil)
		assert.Error(t, err, p)
	}
	_, err := NewModel(context.Background(), config.Config{LLMProvider: "gemini"}, nil)
	assert.Error(t, err)
}

func TestTokenUsage(t *testing.T) {
	in, out := tokenUsage(map[string]any{"PromptTokens": 7, "CompletionTokens": int64(3)})
	assert.Equal(t, int64(7), in)
	assert.Equal(t, int64(3), out)

	in, out = tokenUsage(nil)
	assert.Zero(t, in)
	assert.Zero(t, out)
}
