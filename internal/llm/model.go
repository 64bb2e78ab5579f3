// Package llm generates assistant replies using langchaingo.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/raphaelgruber/carechat/internal/chat"
	"github.com/raphaelgruber/carechat/internal/config"
	"github.com/raphaelgruber/carechat/internal/metrics"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Model wraps langchaingo LLM for text generation.
type Model struct {
	llm       llms.Model
	modelName string
	metrics   *metrics.Collector
}

// NewModel creates an LLM model based on configuration.
// Returns nil, nil for config.ProviderNone.
func NewModel(ctx context.Context, cfg config.Config, mc *metrics.Collector) (*Model, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderNone:
		return nil, nil

	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	case config.ProviderBedrock:
		awsCfg, cfgErr := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if cfgErr != nil {
			return nil, fmt.Errorf("load aws config: %w", cfgErr)
		}
		model, err = bedrock.New(
			bedrock.WithClient(bedrockruntime.NewFromConfig(awsCfg)),
			bedrock.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return &Model{
		llm:       model,
		modelName: cfg.LLMModel,
		metrics:   mc,
	}, nil
}

// GenerateWithSystem generates text with a system prompt.
func (m *Model) GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	start := time.Now()
	response, err := m.llm.GenerateContent(ctx, messages)
	if err != nil {
		m.metrics.RecordFailure(metrics.OpLLMGenerate, time.Since(start))
		return "", fmt.Errorf("generate with system: %w", wrapFatalError(err))
	}

	if len(response.Choices) == 0 {
		m.metrics.RecordFailure(metrics.OpLLMGenerate, time.Since(start))
		return "", fmt.Errorf("no response choices")
	}

	choice := response.Choices[0]
	in, out := tokenUsage(choice.GenerationInfo)
	m.metrics.RecordLLMUsage(metrics.OpLLMGenerate, time.Since(start), in, out)

	return choice.Content, nil
}

// Model returns the LLM model name.
func (m *Model) Model() string {
	return m.modelName
}

const replySystemPrompt = `You are a warm, practical assistant helping a caregiver plan activities for the person they care for.

About the person:
Name: %s
%s
Guidelines:
- Ground suggestions in the profile above; say so when it does not cover the question
- Keep answers short and concrete
- Never invent medical facts`

// Reply generates the assistant's next message for a subject's conversation.
// history must be oldest first; only the tail fits in the prompt.
func (m *Model) Reply(ctx context.Context, subject chat.Subject, history []chat.Message) (string, error) {
	profile := ""
	if s := strings.TrimSpace(subject.Summary); s != "" {
		profile = "Profile: " + s + "\n"
	}
	systemPrompt := fmt.Sprintf(replySystemPrompt, subject.Name, profile)

	reply, err := m.GenerateWithSystem(ctx, systemPrompt, Transcript(history))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

// Transcript renders a log as a plain-text conversation ending with the
// assistant's turn.
func Transcript(history []chat.Message) string {
	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	for _, msg := range history {
		speaker := "Caregiver"
		if msg.Role == chat.RoleAssistant {
			speaker = "Assistant"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, msg.Body)
	}
	b.WriteString("Assistant:")
	return b.String()
}

// tokenUsage reads token counts from provider-specific generation info.
func tokenUsage(info map[string]any) (in, out int64) {
	in = firstInt(info, "InputTokens", "PromptTokens", "input_tokens", "prompt_tokens")
	out = firstInt(info, "OutputTokens", "CompletionTokens", "output_tokens", "completion_tokens")
	return in, out
}

func firstInt(info map[string]any, keys ...string) int64 {
	for _, k := range keys {
		switch v := info[k].(type) {
		case int:
			return int64(v)
		case int32:
			return int64(v)
		case int64:
			return v
		case float64:
			return int64(v)
		}
	}
	return 0
}
