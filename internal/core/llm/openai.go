package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	coreerrors "github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/errors"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/platform/config"
)

// openaiProvider implements the Provider interface for OpenAI chat completions.
type openaiProvider struct {
	client       *openai.Client
	apiKey       string
	defaultModel string
	rateLimiter  *rate.Limiter
}

// NewOpenAIProvider creates a new OpenAI LLM provider.
func NewOpenAIProvider(cfg *config.Config) *openaiProvider {
	rateLimit := cfg.RateLimitRPS
	if rateLimit == 0 {
		rateLimit = 1
	}

	defaultModel := cfg.LLMModel
	if !isOpenAIModel(defaultModel) {
		defaultModel = defaultOpenAIModel
	}

	return &openaiProvider{
		client:       openai.NewClient(cfg.LLMAPIKey),
		apiKey:       cfg.LLMAPIKey,
		defaultModel: defaultModel,
		rateLimiter:  rate.NewLimiter(rate.Limit(float64(rateLimit)), rateLimiterBurst),
	}
}

func (p *openaiProvider) Name() ProviderName { return ProviderOpenAI }

func (p *openaiProvider) IsAvailable() bool { return p.apiKey != "" && p.apiKey != llmAPIKeyMock }

func (p *openaiProvider) Priority() int { return PriorityPrimary }

func (p *openaiProvider) resolveModel(model string) string {
	if isOpenAIModel(model) {
		return model
	}

	return p.defaultModel
}

func isOpenAIModel(model string) bool {
	return strings.HasPrefix(model, modelPrefixGPT) || (strings.HasPrefix(model, modelPrefixO) && len(model) > 1 && model[1] >= '0' && model[1] <= '9')
}

// Run implements Provider.
func (p *openaiProvider) Run(ctx context.Context, model string, req Request) (Response, error) {
	model = p.resolveModel(model)

	if err := p.rateLimiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf(errRateLimiter, err)
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))

	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleSystem {
			role = openai.ChatMessageRoleSystem
		}

		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: maxTokensOrDefault(req.MaxTokens),
	})
	if err != nil {
		recordTokenUsage(ProviderOpenAI, model, 0, 0, false)

		return Response{}, fmt.Errorf(errOpenAIChatCompletion, err)
	}

	recordTokenUsage(ProviderOpenAI, model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, true)

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return Response{}, fmt.Errorf("openai: %w", coreerrors.ErrEmptyResponse)
	}

	return Response{Text: resp.Choices[0].Message.Content, Provider: ProviderOpenAI, Model: model}, nil
}

var _ Provider = (*openaiProvider)(nil)
