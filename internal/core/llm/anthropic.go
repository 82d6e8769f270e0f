package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	coreerrors "github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/errors"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/platform/config"
)

// anthropicProvider implements the Provider interface for Anthropic Claude.
type anthropicProvider struct {
	client       anthropic.Client
	apiKey       string
	defaultModel string
	rateLimiter  *rate.Limiter
}

// NewAnthropicProvider creates a new Anthropic LLM provider.
func NewAnthropicProvider(cfg *config.Config) *anthropicProvider {
	rateLimit := cfg.RateLimitRPS
	if rateLimit == 0 {
		rateLimit = 1
	}

	defaultModel := cfg.AnthropicModel
	if defaultModel == "" {
		defaultModel = defaultAnthropicModel
	}

	return &anthropicProvider{
		client:       anthropic.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey)),
		apiKey:       cfg.AnthropicAPIKey,
		defaultModel: defaultModel,
		rateLimiter:  rate.NewLimiter(rate.Limit(float64(rateLimit)), rateLimiterBurst),
	}
}

func (p *anthropicProvider) Name() ProviderName { return ProviderAnthropic }

func (p *anthropicProvider) IsAvailable() bool { return p.apiKey != "" }

func (p *anthropicProvider) Priority() int { return PriorityFallback }

// resolveModel keeps Claude model ids and maps everything else to the configured default.
func (p *anthropicProvider) resolveModel(model string) string {
	if strings.HasPrefix(model, modelPrefixClaude) {
		return model
	}

	return p.defaultModel
}

// Run implements Provider.
func (p *anthropicProvider) Run(ctx context.Context, model string, req Request) (Response, error) {
	resolvedModel := anthropic.Model(p.resolveModel(model))

	if err := p.rateLimiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf(errRateLimiter, err)
	}

	system, turns := splitMessages(req.Messages)

	params := anthropic.MessageNewParams{
		Model:     resolvedModel,
		MaxTokens: int64(maxTokensOrDefault(req.MaxTokens)),
	}

	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(turns))
	for _, m := range turns {
		blocks = append(blocks, anthropic.NewTextBlock(m.Content))
	}

	params.Messages = []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		recordTokenUsage(ProviderAnthropic, string(resolvedModel), 0, 0, false)

		return Response{}, fmt.Errorf(errAnthropicCompletion, err)
	}

	recordTokenUsage(ProviderAnthropic, string(resolvedModel), int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens), true)

	text := extractTextFromResponse(resp)
	if text == "" {
		return Response{}, fmt.Errorf("anthropic: %w", coreerrors.ErrEmptyResponse)
	}

	return Response{Text: text, Provider: ProviderAnthropic, Model: string(resolvedModel)}, nil
}

// extractTextFromResponse extracts text content from Anthropic response.
func extractTextFromResponse(resp *anthropic.Message) string {
	var result strings.Builder

	for _, block := range resp.Content {
		if block.Type == contentTypeText {
			result.WriteString(block.Text)
		}
	}

	return result.String()
}

var _ Provider = (*anthropicProvider)(nil)
