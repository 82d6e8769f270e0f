package llm

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	coreerrors "github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/errors"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/platform/config"
)

// sanitizeUTF8 replaces invalid UTF-8 sequences. Google's protobuf API rejects them.
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}

	return strings.ToValidUTF8(s, string(utf8.RuneError))
}

// googleProvider implements the Provider interface for Google Gemini.
type googleProvider struct {
	client       *genai.Client
	apiKey       string
	defaultModel string
	rateLimiter  *rate.Limiter
}

// NewGoogleProvider creates a new Google Gemini LLM provider.
func NewGoogleProvider(ctx context.Context, cfg *config.Config) (*googleProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GoogleAPIKey))
	if err != nil {
		return nil, fmt.Errorf("creating google genai client: %w", err)
	}

	rateLimit := cfg.RateLimitRPS
	if rateLimit == 0 {
		rateLimit = 1
	}

	defaultModel := cfg.GoogleModel
	if defaultModel == "" {
		defaultModel = defaultGoogleModel
	}

	return &googleProvider{
		client:       client,
		apiKey:       cfg.GoogleAPIKey,
		defaultModel: defaultModel,
		rateLimiter:  rate.NewLimiter(rate.Limit(float64(rateLimit)), rateLimiterBurst),
	}, nil
}

// Close closes the Google client.
func (p *googleProvider) Close() error {
	if p.client != nil {
		if err := p.client.Close(); err != nil {
			return fmt.Errorf("closing google genai client: %w", err)
		}
	}

	return nil
}

func (p *googleProvider) Name() ProviderName { return ProviderGoogle }

func (p *googleProvider) IsAvailable() bool { return p.apiKey != "" }

func (p *googleProvider) Priority() int { return PrioritySecondFallback }

func (p *googleProvider) resolveModel(model string) string {
	if strings.HasPrefix(model, modelPrefixGemini) {
		return model
	}

	return p.defaultModel
}

// Run implements Provider.
func (p *googleProvider) Run(ctx context.Context, model string, req Request) (Response, error) {
	model = p.resolveModel(model)

	if err := p.rateLimiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf(errRateLimiter, err)
	}

	system, turns := splitMessages(req.Messages)

	genModel := p.client.GenerativeModel(model)
	genModel.SetMaxOutputTokens(int32(maxTokensOrDefault(req.MaxTokens))) //nolint:gosec // bounded by config

	if system != "" {
		genModel.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(sanitizeUTF8(system))}}
	}

	parts := make([]genai.Part, 0, len(turns))
	for _, m := range turns {
		parts = append(parts, genai.Text(sanitizeUTF8(m.Content)))
	}

	resp, err := genModel.GenerateContent(ctx, parts...)
	if err != nil {
		recordTokenUsage(ProviderGoogle, model, 0, 0, false)

		return Response{}, fmt.Errorf(errGoogleGenAICompletion, err)
	}

	if resp.UsageMetadata != nil {
		recordTokenUsage(ProviderGoogle, model, int(resp.UsageMetadata.PromptTokenCount), int(resp.UsageMetadata.CandidatesTokenCount), true)
	} else {
		recordTokenUsage(ProviderGoogle, model, 0, 0, true)
	}

	text := extractGoogleResponseText(resp)
	if text == "" {
		return Response{}, fmt.Errorf("google: %w", coreerrors.ErrEmptyResponse)
	}

	return Response{Text: text, Provider: ProviderGoogle, Model: model}, nil
}

func extractGoogleResponseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var result strings.Builder

	for _, candidate := range resp.Candidates {
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if text, ok := part.(genai.Text); ok {
					result.WriteString(string(text))
				}
			}
		}
	}

	return result.String()
}

var _ Provider = (*googleProvider)(nil)
