package embeddings

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// MockModel is recorded for vectors produced by MockProvider.
const MockModel = "feature-hash-v1"

// MockProvider produces deterministic bag-of-words vectors by feature hashing.
// Texts sharing vocabulary land close together, so similarity behaves sensibly
// in local runs and tests without calling an external API.
type MockProvider struct {
	dimensions int
}

// NewMockProvider creates a mock provider with the default dimensions.
func NewMockProvider() *MockProvider {
	return &MockProvider{dimensions: DefaultDimensions}
}

// NewMockProviderWithDimensions creates a mock provider with custom dimensions.
func NewMockProviderWithDimensions(dims int) *MockProvider {
	return &MockProvider{dimensions: dims}
}

func (p *MockProvider) Name() ProviderName { return ProviderMock }

func (p *MockProvider) Model() string { return MockModel }

func (p *MockProvider) Priority() int { return PriorityMock }

func (p *MockProvider) Dimensions() int { return p.dimensions }

func (p *MockProvider) IsAvailable() bool { return true }

// GetEmbedding hashes each lower-cased token into a signed bucket and
// normalizes the result to unit length.
func (p *MockProvider) GetEmbedding(_ context.Context, text string) (EmbeddingResult, error) {
	vec := make([]float32, p.dimensions)

	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	for _, tok := range tokens {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok)) // fnv.Write never returns an error
		sum := h.Sum64()

		idx := int(sum % uint64(p.dimensions)) //nolint:gosec // dimensions is positive

		sign := float32(1)
		if sum>>63 == 1 {
			sign = -1
		}

		vec[idx] += sign
	}

	return EmbeddingResult{
		Vector:     normalizeVector(vec),
		Dimensions: p.dimensions,
		Provider:   ProviderMock,
		Model:      MockModel,
	}, nil
}

func normalizeVector(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}

	if sum == 0 {
		return vec
	}

	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}

	return vec
}
