package embeddings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}

	return dot
}

func TestMockProvider_SimilarTextsScoreHigher(t *testing.T) {
	p := NewMockProviderWithDimensions(256)
	ctx := context.Background()

	base, err := p.GetEmbedding(ctx, "Login button does nothing on Safari")
	require.NoError(t, err)

	near, err := p.GetEmbedding(ctx, "login button broken on safari")
	require.NoError(t, err)

	far, err := p.GetEmbedding(ctx, "Love the new dark mode theme")
	require.NoError(t, err)

	assert.Greater(t, cosine(base.Vector, near.Vector), cosine(base.Vector, far.Vector))
}

func TestMockProvider_Deterministic(t *testing.T) {
	p := NewMockProviderWithDimensions(64)

	a, err := p.GetEmbedding(context.Background(), "same text")
	require.NoError(t, err)

	b, err := p.GetEmbedding(context.Background(), "same text")
	require.NoError(t, err)

	assert.Equal(t, a.Vector, b.Vector)
}

func TestPadToTargetDimensions(t *testing.T) {
	tests := []struct {
		name   string
		in     []float32
		target int
		want   []float32
	}{
		{name: "pad", in: []float32{1, 2}, target: 4, want: []float32{1, 2, 0, 0}},
		{name: "truncate", in: []float32{1, 2, 3}, target: 2, want: []float32{1, 2}},
		{name: "unchanged", in: []float32{1, 2}, target: 2, want: []float32{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PadToTargetDimensions(tt.in, tt.target))
		})
	}
}
