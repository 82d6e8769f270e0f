package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/embeddings"
	coreerrors "github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/errors"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/platform/config"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/platform/observability"
)

var errUpstream = errors.New("upstream 503")

type fakeProvider struct {
	name     ProviderName
	priority int
	text     string
	err      error
	calls    int
	models   []string
}

func (f *fakeProvider) Name() ProviderName { return f.name }
func (f *fakeProvider) IsAvailable() bool  { return true }
func (f *fakeProvider) Priority() int      { return f.priority }

func (f *fakeProvider) Run(_ context.Context, model string, _ Request) (Response, error) {
	f.calls++
	f.models = append(f.models, model)

	if f.err != nil {
		return Response{}, f.err
	}

	return Response{Text: f.text, Provider: f.name, Model: model}, nil
}

func newTestRegistry() *Registry {
	logger := zerolog.Nop()
	return NewRegistry(&logger)
}

func TestRegistry_Run_Fallback(t *testing.T) {
	reg := newTestRegistry()
	primary := &fakeProvider{name: ProviderOpenAI, priority: PriorityPrimary, err: errUpstream}
	secondary := &fakeProvider{name: ProviderAnthropic, priority: PriorityFallback, text: "ok"}

	reg.Register(secondary, embeddings.DefaultCircuitBreakerConfig())
	reg.Register(primary, embeddings.DefaultCircuitBreakerConfig())

	resp, err := reg.Run(context.Background(), "gpt-4o-mini", Request{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, ProviderAnthropic, resp.Provider)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, []string{"gpt-4o-mini"}, secondary.models)
}

func TestRegistry_Run_SkipsOpenCircuit(t *testing.T) {
	reg := newTestRegistry()
	primary := &fakeProvider{name: ProviderOpenAI, priority: PriorityPrimary, err: errUpstream}
	secondary := &fakeProvider{name: ProviderGoogle, priority: PrioritySecondFallback, text: "ok"}

	cb := embeddings.CircuitBreakerConfig{Threshold: 2, ResetAfter: time.Hour}
	reg.Register(primary, cb)
	reg.Register(secondary, cb)

	for i := 0; i < 4; i++ {
		_, err := reg.Run(context.Background(), "", Request{})
		require.NoError(t, err)
	}

	assert.Equal(t, 2, primary.calls)
	assert.Equal(t, 4, secondary.calls)

	statuses := reg.GetProviderStatuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, ProviderOpenAI, statuses[0].Name)
	assert.False(t, statuses[0].CircuitBreakerOK)
	assert.True(t, statuses[1].CircuitBreakerOK)

	assert.Equal(t, []observability.DependencyStatus{
		{Name: "llm:openai", OK: false, Detail: "circuit open"},
		{Name: "llm:google", OK: true},
	}, reg.DependencyStatuses())
}

func TestRegistry_Run_AllFailed(t *testing.T) {
	reg := newTestRegistry()
	reg.Register(&fakeProvider{name: ProviderOpenAI, priority: PriorityPrimary, err: errUpstream}, embeddings.DefaultCircuitBreakerConfig())

	_, err := reg.Run(context.Background(), "", Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllProvidersFailed)
	assert.ErrorIs(t, err, errUpstream)
}

func TestRegistry_Run_NoProviders(t *testing.T) {
	_, err := newTestRegistry().Run(context.Background(), "", Request{})
	assert.ErrorIs(t, err, ErrNoProvidersAvailable)
}

func TestNew_NoProvidersWithoutKeys(t *testing.T) {
	reg := New(context.Background(), &config.Config{}, nil)

	assert.Equal(t, 0, reg.ProviderCount())
	assert.Equal(t, []observability.DependencyStatus{{Name: "llm", Detail: "no providers configured"}}, reg.DependencyStatuses())

	_, err := reg.Run(context.Background(), "", Request{Messages: []Message{{Role: RoleUser, Content: "checkout is down"}}})
	assert.ErrorIs(t, err, ErrNoProvidersAvailable)
}

func TestNew_MockProvider(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
	}{
		{name: "mock enabled", cfg: config.Config{LLMMockEnabled: true}},
		{name: "mock api key", cfg: config.Config{LLMAPIKey: llmAPIKeyMock}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := New(context.Background(), &tt.cfg, nil)

			statuses := reg.GetProviderStatuses()
			require.Len(t, statuses, 1)
			assert.Equal(t, ProviderMock, statuses[0].Name)
		})
	}
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "pure_object", input: `{"key":"value"}`, want: `{"key":"value"}`},
		{name: "object_with_preamble", input: `Here: {"key":"value"} done.`, want: `{"key":"value"}`},
		{name: "markdown_wrapped", input: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "nested_objects", input: `x {"a":{"b":1}} y`, want: `{"a":{"b":1}}`},
		{name: "first_open_to_last_close", input: `{"a":1} and {"b":2}`, want: `{"a":1} and {"b":2}`},
		{name: "no_json", input: "just some text", wantErr: true},
		{name: "reversed_braces", input: "} oops {", wantErr: true},
		{name: "array_only", input: `[1,2,3]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSONObject(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, coreerrors.ErrNoJSONObject)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMockProvider_Run(t *testing.T) {
	tests := []struct {
		name         string
		text         string
		wantCategory string
		wantArea     string
		wantUrgency  float64
	}{
		{name: "bug", text: "Login button does nothing on Safari", wantCategory: "bug", wantArea: "auth", wantUrgency: 4},
		{name: "critical bug", text: "Outage: billing page crash for everyone", wantCategory: "bug", wantArea: "billing", wantUrgency: 5},
		{name: "praise", text: "Love the new dashboard", wantCategory: "praise", wantArea: "dashboard", wantUrgency: 1},
		{name: "other", text: "Just checking in", wantCategory: "other", wantArea: "general", wantUrgency: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evidence, err := json.Marshal(map[string]any{"source": "test", "text": tt.text, "raw": map[string]any{"k": "v"}})
			require.NoError(t, err)

			resp, err := NewMockProvider().Run(context.Background(), "m", Request{Messages: []Message{
				{Role: RoleSystem, Content: "Return JSON only."},
				{Role: RoleUser, Content: `Schema: {"summary": "string", "category": "bug|confusion|feature|praise|other"}` + "\nEvidence:\n" + string(evidence)},
			}})
			require.NoError(t, err)

			var out map[string]any
			require.NoError(t, json.Unmarshal([]byte(resp.Text), &out))
			assert.Equal(t, tt.wantCategory, out["category"])
			assert.Equal(t, tt.wantArea, out["product_area"])
			assert.Equal(t, tt.wantUrgency, out["urgency"])
			assert.NotEmpty(t, out["summary"])
			assert.NotEmpty(t, out["clarifying_question"])
		})
	}
}
