package llm

import (
	"context"
	"encoding/json"
	"strings"
	"unicode"
)

// mockProvider answers generation requests with a keyword-heuristic case file.
// It keeps local runs and demos working without any API key.
type mockProvider struct{}

// NewMockProvider creates a new mock LLM provider.
func NewMockProvider() *mockProvider {
	return &mockProvider{}
}

func (p *mockProvider) Name() ProviderName { return ProviderMock }

func (p *mockProvider) IsAvailable() bool { return true }

func (p *mockProvider) Priority() int { return PriorityMock }

const (
	mockSummaryMaxRunes = 200
	mockMaxKeywords     = 5
	mockMinKeywordRunes = 4
)

type mockRule struct {
	category  string
	sentiment float64
	urgency   int
	terms     []string
}

// Ordered: the first rule with a matching term wins.
var mockRules = []mockRule{
	{category: "bug", sentiment: -0.6, urgency: 4, terms: []string{"crash", "error", "broken", "fails", "failed", "bug", "not working", "doesn't work", "does nothing", "500"}},
	{category: "confusion", sentiment: -0.3, urgency: 3, terms: []string{"confus", "how do", "unclear", "where is", "can't find", "cannot find"}},
	{category: "feature", sentiment: 0.1, urgency: 2, terms: []string{"please add", "would be nice", "feature", "wish", "support for", "could you add"}},
	{category: "praise", sentiment: 0.8, urgency: 1, terms: []string{"love", "great", "awesome", "amazing", "thank"}},
}

var mockAreas = []struct {
	area  string
	terms []string
}{
	{area: "auth", terms: []string{"login", "log in", "password", "sign in", "signin", "sso"}},
	{area: "billing", terms: []string{"billing", "invoice", "payment", "charge", "refund"}},
	{area: "dashboard", terms: []string{"dashboard", "chart", "report"}},
	{area: "api", terms: []string{"api", "webhook", "endpoint"}},
	{area: "mobile", terms: []string{"mobile", "ios", "android", "iphone"}},
}

var mockCriticalTerms = []string{"urgent", "outage", "data loss", "security", "everyone"}

var mockStopwords = map[string]bool{
	"this": true, "that": true, "with": true, "from": true, "have": true, "when": true,
	"they": true, "there": true, "their": true, "what": true, "about": true, "would": true,
	"could": true, "please": true, "just": true, "been": true, "into": true, "your": true,
}

// Run implements Provider.
func (p *mockProvider) Run(_ context.Context, model string, req Request) (Response, error) {
	text := mockEvidenceText(req.Messages)
	lower := strings.ToLower(text)

	category, sentiment, urgency := "other", 0.0, 2

	for _, rule := range mockRules {
		if containsAny(lower, rule.terms) {
			category, sentiment, urgency = rule.category, rule.sentiment, rule.urgency
			break
		}
	}

	if category == "bug" && containsAny(lower, mockCriticalTerms) {
		urgency = 5
	}

	area := "general"

	for _, a := range mockAreas {
		if containsAny(lower, a.terms) {
			area = a.area
			break
		}
	}

	out := map[string]any{
		"summary":             mockSummary(text),
		"category":            category,
		"sentiment":           sentiment,
		"urgency":             urgency,
		"product_area":        area,
		"repro_steps_md":      "",
		"clarifying_question": "Which version and device were you using?",
		"jurors": []map[string]any{
			{"persona": "PM", "priority": urgency, "rationale": "Impact inferred from wording"},
			{"persona": "Support", "priority": urgency, "rationale": "Matches " + category + " reports"},
			{"persona": "Eng", "priority": urgency, "rationale": "Needs triage in " + area},
		},
		"keywords":     mockKeywords(lower),
		"cluster_hint": area,
	}

	b, err := json.Marshal(out)
	if err != nil {
		return Response{}, err //nolint:wrapcheck // marshal of plain map cannot fail in practice
	}

	return Response{Text: string(b), Provider: ProviderMock, Model: model}, nil
}

// mockEvidenceText returns the "text" field of the last JSON object embedded in
// the final user message, or the whole message when none is found.
func mockEvidenceText(msgs []Message) string {
	var content string

	for _, m := range msgs {
		if m.Role == RoleUser {
			content = m.Content
		}
	}

	found := ""

	for i := 0; i < len(content); {
		j := strings.IndexByte(content[i:], '{')
		if j == -1 {
			break
		}

		begin := i + j

		var obj map[string]any

		dec := json.NewDecoder(strings.NewReader(content[begin:]))
		if err := dec.Decode(&obj); err != nil {
			i = begin + 1
			continue
		}

		if t, ok := obj["text"].(string); ok {
			found = t
		}

		i = begin + int(dec.InputOffset())
	}

	if found != "" {
		return found
	}

	return content
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}

	return false
}

func mockSummary(text string) string {
	text = strings.Join(strings.Fields(text), " ")

	if idx := strings.IndexAny(text, ".!?"); idx > 0 {
		text = text[:idx+1]
	}

	runes := []rune(text)
	if len(runes) > mockSummaryMaxRunes {
		return string(runes[:mockSummaryMaxRunes])
	}

	if text == "" {
		return "Feedback received"
	}

	return text
}

func mockKeywords(lower string) []string {
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]bool)
	out := make([]string, 0, mockMaxKeywords)

	for _, w := range words {
		if len([]rune(w)) < mockMinKeywordRunes || mockStopwords[w] || seen[w] {
			continue
		}

		seen[w] = true
		out = append(out, w)

		if len(out) == mockMaxKeywords {
			break
		}
	}

	return out
}

var _ Provider = (*mockProvider)(nil)
