package casefile

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/domain"
	coreerrors "github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/errors"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/llm"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/process/scoring"
)

const (
	defaultClusterHint = "General"
	jurorPersonaPrefix = "Juror"
)

// Parse extracts the JSON object from raw model output and validates it into a
// case file. priority_score from the model is ignored; the returned case file is
// scored from the validated fields and matchCount.
func Parse(raw string, matchCount int) (domain.CaseFile, error) {
	obj, err := llm.ExtractJSONObject(raw)
	if err != nil {
		return domain.CaseFile{}, fmt.Errorf("%w: %w", coreerrors.ErrSchemaMismatch, err)
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(obj), &data); err != nil {
		return domain.CaseFile{}, fmt.Errorf("%w: %w", coreerrors.ErrSchemaMismatch, err)
	}

	return Validate(data, matchCount)
}

// Validate projects an untyped object onto a CaseFile field by field.
func Validate(data map[string]any, matchCount int) (domain.CaseFile, error) {
	if data == nil {
		return domain.CaseFile{}, coreerrors.ErrSchemaMismatch
	}

	summary, ok := requiredString(data, "summary")
	if !ok {
		return domain.CaseFile{}, fmt.Errorf("%w: summary", coreerrors.ErrSchemaMismatch)
	}

	rawCategory, ok := requiredString(data, "category")
	if !ok {
		return domain.CaseFile{}, fmt.Errorf("%w: category", coreerrors.ErrSchemaMismatch)
	}

	category, ok := domain.ParseCategory(rawCategory)
	if !ok {
		return domain.CaseFile{}, fmt.Errorf("%w: category %q", coreerrors.ErrSchemaMismatch, rawCategory)
	}

	productArea, ok := requiredString(data, "product_area")
	if !ok {
		return domain.CaseFile{}, fmt.Errorf("%w: product_area", coreerrors.ErrSchemaMismatch)
	}

	question, ok := requiredString(data, "clarifying_question")
	if !ok {
		return domain.CaseFile{}, fmt.Errorf("%w: clarifying_question", coreerrors.ErrSchemaMismatch)
	}

	cf := domain.CaseFile{
		Summary:            truncateRunes(summary, domain.MaxSummaryLength),
		Category:           category,
		Sentiment:          clampNumber(numberField(data, "sentiment"), domain.MinSentiment, domain.MaxSentiment),
		Urgency:            int(math.Round(clampNumber(numberField(data, "urgency"), domain.MinUrgency, domain.MaxUrgency))),
		ProductArea:        productArea,
		ReproStepsMarkdown: coerceString(data["repro_steps_md"]),
		ClarifyingQuestion: question,
		Jurors:             parseJurors(data["jurors"]),
		Keywords:           parseKeywords(data["keywords"]),
		ClusterHint:        clusterHint(data["cluster_hint"], productArea),
	}

	cf.PriorityScore = scoring.PriorityScore(cf.Urgency, cf.Sentiment, cf.Jurors, matchCount)

	return cf, nil
}

func requiredString(data map[string]any, key string) (string, bool) {
	s, ok := data[key].(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}

	return s, true
}

// numberField returns m[key] with an explicit JSON null mapped to 0, so a
// null clamps like zero while a missing key clamps to the lower bound.
func numberField(m map[string]any, key string) any {
	v, ok := m[key]
	if ok && v == nil {
		return float64(0)
	}

	return v
}

// clampNumber bounds v to [lo, hi]. Numeric strings are parsed; anything else
// that is not a finite number becomes lo.
func clampNumber(v any, lo, hi float64) float64 {
	var n float64

	switch t := v.(type) {
	case float64:
		n = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return lo
		}

		n = parsed
	default:
		return lo
	}

	if math.IsNaN(n) {
		return lo
	}

	return math.Max(lo, math.Min(hi, n))
}

func parseJurors(v any) []domain.JurorVote {
	items, ok := v.([]any)
	if !ok || len(items) == 0 {
		return domain.DefaultJurors()
	}

	if len(items) > domain.MaxJurors {
		items = items[:domain.MaxJurors]
	}

	jurors := make([]domain.JurorVote, 0, len(items))

	for i, item := range items {
		fields, _ := item.(map[string]any)

		persona, ok := requiredString(fields, "persona")
		if !ok {
			persona = jurorPersonaPrefix + strconv.Itoa(i+1)
		}

		jurors = append(jurors, domain.JurorVote{
			Persona:   persona,
			Priority:  int(math.Round(clampNumber(numberField(fields, "priority"), domain.MinPriority, domain.MaxPriority))),
			Rationale: truncateRunes(coerceString(fields["rationale"]), domain.MaxRationaleLength),
		})
	}

	return jurors
}

func parseKeywords(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return []string{}
	}

	if len(items) > domain.MaxKeywords {
		items = items[:domain.MaxKeywords]
	}

	keywords := make([]string, 0, len(items))
	for _, item := range items {
		keywords = append(keywords, coerceString(item))
	}

	return keywords
}

func clusterHint(v any, productArea string) string {
	if hint := coerceString(v); strings.TrimSpace(hint) != "" {
		return hint
	}

	if productArea != "" {
		return productArea
	}

	return defaultClusterHint
}

// coerceString renders scalars as text; null and missing become "".
func coerceString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}

		return string(b)
	}
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}

	return string(r[:limit])
}
