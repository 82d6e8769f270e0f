package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/domain"
)

// UpsertCaseFile writes the case file for a feedback item, replacing any previous one.
func (db *DB) UpsertCaseFile(ctx context.Context, feedbackID string, caseFile domain.CaseFile, clusterID string) error {
	jurors, err := json.Marshal(nonNilJurors(caseFile.Jurors))
	if err != nil {
		return fmt.Errorf("marshal jurors: %w", err)
	}

	keywords, err := json.Marshal(nonNilStrings(caseFile.Keywords))
	if err != nil {
		return fmt.Errorf("marshal keywords: %w", err)
	}

	_, err = db.Pool.Exec(ctx, `
		INSERT INTO case_files (
			feedback_id, summary, category, sentiment, urgency, product_area, repro_steps_md,
			clarifying_question, jurors, keywords, cluster_hint, priority_score, cluster_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (feedback_id) DO UPDATE SET
			summary = EXCLUDED.summary,
			category = EXCLUDED.category,
			sentiment = EXCLUDED.sentiment,
			urgency = EXCLUDED.urgency,
			product_area = EXCLUDED.product_area,
			repro_steps_md = EXCLUDED.repro_steps_md,
			clarifying_question = EXCLUDED.clarifying_question,
			jurors = EXCLUDED.jurors,
			keywords = EXCLUDED.keywords,
			cluster_hint = EXCLUDED.cluster_hint,
			priority_score = EXCLUDED.priority_score,
			cluster_id = EXCLUDED.cluster_id,
			updated_at = now()
	`,
		toUUID(feedbackID),
		SanitizeUTF8(caseFile.Summary),
		string(caseFile.Category),
		caseFile.Sentiment,
		toInt4(caseFile.Urgency),
		SanitizeUTF8(caseFile.ProductArea),
		SanitizeUTF8(caseFile.ReproStepsMarkdown),
		SanitizeUTF8(caseFile.ClarifyingQuestion),
		jurors,
		keywords,
		SanitizeUTF8(caseFile.ClusterHint),
		toInt4(caseFile.PriorityScore),
		toUUID(clusterID),
	)
	if err != nil {
		return fmt.Errorf("upsert case file: %w", err)
	}

	return nil
}

// FindClusterIDs returns the cluster ids recorded on the case files of the given
// feedback items. Items without a case file or without a cluster are absent.
func (db *DB) FindClusterIDs(ctx context.Context, feedbackIDs []string) (map[string]string, error) {
	out := make(map[string]string)

	ids := toUUIDs(feedbackIDs)
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT feedback_id, cluster_id
		FROM case_files
		WHERE feedback_id = ANY($1::uuid[])
		  AND cluster_id IS NOT NULL
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("find cluster ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var feedbackID, clusterID pgtype.UUID

		if err := rows.Scan(&feedbackID, &clusterID); err != nil {
			return nil, fmt.Errorf("scan cluster id: %w", err)
		}

		out[fromUUID(feedbackID)] = fromUUID(clusterID)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate cluster ids: %w", rows.Err())
	}

	return out, nil
}

func nonNilJurors(j []domain.JurorVote) []domain.JurorVote {
	if j == nil {
		return []domain.JurorVote{}
	}

	return j
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}

	return s
}
