package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upSeedVocabulary, downSeedVocabulary)
}

var seedVocabulary = map[string][]string{
	"agent_type":        {"Autonomous", "Assistive", "Workflow", "Conversational"},
	"value_proposition": {"Cost reduction", "Revenue growth", "Risk mitigation", "Productivity"},
	"tag":               {"AI/ML", "Cloud", "Data", "Security"},
	"target_persona":    {"Developer", "Data Scientist", "Business Analyst", "IT Operations"},
}

func upSeedVocabulary(ctx context.Context, tx *sql.Tx) error {
	for kind, values := range seedVocabulary {
		for _, v := range values {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO vocabulary (kind, value)
VALUES ($1, $2)
ON CONFLICT (kind, value) DO NOTHING
`, kind, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func downSeedVocabulary(ctx context.Context, tx *sql.Tx) error {
	for kind, values := range seedVocabulary {
		for _, v := range values {
			if _, err := tx.ExecContext(ctx, `DELETE FROM vocabulary WHERE kind = $1 AND value = $2`, kind, v); err != nil {
				return err
			}
		}
	}
	return nil
}
