package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/talentforge/platform/internal/core/domain"
)

type ProfileRepository struct {
	db *sql.DB
}

func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Upsert inserts the profile or overwrites its extracted fields. Field-level
// overwrite keeps re-running the structuring stage idempotent: the same
// consolidated markdown always yields the same stored profile.
func (r *ProfileRepository) Upsert(ctx context.Context, profile *domain.UserProfile) error {
	skillsJSON, err := json.Marshal(profile.Profile.Skills)
	if err != nil {
		return fmt.Errorf("marshal skills: %w", err)
	}
	experienceJSON, err := json.Marshal(profile.Profile.Experience)
	if err != nil {
		return fmt.Errorf("marshal experience: %w", err)
	}
	educationJSON, err := json.Marshal(profile.Profile.Education)
	if err != nil {
		return fmt.Errorf("marshal education: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO user_profiles (user_id, summary, skills, experience, education, source_document_id, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (user_id) DO UPDATE SET
	summary = $2,
	skills = $3,
	experience = $4,
	education = $5,
	source_document_id = $6,
	updated_at = $7
`, profile.UserID, profile.Profile.Summary, skillsJSON, experienceJSON, educationJSON, profile.SourceDocumentID, profile.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert user profile: %w", err)
	}
	return nil
}

func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (*domain.UserProfile, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT user_id, summary, skills, experience, education, source_document_id, onboarding_completed, updated_at
FROM user_profiles
WHERE user_id = $1
`, userID)

	var profile domain.UserProfile
	var skillsRaw, experienceRaw, educationRaw []byte
	var sourceDoc sql.NullString

	err := row.Scan(
		&profile.UserID, &profile.Profile.Summary, &skillsRaw, &experienceRaw, &educationRaw,
		&sourceDoc, &profile.OnboardingCompleted, &profile.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrProfileNotFound, "get user profile", err)
		}
		return nil, fmt.Errorf("scan user profile: %w", err)
	}

	if err := json.Unmarshal(skillsRaw, &profile.Profile.Skills); err != nil {
		return nil, fmt.Errorf("unmarshal skills: %w", err)
	}
	if err := json.Unmarshal(experienceRaw, &profile.Profile.Experience); err != nil {
		return nil, fmt.Errorf("unmarshal experience: %w", err)
	}
	if err := json.Unmarshal(educationRaw, &profile.Profile.Education); err != nil {
		return nil, fmt.Errorf("unmarshal education: %w", err)
	}
	profile.SourceDocumentID = sourceDoc.String
	return &profile, nil
}

// MarkOnboardingCompleted flips the onboarding flag, creating the profile
// row if the user has none yet. Fired from the validation checkpoint, so it
// can run before any extracted fields exist.
func (r *ProfileRepository) MarkOnboardingCompleted(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO user_profiles (user_id, onboarding_completed, updated_at)
VALUES ($1, TRUE, $2)
ON CONFLICT (user_id) DO UPDATE SET onboarding_completed = TRUE, updated_at = $2
`, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark onboarding completed: %w", err)
	}
	return nil
}
