package usecase

import (
	"context"
	"fmt"

	"github.com/talentforge/platform/internal/core/domain"
	"github.com/talentforge/platform/internal/core/ports"
)

// OnboardingMarker flips the user's onboarding flag as soon as an uploaded
// document passes validation. It fires on the validation checkpoint rather
// than run completion so the product can unblock the user while the slower
// extraction stages are still running.
type OnboardingMarker struct {
	profiles ports.ProfileRepository
}

func NewOnboardingMarker(profiles ports.ProfileRepository) *OnboardingMarker {
	return &OnboardingMarker{profiles: profiles}
}

func (m *OnboardingMarker) Stage() domain.Stage {
	return domain.StageValidating
}

func (m *OnboardingMarker) Handle(ctx context.Context, cp domain.Checkpoint) error {
	if err := m.profiles.MarkOnboardingCompleted(ctx, cp.UserID); err != nil {
		return fmt.Errorf("mark onboarding completed: %w", err)
	}
	return nil
}
