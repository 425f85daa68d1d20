package domain

import "time"

// StructuredProfile is the typed object extracted from consolidated CV
// markdown. Slices are never nil after extraction so that an upsert
// overwrites instead of keeping stale data.
type StructuredProfile struct {
	Summary    string           `json:"summary"`
	Skills     []string         `json:"skills"`
	Experience []ExperienceItem `json:"experience"`
	Education  []EducationItem  `json:"education"`
}

type ExperienceItem struct {
	Company        string   `json:"company"`
	Title          string   `json:"title"`
	EmploymentType string   `json:"employment_type"`
	Start          string   `json:"start"` // YYYY-MM or free text
	End            string   `json:"end"`   // YYYY-MM or "present"
	Description    string   `json:"description"`
	Skills         []string `json:"skills"`
}

type EducationItem struct {
	Institution  string `json:"institution"`
	Degree       string `json:"degree"`
	FieldOfStudy string `json:"field_of_study"`
	Start        string `json:"start"`
	End          string `json:"end"`
	GPA          string `json:"gpa"`
}

// Normalize replaces nil slices with empty ones.
func (p *StructuredProfile) Normalize() {
	if p.Skills == nil {
		p.Skills = []string{}
	}
	if p.Experience == nil {
		p.Experience = []ExperienceItem{}
	}
	for i := range p.Experience {
		if p.Experience[i].Skills == nil {
			p.Experience[i].Skills = []string{}
		}
	}
	if p.Education == nil {
		p.Education = []EducationItem{}
	}
}

// UserProfile is the long-lived per-user entity the pipeline's final stage
// upserts into. It survives run completion and later direct edits.
type UserProfile struct {
	UserID              string            `json:"user_id"`
	Profile             StructuredProfile `json:"profile"`
	SourceDocumentID    string            `json:"source_document_id"`
	OnboardingCompleted bool              `json:"onboarding_completed"`
	UpdatedAt           time.Time         `json:"updated_at"`
}
