package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Tier is the ordinal editorial classification of a subject, best to worst.
type Tier string

// The five tiers, best to worst.
const (
	TierStandout Tier = "standout"
	TierStrong   Tier = "strong"
	TierDecent   Tier = "decent"
	TierRough    Tier = "rough"
	TierSkip     Tier = "skip"
)

// DefaultTier is assigned when the model returns a tier outside the set.
const DefaultTier = TierDecent

// tierScores maps each tier to its ranking score. Score is derived from
// tier alone so ordering stays stable across prompt and model revisions;
// model-reported confidence never enters the sort key.
var tierScores = map[Tier]int{
	TierStandout: 95,
	TierStrong:   80,
	TierDecent:   60,
	TierRough:    40,
	TierSkip:     20,
}

// VibeTags is the fixed vocabulary verdict tags are drawn from.
var VibeTags = []string{
	"polished",
	"hacky",
	"ambitious",
	"playful",
	"technical",
	"minimal",
	"niche",
	"practical",
	"weird",
	"beautiful",
	"clever",
	"overengineered",
}

// Categories is the fixed category list. Unrecognized model answers fall
// back to CategoryOther.
var Categories = []string{
	"DevTools",
	"AI/ML",
	"Web App",
	"Mobile App",
	"Games",
	"Productivity",
	"Data & Analytics",
	"Security",
	"Hardware",
	"Design",
	"Education",
	"Finance",
	"Social",
	"Infrastructure",
}

// CategoryOther is the catch-all category.
const CategoryOther = "Other"

// MaxVibeTags and MaxSimilarTo bound the list-valued verdict fields.
const (
	MaxVibeTags  = 3
	MaxSimilarTo = 3
)

// Common validation errors for Verdict
var (
	ErrEmptyVerdictSubjectID = errors.New("verdict subject ID cannot be empty")
	ErrInvalidTier           = errors.New("invalid verdict tier")
	ErrScoreTierMismatch     = errors.New("verdict score does not match tier")
)

// Verdict is the structured editorial result of judging one subject.
// There is at most one verdict per subject; re-judging overwrites it.
type Verdict struct {
	SubjectID  uuid.UUID `json:"subject_id"`
	Tier       Tier      `json:"tier"`
	VibeTags   []string  `json:"vibe_tags"`
	Highlight  string    `json:"highlight"`
	Strengths  []string  `json:"strengths"`
	Weaknesses []string  `json:"weaknesses"`
	SimilarTo  []string  `json:"similar_to"`
	Category   string    `json:"category"`
	Audience   string    `json:"audience"`
	Score      int       `json:"score"`
	AnalyzedAt time.Time `json:"analyzed_at"`
	ModelID    string    `json:"model_id"`
}

// TierScore returns the fixed ranking score for a tier. Unknown tiers map
// to the default tier's score.
func TierScore(tier Tier) int {
	if score, ok := tierScores[tier]; ok {
		return score
	}
	return tierScores[DefaultTier]
}

// IsValidTier checks membership in the fixed five-tier set.
func IsValidTier(tier Tier) bool {
	_, ok := tierScores[tier]
	return ok
}

// IsVibeTag checks membership in the fixed tag vocabulary.
func IsVibeTag(tag string) bool {
	for _, known := range VibeTags {
		if tag == known {
			return true
		}
	}
	return false
}

// IsCategory checks membership in the fixed category list. The catch-all
// category counts as valid.
func IsCategory(category string) bool {
	if category == CategoryOther {
		return true
	}
	for _, known := range Categories {
		if category == known {
			return true
		}
	}
	return false
}

// Validate checks the invariants every persisted verdict must hold:
// a known tier, score derived from that tier, tags within the vocabulary
// and bounds, and a known category.
func (v *Verdict) Validate() error {
	if v.SubjectID == uuid.Nil {
		return ErrEmptyVerdictSubjectID
	}

	if !IsValidTier(v.Tier) {
		return ErrInvalidTier
	}

	if v.Score != TierScore(v.Tier) {
		return ErrScoreTierMismatch
	}

	if len(v.VibeTags) > MaxVibeTags {
		return errors.New("too many vibe tags")
	}
	for _, tag := range v.VibeTags {
		if !IsVibeTag(tag) {
			return errors.New("vibe tag outside vocabulary: " + tag)
		}
	}

	if len(v.SimilarTo) > MaxSimilarTo {
		return errors.New("too many similar_to entries")
	}

	if !IsCategory(v.Category) {
		return errors.New("category outside fixed list: " + v.Category)
	}

	return nil
}
