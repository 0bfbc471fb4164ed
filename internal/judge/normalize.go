package judge

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/showhn-judge/internal/domain"
)

// Length caps for free-text verdict fields. Model output past these
// bounds is truncated, never rejected.
const (
	maxHighlightLen = 200
	maxAudienceLen  = 200
	maxListItems    = 5
	maxListItemLen  = 300
)

// RawVerdict is the JSON shape the model is asked to produce for one
// subject. Every field is optional: normalization fills safe defaults so
// a partially malformed answer still yields a usable verdict.
type RawVerdict struct {
	SubjectID  string   `json:"subject_id"`
	Tier       string   `json:"tier"`
	VibeTags   []string `json:"vibe_tags"`
	Highlight  string   `json:"highlight"`
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`
	SimilarTo  []string `json:"similar_to"`
	Category   string   `json:"category"`
	Audience   string   `json:"audience"`

	// Score is accepted in the JSON so lenient parsing doesn't choke on
	// it, but it is never read: the persisted score is always recomputed
	// from the final tier.
	Score int `json:"score,omitempty"`
}

// Normalize turns a raw model answer into a valid domain.Verdict. The
// result always satisfies domain validation: unknown tiers fall back to
// the default tier, tags are filtered to the vocabulary and capped,
// unknown categories become the catch-all, and score is recomputed from
// the final tier regardless of what the model reported.
func Normalize(raw RawVerdict, subjectID uuid.UUID, modelID string, now time.Time) *domain.Verdict {
	tier := normalizeTier(raw.Tier)

	return &domain.Verdict{
		SubjectID:  subjectID,
		Tier:       tier,
		VibeTags:   normalizeTags(raw.VibeTags),
		Highlight:  truncate(strings.TrimSpace(raw.Highlight), maxHighlightLen),
		Strengths:  normalizeList(raw.Strengths),
		Weaknesses: normalizeList(raw.Weaknesses),
		SimilarTo:  capList(normalizeList(raw.SimilarTo), domain.MaxSimilarTo),
		Category:   normalizeCategory(raw.Category),
		Audience:   truncate(strings.TrimSpace(raw.Audience), maxAudienceLen),
		Score:      domain.TierScore(tier),
		AnalyzedAt: now.UTC(),
		ModelID:    modelID,
	}
}

// normalizeTier maps the model's tier string onto the fixed five-tier
// set, defaulting to the middle tier for anything unrecognized.
func normalizeTier(raw string) domain.Tier {
	tier := domain.Tier(strings.ToLower(strings.TrimSpace(raw)))
	if !domain.IsValidTier(tier) {
		return domain.DefaultTier
	}
	return tier
}

// normalizeTags filters to the fixed vocabulary, removes duplicates, and
// caps the result at the tag limit.
func normalizeTags(raw []string) []string {
	tags := make([]string, 0, domain.MaxVibeTags)
	seen := make(map[string]bool, len(raw))
	for _, tag := range raw {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if !domain.IsVibeTag(tag) || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
		if len(tags) == domain.MaxVibeTags {
			break
		}
	}
	return tags
}

// normalizeCategory matches the model's answer against the fixed list
// case-insensitively, returning the canonical spelling or the catch-all.
func normalizeCategory(raw string) string {
	raw = strings.TrimSpace(raw)
	for _, category := range domain.Categories {
		if strings.EqualFold(raw, category) {
			return category
		}
	}
	return domain.CategoryOther
}

// normalizeList trims, drops empties, truncates items, and caps length.
func normalizeList(raw []string) []string {
	list := make([]string, 0, len(raw))
	for _, item := range raw {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		list = append(list, truncate(item, maxListItemLen))
		if len(list) == maxListItems {
			break
		}
	}
	return list
}

func capList(list []string, max int) []string {
	if len(list) > max {
		return list[:max]
	}
	return list
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// Cut on a rune boundary.
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
