// Package judge defines the boundary between the worker and the LLM that
// turns acquired content into editorial verdicts, plus the deterministic
// post-processing every raw model answer goes through.
package judge

import (
	"context"

	"github.com/google/uuid"

	"github.com/phrazzld/showhn-judge/internal/domain"
)

// Payload is everything the judge sees for one subject: the acquired
// text, optional companion document, provider metadata, and an optional
// screenshot.
type Payload struct {
	SubjectID  uuid.UUID
	Title      string
	URL        string
	Text       string
	AuthorText string
	Readme     string

	// RepoStars/RepoLanguage are included in the fragment when the link
	// resolved to a hosting-provider repository.
	RepoStars    int
	RepoLanguage string

	// ImagePNG is the subject's screenshot, attached inline when present.
	ImagePNG []byte
}

// Result pairs one subject with its verdict or its failure. Within a
// batch every subject succeeds or fails independently.
type Result struct {
	SubjectID uuid.UUID
	Verdict   *domain.Verdict
	Err       error
}

// Judge converts a set of acquired payloads into verdicts using as few
// model calls as possible. Implementations submit the whole batch as one
// request and fall back to independent single-subject calls when the
// batched call fails outright.
type Judge interface {
	// JudgeSubjects returns exactly one Result per payload, in payload
	// order. It only returns a non-nil error for failures that precede
	// any per-subject work (e.g. an empty payload list).
	JudgeSubjects(ctx context.Context, payloads []Payload) ([]Result, error)

	// ModelID identifies the model writing the verdicts.
	ModelID() string
}
