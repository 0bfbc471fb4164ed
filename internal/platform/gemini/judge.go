// Package gemini implements the judge interface using Google's Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"

	"github.com/phrazzld/showhn-judge/internal/config"
	"github.com/phrazzld/showhn-judge/internal/domain"
	"github.com/phrazzld/showhn-judge/internal/judge"
)

// contentGenerator is the slice of the genai client the judge needs.
// *genai.Models satisfies it; tests substitute a fake.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// GeminiJudge implements judge.Judge using the Gemini API. A whole batch
// is submitted as one request; when that call fails outright the same
// subjects are retried as independent single-subject calls.
type GeminiJudge struct {
	logger    *slog.Logger
	generator contentGenerator
	model     string

	batchTimeout  time.Duration
	singleTimeout time.Duration
}

var _ judge.Judge = (*GeminiJudge)(nil)

// NewGeminiJudge creates a GeminiJudge from configuration.
func NewGeminiJudge(ctx context.Context, logger *slog.Logger, cfg config.JudgeConfig) (*GeminiJudge, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", judge.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", judge.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", judge.ErrInvalidConfig, err)
	}

	return &GeminiJudge{
		logger:        logger,
		generator:     client.Models,
		model:         cfg.ModelName,
		batchTimeout:  cfg.BatchTimeout,
		singleTimeout: cfg.SingleTimeout,
	}, nil
}

// ModelID identifies the model writing the verdicts.
func (g *GeminiJudge) ModelID() string {
	return g.model
}

// JudgeSubjects judges the batch with one model call, falling back to
// per-subject calls when the batched call fails. Exactly one Result is
// returned per payload, in payload order; each subject succeeds or fails
// on its own.
func (g *GeminiJudge) JudgeSubjects(ctx context.Context, payloads []judge.Payload) ([]judge.Result, error) {
	if len(payloads) == 0 {
		return nil, judge.ErrNoPayloads
	}

	raws, err := g.callBatch(ctx, payloads)
	if err != nil {
		g.logger.WarnContext(ctx, "batched judge call failed, falling back to per-subject calls",
			"subjects", len(payloads),
			"error", err)
		return g.fallbackSingles(ctx, payloads), nil
	}

	// Index the batch answer by subject id; a subject the model skipped
	// fails individually without affecting its siblings.
	bySubject := make(map[string]judge.RawVerdict, len(raws))
	for _, raw := range raws {
		bySubject[raw.SubjectID] = raw
	}

	now := time.Now()
	results := make([]judge.Result, 0, len(payloads))
	for _, p := range payloads {
		raw, ok := bySubject[p.SubjectID.String()]
		if !ok {
			results = append(results, judge.Result{
				SubjectID: p.SubjectID,
				Err:       fmt.Errorf("%w: %s", judge.ErrMissingVerdict, p.SubjectID),
			})
			continue
		}
		results = append(results, judge.Result{
			SubjectID: p.SubjectID,
			Verdict:   judge.Normalize(raw, p.SubjectID, g.model, now),
		})
	}

	return results, nil
}

// callBatch submits every payload in one request and parses the array answer.
func (g *GeminiJudge) callBatch(ctx context.Context, payloads []judge.Payload) ([]judge.RawVerdict, error) {
	ctx, cancel := context.WithTimeout(ctx, g.batchTimeout)
	defer cancel()

	parts := []*genai.Part{genai.NewPartFromText(instruction)}
	for i, p := range payloads {
		parts = append(parts, genai.NewPartFromText(subjectFragment(i, p)))
		if len(p.ImagePNG) > 0 {
			parts = append(parts, genai.NewPartFromBytes(p.ImagePNG, "image/png"))
		}
	}

	text, err := g.generate(ctx, parts)
	if err != nil {
		return nil, err
	}

	return parseBatchResponse(text)
}

// fallbackSingles retries each subject as an independent call. One
// subject's failure never blocks the rest of the batch.
func (g *GeminiJudge) fallbackSingles(ctx context.Context, payloads []judge.Payload) []judge.Result {
	results := make([]judge.Result, 0, len(payloads))
	for i, p := range payloads {
		verdict, err := g.judgeOne(ctx, i, p)
		if err != nil {
			g.logger.WarnContext(ctx, "single-subject judge call failed",
				"subject_id", p.SubjectID,
				"error", err)
			results = append(results, judge.Result{SubjectID: p.SubjectID, Err: err})
			continue
		}
		results = append(results, judge.Result{SubjectID: p.SubjectID, Verdict: verdict})
	}
	return results
}

// judgeOne judges a single subject.
func (g *GeminiJudge) judgeOne(ctx context.Context, index int, p judge.Payload) (*domain.Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, g.singleTimeout)
	defer cancel()

	parts := []*genai.Part{
		genai.NewPartFromText(instruction),
		genai.NewPartFromText(subjectFragment(index, p)),
	}
	if len(p.ImagePNG) > 0 {
		parts = append(parts, genai.NewPartFromBytes(p.ImagePNG, "image/png"))
	}

	text, err := g.generate(ctx, parts)
	if err != nil {
		return nil, err
	}

	raw, err := parseSingleResponse(text)
	if err != nil {
		return nil, err
	}

	return judge.Normalize(raw, p.SubjectID, g.model, time.Now()), nil
}

// generate runs one model call and returns the concatenated text answer.
func (g *GeminiJudge) generate(ctx context.Context, parts []*genai.Part) (string, error) {
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := g.generator.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.2),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", judge.ErrTransientFailure, err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no content generated", judge.ErrInvalidResponse)
	}
	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w", judge.ErrContentBlocked)
	}
	if candidate.Content == nil {
		return "", fmt.Errorf("%w: empty content in response", judge.ErrInvalidResponse)
	}

	var text string
	for _, part := range candidate.Content.Parts {
		if part != nil {
			text += part.Text
		}
	}
	if text == "" {
		return "", fmt.Errorf("%w: empty text in response", judge.ErrInvalidResponse)
	}

	return text, nil
}
