// Package capture persists page screenshots and derives thumbnails from
// them. Files are keyed by subject ID: {id}.png for the full viewport
// shot, {id}_thumb.jpg for the thumbnail.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/phrazzld/showhn-judge/internal/config"
	"github.com/phrazzld/showhn-judge/internal/domain"
	"github.com/phrazzld/showhn-judge/internal/platform/browser"
	"github.com/phrazzld/showhn-judge/internal/store"
)

// ErrCaptureFailed wraps failures to obtain a screenshot after retry.
var ErrCaptureFailed = errors.New("screenshot capture failed")

// Renderer is the browser surface the pipeline needs. *browser.Session
// satisfies it.
type Renderer interface {
	Render(ctx context.Context, url string, screenshot bool) (*browser.RenderResult, error)
}

// Pipeline captures, stores, and thumbnails screenshots for subjects.
type Pipeline struct {
	logger   *slog.Logger
	renderer Renderer
	subjects store.SubjectStore

	dir         string
	thumbWidth  int
	jpegQuality int
	retryDelay  time.Duration
}

// NewPipeline creates a Pipeline, ensuring the output directory exists.
func NewPipeline(logger *slog.Logger, renderer Renderer, subjects store.SubjectStore, cfg config.CaptureConfig) (*Pipeline, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if renderer == nil {
		return nil, errors.New("renderer cannot be nil")
	}
	if subjects == nil {
		return nil, errors.New("subject store cannot be nil")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating capture directory %s: %w", cfg.Dir, err)
	}
	return &Pipeline{
		logger:      logger,
		renderer:    renderer,
		subjects:    subjects,
		dir:         cfg.Dir,
		thumbWidth:  cfg.ThumbnailWidth,
		jpegQuality: cfg.JPEGQuality,
		retryDelay:  cfg.RetryDelay,
	}, nil
}

// ScreenshotPath returns where a subject's full screenshot lives.
func (p *Pipeline) ScreenshotPath(subjectID uuid.UUID) string {
	return filepath.Join(p.dir, subjectID.String()+".png")
}

// ThumbnailPath returns where a subject's thumbnail lives.
func (p *Pipeline) ThumbnailPath(subjectID uuid.UUID) string {
	return filepath.Join(p.dir, subjectID.String()+"_thumb.jpg")
}

// HasScreenshot reports whether a screenshot file already exists on disk.
func (p *Pipeline) HasScreenshot(subjectID uuid.UUID) bool {
	_, err := os.Stat(p.ScreenshotPath(subjectID))
	return err == nil
}

// LoadScreenshot reads a subject's stored screenshot for use as judge
// input. Returns nil without error when none exists.
func (p *Pipeline) LoadScreenshot(subjectID uuid.UUID) ([]byte, error) {
	data, err := os.ReadFile(p.ScreenshotPath(subjectID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading screenshot for %s: %w", subjectID, err)
	}
	return data, nil
}

// Capture takes a screenshot of pageURL and persists it for the subject.
// A subject that already has one on disk is a no-op beyond making sure
// the flag is set. One retry after a fixed delay covers flaky loads.
func (p *Pipeline) Capture(ctx context.Context, subjectID uuid.UUID, pageURL string) error {
	if p.HasScreenshot(subjectID) {
		return p.subjects.SetHasScreenshot(ctx, subjectID, true)
	}

	png, err := p.attemptCapture(ctx, pageURL)
	if err != nil {
		p.logger.WarnContext(ctx, "capture attempt failed, retrying once",
			"subject_id", subjectID,
			"url", pageURL,
			"error", err)
		select {
		case <-time.After(p.retryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
		png, err = p.attemptCapture(ctx, pageURL)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrCaptureFailed, pageURL, err)
		}
	}

	return p.Persist(ctx, subjectID, png)
}

// attemptCapture runs one render and treats an empty image the same as a
// failed one, so both get the retry.
func (p *Pipeline) attemptCapture(ctx context.Context, pageURL string) ([]byte, error) {
	res, err := p.renderer.Render(ctx, pageURL, true)
	if err != nil {
		return nil, err
	}
	if len(res.Screenshot) == 0 {
		return nil, errors.New("render produced no image")
	}
	return res.Screenshot, nil
}

// Persist writes a screenshot the caller already holds, derives its
// thumbnail, and flips the subject flag. The acquirer uses this when the
// render path captured an image as a side effect.
func (p *Pipeline) Persist(ctx context.Context, subjectID uuid.UUID, png []byte) error {
	shotPath := p.ScreenshotPath(subjectID)
	if err := os.WriteFile(shotPath, png, 0o644); err != nil {
		return fmt.Errorf("writing screenshot %s: %w", shotPath, err)
	}

	if err := p.writeThumbnail(subjectID, png); err != nil {
		// The full screenshot is the judging input; a thumbnail is
		// presentation-only and its failure should not fail the task.
		p.logger.WarnContext(ctx, "thumbnail generation failed",
			"subject_id", subjectID,
			"error", err)
	}

	return p.subjects.SetHasScreenshot(ctx, subjectID, true)
}

// MarkUncapturable flags the subject inactive after capture attempts are
// exhausted, so it stops being scheduled for visual work.
func (p *Pipeline) MarkUncapturable(ctx context.Context, subjectID uuid.UUID) error {
	return p.subjects.SetStatus(ctx, subjectID, domain.SubjectStatusInactive)
}

func (p *Pipeline) writeThumbnail(subjectID uuid.UUID, png []byte) error {
	img, err := imaging.Decode(bytes.NewReader(png))
	if err != nil {
		return fmt.Errorf("decoding screenshot: %w", err)
	}
	thumb := imaging.Resize(img, p.thumbWidth, 0, imaging.Lanczos)
	thumbPath := p.ThumbnailPath(subjectID)
	if err := imaging.Save(thumb, thumbPath, imaging.JPEGQuality(p.jpegQuality)); err != nil {
		return fmt.Errorf("saving thumbnail %s: %w", thumbPath, err)
	}
	return nil
}
