// Package acquire gathers the content a subject is judged on. GitHub
// repository links take a fast path of plain HTTP fetches; everything
// else is rendered in a headless browser.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"github.com/phrazzld/showhn-judge/internal/config"
	"github.com/phrazzld/showhn-judge/internal/platform/browser"
)

// Renderer is the browser surface the acquirer needs. *browser.Session
// satisfies it; tests substitute a fake.
type Renderer interface {
	Render(ctx context.Context, url string, screenshot bool) (*browser.RenderResult, error)
}

// Request describes the subject to acquire content for.
type Request struct {
	SubjectID     uuid.UUID
	Title         string
	URL           string
	AuthorText    string
	HasScreenshot bool
}

// Result is what acquisition produced for one subject. PageText is
// never empty; when nothing could be extracted it falls back to the
// submission title so the judge always has something to react to.
type Result struct {
	PageText   string
	ReadmeText string

	RepoStars       int
	RepoForks       int
	RepoLanguage    string
	RepoDescription string

	// UsedFastPath reports whether the GitHub fast path served this
	// subject. Fast-path acquisitions never touch the browser.
	UsedFastPath bool

	// Screenshot is set when the render path captured one because the
	// subject had none. Fast-path results never carry one.
	Screenshot []byte
}

// Acquirer implements both acquisition strategies over a shared
// SSRF-guarded HTTP client and a shared browser session.
type Acquirer struct {
	logger      *slog.Logger
	renderer    Renderer
	client      *http.Client
	maxChars    int
	githubToken string
}

// NewAcquirer creates an Acquirer.
func NewAcquirer(logger *slog.Logger, renderer Renderer, cfg config.AcquireConfig) (*Acquirer, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if renderer == nil {
		return nil, errors.New("renderer cannot be nil")
	}
	return &Acquirer{
		logger:      logger,
		renderer:    renderer,
		client:      newGuardedClient(cfg.FetchTimeout),
		maxChars:    cfg.ContentMaxChars,
		githubToken: cfg.GitHubToken,
	}, nil
}

// FastPathEligible reports whether a URL would take the fast path. The
// worker uses this to schedule fast-path subjects in parallel while
// render-path subjects queue for the browser.
func (a *Acquirer) FastPathEligible(rawURL string) bool {
	_, ok := ParseRepoLink(rawURL)
	return ok
}

// Acquire gathers judging content for one subject.
func (a *Acquirer) Acquire(ctx context.Context, req Request) (*Result, error) {
	if req.URL == "" {
		// Nothing to fetch. The poster's own words are all we have.
		return a.finish(req, &Result{}), nil
	}

	if ref, ok := ParseRepoLink(req.URL); ok {
		return a.acquireFast(ctx, req, ref)
	}
	return a.acquireRender(ctx, req)
}

// acquireFast runs the three fast-path fetches in parallel. Each fetch
// fails independently; the result carries whatever succeeded.
func (a *Acquirer) acquireFast(ctx context.Context, req Request, ref RepoRef) (*Result, error) {
	var (
		wg sync.WaitGroup

		pageText string
		pageErr  error

		meta    *repoMetadata
		metaErr error

		readme    string
		readmeErr error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		pageText, pageErr = a.fetchPageText(ctx, req.URL)
	}()
	go func() {
		defer wg.Done()
		meta, metaErr = a.fetchRepoMetadata(ctx, ref)
	}()
	go func() {
		defer wg.Done()
		readme, readmeErr = a.fetchReadme(ctx, ref)
	}()
	wg.Wait()

	if pageErr != nil && metaErr != nil && readmeErr != nil {
		return nil, fmt.Errorf("%w: all fast-path fetches failed for %s: %v",
			ErrNoContent, req.URL, errors.Join(pageErr, metaErr, readmeErr))
	}
	for _, fetchErr := range []error{pageErr, metaErr, readmeErr} {
		if fetchErr != nil {
			a.logger.WarnContext(ctx, "fast-path fetch failed",
				"subject_id", req.SubjectID,
				"error", fetchErr)
		}
	}

	res := &Result{
		PageText:     pageText,
		ReadmeText:   readme,
		UsedFastPath: true,
	}
	if meta != nil {
		res.RepoStars = meta.Stars
		res.RepoForks = meta.Forks
		res.RepoLanguage = meta.Language
		res.RepoDescription = meta.Description
	}
	return a.finish(req, res), nil
}

// acquireRender visits the page in the shared browser, capturing a
// screenshot when the subject has none. If navigation fails but an
// earlier run already captured a screenshot, a plain fetch still
// salvages the text.
func (a *Acquirer) acquireRender(ctx context.Context, req Request) (*Result, error) {
	rendered, err := a.renderer.Render(ctx, req.URL, !req.HasScreenshot)
	if err != nil {
		if !req.HasScreenshot {
			return nil, fmt.Errorf("rendering %s: %w", req.URL, err)
		}
		a.logger.WarnContext(ctx, "render failed, falling back to plain fetch",
			"subject_id", req.SubjectID,
			"url", req.URL,
			"error", err)
		text, fetchErr := a.fetchPageText(ctx, req.URL)
		if fetchErr != nil {
			return nil, fmt.Errorf("rendering %s: %w (plain-fetch fallback also failed: %v)",
				req.URL, err, fetchErr)
		}
		return a.finish(req, &Result{PageText: text}), nil
	}

	return a.finish(req, &Result{
		PageText:   rendered.Text,
		Screenshot: rendered.Screenshot,
	}), nil
}

// fetchPageText GETs a page and extracts its visible text with goquery.
func (a *Acquirer) fetchPageText(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("building request for %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: GET %s returned %d", ErrFetchFailed, rawURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", fmt.Errorf("parsing HTML from %s: %w", rawURL, err)
	}
	doc.Find("script, style, noscript, svg").Remove()
	return doc.Find("body").Text(), nil
}

// finish normalizes and truncates the extracted text and applies the
// title fallback so the judge never sees an empty subject.
func (a *Acquirer) finish(req Request, res *Result) *Result {
	res.PageText = truncateRunes(normalizeText(res.PageText), a.maxChars)
	res.ReadmeText = truncateRunes(normalizeText(res.ReadmeText), a.maxChars)

	if res.PageText == "" && res.ReadmeText == "" && req.AuthorText == "" {
		res.PageText = req.Title
	}
	return res
}

// normalizeText collapses all whitespace runs into single spaces.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateRunes caps s at max runes without splitting a rune.
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
