package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/showhn-judge/internal/config"
	"github.com/phrazzld/showhn-judge/internal/platform/browser"
)

// fakeRenderer implements Renderer and counts calls.
type fakeRenderer struct {
	renderFunc func(ctx context.Context, url string, screenshot bool) (*browser.RenderResult, error)
	calls      int
}

func (f *fakeRenderer) Render(ctx context.Context, url string, screenshot bool) (*browser.RenderResult, error) {
	f.calls++
	if f.renderFunc == nil {
		return nil, errors.New("unexpected render call")
	}
	return f.renderFunc(ctx, url, screenshot)
}

// routeTripper serves canned responses keyed by "host+path" prefix.
type routeTripper struct {
	routes map[string]*http.Response
}

func (rt *routeTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	key := req.URL.Host + req.URL.Path
	for prefix, resp := range rt.routes {
		if strings.HasPrefix(key, prefix) {
			return resp, nil
		}
	}
	return nil, fmt.Errorf("no route for %s", key)
}

func cannedResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func newTestAcquirer(t *testing.T, renderer Renderer, rt http.RoundTripper) *Acquirer {
	t.Helper()
	a, err := NewAcquirer(
		slog.New(slog.NewTextHandler(os.Stdout, nil)),
		renderer,
		config.AcquireConfig{
			ContentMaxChars: 8000,
			FetchTimeout:    time.Second,
		},
	)
	require.NoError(t, err)
	if rt != nil {
		a.client = &http.Client{Transport: rt, Timeout: time.Second}
	}
	return a
}

func TestParseRepoLink(t *testing.T) {
	cases := []struct {
		name string
		url  string
		want RepoRef
		ok   bool
	}{
		{"plain repo", "https://github.com/alice/widget", RepoRef{"alice", "widget"}, true},
		{"www host", "https://www.github.com/alice/widget", RepoRef{"alice", "widget"}, true},
		{"deep link", "https://github.com/alice/widget/releases/tag/v1", RepoRef{"alice", "widget"}, true},
		{"dot git suffix", "https://github.com/alice/widget.git", RepoRef{"alice", "widget"}, true},
		{"profile only", "https://github.com/alice", RepoRef{}, false},
		{"orgs page", "https://github.com/orgs/acme/repositories", RepoRef{}, false},
		{"topics page", "https://github.com/topics/go", RepoRef{}, false},
		{"not github", "https://gitlab.com/alice/widget", RepoRef{}, false},
		{"empty", "", RepoRef{}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ref, ok := ParseRepoLink(tc.url)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, ref)
		})
	}
}

func TestGuardAddress(t *testing.T) {
	cases := []struct {
		address string
		allowed bool
	}{
		{"127.0.0.1:80", false},
		{"10.0.0.5:443", false},
		{"172.16.3.4:80", false},
		{"192.168.1.1:80", false},
		{"169.254.169.254:80", false},
		{"0.0.0.0:80", false},
		{"[::1]:80", false},
		{"[fc00::1]:80", false},
		{"[fe80::1]:80", false},
		{"93.184.216.34:443", true},
		{"[2606:2800:220:1:248:1893:25c8:1946]:443", true},
	}

	for _, tc := range cases {
		t.Run(tc.address, func(t *testing.T) {
			err := guardAddress("tcp", tc.address, nil)
			if tc.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrForbiddenAddress)
			}
		})
	}
}

func TestAcquireFastPathSkipsBrowser(t *testing.T) {
	renderer := &fakeRenderer{}
	rt := &routeTripper{routes: map[string]*http.Response{
		"github.com/alice/widget": cannedResponse(http.StatusOK,
			"<html><head><script>tracking()</script></head>"+
				"<body><h1>widget</h1>\n<p>A tiny  widget   tool.</p></body></html>"),
		"api.github.com/repos/alice/widget": cannedResponse(http.StatusOK,
			`{"stargazers_count": 421, "forks_count": 17, "language": "Go", "description": "a widget"}`),
		"raw.githubusercontent.com/alice/widget/main/README.md": cannedResponse(http.StatusNotFound, "not found"),
		"raw.githubusercontent.com/alice/widget/master/README.md": cannedResponse(http.StatusOK,
			"# widget\n\nDoes widget things."),
	}}

	res, err := newTestAcquirer(t, renderer, rt).Acquire(context.Background(), Request{
		SubjectID: uuid.New(),
		Title:     "Show HN: widget",
		URL:       "https://github.com/alice/widget",
	})
	require.NoError(t, err)

	assert.Equal(t, 0, renderer.calls, "fast path must never touch the browser")
	assert.True(t, res.UsedFastPath)
	assert.Equal(t, "widget A tiny widget tool.", res.PageText)
	assert.Equal(t, "# widget Does widget things.", res.ReadmeText)
	assert.Equal(t, 421, res.RepoStars)
	assert.Equal(t, 17, res.RepoForks)
	assert.Equal(t, "Go", res.RepoLanguage)
	assert.Equal(t, "a widget", res.RepoDescription)
	assert.Nil(t, res.Screenshot)
}

func TestAcquireFastPathPartialFailure(t *testing.T) {
	rt := &routeTripper{routes: map[string]*http.Response{
		"github.com/alice/widget":           cannedResponse(http.StatusOK, `<html><body>widget page</body></html>`),
		"api.github.com/repos/alice/widget": cannedResponse(http.StatusInternalServerError, "boom"),
		"raw.githubusercontent.com/alice/widget/main/README.md":   cannedResponse(http.StatusNotFound, ""),
		"raw.githubusercontent.com/alice/widget/master/README.md": cannedResponse(http.StatusNotFound, ""),
	}}

	res, err := newTestAcquirer(t, &fakeRenderer{}, rt).Acquire(context.Background(), Request{
		SubjectID: uuid.New(),
		URL:       "https://github.com/alice/widget",
	})
	require.NoError(t, err)
	assert.Equal(t, "widget page", res.PageText)
	assert.Empty(t, res.ReadmeText)
	assert.Zero(t, res.RepoStars)
}

func TestAcquireFastPathTotalFailure(t *testing.T) {
	rt := &routeTripper{routes: map[string]*http.Response{}}

	_, err := newTestAcquirer(t, &fakeRenderer{}, rt).Acquire(context.Background(), Request{
		SubjectID: uuid.New(),
		URL:       "https://github.com/alice/widget",
	})
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestAcquireRenderPathCapturesWhenMissing(t *testing.T) {
	renderer := &fakeRenderer{
		renderFunc: func(_ context.Context, url string, screenshot bool) (*browser.RenderResult, error) {
			assert.Equal(t, "https://widget.example", url)
			assert.True(t, screenshot, "subject without a screenshot should request one")
			return &browser.RenderResult{
				Text:       "rendered widget text",
				Screenshot: []byte("png-bytes"),
			}, nil
		},
	}

	res, err := newTestAcquirer(t, renderer, nil).Acquire(context.Background(), Request{
		SubjectID: uuid.New(),
		URL:       "https://widget.example",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, renderer.calls)
	assert.False(t, res.UsedFastPath)
	assert.Equal(t, "rendered widget text", res.PageText)
	assert.Equal(t, []byte("png-bytes"), res.Screenshot)
}

func TestAcquireRenderPathSkipsCaptureWhenPresent(t *testing.T) {
	renderer := &fakeRenderer{
		renderFunc: func(_ context.Context, _ string, screenshot bool) (*browser.RenderResult, error) {
			assert.False(t, screenshot)
			return &browser.RenderResult{Text: "text"}, nil
		},
	}

	res, err := newTestAcquirer(t, renderer, nil).Acquire(context.Background(), Request{
		SubjectID:     uuid.New(),
		URL:           "https://widget.example",
		HasScreenshot: true,
	})
	require.NoError(t, err)
	assert.Nil(t, res.Screenshot)
}

func TestAcquireRenderFailureFallsBackWhenScreenshotExists(t *testing.T) {
	renderer := &fakeRenderer{
		renderFunc: func(context.Context, string, bool) (*browser.RenderResult, error) {
			return nil, browser.ErrNavigationFailed
		},
	}
	rt := &routeTripper{routes: map[string]*http.Response{
		"widget.example": cannedResponse(http.StatusOK, `<html><body>static fallback text</body></html>`),
	}}

	res, err := newTestAcquirer(t, renderer, rt).Acquire(context.Background(), Request{
		SubjectID:     uuid.New(),
		URL:           "https://widget.example/",
		HasScreenshot: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "static fallback text", res.PageText)
}

func TestAcquireRenderFailureWithoutScreenshotErrors(t *testing.T) {
	renderer := &fakeRenderer{
		renderFunc: func(context.Context, string, bool) (*browser.RenderResult, error) {
			return nil, browser.ErrNavigationFailed
		},
	}

	_, err := newTestAcquirer(t, renderer, nil).Acquire(context.Background(), Request{
		SubjectID: uuid.New(),
		URL:       "https://widget.example",
	})
	assert.ErrorIs(t, err, browser.ErrNavigationFailed)
}

func TestAcquireEmptyURLUsesTitlePlaceholder(t *testing.T) {
	t.Run("no author text", func(t *testing.T) {
		res, err := newTestAcquirer(t, &fakeRenderer{}, nil).Acquire(context.Background(), Request{
			SubjectID: uuid.New(),
			Title:     "Show HN: my thing",
		})
		require.NoError(t, err)
		assert.Equal(t, "Show HN: my thing", res.PageText)
	})

	t.Run("author text present", func(t *testing.T) {
		res, err := newTestAcquirer(t, &fakeRenderer{}, nil).Acquire(context.Background(), Request{
			SubjectID:  uuid.New(),
			Title:      "Show HN: my thing",
			AuthorText: "I built this over a weekend.",
		})
		require.NoError(t, err)
		assert.Empty(t, res.PageText, "author text already gives the judge something")
	})
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", truncateRunes("abc", 10))
	assert.Equal(t, "ab", truncateRunes("abcd", 2))
	assert.Equal(t, "hél", truncateRunes("héllo", 3), "must cut on rune boundaries")
	assert.Equal(t, "abcd", truncateRunes("abcd", 0), "zero means no cap")
}

func TestAcquireTruncatesToContentBudget(t *testing.T) {
	renderer := &fakeRenderer{
		renderFunc: func(context.Context, string, bool) (*browser.RenderResult, error) {
			return &browser.RenderResult{Text: strings.Repeat("x", 100)}, nil
		},
	}
	a := newTestAcquirer(t, renderer, nil)
	a.maxChars = 10

	res, err := a.Acquire(context.Background(), Request{
		SubjectID:     uuid.New(),
		URL:           "https://widget.example",
		HasScreenshot: true,
	})
	require.NoError(t, err)
	assert.Len(t, res.PageText, 10)
}
