package acquire

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// RepoRef identifies a GitHub repository.
type RepoRef struct {
	Owner string
	Name  string
}

// repoMetadata is the slice of the GitHub repos API response we keep.
type repoMetadata struct {
	Stars       int    `json:"stargazers_count"`
	Forks       int    `json:"forks_count"`
	Language    string `json:"language"`
	Description string `json:"description"`
}

// ParseRepoLink reports whether rawURL points at a GitHub repository
// and, if so, which one. Deep links below the repository root (releases,
// issues, blob paths) still resolve to the repository.
func ParseRepoLink(rawURL string) (RepoRef, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return RepoRef{}, false
	}
	host := strings.ToLower(u.Hostname())
	if host != "github.com" && host != "www.github.com" {
		return RepoRef{}, false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return RepoRef{}, false
	}
	// Top-level GitHub pages that look like owner/repo but are not.
	switch parts[0] {
	case "orgs", "sponsors", "topics", "collections", "features",
		"marketplace", "settings", "about", "search", "login":
		return RepoRef{}, false
	}
	return RepoRef{
		Owner: parts[0],
		Name:  strings.TrimSuffix(parts[1], ".git"),
	}, true
}

// fetchRepoMetadata reads stars, forks, language and description from
// the GitHub repos API. A token raises the unauthenticated rate limit
// but is not required.
func (a *Acquirer) fetchRepoMetadata(ctx context.Context, ref RepoRef) (*repoMetadata, error) {
	endpoint := fmt.Sprintf("https://api.github.com/repos/%s/%s", ref.Owner, ref.Name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building metadata request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", userAgent)
	if a.githubToken != "" {
		req.Header.Set("Authorization", "Bearer "+a.githubToken)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: repos API returned %d for %s/%s",
			ErrFetchFailed, resp.StatusCode, ref.Owner, ref.Name)
	}

	var meta repoMetadata
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxFetchBytes)).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decoding repos API response: %w", err)
	}
	return &meta, nil
}

// fetchReadme pulls the raw README, trying the main branch first and
// falling back to master.
func (a *Acquirer) fetchReadme(ctx context.Context, ref RepoRef) (string, error) {
	var lastErr error
	for _, branch := range []string{"main", "master"} {
		endpoint := fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/%s/README.md",
			ref.Owner, ref.Name, branch)
		text, err := a.fetchPlainText(ctx, endpoint)
		if err == nil {
			return text, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("fetching README for %s/%s: %w", ref.Owner, ref.Name, lastErr)
}

// fetchPlainText GETs a URL and returns its body as a string, capped at
// maxFetchBytes.
func (a *Acquirer) fetchPlainText(ctx context.Context, rawURL string) (string, error) {
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

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", fmt.Errorf("reading body of %s: %w", rawURL, err)
	}
	return string(body), nil
}
