// Package github looks up repository popularity through the GitHub search API.
package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/git-pkgs/pkggate/internal/core"
)

const (
	DefaultURL = "https://api.github.com"
	sourceName = "github"

	// Packages are matched against JavaScript repositories only.
	searchLanguage = "javascript"
)

func init() {
	core.RegisterRepoSource(sourceName, DefaultURL, func(baseURL string, client *core.Client) core.RepoSource {
		return New(baseURL, client)
	})
}

// Source searches GitHub repositories. The top hit sorted by stars is taken
// as the repository of the package, which is a heuristic: a popular
// unrelated repository or a fork with the same name can win the match.
type Source struct {
	baseURL string
	client  *core.Client
}

func New(baseURL string, client *core.Client) *Source {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Source{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
	}
}

func (s *Source) Name() string {
	return sourceName
}

type searchResponse struct {
	TotalCount int          `json:"total_count"`
	Items      []repository `json:"items"`
}

type repository struct {
	FullName        string `json:"full_name"`
	StargazersCount int    `json:"stargazers_count"`
	UpdatedAt       string `json:"updated_at"`
}

// SearchURL returns the repository search URL for a package name.
func (s *Source) SearchURL(name string) string {
	q := url.Values{}
	q.Set("q", name+" language:"+searchLanguage)
	q.Set("sort", "stars")
	return fmt.Sprintf("%s/search/repositories?%s", s.baseURL, q.Encode())
}

func (s *Source) FetchRepoStats(ctx context.Context, name string) (*core.RepoStats, error) {
	header := http.Header{}
	header.Set("Accept", "application/vnd.github.v3+json")

	var resp searchResponse
	if err := s.client.GetJSONWithHeaders(ctx, s.SearchURL(name), header, &resp); err != nil {
		return nil, fmt.Errorf("%s: searching %s: %w", sourceName, name, err)
	}

	if len(resp.Items) == 0 {
		return nil, &core.NotFoundError{Source: sourceName, Name: name, Reason: "no matching repositories"}
	}

	top := resp.Items[0]
	// Stars are still usable when updated_at is missing or malformed.
	updatedAt := core.Epoch
	if t, err := time.Parse(time.RFC3339, top.UpdatedAt); err == nil {
		updatedAt = t.UTC()
	}

	return &core.RepoStats{
		Stars:     top.StargazersCount,
		UpdatedAt: updatedAt,
		FullName:  top.FullName,
	}, nil
}

// TokenAuth returns a client auth function that sends token as a bearer
// credential to requests under apiURL only.
func TokenAuth(apiURL, token string) func(string) (string, string) {
	if apiURL == "" {
		apiURL = DefaultURL
	}
	prefix := strings.TrimSuffix(apiURL, "/") + "/"
	return func(rawURL string) (string, string) {
		if token == "" || !strings.HasPrefix(rawURL, prefix) {
			return "", ""
		}
		return "Authorization", "Bearer " + token
	}
}
