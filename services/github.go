package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"
	"github.com/google/go-github/v71/github"
	"github.com/gregjones/httpcache"
)

var pullRequestURLPattern = regexp.MustCompile(`^https://github\.com/([^/]+)/([^/]+)/pull/(\d+)`)

// PullRequestTitles はPRのURLからタイトルを引く
type PullRequestTitles interface {
	PullRequestTitle(ctx context.Context, prURL string) (string, error)
}

// GitHubClient は go-github で PullRequestTitles を実装する
type GitHubClient struct {
	gh *github.Client
}

// NewGitHubClient はキャッシュとレート制限付きのGitHubクライアントを作る
// token が空の場合は認証なし（公開リポジトリのみ）
func NewGitHubClient(token string) *GitHubClient {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	client := github.NewClient(github_ratelimit.NewClient(cacheTransport))
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return &GitHubClient{gh: client}
}

// NewGitHubClientWithBaseURL はテスト用にAPIの向き先を差し替える
func NewGitHubClientWithBaseURL(httpClient *http.Client, baseURL string) (*GitHubClient, error) {
	client := github.NewClient(httpClient)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return &GitHubClient{gh: client}, nil
}

// ParseRepoAndPRNumber はPRのURLからオーナー、リポジトリ名、PR番号を取り出す
func ParseRepoAndPRNumber(prURL string) (owner string, repo string, prNumber int, err error) {
	matches := pullRequestURLPattern.FindStringSubmatch(prURL)
	if len(matches) != 4 {
		return "", "", 0, fmt.Errorf("invalid PR URL format: %s", prURL)
	}

	prNumber, err = strconv.Atoi(matches[3])
	if err != nil {
		return "", "", 0, fmt.Errorf("failed to parse PR number: %w", err)
	}

	return matches[1], matches[2], prNumber, nil
}

func (c *GitHubClient) PullRequestTitle(ctx context.Context, prURL string) (string, error) {
	owner, repo, number, err := ParseRepoAndPRNumber(prURL)
	if err != nil {
		return "", err
	}

	pr, _, err := c.gh.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return "", fmt.Errorf("get pull request %s/%s#%d: %w", owner, repo, number, err)
	}

	return pr.GetTitle(), nil
}
