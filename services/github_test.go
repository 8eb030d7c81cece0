package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRepoAndPRNumber(t *testing.T) {
	owner, repo, number, err := ParseRepoAndPRNumber("https://github.com/owner/repo/pull/42")
	require.NoError(t, err)
	assert.Equal(t, "owner", owner)
	assert.Equal(t, "repo", repo)
	assert.Equal(t, 42, number)

	owner, _, number, err = ParseRepoAndPRNumber("https://github.com/owner/repo/pull/7/files")
	require.NoError(t, err)
	assert.Equal(t, "owner", owner)
	assert.Equal(t, 7, number)

	for _, invalid := range []string{
		"https://gitlab.com/owner/repo/-/merge_requests/1",
		"https://github.com/owner/repo/issues/1",
		"not a url",
	} {
		_, _, _, err := ParseRepoAndPRNumber(invalid)
		assert.Error(t, err, invalid)
	}
}

func TestPullRequestTitle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/owner/repo/pulls/42" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"number": 42, "title": "Add review reminders"}`))
	}))
	defer server.Close()

	client, err := NewGitHubClientWithBaseURL(server.Client(), server.URL+"/")
	require.NoError(t, err)

	title, err := client.PullRequestTitle(context.Background(), "https://github.com/owner/repo/pull/42")
	require.NoError(t, err)
	assert.Equal(t, "Add review reminders", title)

	_, err = client.PullRequestTitle(context.Background(), "https://github.com/owner/repo/pull/43")
	assert.Error(t, err)

	_, err = client.PullRequestTitle(context.Background(), "https://example.com/pr/1")
	assert.Error(t, err)
}

func TestNewGitHubClient(t *testing.T) {
	assert.NotNil(t, NewGitHubClient(""))
	assert.NotNil(t, NewGitHubClient("ghp_test"))
}
