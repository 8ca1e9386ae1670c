package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github-stars-manager/internal/domain"

	"github.com/google/go-github/v53/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupMockGitHubServer 创建一个模拟的 GitHub API 服务器
func setupMockGitHubServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Fetcher) {
	server := httptest.NewServer(handler)

	client := github.NewClient(nil)
	baseURL, _ := url.Parse(server.URL + "/")
	client.BaseURL = baseURL

	// 测试里不需要翻页限速
	fetcher := &Fetcher{client: client, pageDelay: 0}
	return server, fetcher
}

// mockStarredItem 构造 star+json 媒体类型的响应条目
func mockStarredItem(fullName, starredAt string, topics ...string) map[string]any {
	return map[string]any{
		"starred_at": starredAt,
		"repo": map[string]any{
			"full_name":   fullName,
			"html_url":    "https://github.com/" + fullName,
			"description": "Description of " + fullName,
			"topics":      topics,
		},
	}
}

func writeStarredPage(t *testing.T, w http.ResponseWriter, items []map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(items))
}

func TestFetcher_FetchUnprocessed(t *testing.T) {
	tests := []struct {
		name      string
		need      int
		processed map[string]struct{}
		pages     map[int][]map[string]any
		verify    func(*testing.T, []*domain.StarredRepo)
	}{
		{
			name: "单页凑满批次",
			need: 2,
			pages: map[int][]map[string]any{
				1: {
					mockStarredItem("a/first", "2024-01-01T00:00:00Z", "web"),
					mockStarredItem("b/second", "2024-01-02T00:00:00Z"),
					mockStarredItem("c/third", "2024-01-03T00:00:00Z"),
				},
			},
			verify: func(t *testing.T, repos []*domain.StarredRepo) {
				assert.Len(t, repos, 2)
				assert.Equal(t, "a/first", repos[0].FullName)
				assert.Equal(t, "a", repos[0].Owner)
				assert.Equal(t, []string{"web"}, repos[0].Topics)
				assert.Equal(t, "b/second", repos[1].FullName)
			},
		},
		{
			name: "跳过已处理的唯一键",
			need: 2,
			processed: map[string]struct{}{
				"a/first|2024-01-01T00:00:00Z": {},
			},
			pages: map[int][]map[string]any{
				1: {
					mockStarredItem("a/first", "2024-01-01T00:00:00Z"),
					mockStarredItem("b/second", "2024-01-02T00:00:00Z"),
					mockStarredItem("c/third", "2024-01-03T00:00:00Z"),
				},
			},
			verify: func(t *testing.T, repos []*domain.StarredRepo) {
				assert.Len(t, repos, 2)
				assert.Equal(t, "b/second", repos[0].FullName)
				assert.Equal(t, "c/third", repos[1].FullName)
			},
		},
		{
			name: "同名仓库不同加星时间是不同记录",
			need: 5,
			processed: map[string]struct{}{
				"a/first|2024-01-01T00:00:00Z": {},
			},
			pages: map[int][]map[string]any{
				1: {
					mockStarredItem("a/first", "2024-01-01T00:00:00Z"),
					mockStarredItem("a/first", "2024-06-01T00:00:00Z"),
				},
			},
			verify: func(t *testing.T, repos []*domain.StarredRepo) {
				assert.Len(t, repos, 1)
				assert.Equal(t, "a/first", repos[0].FullName)
				assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), repos[0].StarredAt.UTC())
			},
		},
		{
			name: "跨页收集直到凑满",
			need: 3,
			pages: map[int][]map[string]any{
				1: {
					mockStarredItem("a/first", "2024-01-01T00:00:00Z"),
					mockStarredItem("b/second", "2024-01-02T00:00:00Z"),
				},
				2: {
					mockStarredItem("c/third", "2024-01-03T00:00:00Z"),
					mockStarredItem("d/fourth", "2024-01-04T00:00:00Z"),
				},
			},
			verify: func(t *testing.T, repos []*domain.StarredRepo) {
				assert.Len(t, repos, 3)
				assert.Equal(t, "c/third", repos[2].FullName)
			},
		},
		{
			name: "列表到底时提前返回不算错误",
			need: 10,
			pages: map[int][]map[string]any{
				1: {
					mockStarredItem("a/first", "2024-01-01T00:00:00Z"),
				},
			},
			verify: func(t *testing.T, repos []*domain.StarredRepo) {
				assert.Len(t, repos, 1)
			},
		},
		{
			name: "缺少标识或时间戳的记录被丢弃",
			need: 10,
			pages: map[int][]map[string]any{
				1: {
					{"starred_at": "2024-01-01T00:00:00Z", "repo": map[string]any{"full_name": ""}},
					{"repo": map[string]any{"full_name": "b/no-starred-at"}},
					mockStarredItem("c/valid", "2024-01-03T00:00:00Z"),
				},
			},
			verify: func(t *testing.T, repos []*domain.StarredRepo) {
				assert.Len(t, repos, 1)
				assert.Equal(t, "c/valid", repos[0].FullName)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, fetcher := setupMockGitHubServer(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/user/starred", r.URL.Path)
				// 必须按加星事件创建时间升序分页
				assert.Equal(t, "created", r.URL.Query().Get("sort"))
				assert.Equal(t, "asc", r.URL.Query().Get("direction"))

				page, _ := strconv.Atoi(r.URL.Query().Get("page"))
				writeStarredPage(t, w, tt.pages[page])
			})
			defer server.Close()

			repos, err := fetcher.FetchUnprocessed(context.Background(), 1, 100, tt.need, tt.processed)
			assert.NoError(t, err)
			tt.verify(t, repos)

			// 边界：返回数量永远不超过 need，也不含已处理的键
			assert.LessOrEqual(t, len(repos), tt.need)
			for _, repo := range repos {
				_, seen := tt.processed[repo.UniqueKey()]
				assert.False(t, seen, "不应返回已处理的记录: %s", repo.UniqueKey())
			}
		})
	}
}

func TestFetcher_FetchUnprocessed_OrderMonotonic(t *testing.T) {
	server, fetcher := setupMockGitHubServer(t, func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		pages := map[int][]map[string]any{
			1: {
				mockStarredItem("a/first", "2024-01-01T00:00:00Z"),
				mockStarredItem("b/second", "2024-01-02T00:00:00Z"),
			},
			2: {
				mockStarredItem("c/third", "2024-01-03T00:00:00Z"),
			},
		}
		writeStarredPage(t, w, pages[page])
	})
	defer server.Close()

	repos, err := fetcher.FetchUnprocessed(context.Background(), 1, 2, 3, nil)
	require.NoError(t, err)
	require.Len(t, repos, 3)

	// 这一层不排序，但输出必须保持分页给出的单调不减顺序
	for i := 1; i < len(repos); i++ {
		assert.False(t, repos[i].StarredAt.Before(repos[i-1].StarredAt))
	}
}

func TestFetcher_FetchUnprocessed_APIError(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
	}{
		{"GitHub API 返回 403 Forbidden", http.StatusForbidden},
		{"GitHub API 返回 401 未认证", http.StatusUnauthorized},
		{"GitHub API 返回 500 内部错误", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, fetcher := setupMockGitHubServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				fmt.Fprint(w, `{"message": "error"}`)
			})
			defer server.Close()

			// 任何非成功响应都是致命的：整次拉取中止，不做重试
			repos, err := fetcher.FetchUnprocessed(context.Background(), 1, 100, 5, nil)
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "GitHub API 调用失败")
			assert.Nil(t, repos)
		})
	}
}

func TestFetcher_FetchUnprocessed_NeedZero(t *testing.T) {
	server, fetcher := setupMockGitHubServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("need<=0 时不应发起任何请求")
	})
	defer server.Close()

	repos, err := fetcher.FetchUnprocessed(context.Background(), 1, 100, 0, nil)
	assert.NoError(t, err)
	assert.Empty(t, repos)
}

func TestFetcher_FetchUnprocessed_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // 立即取消

	server, fetcher := setupMockGitHubServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach here due to context cancellation")
	})
	defer server.Close()

	repos, err := fetcher.FetchUnprocessed(ctx, 1, 100, 5, nil)
	assert.Error(t, err)
	assert.Nil(t, repos)
}

func TestNewFetcher(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"使用令牌创建", "ghp_test_token_1234567890"},
		{"无令牌创建", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := NewFetcher(tt.token)
			assert.NotNil(t, fetcher)
			assert.NotNil(t, fetcher.client)
			assert.Equal(t, defaultPageDelay, fetcher.pageDelay)
		})
	}
}
