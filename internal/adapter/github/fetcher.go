package github

import (
	"context"
	"time"

	"github-stars-manager/internal/common"
	"github-stars-manager/internal/domain"

	"github.com/google/go-github/v53/github"
	"golang.org/x/oauth2"
)

// 翻页间隔，限制对 GitHub API 的请求速率
const defaultPageDelay = 300 * time.Millisecond

// Fetcher 实现了 port.Fetcher 接口
type Fetcher struct {
	client    *github.Client
	pageDelay time.Duration
}

// NewFetcher 初始化 GitHub 客户端
// token: GitHub Personal Access Token (空字符串时为匿名访问，限制 60次/小时)
func NewFetcher(token string) *Fetcher {
	var client *github.Client

	if token == "" {
		client = github.NewClient(nil)
	} else {
		ctx := context.Background()
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		tc := oauth2.NewClient(ctx, ts)
		client = github.NewClient(tc)
	}

	return &Fetcher{client: client, pageDelay: defaultPageDelay}
}

// FetchUnprocessed 按加星时间升序分页拉取当前用户的加星事件，
// 跳过 processed 中已有唯一键的记录，凑满 need 条或翻到末尾为止。
// 任何非成功响应都会中止整次拉取并返回错误（不重试，由调用方决定是否重跑）。
// 输出顺序与分页顺序一致，即按加星时间单调不减，这一层不做排序。
func (f *Fetcher) FetchUnprocessed(ctx context.Context, pageStart, perPage, need int, processed map[string]struct{}) ([]*domain.StarredRepo, error) {
	if need <= 0 {
		return nil, nil
	}

	var results []*domain.StarredRepo
	page := pageStart

	for len(results) < need {
		opts := &github.ActivityListStarredOptions{
			Sort:      "created", // 排序依据是加星事件的创建时间
			Direction: "asc",
			ListOptions: github.ListOptions{
				Page:    page,
				PerPage: perPage,
			},
		}

		// ListStarred 使用 star+json 媒体类型，响应中才带 starred_at 字段
		starred, _, err := f.client.Activity.ListStarred(ctx, "", opts)
		if err != nil {
			return nil, common.WrapError(common.ErrCodeGitHubAPI, "GitHub API 调用失败", err)
		}
		if len(starred) == 0 {
			break // 已翻到列表末尾
		}

		for _, item := range starred {
			repo := item.GetRepository()
			fullName := repo.GetFullName()
			starredAt := item.GetStarredAt().Time
			if fullName == "" || starredAt.IsZero() {
				continue // 缺少标识或时间戳的记录不进入流水线
			}

			key := domain.UniqueKey(fullName, starredAt)
			if _, ok := processed[key]; ok {
				continue
			}

			results = append(results, &domain.StarredRepo{
				FullName:    fullName,
				Owner:       domain.OwnerOf(fullName),
				URL:         repo.GetHTMLURL(),
				Description: repo.GetDescription(),
				Topics:      repo.Topics,
				StarredAt:   starredAt,
			})
			if len(results) >= need {
				break
			}
		}

		page++
		time.Sleep(f.pageDelay)
	}

	return results, nil
}
