package port

import (
	"context"

	"github-stars-manager/internal/domain"
)

// Fetcher (侦察兵): 按加星时间升序分页拉取尚未处理的加星事件
// 返回数量不超过 need；数据源翻到末尾时提前返回（不算错误）
type Fetcher interface {
	FetchUnprocessed(ctx context.Context, pageStart, perPage, need int, processed map[string]struct{}) ([]*domain.StarredRepo, error)
}

// Analyzer (鉴定师): 调用 LLM 为单个仓库生成分类、标签与摘要
// 调用或解析失败返回 error，由调用方决定降级策略（单条失败不应中断批次）
type Analyzer interface {
	Analyze(ctx context.Context, repo *domain.StarredRepo) (*domain.Analysis, error)
}

// Store (仓库管理员): 合并存储，负责载入、按键去重合并与全量重写
type Store interface {
	// Load 读取已持久化的合并结果；文件不存在视为空库
	// 读取/解析失败时返回空映射和错误，由调用方决定降级还是中止
	Load() (map[string]*domain.AnalyzedRepo, error)

	// MergeUpsert 按唯一键无条件覆盖合并；items 内部重复时后者胜出
	MergeUpsert(existing map[string]*domain.AnalyzedRepo, items []*domain.AnalyzedRepo) map[string]*domain.AnalyzedRepo

	// Persist 按加星时间升序排序后全量重写 JSON/CSV/Markdown 三种格式
	Persist(items map[string]*domain.AnalyzedRepo) (domain.ReportPaths, error)

	// HasMerged 判断合并文件是否已经存在
	HasMerged() bool
}

// Mirror: 可选的数据库镜像，JSON 文件始终是事实来源
type Mirror interface {
	Save(ctx context.Context, repo *domain.AnalyzedRepo) error
}

// Notifier (信使): 批次完成后推送汇总消息
type Notifier interface {
	Notify(ctx context.Context, report *domain.BatchReport) error
}
