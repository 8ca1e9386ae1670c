package domain

import (
	"fmt"
	"strings"
	"time"
)

// StarredRepo 代表一次加星事件（同一个仓库取消再加星会产生两条记录）
type StarredRepo struct {
	FullName    string    `json:"repo_full_name"` // 例如 "gohugoio/hugo"
	Owner       string    `json:"owner"`          // 由 FullName 派生
	URL         string    `json:"html_url"`
	Description string    `json:"description"`
	Topics      []string  `json:"topics" gorm:"serializer:json"`
	StarredAt   time.Time `json:"starred_at"` // 加星事件的创建时间，不是仓库更新时间
}

// AnalyzedRepo 是补充了 AI 分析结果的加星记录
type AnalyzedRepo struct {
	// 唯一键，仅用于 Postgres 镜像，不写入 JSON 输出
	ID string `json:"-" gorm:"primaryKey"`

	StarredRepo `gorm:"embedded"`

	// --- AI 分析维度 ---

	// 分类：规范化之后一定属于允许的分类集合
	Category string `json:"category"`

	// 标签：0..N 个，不强制数量
	Tags []string `json:"tags" gorm:"serializer:json"`

	// AI 简评：一句话中文摘要（回退时用于携带错误说明）
	Summary string `json:"summary"`

	// 分析时间，区别于加星时间
	AnalyzedAt time.Time `json:"analyzed_at"`
}

// Analysis 是模型单次调用的原始输出（分类尚未规范化）
type Analysis struct {
	Category string
	Tags     []string
	Summary  string
}

// ReportPaths 记录一次合并写出的三个报告文件路径
type ReportPaths struct {
	JSON     string
	CSV      string
	Markdown string
}

// BatchReport 汇总一个批次的处理结果，用于推送通知
type BatchReport struct {
	Count      int
	ByCategory map[string]int
	Paths      ReportPaths
}

// UniqueKey 生成合并去重用的唯一键："repo_full_name|starred_at"
// 两条 FullName 相同但 StarredAt 不同的记录是不同的加星事件
func UniqueKey(fullName string, starredAt time.Time) string {
	return fmt.Sprintf("%s|%s", fullName, starredAt.UTC().Format(time.RFC3339))
}

// UniqueKey 见包级 UniqueKey
func (r *StarredRepo) UniqueKey() string {
	return UniqueKey(r.FullName, r.StarredAt)
}

// Valid 判断记录是否可进入流水线：FullName 与 StarredAt 缺一不可
func (r *StarredRepo) Valid() bool {
	return r.FullName != "" && !r.StarredAt.IsZero()
}

// OwnerOf 从 "owner/name" 中取出 owner，不含 "/" 时返回空串
func OwnerOf(fullName string) string {
	if i := strings.Index(fullName, "/"); i >= 0 {
		return fullName[:i]
	}
	return ""
}

// NewAnalyzedRepo 由加星记录和分析结果显式构造完整记录
// category 必须是调用方已经规范化过的分类
func NewAnalyzedRepo(repo *StarredRepo, category string, tags []string, summary string, analyzedAt time.Time) *AnalyzedRepo {
	return &AnalyzedRepo{
		ID:          repo.UniqueKey(),
		StarredRepo: *repo,
		Category:    category,
		Tags:        tags,
		Summary:     summary,
		AnalyzedAt:  analyzedAt,
	}
}
