package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github-stars-manager/internal/category"
	"github-stars-manager/internal/common"
	"github-stars-manager/internal/domain"
	"github-stars-manager/internal/port"
)

// 单个仓库的模型分析超时
const analyzeTimeout = 60 * time.Second

// Options 控制一个批次的行为
type Options struct {
	BatchSize       int           // 本次最多处理多少条
	PageStart       int           // GitHub 分页起始页码
	PerPage         int           // GitHub API 每页大小
	Sleep           time.Duration // 每条分析之间的间隔，用于限速
	DefaultCategory string        // 规范化兜底分类，必须属于允许集合
}

// StarsService 串起一个批次的完整流程：
// 载入合并文件 -> 拉取未处理的加星事件 -> 逐条分析并规范化 -> 合并写回三种格式
type StarsService struct {
	fetcher  port.Fetcher
	analyzer port.Analyzer // 为 nil 时表示未配置 API_KEY，整批走回退记录
	store    port.Store
	mirror   port.Mirror   // 可选
	notifier port.Notifier // 可选
	resolver *category.Resolver
	opts     Options
	nowFunc  func() time.Time
}

// NewStarsService 创建批处理服务；mirror 与 notifier 允许为 nil
func NewStarsService(
	fetcher port.Fetcher,
	analyzer port.Analyzer,
	store port.Store,
	mirror port.Mirror,
	notifier port.Notifier,
	resolver *category.Resolver,
	opts Options,
) *StarsService {
	return &StarsService{
		fetcher:  fetcher,
		analyzer: analyzer,
		store:    store,
		mirror:   mirror,
		notifier: notifier,
		resolver: resolver,
		opts:     opts,
		nowFunc:  time.Now, // 便于测试注入当前时间
	}
}

// ExecuteBatch 执行一个批次。整个流程单线程顺序执行：
// - 拉取失败是致命的，直接返回错误，本次不做任何合并
// - 单条分析失败只降级为回退记录，批次继续
// - 持久化只在整批分析完成后发生一次
func (s *StarsService) ExecuteBatch(ctx context.Context) error {
	fmt.Println("🚀 [批处理] 开始增量分析加星仓库...")

	// 1. 载入历史合并结果，构建已处理集合
	existing, err := s.store.Load()
	if err != nil {
		// 合并文件损坏时按空库降级继续，风险是重新分析历史批次
		log.Printf("⚠️ 读取历史合并结果失败，按空库继续: %v", err)
	}
	processed := make(map[string]struct{}, len(existing))
	for key := range existing {
		processed[key] = struct{}{}
	}
	fmt.Printf("📚 已处理 %d 条历史记录\n", len(processed))

	// 2. 拉取本批待处理的加星事件
	fmt.Println("📥 正在拉取 GitHub 加星列表...")
	batch, err := s.fetcher.FetchUnprocessed(ctx, s.opts.PageStart, s.opts.PerPage, s.opts.BatchSize, processed)
	if err != nil {
		return common.WrapError(common.ErrCodeGitHubAPI, "拉取加星列表失败", err)
	}

	if len(batch) == 0 {
		fmt.Println("📭 没有可处理的新项目，或者已到列表末尾。")
		// 首次运行且一无所获时也写出一份空报告，保证三个文件齐全
		if !s.store.HasMerged() {
			if _, err := s.store.Persist(existing); err != nil {
				return err
			}
		}
		return nil
	}
	fmt.Printf("✅ 本批待分析 %d 个项目\n", len(batch))

	// 3. 逐条分析并规范化分类
	analyzedAt := s.nowFunc().UTC()
	rows := make([]*domain.AnalyzedRepo, 0, len(batch))
	for i, repo := range batch {
		fmt.Printf("   [%d/%d] 正在分析 %s...\n", i+1, len(batch), repo.FullName)

		analysis := s.analyzeOne(ctx, repo)
		// 分类永远规范化到允许集合，模型原话从不直接入库
		cat := s.resolver.Normalize(analysis.Category, repo)

		rows = append(rows, domain.NewAnalyzedRepo(repo, cat, analysis.Tags, analysis.Summary, analyzedAt))

		// 避免触发模型接口限速
		time.Sleep(s.opts.Sleep)
	}

	// 4. 合并并全量写回三种格式
	fmt.Println("💾 合并并写出结果...")
	merged := s.store.MergeUpsert(existing, rows)
	paths, err := s.store.Persist(merged)
	if err != nil {
		return err
	}

	// 5. 可选的 Postgres 镜像，失败只记日志
	if s.mirror != nil {
		for _, row := range rows {
			if err := s.mirror.Save(ctx, row); err != nil {
				log.Printf("⚠️ 镜像写入 %s 失败: %v", row.FullName, err)
			}
		}
	}

	// 6. 可选的批次汇总推送，失败只记日志
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, buildReport(rows, paths)); err != nil {
			log.Printf("⚠️ 推送批次汇总失败: %v", err)
		}
	}

	fmt.Printf("🎉 批次完成：%d 项。已更新合并文件：%s\n", len(rows), paths.JSON)
	return nil
}

// analyzeOne 取得单条分析结果。分析失败从不让批次中断：
// 未配置模型或调用失败都降级为回退记录，错误说明写进摘要。
// 回退记录同样会入库，同一条失败项目之后不会再被重试。
func (s *StarsService) analyzeOne(ctx context.Context, repo *domain.StarredRepo) *domain.Analysis {
	if s.analyzer == nil {
		return &domain.Analysis{
			Category: "Uncategorized",
			Summary:  "API_KEY 未设置，跳过分析。",
		}
	}

	itemCtx, cancel := context.WithTimeout(ctx, analyzeTimeout)
	defer cancel()

	analysis, err := s.analyzer.Analyze(itemCtx, repo)
	if err != nil {
		log.Printf("   ❌ %s 分析失败: %v", repo.FullName, err)
		return &domain.Analysis{
			Category: "Uncategorized",
			Summary:  fmt.Sprintf("模型调用异常: %v", err),
		}
	}
	return analysis
}

func buildReport(rows []*domain.AnalyzedRepo, paths domain.ReportPaths) *domain.BatchReport {
	byCategory := make(map[string]int)
	for _, row := range rows {
		byCategory[row.Category]++
	}
	return &domain.BatchReport{
		Count:      len(rows),
		ByCategory: byCategory,
		Paths:      paths,
	}
}
