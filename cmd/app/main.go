package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github-stars-manager/internal/adapter/feishu"
	"github-stars-manager/internal/adapter/gemini"
	"github-stars-manager/internal/adapter/github"
	"github-stars-manager/internal/adapter/repository"
	"github-stars-manager/internal/adapter/store"
	"github-stars-manager/internal/adapter/zhipu"
	"github-stars-manager/internal/category"
	"github-stars-manager/internal/port"
	"github-stars-manager/internal/service"

	"github.com/joho/godotenv"
)

func main() {
	// 1. 先加载 .env（不覆盖已有环境变量），flag 默认值会用到
	_ = godotenv.Load()

	// 2. 定义命令行参数
	batchSize := flag.Int("batch-size", 10, "每次处理的项目数量")
	outputDir := flag.String("output-dir", "outputs", "输出目录")
	model := flag.String("model", envOr("MODEL", "glm-4"), "模型名称")
	perPage := flag.Int("per-page", 100, "GitHub API 每页大小")
	pageStart := flag.Int("page-start", 1, "GitHub 分页起始页码")
	sleep := flag.Duration("sleep", 600*time.Millisecond, "每次分析间隔")
	baseURL := flag.String("base-url", "", "ZHIPU/OpenAI 风格 API 基础地址，优先于环境变量")
	categoriesFile := flag.String("categories-file", os.Getenv("CATEGORIES_FILE"), "分类列表文件（JSON数组），可覆盖默认分类")
	rulesFile := flag.String("category-rules-file", os.Getenv("CATEGORY_RULES_FILE"), "分类关键词规则文件（JSON对象），用于本地映射")
	defaultCategory := flag.String("default-category", envOr("DEFAULT_CATEGORY", "开发工具"), "无法匹配时的默认分类")
	provider := flag.String("provider", "zhipu", "分析后端: zhipu 或 gemini")
	dsn := flag.String("dsn", os.Getenv("DATABASE_DSN"), "可选的 Postgres 镜像 DSN")
	flag.Parse()

	// 3. 校验必需凭据：没有 GH_TOKEN 什么都做不了
	ghToken := os.Getenv("GH_TOKEN")
	if ghToken == "" {
		fmt.Fprintln(os.Stderr, "错误：未设置 GH_TOKEN。请在 .env 或环境变量中配置。")
		os.Exit(1)
	}

	// 4. 加载分类配置
	allowed := category.LoadAllowed(*categoriesFile)
	rules := category.LoadRules(*rulesFile)
	if !contains(allowed, *defaultCategory) {
		log.Printf("⚠️ 默认分类 %q 不在允许集合中，规范化兜底会产生越界分类", *defaultCategory)
	}
	resolver := &category.Resolver{
		Allowed: allowed,
		Rules:   rules,
		Default: *defaultCategory,
	}

	// 5. 初始化分析后端；没有密钥时保持 nil，整批走规则回退
	ctx := context.Background()
	analyzer := buildAnalyzer(ctx, *provider, *baseURL, *model, allowed)
	// Gemini 后端持有底层连接，退出前释放
	if closer, ok := analyzer.(io.Closer); ok {
		defer closer.Close()
	}

	// 6. 可选的 Postgres 镜像
	var mirror port.Mirror
	if *dsn != "" {
		pg, err := repository.NewPostgresRepo(*dsn)
		if err != nil {
			log.Printf("⚠️ Postgres 镜像初始化失败，本次不启用镜像: %v", err)
		} else {
			mirror = pg
		}
	}

	// 7. 可选的飞书推送
	var notifier port.Notifier
	if webhook := os.Getenv("FEISHU_WEBHOOK"); webhook != "" {
		notifier = feishu.NewNotifier(webhook)
	}

	// 8. 组装并执行批次
	svc := service.NewStarsService(
		github.NewFetcher(ghToken),
		analyzer,
		store.NewFileStore(*outputDir),
		mirror,
		notifier,
		resolver,
		service.Options{
			BatchSize:       *batchSize,
			PageStart:       *pageStart,
			PerPage:         *perPage,
			Sleep:           *sleep,
			DefaultCategory: *defaultCategory,
		},
	)

	if err := svc.ExecuteBatch(ctx); err != nil {
		log.Fatalf("❌ 批次执行失败: %v", err)
	}
}

// buildAnalyzer 按 provider 选择分析后端，ZHIPU 的接口地址按
// 命令行 > BASE_URL 环境变量 > 内置默认 的优先级解析一次后注入
func buildAnalyzer(ctx context.Context, provider, baseURL, model string, allowed []string) port.Analyzer {
	switch provider {
	case "gemini":
		key := os.Getenv("GEMINI_API_KEY")
		if key == "" {
			log.Println("⚠️ 未设置 GEMINI_API_KEY，将使用关键词规则回退分类")
			return nil
		}
		a, err := gemini.NewAnalyzer(ctx, key, model, allowed)
		if err != nil {
			log.Printf("⚠️ Gemini 初始化失败，将使用关键词规则回退分类: %v", err)
			return nil
		}
		return a
	default:
		key := os.Getenv("API_KEY")
		if key == "" {
			log.Println("⚠️ 未设置 API_KEY，将使用关键词规则回退分类")
			return nil
		}
		if baseURL == "" {
			baseURL = os.Getenv("BASE_URL")
		}
		if baseURL == "" {
			baseURL = zhipu.DefaultBaseURL
		}
		return zhipu.NewAnalyzer(key, baseURL, model, allowed)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
