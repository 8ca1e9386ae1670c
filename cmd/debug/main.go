package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github-stars-manager/internal/adapter/github"
	"github-stars-manager/internal/category"

	"github.com/joho/godotenv"
)

// 调试入口：拉取第一页加星事件并演示本地关键词分类，方便排查 API 与规则问题
func main() {
	_ = godotenv.Load()

	ghToken := os.Getenv("GH_TOKEN")
	if ghToken == "" {
		log.Fatal("❌ 未设置 GH_TOKEN")
	}

	ctx := context.Background()
	fetcher := github.NewFetcher(ghToken)

	fmt.Println("🔍 调试模式：拉取第一页加星事件")

	repos, err := fetcher.FetchUnprocessed(ctx, 1, 30, 30, nil)
	if err != nil {
		log.Fatalf("❌ 拉取失败: %v", err)
	}
	fmt.Printf("✅ 成功获取 %d 条加星记录\n\n", len(repos))

	resolver := &category.Resolver{
		Allowed: category.DefaultAllowed,
		Rules:   category.DefaultRules,
		Default: "开发工具",
	}

	for i, repo := range repos {
		cat, matched := category.ClassifyByKeywords(repo, category.DefaultRules)
		if !matched {
			cat = resolver.Default + " (默认)"
		}
		fmt.Printf("  #%d %s\n", i+1, repo.FullName)
		fmt.Printf("     加星时间: %s\n", repo.StarredAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("     唯一键:   %s\n", repo.UniqueKey())
		fmt.Printf("     规则分类: %s\n", cat)
		if len(repo.Topics) > 0 {
			fmt.Printf("     Topics:   %s\n", strings.Join(repo.Topics, ", "))
		}
		fmt.Println()
	}
}
