package store

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github-stars-manager/internal/domain"
)

// 三个写出函数都是纯格式化：不派生、不改写任何字段值

// writeJSON 写出全量 JSON 数组，UTF-8、两空格缩进、中文不转义
func writeJSON(path string, rows []*domain.AnalyzedRepo) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// writeCSV 写出固定列序的 CSV，topics 与 tags 以分号拼接
func writeCSV(path string, rows []*domain.AnalyzedRepo) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{
		"repo_full_name",
		"owner",
		"html_url",
		"description",
		"topics",
		"category",
		"tags",
		"summary",
		"starred_at",
		"analyzed_at",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, r := range rows {
		record := []string{
			r.FullName,
			r.Owner,
			r.URL,
			r.Description,
			strings.Join(r.Topics, ";"),
			r.Category,
			strings.Join(r.Tags, ";"),
			r.Summary,
			r.StarredAt.UTC().Format(time.RFC3339),
			r.AnalyzedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// writeMarkdown 写出单张 Markdown 表格，便于在 GitHub 上直接浏览
func writeMarkdown(path string, rows []*domain.AnalyzedRepo) error {
	lines := []string{
		"# GitHub Stars 分析结果",
		"",
		"| 仓库 | 类别 | 标签 | 摘要 | 加星时间 |",
		"|---|---|---|---|---|",
	}

	for _, r := range rows {
		repoLink := fmt.Sprintf("[%s](%s)", r.FullName, r.URL)
		tags := strings.Join(r.Tags, ", ")
		// 摘要里的换行会破坏表格，压平成空格
		summary := strings.ReplaceAll(r.Summary, "\n", " ")
		starredAt := r.StarredAt.UTC().Format(time.RFC3339)
		lines = append(lines, fmt.Sprintf("| %s | %s | %s | %s | %s |", repoLink, r.Category, tags, summary, starredAt))
	}

	return os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644)
}
