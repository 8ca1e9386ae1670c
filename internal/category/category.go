package category

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github-stars-manager/internal/domain"
)

// Rule 是一条关键词规则：命中 Keywords 中任意一个即归入 Category
type Rule struct {
	Category string
	Keywords []string
}

// RuleSet 是有序的规则表，匹配时按定义顺序遍历，顺序是语义的一部分
type RuleSet []Rule

// DefaultAllowed 默认允许的分类集合，可由文件或环境变量覆盖
var DefaultAllowed = []string{
	"Web应用",
	"移动应用",
	"桌面应用",
	"数据库",
	"AI/机器学习",
	"开发工具",
	"安全工具",
	"游戏",
	"设计工具",
	"效率工具",
	"教育学习",
	"社交网络",
	"数据分析",
}

// DefaultRules 内置的关键词规则表，用于无 API 或调用失败时的本地回退
var DefaultRules = RuleSet{
	{"Web应用", []string{"web", "http", "rest", "frontend", "backend", "website", "spa", "vue", "react", "svelte", "nextjs", "nuxt"}},
	{"移动应用", []string{"android", "ios", "mobile", "apk", "react native", "flutter", "cordova"}},
	{"桌面应用", []string{"desktop", "electron", "qt", "gtk", "win32", "macos", "wxwidgets"}},
	{"数据库", []string{"database", "db", "sql", "nosql", "postgres", "mysql", "mongodb", "redis", "cassandra", "sqlite"}},
	{"AI/机器学习", []string{"machine learning", "ml", "ai", "deep learning", "transformer", "llm", "pytorch", "tensorflow", "keras"}},
	{"开发工具", []string{"dev", "developer", "sdk", "library", "framework", "build", "compile", "cli", "lint", "ci", "testing", "tool"}},
	{"安全工具", []string{"security", "vuln", "pentest", "penetration", "exploit", "auth", "encryption", "ssl", "xss", "cve"}},
	{"游戏", []string{"game", "gaming", "unity", "unreal", "godot"}},
	{"设计工具", []string{"design", "ui", "ux", "figma", "sketch", "graphics", "svg", "illustration"}},
	{"效率工具", []string{"productivity", "todo", "note", "task", "calendar", "automation", "workflow"}},
	{"教育学习", []string{"education", "learn", "learning", "tutorial", "course", "teaching", "docs", "examples"}},
	{"社交网络", []string{"social", "network", "chat", "messaging", "community", "forum", "sns"}},
	{"数据分析", []string{"data analysis", "analytics", "bi", "pandas", "numpy", "visualization", "chart", "plot"}},
}

// LoadAllowed 加载允许的分类列表：
// 1) filePath 指向的 JSON 数组文件（存在且合法时）；
// 2) 否则 CATEGORIES 环境变量（逗号分隔）；
// 3) 否则内置默认集合。
func LoadAllowed(filePath string) []string {
	if filePath != "" {
		if cats, err := readAllowedFile(filePath); err == nil && len(cats) > 0 {
			return cats
		}
	}
	if env := os.Getenv("CATEGORIES"); env != "" {
		var cats []string
		for _, c := range strings.Split(env, ",") {
			if c = strings.TrimSpace(c); c != "" {
				cats = append(cats, c)
			}
		}
		if len(cats) > 0 {
			return cats
		}
	}
	return DefaultAllowed
}

func readAllowedFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("分类列表文件不是 JSON 数组: %w", err)
	}
	var cats []string
	for _, c := range raw {
		if c = strings.TrimSpace(c); c != "" {
			cats = append(cats, c)
		}
	}
	return cats, nil
}

// LoadRules 加载关键词规则表：filePath 指向形如 {"分类": ["关键词", ...]} 的
// JSON 对象；文件不存在或解析失败时返回内置规则。
// 对象键的出现顺序会被保留，因为匹配采用首条命中策略。
func LoadRules(filePath string) RuleSet {
	if filePath == "" {
		return DefaultRules
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return DefaultRules
	}
	rules, err := parseRulesObject(data)
	if err != nil || len(rules) == 0 {
		return DefaultRules
	}
	return rules
}

// parseRulesObject 按键的出现顺序解析 JSON 对象
// encoding/json 直接反序列化到 map 会丢失顺序，这里用 token 流逐键读取
func parseRulesObject(data []byte) (RuleSet, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("规则文件不是 JSON 对象")
	}

	var rules RuleSet
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		cat, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		// 值不是字符串数组时跳过该分类，其余规则照常生效
		var words []string
		if err := json.Unmarshal(raw, &words); err != nil {
			continue
		}
		lowered := make([]string, 0, len(words))
		for _, w := range words {
			lowered = append(lowered, strings.ToLower(w))
		}
		rules = append(rules, Rule{Category: cat, Keywords: lowered})
	}
	return rules, nil
}

// ClassifyByKeywords 基于关键词规则对仓库分类：
// 将名称、简介与 topics 拼成一个小写文本，按规则表顺序找第一条命中的规则。
// 只做子串包含，不分词、不打分——"ai" 会命中无关单词内部，这是既定行为。
func ClassifyByKeywords(repo *domain.StarredRepo, rules RuleSet) (string, bool) {
	text := strings.ToLower(strings.Join([]string{
		repo.FullName,
		repo.Description,
		strings.Join(repo.Topics, " "),
	}, " "))

	for _, rule := range rules {
		for _, w := range rule.Keywords {
			if strings.Contains(text, w) {
				return rule.Category, true
			}
		}
	}
	return "", false
}

// Resolver 把模型给出的分类候选规范化到允许集合中
// 前提：Default 必须是 Allowed 的成员，由装配方保证
type Resolver struct {
	Allowed []string
	Rules   RuleSet
	Default string
}

// Normalize 三级回退：候选合法则信任模型 -> 本地关键词规则 -> 默认分类
// 永不失败，返回值一定属于 Allowed
func (r *Resolver) Normalize(candidate string, repo *domain.StarredRepo) string {
	if r.contains(candidate) {
		return candidate
	}
	if mapped, ok := ClassifyByKeywords(repo, r.Rules); ok && r.contains(mapped) {
		return mapped
	}
	return r.Default
}

func (r *Resolver) contains(cat string) bool {
	for _, c := range r.Allowed {
		if c == cat {
			return true
		}
	}
	return false
}
