package zhipu

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github-stars-manager/internal/common"
	"github-stars-manager/internal/domain"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultBaseURL 是 ZHIPU 的 OpenAI 风格接口地址
// 实际使用的地址在启动时按 命令行 > 环境变量 > 默认值 解析一次后传入构造函数
const DefaultBaseURL = "https://open.bigmodel.cn/api/paas/v4/"

// Analyzer 实现了 port.Analyzer 接口，走 OpenAI 风格的对话补全接口
type Analyzer struct {
	client  *openai.Client
	model   string
	allowed []string
}

// NewAnalyzer 初始化 ZHIPU/OpenAI 风格客户端
// baseURL 为空时使用 SDK 默认地址（标准 OpenAI）
func NewAnalyzer(apiKey, baseURL, model string, allowed []string) *Analyzer {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Analyzer{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		allowed: allowed,
	}
}

// Analyze 为单个仓库生成分类、标签与摘要
// 返回的分类是模型原话，规范化由调用方负责
func (a *Analyzer) Analyze(ctx context.Context, repo *domain.StarredRepo) (*domain.Analysis, error) {
	// 1. 构造 Prompt，把允许的分类集合和仓库上下文都交给模型
	prompt := fmt.Sprintf(
		"你是一位资深开源项目分类助手。"+
			"请根据仓库名称、简介和主题，给出简洁的中文摘要，并从以下固定分类中严格选择一个作为类别："+
			"%s。"+
			"提供3-6个标签。只返回严格的 JSON（不要包含反引号或额外文本）："+
			"category（以上列表之一，字符串），tags（字符串数组），summary（不超过120字）。",
		strings.Join(a.allowed, ", "))

	repoCtx, err := json.Marshal(map[string]any{
		"name":        repo.FullName,
		"url":         repo.URL,
		"description": repo.Description,
		"topics":      repo.Topics,
	})
	if err != nil {
		return nil, common.WrapError(common.ErrCodeInternal, "仓库上下文序列化失败", err)
	}

	req := openai.ChatCompletionRequest{
		Model:       a.model,
		Temperature: 0.2,
		TopP:        0.7,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "你是专业的开源项目分类与摘要助手。",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("%s\n\n仓库信息: %s", prompt, repoCtx),
			},
		},
	}

	// 2. 调用模型（带重试；重试耗尽后由调用方降级为回退记录）
	var resp openai.ChatCompletionResponse
	err = common.Do(ctx, func() error {
		var apiErr error
		resp, apiErr = a.client.CreateChatCompletion(ctx, req)
		return apiErr
	},
		common.WithMaxRetries(2),
		common.WithInitialDelay(time.Second),
	)
	if err != nil {
		return nil, common.WrapError(common.ErrCodeAIProcessing, "ZHIPU 调用失败", err)
	}
	if len(resp.Choices) == 0 {
		return nil, common.NewError(common.ErrCodeAIProcessing, "模型返回内容为空")
	}

	// 3. 防御式解析；彻底解析失败时字段为空，下游规范化会兜底
	return parseAnalysis(resp.Choices[0].Message.Content), nil
}

// parseAnalysis 把模型返回的文本解析为 Analysis，尽量容错：
// - 去掉 ```json ... ``` 代码块围栏
// - 直接解析失败时截取第一个 "{" 到最后一个 "}" 再试
// - 仍失败则返回空字段
func parseAnalysis(content string) *domain.Analysis {
	parsed := parseJSONContent(content)

	out := &domain.Analysis{}
	if c, ok := parsed["category"].(string); ok {
		out.Category = c
	}
	if s, ok := parsed["summary"].(string); ok {
		out.Summary = s
	}
	// tags 可能是数组、单个字符串或其它任意形状
	switch v := parsed["tags"].(type) {
	case []any:
		for _, t := range v {
			if s, ok := t.(string); ok {
				out.Tags = append(out.Tags, s)
			}
		}
	case string:
		out.Tags = []string{v}
	}
	return out
}

func parseJSONContent(content string) map[string]any {
	text := strings.TrimSpace(content)
	if text == "" {
		return map[string]any{}
	}

	// 去掉代码块围栏（``` 或 ```json）
	if strings.HasPrefix(text, "```") {
		if i := strings.Index(text, "\n"); i != -1 {
			text = text[i+1:]
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(text), &parsed); err == nil {
		return parsed
	}

	// 智能寻找 JSON 的起止位置：即使混有说明文字也能抠出 { ... }
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end != -1 && end > start {
		if err := json.Unmarshal([]byte(text[start:end+1]), &parsed); err == nil {
			return parsed
		}
	}
	return map[string]any{}
}
