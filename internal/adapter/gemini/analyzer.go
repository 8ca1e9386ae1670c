package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github-stars-manager/internal/common"
	"github-stars-manager/internal/domain"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Analyzer 是 port.Analyzer 的 Gemini 后端，供不使用 OpenAI 风格接口的场景
type Analyzer struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	allowed []string

	// 实际的模型调用，便于测试注入
	generate func(ctx context.Context, prompt string) (string, error)
}

// 接收模型返回的 JSON
type aiResponse struct {
	Category string          `json:"category"`
	Tags     json.RawMessage `json:"tags"`
	Summary  string          `json:"summary"`
}

// NewAnalyzer 初始化 Gemini 客户端
func NewAnalyzer(ctx context.Context, apiKey, model string, allowed []string) (*Analyzer, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	m := client.GenerativeModel(model)
	// 强制要求返回 JSON，降低解析错误的概率
	m.ResponseMIMEType = "application/json"

	a := &Analyzer{
		client:  client,
		model:   m,
		allowed: allowed,
	}
	a.generate = a.callModel
	return a, nil
}

// Analyze 为单个仓库生成分类、标签与摘要
func (g *Analyzer) Analyze(ctx context.Context, repo *domain.StarredRepo) (*domain.Analysis, error) {
	prompt := fmt.Sprintf(`你是一位资深开源项目分类助手。请根据以下仓库信息给出简洁的中文摘要，并从固定分类中严格选择一个：%s。

仓库名称: %s
仓库地址: %s
仓库描述: %s
主题: %s

请严格按照 JSON 格式返回，包含字段：
1. category: 以上分类之一（字符串）。
2. tags: 3-6个标签（字符串数组）。
3. summary: 不超过120字的中文摘要。

请直接返回 JSON，不要包含 Markdown 格式标记。
`, strings.Join(g.allowed, ", "), repo.FullName, repo.URL, repo.Description, strings.Join(repo.Topics, ", "))

	// 调用模型（带重试；重试耗尽后由调用方降级为回退记录）
	var raw string
	err := common.Do(ctx, func() error {
		var callErr error
		raw, callErr = g.generate(ctx, prompt)
		return callErr
	},
		common.WithMaxRetries(2),
		common.WithInitialDelay(time.Second),
	)
	if err != nil {
		return nil, common.WrapError(common.ErrCodeAIProcessing, "Gemini 调用失败", err)
	}

	res, err := parseAIResponse(raw)
	if err != nil {
		return nil, err
	}

	out := &domain.Analysis{
		Category: res.Category,
		Summary:  res.Summary,
	}
	// tags 可能是数组，也可能是单个字符串
	var tags []string
	if err := json.Unmarshal(res.Tags, &tags); err == nil {
		out.Tags = tags
	} else {
		var single string
		if err := json.Unmarshal(res.Tags, &single); err == nil && single != "" {
			out.Tags = []string{single}
		}
	}
	return out, nil
}

// callModel 发起一次 GenerateContent 调用并取出文本部分
func (g *Analyzer) callModel(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", common.NewError(common.ErrCodeAIProcessing, "模型返回内容为空")
	}

	text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return "", common.NewError(common.ErrCodeAIProcessing, "模型返回格式错误")
	}
	return string(text), nil
}

// parseAIResponse 从模型原文中抠出 JSON 并解析
// 即使返回 "```json { ... } ```" 也能精准截取中间的 { ... }
func parseAIResponse(raw string) (*aiResponse, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, common.NewError(common.ErrCodeAIProcessing, fmt.Sprintf("无法提取 JSON, 模型原文: %s", raw))
	}

	var res aiResponse
	if err := json.Unmarshal([]byte(raw[start:end+1]), &res); err != nil {
		return nil, common.WrapError(common.ErrCodeAIProcessing, "JSON 解析失败", err)
	}
	return &res, nil
}

// Close 释放底层连接
func (g *Analyzer) Close() error {
	return g.client.Close()
}
