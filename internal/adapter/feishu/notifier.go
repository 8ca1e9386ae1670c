package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"time"

	"github-stars-manager/internal/common"
	"github-stars-manager/internal/domain"
)

type Notifier struct {
	webhookURL string
}

func NewNotifier(webhook string) *Notifier {
	if webhook == "" {
		log.Println("⚠️ 警告: 飞书 Webhook 为空，推送功能将无法工作！")
	}
	return &Notifier{webhookURL: webhook}
}

// Notify 推送批次完成的飞书卡片消息 (Schema 2.0)
func (n *Notifier) Notify(ctx context.Context, report *domain.BatchReport) error {
	if n.webhookURL == "" {
		return fmt.Errorf("Webhook URL 为空")
	}

	// 1. 准备标题
	title := fmt.Sprintf("⭐ Stars 分析批次完成: %d 项", report.Count)

	// 2. 构造 Markdown 内容（分类计数按名称排序，输出稳定）
	cats := make([]string, 0, len(report.ByCategory))
	for c := range report.ByCategory {
		cats = append(cats, c)
	}
	sort.Strings(cats)

	var breakdown bytes.Buffer
	for _, c := range cats {
		fmt.Fprintf(&breakdown, "- **%s:** %d\n", c, report.ByCategory[c])
	}

	mdContent := fmt.Sprintf(`**📊 本批分类分布:**
%s
**📄 报告文件:**
%s
%s
%s
`, breakdown.String(), report.Paths.JSON, report.Paths.CSV, report.Paths.Markdown)

	// 3. 构造 Schema 2.0 JSON 结构
	payload := map[string]interface{}{
		"msg_type": "interactive",
		"card": map[string]interface{}{
			"schema": "2.0",
			"config": map[string]interface{}{
				"update_multi": true,
			},
			"header": map[string]interface{}{
				"title": map[string]interface{}{
					"tag":     "plain_text",
					"content": title,
				},
				"template": "blue",
			},
			"body": map[string]interface{}{
				"direction": "vertical",
				"elements": []map[string]interface{}{
					{
						"tag":       "markdown",
						"content":   mdContent,
						"text_size": "normal",
					},
				},
			},
		},
	}

	// 4. 发送请求 (带重试机制)
	body, _ := json.Marshal(payload)
	err := common.Do(ctx, func() error {
		resp, postErr := http.Post(n.webhookURL, "application/json", bytes.NewBuffer(body))
		if postErr != nil {
			return postErr
		}
		defer resp.Body.Close()

		if resp.StatusCode != 200 {
			return fmt.Errorf("飞书 API 报错: 状态码 %d", resp.StatusCode)
		}
		return nil
	},
		common.WithMaxRetries(3),
		common.WithInitialDelay(500*time.Millisecond),
	)
	if err != nil {
		return fmt.Errorf("发送请求失败: %w", err)
	}

	return nil
}
