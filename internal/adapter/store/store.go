package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"

	"github-stars-manager/internal/common"
	"github-stars-manager/internal/domain"
)

// 三份报告总是从同一个排序结果整体重写，互相不会失步
const (
	mergedJSONName = "results_all.json"
	mergedCSVName  = "results_all.csv"
	mergedMDName   = "results_all.md"
)

// FileStore 实现了 port.Store 接口：
// 以输出目录下的 JSON 数组为事实来源，合并采用"全量读入、内存覆盖、全量写回"，
// 从不追加写，保证磁盘上的序列始终有序且无重复键。
type FileStore struct {
	outputDir string
}

// NewFileStore 创建指向 outputDir 的合并存储（目录在首次写出时创建）
func NewFileStore(outputDir string) *FileStore {
	return &FileStore{outputDir: outputDir}
}

// MergedJSONPath 返回合并 JSON 文件路径
func (s *FileStore) MergedJSONPath() string {
	return filepath.Join(s.outputDir, mergedJSONName)
}

// HasMerged 判断合并文件是否已经存在
func (s *FileStore) HasMerged() bool {
	_, err := os.Stat(s.MergedJSONPath())
	return err == nil
}

// Load 读取已持久化的合并结果，返回 唯一键 -> 记录 的映射。
// 文件不存在视为空库（nil error）；读取或解析失败时返回空映射和错误，
// 由调用方决定是降级为空库继续还是中止。
func (s *FileStore) Load() (map[string]*domain.AnalyzedRepo, error) {
	items := make(map[string]*domain.AnalyzedRepo)

	data, err := os.ReadFile(s.MergedJSONPath())
	if errors.Is(err, os.ErrNotExist) {
		return items, nil
	}
	if err != nil {
		return items, common.WrapError(common.ErrCodeStore, "读取合并文件失败", err)
	}

	var rows []*domain.AnalyzedRepo
	if err := json.Unmarshal(data, &rows); err != nil {
		return items, common.WrapError(common.ErrCodeStore, "解析合并文件失败", err)
	}

	// 唯一键总是重新计算，手工编辑过的文件也能正确去重
	// 数组里的 null 条目解码成 nil 指针，和缺键记录一样丢弃
	for _, row := range rows {
		if row == nil || !row.Valid() {
			continue
		}
		row.ID = row.UniqueKey()
		items[row.ID] = row
	}
	return items, nil
}

// MergeUpsert 把新记录按唯一键无条件覆盖进 existing 并返回。
// items 内部出现重复键时，靠后的记录胜出；覆盖是整条替换，不做字段级合并。
func (s *FileStore) MergeUpsert(existing map[string]*domain.AnalyzedRepo, items []*domain.AnalyzedRepo) map[string]*domain.AnalyzedRepo {
	if existing == nil {
		existing = make(map[string]*domain.AnalyzedRepo)
	}
	for _, item := range items {
		existing[item.UniqueKey()] = item
	}
	return existing
}

// Persist 把映射转为按加星时间升序的序列后，整体重写三种报告格式。
// 每次都是全量重写；不做事务性替换，写一半崩溃的风险按使用模式接受。
func (s *FileStore) Persist(items map[string]*domain.AnalyzedRepo) (domain.ReportPaths, error) {
	paths := domain.ReportPaths{
		JSON:     s.MergedJSONPath(),
		CSV:      filepath.Join(s.outputDir, mergedCSVName),
		Markdown: filepath.Join(s.outputDir, mergedMDName),
	}

	rows := sortedRows(items)

	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return paths, common.WrapError(common.ErrCodeStore, "创建输出目录失败", err)
	}
	if err := writeJSON(paths.JSON, rows); err != nil {
		return paths, common.WrapError(common.ErrCodeStore, "写出 JSON 失败", err)
	}
	if err := writeCSV(paths.CSV, rows); err != nil {
		return paths, common.WrapError(common.ErrCodeStore, "写出 CSV 失败", err)
	}
	if err := writeMarkdown(paths.Markdown, rows); err != nil {
		return paths, common.WrapError(common.ErrCodeStore, "写出 Markdown 失败", err)
	}
	return paths, nil
}

// sortedRows 生成确定性的输出序列：先按唯一键取稳定的初始顺序，
// 再按加星时间稳定排序，时间相同的记录之间保持键序，重复渲染字节一致。
func sortedRows(items map[string]*domain.AnalyzedRepo) []*domain.AnalyzedRepo {
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]*domain.AnalyzedRepo, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, items[k])
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].StarredAt.Before(rows[j].StarredAt)
	})
	return rows
}
