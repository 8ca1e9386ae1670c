package repository

import (
	"context"
	"fmt"

	"github-stars-manager/internal/domain"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// PostgresRepo 实现了 port.Mirror 接口
// 只是 JSON 合并文件的镜像，方便 SQL 查询；事实来源始终是文件
type PostgresRepo struct {
	db *gorm.DB
}

// NewPostgresRepo 初始化数据库连接并自动迁移表结构
func NewPostgresRepo(dsn string) (*PostgresRepo, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	// 自动建表，字段变化时同步更新
	if err := db.AutoMigrate(&domain.AnalyzedRepo{}); err != nil {
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}

	return &PostgresRepo{db: db}, nil
}

// Save 保存或更新记录（按唯一键 Upsert）
func (r *PostgresRepo) Save(ctx context.Context, repo *domain.AnalyzedRepo) error {
	if repo.ID == "" {
		repo.ID = repo.UniqueKey()
	}
	result := r.db.WithContext(ctx).Save(repo)
	return result.Error
}

// Exists 检查唯一键是否已入库
func (r *PostgresRepo) Exists(ctx context.Context, key string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.AnalyzedRepo{}).Where("id = ?", key).Count(&count).Error
	return count > 0, err
}

// FindByCategory 按分类取最近加星的记录，便于人工抽查镜像内容
func (r *PostgresRepo) FindByCategory(ctx context.Context, cat string, limit int) ([]*domain.AnalyzedRepo, error) {
	var repos []*domain.AnalyzedRepo
	err := r.db.WithContext(ctx).
		Where("category = ?", cat).
		Order("starred_at DESC").
		Limit(limit).
		Find(&repos).Error
	return repos, err
}
