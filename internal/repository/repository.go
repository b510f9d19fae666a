// Package repository 把员工、班次和考勤表保存在 PostgreSQL 中
package repository

import (
	"database/sql"

	"github.com/sysu-ecnc-dev/timesheet/backend/internal/config"
)

// Repository 的每个方法都使用配置中的超时时间创建自己的 context
type Repository struct {
	cfg    *config.Config
	dbpool *sql.DB
}

func NewRepository(cfg *config.Config, dbpool *sql.DB) *Repository {
	return &Repository{
		cfg:    cfg,
		dbpool: dbpool,
	}
}
