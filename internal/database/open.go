package database

import (
	"fmt"

	"github.com/BaSui01/benchduo/types"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open 打开 SQLite 数据库并迁移全部实体表。
// path 为 ":memory:" 时使用内存库（测试）。
func Open(path string, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %q: %w", path, err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	logger.Info("database opened", zap.String("path", path))
	return db, nil
}

// Migrate 迁移全部实体表。幂等，可在每次启动时调用。
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&types.Model{},
		&types.Agent{},
		&types.Conversation{},
		&types.Message{},
		&types.BatchJob{},
		&types.EvaluationJob{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
