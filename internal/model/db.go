package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS topics (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT NOT NULL,
    category TEXT NOT NULL DEFAULT 'Other',
    votes INTEGER NOT NULL DEFAULT 1 CHECK (votes >= 0),
    status TEXT NOT NULL DEFAULT 'open',
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_topics_title ON topics(title);
CREATE INDEX IF NOT EXISTS idx_topics_category ON topics(category);
CREATE INDEX IF NOT EXISTS idx_topics_created_at ON topics(created_at);

CREATE TABLE IF NOT EXISTS digests (
    id TEXT PRIMARY KEY,
    category TEXT NOT NULL,
    total_submissions INTEGER NOT NULL,
    summary TEXT NOT NULL,
    summary_source TEXT NOT NULL,
    created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_digests_created_at ON digests(created_at);
`

// sqliteTimeLayout 与 go-sqlite3 写入 time.Time 时使用的格式前缀一致，用于区间比较
const sqliteTimeLayout = "2006-01-02 15:04:05"

// Open 打开 sqlite 数据库并创建表结构
func Open(path string) (*sqlx.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("创建数据目录失败: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?mode=rwc&_journal_mode=WAL&_fk=1&_busy_timeout=5000", path)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("创建数据库Schema失败: %w", err)
	}
	return db, nil
}
