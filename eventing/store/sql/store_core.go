// Package sql 基于 database/sql 的事件存储（sqlite / postgres）
//
// 每条事件一行，(stream_id, version) 唯一约束兜底并发写入；
// 版本检查与批量插入在同一事务中完成。
package sql

import (
	"context"
	"fmt"
	"regexp"

	"estatemgmt/logging"
	core "estatemgmt/storage/database"
	"estatemgmt/storage/database/dialect"
)

// DefaultTableName 默认事件表名
const DefaultTableName = "domain_events"

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

const eventColumns = "id, stream_id, version, type, aggregate_id, aggregate_type, schema_version, occurred_at, payload, metadata"

// SQLEventStore 基于通用 SQL 接口的事件存储
type SQLEventStore struct {
	db        core.IDatabase
	dialect   dialect.Dialect
	tableName string
	table     string // 已加引号
	logger    logging.ILogger
}

// NewSQLEventStore tableName 为空时使用 DefaultTableName
func NewSQLEventStore(db core.IDatabase, tableName string, logger logging.ILogger) (*SQLEventStore, error) {
	if tableName == "" {
		tableName = DefaultTableName
	}
	if !tableNamePattern.MatchString(tableName) {
		return nil, fmt.Errorf("invalid event table name %q", tableName)
	}
	if logger == nil {
		logger = logging.ComponentLogger("eventstore.sql")
	}
	d := dialect.FromDatabase(db)
	return &SQLEventStore{
		db:        db,
		dialect:   d,
		tableName: tableName,
		table:     d.QuoteIdentifier(tableName),
		logger:    logger,
	}, nil
}

// EnsureSchema 建表（幂等）
func (s *SQLEventStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT NOT NULL PRIMARY KEY,
	stream_id TEXT NOT NULL,
	version BIGINT NOT NULL,
	type TEXT NOT NULL,
	aggregate_id TEXT NOT NULL,
	aggregate_type TEXT NOT NULL,
	schema_version INTEGER NOT NULL,
	occurred_at BIGINT NOT NULL,
	payload TEXT NOT NULL,
	metadata TEXT NOT NULL,
	UNIQUE (stream_id, version)
)`, s.table)
	if _, err := s.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create event table %s: %w", s.tableName, err)
	}
	return nil
}

func (s *SQLEventStore) GetDB() core.IDatabase { return s.db }
