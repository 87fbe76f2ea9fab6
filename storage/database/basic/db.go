// Package basic 基于 database/sql 的 IDatabase 实现
//
// 驱动在 drivers.go 中注册：sqlite 使用 modernc.org/sqlite，postgres 使用 pgx stdlib。
package basic

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	core "estatemgmt/storage/database"
	"estatemgmt/storage/database/dialect"
)

// DB 满足 core.IDatabase 的最小封装，所有语句统一经方言 Rebind
type DB struct {
	db      *sql.DB
	dialect dialect.Dialect
}

// New 打开数据库并做一次连通性检查
func New(config core.DBConfig) (*DB, error) {
	driver := config.Driver
	if driver == "" {
		driver = "sqlite"
	}
	dial := dialect.New(driver)
	if dial.Name() == dialect.NameUnknown {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(dial.DriverName(), config.DSN)
	if err != nil {
		return nil, err
	}

	if dial.Name() == dialect.NameSQLite {
		// :memory: 库按连接隔离，且 sqlite 只允许单写者
		db.SetMaxOpenConns(1)
	} else if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(config.ConnMaxLifetime) * time.Second)
	}
	if config.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(time.Duration(config.ConnMaxIdleTime) * time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{db: db, dialect: dial}, nil
}

func (d *DB) Query(ctx context.Context, query string, args ...any) (core.IRows, error) {
	rows, err := d.db.QueryContext(ctx, d.dialect.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return &Rows{rows: rows}, nil
}

func (d *DB) QueryRow(ctx context.Context, query string, args ...any) core.IRow {
	return d.db.QueryRowContext(ctx, d.dialect.Rebind(query), args...)
}

func (d *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.db.ExecContext(ctx, d.dialect.Rebind(query), args...)
}

func (d *DB) Begin(ctx context.Context) (core.ITransaction, error) {
	return d.BeginTx(ctx, nil)
}

func (d *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (core.ITransaction, error) {
	tx, err := d.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Tx{db: d.db, tx: tx, dialect: d.dialect}, nil
}

func (d *DB) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }
func (d *DB) Close() error                   { return d.db.Close() }
func (d *DB) Raw() any                       { return d.db }

// GetDialectName 实现 core.IDialectNameProvider
func (d *DB) GetDialectName() string {
	return string(d.dialect.Name())
}

var _ core.IDatabase = (*DB)(nil)
