// Package server 进程生命周期编排：加载配置、装配依赖、运行、优雅关闭
package server

import (
	"context"
	"time"

	"estatemgmt/logging"
)

// State 引擎生命周期状态
type State int

const (
	StatePending State = iota
	StateInitializing
	StatePrepared
	StateRunning
	StateStopping
	StateStopped
	StateError
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "Pending"
	case StateInitializing:
		return "Initializing"
	case StatePrepared:
		return "Prepared"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Hook 生命周期回调
type Hook func(ctx context.Context) error

// Options 引擎配置
type Options struct {
	Name            string
	Version         string
	StartupTimeout  time.Duration
	ShutdownTimeout time.Duration
	Logger          logging.ILogger

	OnBeforeStart []Hook
	OnAfterStop   []Hook
}

type Option func(*Options)

func DefaultOptions() *Options {
	return &Options{
		Name:            "estatemgmt",
		Version:         "0.0.0",
		StartupTimeout:  30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

func WithVersion(version string) Option {
	return func(o *Options) { o.Version = version }
}

// WithStartupTimeout 限制 SetupDependencies 的总耗时
func WithStartupTimeout(t time.Duration) Option {
	return func(o *Options) { o.StartupTimeout = t }
}

func WithShutdownTimeout(t time.Duration) Option {
	return func(o *Options) { o.ShutdownTimeout = t }
}

func WithLogger(logger logging.ILogger) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithBeforeStart 添加启动前回调，失败时中止启动
func WithBeforeStart(fn Hook) Option {
	return func(o *Options) { o.OnBeforeStart = append(o.OnBeforeStart, fn) }
}

// WithAfterStop 添加停止后回调，失败只记录日志
func WithAfterStop(fn Hook) Option {
	return func(o *Options) { o.OnAfterStop = append(o.OnAfterStop, fn) }
}
