package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"estatemgmt/logging"
)

// IServer 由应用实现的生命周期步骤
type IServer interface {
	Name() string

	// LoadConfig 解析配置文件与环境变量
	LoadConfig() error

	// SetupDependencies 连接事件存储与消息传输，装配仓储和领域服务
	SetupDependencies(ctx context.Context) error

	// StartBackgroundTasks 启动非阻塞任务，如传输层消费者
	StartBackgroundTasks(ctx context.Context) error

	// Run 主循环，阻塞到 ctx 取消或出错
	Run(ctx context.Context) error

	// Shutdown 释放连接、刷新日志
	Shutdown(ctx context.Context) error
}

// Engine 按 LoadConfig -> Setup -> Background -> Run -> Shutdown 编排启动流程
type Engine struct {
	server  IServer
	options *Options
	logger  logging.ILogger

	mu    sync.RWMutex
	state State
}

func NewEngine(server IServer, opts ...Option) *Engine {
	options := DefaultOptions()
	if name := server.Name(); name != "" {
		options.Name = name
	}
	for _, o := range opts {
		o(options)
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.ComponentLogger("server")
	}
	return &Engine{
		server:  server,
		options: options,
		logger:  logger.WithFields(logging.String("app", options.Name)),
		state:   StatePending,
	}
}

func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Start 执行完整生命周期，直到 Run 返回、收到退出信号或 parent 被取消
func (e *Engine) Start(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	e.logger.Info(ctx, "starting", logging.String("version", e.options.Version))
	e.setState(StateInitializing)

	if err := e.server.LoadConfig(); err != nil {
		e.setState(StateError)
		return fmt.Errorf("failed to load config: %w", err)
	}

	setupCtx, setupCancel := context.WithTimeout(ctx, e.options.StartupTimeout)
	defer setupCancel()
	if err := e.server.SetupDependencies(setupCtx); err != nil {
		e.setState(StateError)
		return fmt.Errorf("failed to setup dependencies: %w", err)
	}
	e.setState(StatePrepared)

	for _, hook := range e.options.OnBeforeStart {
		if err := hook(ctx); err != nil {
			e.setState(StateError)
			_ = e.shutdown()
			return fmt.Errorf("before start hook failed: %w", err)
		}
	}

	if err := e.server.StartBackgroundTasks(ctx); err != nil {
		e.setState(StateError)
		_ = e.shutdown()
		return fmt.Errorf("failed to start background tasks: %w", err)
	}

	e.setState(StateRunning)
	errChan := make(chan error, 1)
	go func() {
		errChan <- e.server.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var runErr error
	select {
	case runErr = <-errChan:
		if runErr != nil {
			e.logger.Error(ctx, "run failed, shutting down", logging.Error(runErr))
		}
	case sig := <-quit:
		e.logger.Info(ctx, "signal received, shutting down", logging.String("signal", sig.String()))
	case <-parent.Done():
		e.logger.Info(ctx, "context cancelled, shutting down")
	}
	cancel()

	e.setState(StateStopping)
	if err := e.shutdown(); err != nil {
		e.setState(StateError)
		return err
	}

	if runErr != nil {
		e.setState(StateError)
		return fmt.Errorf("server execution error: %w", runErr)
	}
	e.setState(StateStopped)
	e.logger.Info(context.Background(), "shutdown complete")
	return nil
}

func (e *Engine) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), e.options.ShutdownTimeout)
	defer cancel()

	if err := e.server.Shutdown(ctx); err != nil {
		e.logger.Error(ctx, "shutdown failed", logging.Error(err))
		return err
	}
	for _, hook := range e.options.OnAfterStop {
		if err := hook(ctx); err != nil {
			e.logger.Warn(ctx, "after stop hook failed", logging.Error(err))
		}
	}
	return nil
}
