package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"estatemgmt/logging"
)

// fakeServer 记录生命周期调用顺序；blockRun 为 true 时 Run 阻塞到 ctx 取消
type fakeServer struct {
	mu    sync.Mutex
	steps []string

	loadConfigErr error
	setupErr      error
	backgroundErr error
	runErr        error
	shutdownErr   error
	blockRun      bool

	setupDeadline time.Time

	bgDone chan struct{}
}

func (s *fakeServer) record(step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, step)
}

func (s *fakeServer) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.steps...)
}

func (s *fakeServer) Name() string { return "fake" }

func (s *fakeServer) LoadConfig() error {
	s.record("LoadConfig")
	return s.loadConfigErr
}

func (s *fakeServer) SetupDependencies(ctx context.Context) error {
	s.record("SetupDependencies")
	s.setupDeadline, _ = ctx.Deadline()
	return s.setupErr
}

func (s *fakeServer) StartBackgroundTasks(ctx context.Context) error {
	s.record("StartBackgroundTasks")
	if s.bgDone != nil {
		go func() {
			<-ctx.Done()
			close(s.bgDone)
		}()
	}
	return s.backgroundErr
}

func (s *fakeServer) Run(ctx context.Context) error {
	s.record("Run")
	if s.blockRun {
		<-ctx.Done()
		return nil
	}
	return s.runErr
}

func (s *fakeServer) Shutdown(ctx context.Context) error {
	s.record("Shutdown")
	return s.shutdownErr
}

func newTestEngine(s IServer, opts ...Option) *Engine {
	opts = append(opts, WithLogger(logging.NewNoopLogger()), WithShutdownTimeout(50*time.Millisecond))
	return NewEngine(s, opts...)
}

var fullLifecycle = []string{"LoadConfig", "SetupDependencies", "StartBackgroundTasks", "Run", "Shutdown"}

func TestEngineStart_LifecycleSuccess(t *testing.T) {
	s := &fakeServer{}
	e := newTestEngine(s)

	require.NoError(t, e.Start(context.Background()))
	assert.Equal(t, StateStopped, e.State())
	assert.Equal(t, fullLifecycle, s.snapshot())
}

func TestEngineStart_SetupUsesStartupTimeout(t *testing.T) {
	s := &fakeServer{}
	e := newTestEngine(s, WithStartupTimeout(time.Minute))

	before := time.Now()
	require.NoError(t, e.Start(context.Background()))
	require.False(t, s.setupDeadline.IsZero())
	assert.WithinDuration(t, before.Add(time.Minute), s.setupDeadline, 5*time.Second)
}

func TestEngineStart_RunErrorPropagates(t *testing.T) {
	runErr := errors.New("run failed")
	s := &fakeServer{runErr: runErr}
	e := newTestEngine(s)

	err := e.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, runErr)
	assert.Contains(t, err.Error(), "server execution error")
	assert.Equal(t, StateError, e.State())
	assert.Equal(t, fullLifecycle, s.snapshot())
}

func TestEngineStart_LoadConfigErrorStopsEarly(t *testing.T) {
	cfgErr := errors.New("config failed")
	s := &fakeServer{loadConfigErr: cfgErr}
	e := newTestEngine(s)

	err := e.Start(context.Background())
	assert.ErrorIs(t, err, cfgErr)
	assert.Contains(t, err.Error(), "failed to load config")
	assert.Equal(t, StateError, e.State())
	assert.Equal(t, []string{"LoadConfig"}, s.snapshot())
}

func TestEngineStart_BackgroundErrorShutsDown(t *testing.T) {
	bgErr := errors.New("transport unreachable")
	s := &fakeServer{backgroundErr: bgErr}
	e := newTestEngine(s)

	err := e.Start(context.Background())
	assert.ErrorIs(t, err, bgErr)
	assert.Equal(t, []string{"LoadConfig", "SetupDependencies", "StartBackgroundTasks", "Shutdown"}, s.snapshot())
}

func TestEngineStart_ParentCancelStopsBlockingRun(t *testing.T) {
	s := &fakeServer{blockRun: true, bgDone: make(chan struct{})}
	var stopped bool
	e := newTestEngine(s, WithAfterStop(func(ctx context.Context) error {
		stopped = true
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	require.NoError(t, e.Start(ctx))
	assert.Equal(t, StateStopped, e.State())
	assert.True(t, stopped)

	select {
	case <-s.bgDone:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("background task was not cancelled")
	}
}

func TestEngineStart_BeforeStartHookAborts(t *testing.T) {
	hookErr := errors.New("migrations failed")
	s := &fakeServer{}
	e := newTestEngine(s, WithBeforeStart(func(ctx context.Context) error { return hookErr }))

	err := e.Start(context.Background())
	assert.ErrorIs(t, err, hookErr)
	assert.Equal(t, []string{"LoadConfig", "SetupDependencies", "Shutdown"}, s.snapshot())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "Running", StateRunning.String())
	assert.Equal(t, "Unknown", State(99).String())
}
