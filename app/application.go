// Package app 组装进程：按配置选择事件存储与发布传输，构建仓储和领域服务
package app

import (
	"context"
	stdErrors "errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"estatemgmt/config"
	"estatemgmt/domain/contract"
	"estatemgmt/domain/estate"
	"estatemgmt/domain/merchant"
	"estatemgmt/domain/service"
	"estatemgmt/eventing/store"
	mongostore "estatemgmt/eventing/store/mongo"
	sqlstore "estatemgmt/eventing/store/sql"
	"estatemgmt/logging"
	"estatemgmt/messaging"
	"estatemgmt/messaging/middleware"
	"estatemgmt/messaging/transport/memory"
	"estatemgmt/messaging/transport/natsjetstream"
	"estatemgmt/messaging/transport/redisstreams"
	"estatemgmt/patterns/retry"
	"estatemgmt/security"
	"estatemgmt/server"
	"estatemgmt/storage/database"
	basicdb "estatemgmt/storage/database/basic"
)

const Name = "estatemgmt"

type closer func(ctx context.Context) error

// Application 实现 server.IServer
type Application struct {
	configPath string
	cfg        *config.Config
	logger     logging.ILogger
	security   security.IClient

	eventStore store.IEventStore
	transport  messaging.Transport
	bus        *messaging.MessageBus

	estates   *service.EstateDomainService
	merchants *service.MerchantDomainService
	contracts *service.ContractDomainService

	closers []closer
}

type Option func(*Application)

// WithConfig 使用现成配置，LoadConfig 不再读取文件与环境变量
func WithConfig(cfg *config.Config) Option {
	return func(a *Application) { a.cfg = cfg }
}

// WithLogger 替换按配置构建的 zap 日志
func WithLogger(logger logging.ILogger) Option {
	return func(a *Application) { a.logger = logger }
}

// WithSecurityClient 替换默认的进程内安全服务
func WithSecurityClient(client security.IClient) Option {
	return func(a *Application) { a.security = client }
}

// New configPath 为空时只读取环境变量
func New(configPath string, opts ...Option) *Application {
	a := &Application{configPath: configPath}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Application) Name() string { return Name }

func (a *Application) LoadConfig() error {
	if a.cfg == nil {
		cfg, err := config.Load(a.configPath)
		if err != nil {
			return err
		}
		a.cfg = cfg
	} else if err := a.cfg.Validate(); err != nil {
		return err
	}

	if a.logger == nil {
		zl, err := logging.NewZapLogger(logging.ZapConfig{Level: a.cfg.Log.Level, Format: a.cfg.Log.Format})
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}
		a.logger = zl
		a.closers = append(a.closers, func(context.Context) error {
			_ = zl.Sync()
			return nil
		})
	}
	logging.SetLogger(a.logger)
	return nil
}

// SetupDependencies 事件存储装饰顺序：驱动实现 -> 追踪 -> 发布
//
// 失败时释放已经打开的连接。
func (a *Application) SetupDependencies(ctx context.Context) (err error) {
	if a.cfg == nil {
		return fmt.Errorf("config not loaded")
	}
	defer func() {
		if err != nil {
			_ = a.Shutdown(context.Background())
		}
	}()

	es, err := a.openEventStore(ctx)
	if err != nil {
		return err
	}

	if a.cfg.Tracing.Enabled {
		tp := sdktrace.NewTracerProvider()
		otel.SetTracerProvider(tp)
		a.closers = append(a.closers, tp.Shutdown)
		es = store.NewTracingEventStore(es, tp.Tracer(Name))
	}

	transport, err := a.newTransport()
	if err != nil {
		return err
	}
	if transport != nil {
		a.transport = transport
		a.bus = messaging.NewMessageBus(transport)
		a.bus.Use(middleware.NewTracingMiddleware())
		a.closers = append(a.closers, func(context.Context) error { return transport.Close() })
		es = store.NewPublishingEventStore(es, a.bus, a.logger.WithFields(logging.String("component", "eventstore.publishing")))
	}
	a.eventStore = es

	if a.security == nil {
		a.security = security.NewMemoryClient(0)
	}
	return a.buildServices()
}

func (a *Application) openEventStore(ctx context.Context) (store.IEventStore, error) {
	cfg := a.cfg.EventStore
	logger := a.logger.WithFields(logging.String("component", "eventstore"), logging.String("driver", cfg.Driver))

	switch cfg.Driver {
	case config.DriverMemory:
		return store.NewMemoryEventStore(), nil

	case config.DriverSQLite, config.DriverPostgres:
		var db *basicdb.DB
		err := retry.Do(ctx, func(ctx context.Context, attempt int) (err error) {
			db, err = basicdb.New(database.DBConfig{Driver: cfg.Driver, DSN: cfg.DSN})
			a.logAttempt(ctx, "open event store", attempt, err)
			return err
		}, a.retryConfig())
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
		}
		a.closers = append(a.closers, func(context.Context) error { return db.Close() })
		es, err := sqlstore.NewSQLEventStore(db, cfg.Table, logger)
		if err != nil {
			return nil, err
		}
		if err := es.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure event store schema: %w", err)
		}
		return es, nil

	case config.DriverMongo:
		var client *mongo.Client
		err := retry.Do(ctx, func(ctx context.Context, attempt int) (err error) {
			client, err = mongostore.Connect(ctx, mongostore.Config{URI: cfg.DSN, Database: cfg.MongoDatabase})
			a.logAttempt(ctx, "connect mongo", attempt, err)
			return err
		}, a.retryConfig())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Disconnect)
		es := mongostore.NewMongoEventStore(client, cfg.MongoDatabase, mongostore.Options{
			Collection: cfg.Table,
			Logger:     logger,
		})
		if err := es.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("ensure event store indexes: %w", err)
		}
		return es, nil
	}
	return nil, fmt.Errorf("unsupported eventstore.driver %q", cfg.Driver)
}

func (a *Application) newTransport() (messaging.Transport, error) {
	cfg := a.cfg.Publisher
	logger := a.logger.WithFields(logging.String("component", "transport"), logging.String("transport", cfg.Transport))

	switch cfg.Transport {
	case config.TransportNone:
		return nil, nil
	case config.TransportMemory:
		return memory.NewTransport(), nil
	case config.TransportRedis:
		return redisstreams.NewTransport(redisstreams.Config{
			Addr:         cfg.RedisAddr,
			StreamPrefix: cfg.StreamPrefix + ":",
			GroupName:    cfg.StreamPrefix,
			Logger:       logger,
		})
	case config.TransportNATS:
		return natsjetstream.NewTransport(natsjetstream.Config{
			URL:           cfg.NATSURL,
			SubjectPrefix: cfg.StreamPrefix + ".",
			DurablePrefix: cfg.StreamPrefix + "-",
			Logger:        logger,
		}), nil
	}
	return nil, fmt.Errorf("unsupported publisher.transport %q", cfg.Transport)
}

func (a *Application) buildServices() error {
	estates, err := estate.NewRepository(a.eventStore, a.logger)
	if err != nil {
		return err
	}
	merchants, err := merchant.NewRepository(a.eventStore, a.logger)
	if err != nil {
		return err
	}
	contracts, err := contract.NewRepository(a.eventStore, a.logger)
	if err != nil {
		return err
	}

	a.estates = service.NewEstateDomainService(estates, a.security, a.logger)
	a.merchants = service.NewMerchantDomainService(merchants, estates, a.security, a.logger)
	a.contracts = service.NewContractDomainService(contracts, estates, a.logger)
	return nil
}

// StartBackgroundTasks 启动发布传输，连接失败时按配置重试
func (a *Application) StartBackgroundTasks(ctx context.Context) error {
	if a.transport == nil {
		return nil
	}
	return retry.Do(ctx, func(ctx context.Context, attempt int) error {
		err := a.transport.Start(ctx)
		a.logAttempt(ctx, "start transport", attempt, err)
		return err
	}, a.retryConfig())
}

func (a *Application) retryConfig() retry.Config {
	cfg := retry.DefaultConfig()
	if a.cfg.EventStore.ConnectAttempts > 0 {
		cfg.MaxAttempts = a.cfg.EventStore.ConnectAttempts
	}
	cfg.Retryable = func(err error) bool {
		return !stdErrors.Is(err, context.Canceled) && !stdErrors.Is(err, context.DeadlineExceeded)
	}
	return cfg
}

func (a *Application) logAttempt(ctx context.Context, step string, attempt int, err error) {
	if err != nil {
		a.logger.Warn(ctx, step+" failed", logging.Int("attempt", attempt), logging.Error(err))
	}
}

// Run 没有对外接口，阻塞到 ctx 取消
func (a *Application) Run(ctx context.Context) error {
	a.logger.Info(ctx, "estate management core running",
		logging.String("eventstore", a.cfg.EventStore.Driver),
		logging.String("publisher", a.cfg.Publisher.Transport))
	<-ctx.Done()
	return nil
}

// Shutdown 逆序释放资源
func (a *Application) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return stdErrors.Join(errs...)
}

func (a *Application) Config() *config.Config        { return a.cfg }
func (a *Application) Logger() logging.ILogger       { return a.logger }
func (a *Application) EventStore() store.IEventStore { return a.eventStore }

// Bus 发布传输为 none 时返回 nil
func (a *Application) Bus() *messaging.MessageBus { return a.bus }

func (a *Application) Estates() service.IEstateDomainService     { return a.estates }
func (a *Application) Merchants() service.IMerchantDomainService { return a.merchants }
func (a *Application) Contracts() service.IContractDomainService { return a.contracts }

var _ server.IServer = (*Application)(nil)
