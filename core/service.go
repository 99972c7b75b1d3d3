package core

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

type Service struct {
	config                 Config
	logger                 Logger
	loggerProvider         LoggerProvider
	metricsRecorder        MetricsRecorder
	errorFactory           ErrorFactory
	errorMapper            ErrorMapper
	persistenceClient      any
	repositoryFactory      any
	configProvider         ConfigProvider
	optionsResolver        OptionsResolver
	operationStore         OperationStore
	cache                  KeyValueCache
	mutex                  NamedMutex
	forceReleaseAuthorizer ForceReleaseAuthorizer
	now                    func() time.Time
}

type ServiceDependencies struct {
	Logger                 Logger
	LoggerProvider         LoggerProvider
	MetricsRecorder        MetricsRecorder
	ErrorFactory           ErrorFactory
	ErrorMapper            ErrorMapper
	PersistenceClient      any
	RepositoryFactory      any
	ConfigProvider         ConfigProvider
	OptionsResolver        OptionsResolver
	OperationStore         OperationStore
	Cache                  KeyValueCache
	Mutex                  NamedMutex
	ForceReleaseAuthorizer ForceReleaseAuthorizer
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("lifecycle", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("lifecycle"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.clock == nil {
		builder.clock = func() time.Time { return time.Now().UTC() }
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.operationStore == nil && builder.repositoryFactory != nil {
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			storeProvider, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			if storeProvider != nil {
				builder.operationStore = storeProvider.OperationStore()
			}
		} else if storeProvider, ok := builder.repositoryFactory.(StoreProvider); ok {
			builder.operationStore = storeProvider.OperationStore()
		}
	}
	if builder.cache == nil && builder.repositoryFactory != nil {
		if cacheProvider, ok := builder.repositoryFactory.(interface{ CacheStore() KeyValueCache }); ok {
			builder.cache = cacheProvider.CacheStore()
		}
	}
	if builder.mutex == nil && builder.repositoryFactory != nil {
		if lockProvider, ok := builder.repositoryFactory.(interface{ LockStore() NamedMutex }); ok {
			builder.mutex = lockProvider.LockStore()
		}
	}

	if builder.operationStore == nil {
		builder.operationStore = NewMemoryOperationStore()
	}
	if builder.cache == nil {
		builder.cache = NewMemoryCache()
	}
	if builder.mutex == nil {
		builder.mutex = NewMemoryNamedMutex()
	}

	return &Service{
		config:                 finalConfig,
		logger:                 logger,
		loggerProvider:         provider,
		metricsRecorder:        builder.metricsRecorder,
		errorFactory:           builder.errorFactory,
		errorMapper:            builder.errorMapper,
		persistenceClient:      builder.persistenceClient,
		repositoryFactory:      builder.repositoryFactory,
		configProvider:         builder.configProvider,
		optionsResolver:        builder.optionsResolver,
		operationStore:         builder.operationStore,
		cache:                  builder.cache,
		mutex:                  builder.mutex,
		forceReleaseAuthorizer: builder.forceReleaseAuthorizer,
		now:                    builder.clock,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:                 s.logger,
		LoggerProvider:         s.loggerProvider,
		MetricsRecorder:        s.metricsRecorder,
		ErrorFactory:           s.errorFactory,
		ErrorMapper:            s.errorMapper,
		PersistenceClient:      s.persistenceClient,
		RepositoryFactory:      s.repositoryFactory,
		ConfigProvider:         s.configProvider,
		OptionsResolver:        s.optionsResolver,
		OperationStore:         s.operationStore,
		Cache:                  s.cache,
		Mutex:                  s.mutex,
		ForceReleaseAuthorizer: s.forceReleaseAuthorizer,
	}
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) clock() time.Time {
	if s == nil || s.now == nil {
		return time.Now().UTC()
	}
	return s.now().UTC()
}

var (
	_ OperationService    = (*Service)(nil)
	_ LockService         = (*Service)(nil)
	_ CancellationService = (*Service)(nil)
)
