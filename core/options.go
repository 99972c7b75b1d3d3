package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig          Config
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
	clock                  func() time.Time
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithOperationStore(store OperationStore) Option {
	return func(b *serviceBuilder) {
		b.operationStore = store
	}
}

func WithCache(cache KeyValueCache) Option {
	return func(b *serviceBuilder) {
		b.cache = cache
	}
}

func WithNamedMutex(mutex NamedMutex) Option {
	return func(b *serviceBuilder) {
		b.mutex = mutex
	}
}

func WithForceReleaseAuthorizer(authorizer ForceReleaseAuthorizer) Option {
	return func(b *serviceBuilder) {
		b.forceReleaseAuthorizer = authorizer
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *serviceBuilder) {
		if now == nil {
			return
		}
		b.clock = now
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("lifecycle", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		clock:           func() time.Time { return time.Now().UTC() },
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return lifecycleErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	operations := map[string]any{}
	if includeZero || cfg.Operations.MaxActivePerOwner != 0 {
		operations["max_active_per_owner"] = cfg.Operations.MaxActivePerOwner
	}
	if includeZero || cfg.Operations.DefaultTTLSeconds != 0 {
		operations["default_ttl_seconds"] = cfg.Operations.DefaultTTLSeconds
	}
	if includeZero || cfg.Operations.MinTTLSeconds != 0 {
		operations["min_ttl_seconds"] = cfg.Operations.MinTTLSeconds
	}
	if includeZero || cfg.Operations.MaxTTLSeconds != 0 {
		operations["max_ttl_seconds"] = cfg.Operations.MaxTTLSeconds
	}
	if includeZero || cfg.Operations.MetadataMaxBytes != 0 {
		operations["metadata_max_bytes"] = cfg.Operations.MetadataMaxBytes
	}
	if includeZero || cfg.Operations.ProgressMessageMaxLen != 0 {
		operations["progress_message_max_len"] = cfg.Operations.ProgressMessageMaxLen
	}
	if includeZero || cfg.Operations.IDMaxAttempts != 0 {
		operations["id_max_attempts"] = cfg.Operations.IDMaxAttempts
	}
	if includeZero || cfg.Operations.PollRetryAfterSeconds != 0 {
		operations["poll_retry_after_seconds"] = cfg.Operations.PollRetryAfterSeconds
	}
	if includeZero || strings.TrimSpace(cfg.Operations.PollPathPrefix) != "" {
		operations["poll_path_prefix"] = cfg.Operations.PollPathPrefix
	}
	if len(operations) > 0 {
		layer["operations"] = operations
	}

	locks := map[string]any{}
	if includeZero || cfg.Locks.DefaultTTLSeconds != 0 {
		locks["default_ttl_seconds"] = cfg.Locks.DefaultTTLSeconds
	}
	if includeZero || cfg.Locks.MetadataGraceSeconds != 0 {
		locks["metadata_grace_seconds"] = cfg.Locks.MetadataGraceSeconds
	}
	if includeZero || cfg.Locks.BlockPollIntervalMS != 0 {
		locks["block_poll_interval_ms"] = cfg.Locks.BlockPollIntervalMS
	}
	if len(locks) > 0 {
		layer["locks"] = locks
	}

	cancellation := map[string]any{}
	if includeZero || cfg.Cancellation.TokenTTLSeconds != 0 {
		cancellation["token_ttl_seconds"] = cfg.Cancellation.TokenTTLSeconds
	}
	if includeZero || cfg.Cancellation.CheckLockTTLSeconds != 0 {
		cancellation["check_lock_ttl_seconds"] = cfg.Cancellation.CheckLockTTLSeconds
	}
	if len(cancellation) > 0 {
		layer["cancellation"] = cancellation
	}

	callbacks := map[string]any{}
	if includeZero || len(cfg.Callbacks.AllowedSchemes) > 0 {
		callbacks["allowed_schemes"] = append([]string(nil), cfg.Callbacks.AllowedSchemes...)
	}
	if includeZero || len(cfg.Callbacks.BlockedHosts) > 0 {
		callbacks["blocked_hosts"] = append([]string(nil), cfg.Callbacks.BlockedHosts...)
	}
	if includeZero || cfg.Callbacks.MaxURLLength != 0 {
		callbacks["max_url_length"] = cfg.Callbacks.MaxURLLength
	}
	if len(callbacks) > 0 {
		layer["callbacks"] = callbacks
	}

	return layer
}
