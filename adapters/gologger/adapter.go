package gologger

import (
	"strings"

	"github.com/goliatone/go-lifecycle/core"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// DefaultLoggerName is used when callers resolve a logger without a name.
const DefaultLoggerName = "lifecycle"

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider core.LoggerProvider, logger core.Logger) (core.LoggerProvider, core.Logger) {
	if strings.TrimSpace(name) == "" {
		name = DefaultLoggerName
	}
	return glog.Resolve(name, provider, logger)
}

// ToJobProvider maps a lifecycle provider to the go-job logger provider contract.
func ToJobProvider(provider core.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

// ToJobLogger maps a lifecycle logger to the go-job logger contract.
func ToJobLogger(logger core.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ResolveForJob resolves the lifecycle logger/provider then returns
// equivalent go-job adapters so queue runners share the same sink.
func ResolveForJob(
	name string,
	provider core.LoggerProvider,
	logger core.Logger,
) (core.LoggerProvider, core.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(name, provider, logger)
	return resolvedProvider, resolvedLogger, ToJobProvider(resolvedProvider), ToJobLogger(resolvedLogger)
}
