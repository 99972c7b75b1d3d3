package lifecycle

import (
	"github.com/goliatone/go-lifecycle/core"
	"github.com/goliatone/go-lifecycle/extensions/asyncops"
	"github.com/goliatone/go-lifecycle/extensions/cancelpoint"
	"github.com/goliatone/go-lifecycle/extensions/lockguard"
)

func LockGuardExtension(service lockguard.LockService, cfg lockguard.Config) (core.Extension, error) {
	return lockguard.New(service, cfg)
}

func CancelPointExtension(service cancelpoint.CancellationService, cfg cancelpoint.Config) (core.Extension, error) {
	return cancelpoint.New(service, cfg)
}

func AsyncOpsExtension(service asyncops.OperationService, cfg asyncops.Config) (core.Extension, error) {
	return asyncops.New(service, cfg)
}

// StandardExtensionPack bundles the built-in extensions with their default
// configurations: lock guarding, cooperative cancellation, and async
// operation tracking.
func StandardExtensionPack() ExtensionPack {
	return ExtensionPack{
		Name: "lifecycle-standard",
		Extensions: []ExtensionFactory{
			func(service CommandQueryService) (core.Extension, error) {
				return lockguard.New(service, lockguard.DefaultConfig())
			},
			func(service CommandQueryService) (core.Extension, error) {
				return cancelpoint.New(service, cancelpoint.DefaultConfig())
			},
			func(service CommandQueryService) (core.Extension, error) {
				return asyncops.New(service, asyncops.DefaultConfig())
			},
		},
	}
}
