package lifecycle

import (
	"testing"

	"github.com/goliatone/go-lifecycle/core"
	"github.com/goliatone/go-lifecycle/extensions/asyncops"
	"github.com/goliatone/go-lifecycle/extensions/cancelpoint"
	"github.com/goliatone/go-lifecycle/extensions/lockguard"
)

func TestExtensionFactories_BuildConfiguredExtensions(t *testing.T) {
	svc := &stubFacadeService{}

	cases := []struct {
		name  string
		build func() (core.Extension, error)
		id    string
	}{
		{
			name: "lock guard",
			build: func() (core.Extension, error) {
				return LockGuardExtension(svc, lockguard.DefaultConfig())
			},
			id: lockguard.ExtensionID,
		},
		{
			name: "cancel point",
			build: func() (core.Extension, error) {
				return CancelPointExtension(svc, cancelpoint.DefaultConfig())
			},
			id: cancelpoint.ExtensionID,
		},
		{
			name: "async ops",
			build: func() (core.Extension, error) {
				return AsyncOpsExtension(svc, asyncops.DefaultConfig())
			},
			id: asyncops.ExtensionID,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			extension, err := tc.build()
			if err != nil {
				t.Fatalf("build extension: %v", err)
			}
			if extension.ID() != tc.id {
				t.Fatalf("unexpected extension id: %q", extension.ID())
			}
			if len(extension.Subscriptions()) == 0 {
				t.Fatalf("expected subscriptions for %q", tc.id)
			}
		})
	}
}

func TestStandardExtensionPack_RegistersBuiltins(t *testing.T) {
	pack := StandardExtensionPack()
	if pack.Name != "lifecycle-standard" {
		t.Fatalf("unexpected pack name: %q", pack.Name)
	}

	hooks := NewExtensionHooks()
	if err := hooks.RegisterExtensionPack(pack); err != nil {
		t.Fatalf("register standard pack: %v", err)
	}

	pipeline := core.NewPipeline()
	if err := hooks.ApplyExtensionPacks(pipeline, &stubFacadeService{}); err != nil {
		t.Fatalf("apply standard pack: %v", err)
	}

	ids := pipeline.Extensions()
	want := []string{asyncops.ExtensionID, cancelpoint.ExtensionID, lockguard.ExtensionID}
	if len(ids) != len(want) {
		t.Fatalf("unexpected extension count: %v", ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("unexpected extensions: %v", ids)
		}
	}
}
