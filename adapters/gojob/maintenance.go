package gojob

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-lifecycle/core"
)

// Maintenance job ids. Hosts enqueue these on whatever cadence suits their
// deployment; the runner executes them from the queue.
const (
	JobIDOperationSweep = "lifecycle.operations.sweep"
	JobIDCachePurge     = "lifecycle.cache.purge"
)

// Maintenance message parameter keys.
const (
	ParameterBatchSize  = "batch_size"
	ParameterPurgeLimit = "purge_limit"
)

type MaintenanceConfig struct {
	SweepBatchSize int
	PurgeLimit     int
	RetryDelay     time.Duration
	Retry          RetryPolicy
	Hook           core.OperationWorkerHook
}

func DefaultMaintenanceConfig() MaintenanceConfig {
	return MaintenanceConfig{
		SweepBatchSize: 100,
		PurgeLimit:     500,
		RetryDelay:     30 * time.Second,
		Retry: RetryPolicy{
			MaxAttempts:     5,
			MaxDelay:        5 * time.Minute,
			DeadLetterOnMax: true,
		},
	}
}

// MaintenanceRunner executes the queue-scheduled cleanup jobs: the full
// expiry sweep and the lighter TTL-row purge that skips operation records.
type MaintenanceRunner struct {
	sweeper core.OperationSweeper
	purgers []core.ExpiredPurger
	config  MaintenanceConfig
	now     func() time.Time
}

func NewMaintenanceRunner(
	sweeper core.OperationSweeper,
	purgers []core.ExpiredPurger,
	config MaintenanceConfig,
) (*MaintenanceRunner, error) {
	if sweeper == nil {
		return nil, fmt.Errorf("gojob: operation sweeper is required")
	}
	defaults := DefaultMaintenanceConfig()
	if config.SweepBatchSize <= 0 {
		config.SweepBatchSize = defaults.SweepBatchSize
	}
	if config.PurgeLimit <= 0 {
		config.PurgeLimit = defaults.PurgeLimit
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = defaults.RetryDelay
	}
	if config.Retry == (RetryPolicy{}) {
		config.Retry = defaults.Retry
	}
	kept := make([]core.ExpiredPurger, 0, len(purgers))
	for _, purger := range purgers {
		if purger != nil {
			kept = append(kept, purger)
		}
	}
	return &MaintenanceRunner{
		sweeper: sweeper,
		purgers: kept,
		config:  config,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// SweepMessage builds the queue message that triggers an expired-operation
// sweep. A batchSize of zero defers to the runner's configured default.
func SweepMessage(batchSize int) *core.OperationExecutionMessage {
	parameters := map[string]any{}
	if batchSize > 0 {
		parameters[ParameterBatchSize] = batchSize
	}
	return &core.OperationExecutionMessage{
		Function:    JobIDOperationSweep,
		Parameters:  parameters,
		DedupPolicy: "drop",
	}
}

// CachePurgeMessage builds the queue message that purges expired TTL rows
// from the registered stores. A limit of zero defers to the runner default.
func CachePurgeMessage(limit int) *core.OperationExecutionMessage {
	parameters := map[string]any{}
	if limit > 0 {
		parameters[ParameterPurgeLimit] = limit
	}
	return &core.OperationExecutionMessage{
		Function:    JobIDCachePurge,
		Parameters:  parameters,
		DedupPolicy: "drop",
	}
}

// Handles reports whether function names a maintenance job this runner owns.
func (r *MaintenanceRunner) Handles(function string) bool {
	switch strings.TrimSpace(function) {
	case JobIDOperationSweep, JobIDCachePurge:
		return true
	}
	return false
}

// Run executes the maintenance job carried by msg.
func (r *MaintenanceRunner) Run(ctx context.Context, msg *core.OperationExecutionMessage) error {
	if r == nil {
		return fmt.Errorf("gojob: maintenance runner is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	switch strings.TrimSpace(msg.Function) {
	case JobIDOperationSweep:
		_, err := r.RunSweep(ctx, intParameter(msg.Parameters, ParameterBatchSize, r.config.SweepBatchSize))
		return err
	case JobIDCachePurge:
		_, err := r.RunPurge(ctx, intParameter(msg.Parameters, ParameterPurgeLimit, r.config.PurgeLimit))
		return err
	}
	return fmt.Errorf("gojob: unknown maintenance job %q", strings.TrimSpace(msg.Function))
}

// RunSweep deletes expired operations and purges collaborator rows through
// the sweeper.
func (r *MaintenanceRunner) RunSweep(ctx context.Context, batchSize int) (core.SweepStats, error) {
	if r == nil || r.sweeper == nil {
		return core.SweepStats{}, fmt.Errorf("gojob: maintenance runner is not configured")
	}
	if batchSize <= 0 {
		batchSize = r.config.SweepBatchSize
	}
	return r.sweeper.SweepOnce(ctx, batchSize)
}

// RunPurge removes expired TTL rows from the registered purgers without
// touching operation records. Purger errors are collected so one failing
// store does not block the others.
func (r *MaintenanceRunner) RunPurge(ctx context.Context, limit int) (int, error) {
	if r == nil {
		return 0, fmt.Errorf("gojob: maintenance runner is not configured")
	}
	if limit <= 0 {
		limit = r.config.PurgeLimit
	}
	cutoff := r.now()
	purged := 0
	var purgeErr error
	for _, purger := range r.purgers {
		count, err := purger.PurgeExpired(ctx, cutoff, limit)
		if err != nil {
			purgeErr = joinErrors(purgeErr, err)
			continue
		}
		purged += count
	}
	return purged, purgeErr
}

// HandleDelivery runs the delivered maintenance job, acking on success and
// nacking with bounded retry otherwise. attempt counts prior tries.
func (r *MaintenanceRunner) HandleDelivery(ctx context.Context, delivery core.OperationDelivery, attempt int) error {
	if r == nil {
		return fmt.Errorf("gojob: maintenance runner is not configured")
	}
	if delivery == nil {
		return fmt.Errorf("gojob: delivery is required")
	}
	msg := delivery.Message()
	if msg == nil {
		err := fmt.Errorf("gojob: delivery carries no message")
		if nackErr := delivery.Nack(ctx, core.OperationNackOptions{DeadLetter: true, Reason: err.Error()}); nackErr != nil {
			return joinErrors(err, nackErr)
		}
		return err
	}

	started := r.now()
	event := core.OperationWorkerEvent{Message: msg, Attempt: attempt, StartedAt: started}
	if r.config.Hook != nil {
		r.config.Hook.OnStart(ctx, event)
	}

	err := r.Run(ctx, msg)
	event.Duration = r.now().Sub(started)
	if err == nil {
		if r.config.Hook != nil {
			r.config.Hook.OnSuccess(ctx, event)
		}
		return delivery.Ack(ctx)
	}

	event.Err = err
	opts := r.config.Retry.NormalizeAttempt(core.OperationNackOptions{
		Delay:   r.config.RetryDelay,
		Requeue: true,
		Reason:  err.Error(),
	}, attempt)
	if r.config.Hook != nil {
		if opts.Requeue {
			event.Delay = opts.Delay
			r.config.Hook.OnRetry(ctx, event)
		} else {
			r.config.Hook.OnFailure(ctx, event)
		}
	}
	if nackErr := delivery.Nack(ctx, opts); nackErr != nil {
		return joinErrors(err, nackErr)
	}
	return err
}

func intParameter(parameters map[string]any, key string, fallback int) int {
	raw, ok := parameters[key]
	if !ok {
		return fallback
	}
	switch value := raw.(type) {
	case int:
		if value > 0 {
			return value
		}
	case int32:
		if value > 0 {
			return int(value)
		}
	case int64:
		if value > 0 {
			return int(value)
		}
	case float64:
		if value > 0 {
			return int(value)
		}
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func joinErrors(existing error, next error) error {
	if existing == nil {
		return next
	}
	if next == nil {
		return existing
	}
	return fmt.Errorf("%w; %v", existing, next)
}
