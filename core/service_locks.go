package core

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	maxResourceKeyLength = 128
	resourceKeyDelimiter = "::"

	lockMetadataKeyPrefix = "go-lifecycle::lockmeta::v1"
)

// lockMetadataRecord is the cache payload that backs status queries. It is
// written before the lock is exposed to the caller so status never has to
// probe the mutex itself.
type lockMetadataRecord struct {
	Key        string    `json:"key"`
	Scope      LockScope `json:"scope"`
	Function   string    `json:"function,omitempty"`
	Owner      string    `json:"owner"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// AcquireLock takes the named mutex and records lock metadata. With Block
// set it polls until the mutex frees up or BlockTimeout elapses; without
// it a held mutex fails immediately.
func (s *Service) AcquireLock(ctx context.Context, req AcquireLockRequest) (lock HeldLock, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"lock_key":   req.Key,
		"lock_scope": string(req.Scope),
		"function":   req.Function,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "acquire_lock", err, fields)
	}()

	if s == nil || s.mutex == nil || s.cache == nil {
		err = s.mapError(fmt.Errorf("core: mutex and cache are required"))
		return HeldLock{}, err
	}

	key := strings.TrimSpace(req.Key)
	if err = validateLockKey(key); err != nil {
		err = s.mapError(err)
		return HeldLock{}, err
	}
	scope, function, err := resolveLockScope(req.Scope, req.Function)
	if err != nil {
		err = s.mapError(err)
		return HeldLock{}, err
	}

	owner := strings.TrimSpace(req.Owner)
	if owner == "" {
		owner = uuid.NewString()
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = time.Duration(s.config.Locks.DefaultTTLSeconds) * time.Second
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	effective := effectiveLockKey(scope, function, key)
	if err = s.acquireMutex(ctx, req.Block, req.BlockTimeout, effective, key, owner, ttl); err != nil {
		err = s.mapError(err)
		return HeldLock{}, err
	}

	now := s.clock()
	record := lockMetadataRecord{
		Key:        key,
		Scope:      scope,
		Function:   function,
		Owner:      owner,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	if err = s.putLockMetadata(ctx, effective, record, ttl); err != nil {
		if _, releaseErr := s.mutex.Release(ctx, effective, owner); releaseErr != nil {
			s.logError(ctx, "lock rollback release failed", map[string]any{
				"lock_key": key,
				"error":    releaseErr.Error(),
			})
		}
		_, _ = s.cache.Forget(ctx, lockMetadataCacheKey(effective))
		err = s.mapError(err)
		return HeldLock{}, err
	}

	lock = HeldLock{
		Key:          key,
		EffectiveKey: effective,
		Scope:        scope,
		Function:     function,
		Owner:        owner,
		TTL:          ttl,
		AcquiredAt:   record.AcquiredAt,
		ExpiresAt:    record.ExpiresAt,
	}
	return lock, nil
}

func (s *Service) acquireMutex(
	ctx context.Context,
	block bool,
	blockTimeout time.Duration,
	effective, key, owner string,
	ttl time.Duration,
) error {
	acquired, err := s.mutex.TryAcquire(ctx, effective, owner, ttl)
	if err != nil {
		return err
	}
	if acquired {
		return nil
	}
	if !block {
		return fmt.Errorf("%w: %q", ErrLockAlreadyHeld, key)
	}

	if blockTimeout <= 0 {
		blockTimeout = ttl
	}
	pollInterval := time.Duration(s.config.Locks.BlockPollIntervalMS) * time.Millisecond
	if pollInterval <= 0 {
		pollInterval = 50 * time.Millisecond
	}
	deadline := s.clock().Add(blockTimeout)
	for {
		remaining := deadline.Sub(s.clock())
		if remaining <= 0 {
			return fmt.Errorf("%w: %q after %s", ErrLockAcquireTimeout, key, blockTimeout)
		}
		wait := pollInterval
		if wait > remaining {
			wait = remaining
		}
		if err := waitWithContext(ctx, wait); err != nil {
			return err
		}
		acquired, err = s.mutex.TryAcquire(ctx, effective, owner, ttl)
		if err != nil {
			return err
		}
		if acquired {
			return nil
		}
	}
}

// ReleaseLock verifies ownership against the stored metadata, releases the
// mutex, and clears the metadata entry.
func (s *Service) ReleaseLock(ctx context.Context, req ReleaseLockRequest) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"lock_key":   req.Key,
		"lock_scope": string(req.Scope),
		"function":   req.Function,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "release_lock", err, fields)
	}()

	if s == nil || s.mutex == nil || s.cache == nil {
		err = s.mapError(fmt.Errorf("core: mutex and cache are required"))
		return err
	}

	key := strings.TrimSpace(req.Key)
	if err = validateLockKey(key); err != nil {
		err = s.mapError(err)
		return err
	}
	scope, function, err := resolveLockScope(req.Scope, req.Function)
	if err != nil {
		err = s.mapError(err)
		return err
	}
	owner := strings.TrimSpace(req.Owner)
	if owner == "" {
		err = s.mapError(fmt.Errorf("core: lock owner is required"))
		return err
	}

	effective := effectiveLockKey(scope, function, key)
	record, found, err := s.getLockMetadata(ctx, effective)
	if err != nil {
		err = s.mapError(err)
		return err
	}
	if !found {
		err = s.mapError(fmt.Errorf("%w: %q", ErrLockNotFound, key))
		return err
	}
	if record.Owner != owner {
		err = s.mapError(fmt.Errorf("%w: %q", ErrLockOwnerMismatch, key))
		return err
	}

	released, err := s.mutex.Release(ctx, effective, owner)
	if err != nil {
		err = s.mapError(err)
		return err
	}
	if !released {
		s.logInfo(ctx, "lock mutex already expired at release", map[string]any{
			"lock_key": key,
			"owner":    owner,
		})
	}
	if _, forgetErr := s.cache.Forget(ctx, lockMetadataCacheKey(effective)); forgetErr != nil {
		err = s.mapError(forgetErr)
		return err
	}
	return nil
}

// ForceReleaseLock bypasses ownership. The caller must pass the configured
// authorizer, or be an admin when none is installed.
func (s *Service) ForceReleaseLock(ctx context.Context, req ForceReleaseLockRequest) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"lock_key":   req.Key,
		"lock_scope": string(req.Scope),
		"function":   req.Function,
		"reason":     req.Reason,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "force_release_lock", err, fields)
	}()

	if s == nil || s.mutex == nil || s.cache == nil {
		err = s.mapError(fmt.Errorf("core: mutex and cache are required"))
		return err
	}

	key := strings.TrimSpace(req.Key)
	if err = validateLockKey(key); err != nil {
		err = s.mapError(err)
		return err
	}
	scope, function, err := resolveLockScope(req.Scope, req.Function)
	if err != nil {
		err = s.mapError(err)
		return err
	}

	if s.forceReleaseAuthorizer != nil {
		if authErr := s.forceReleaseAuthorizer.AuthorizeForceRelease(ctx, req.Caller, key); authErr != nil {
			err = s.mapError(fmt.Errorf("%w: %v", ErrForceReleaseDenied, authErr))
			return err
		}
	} else if !req.Caller.Admin {
		err = s.mapError(fmt.Errorf("%w: admin required", ErrForceReleaseDenied))
		return err
	}

	effective := effectiveLockKey(scope, function, key)
	if _, err = s.mutex.ForceRelease(ctx, effective); err != nil {
		err = s.mapError(err)
		return err
	}
	if _, forgetErr := s.cache.Forget(ctx, lockMetadataCacheKey(effective)); forgetErr != nil {
		err = s.mapError(forgetErr)
		return err
	}
	return nil
}

// LockStatus derives the lock state from metadata alone. An expired or
// missing metadata entry reports unlocked.
func (s *Service) LockStatus(ctx context.Context, req LockStatusRequest) (status LockStatus, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"lock_key":   req.Key,
		"lock_scope": string(req.Scope),
		"function":   req.Function,
	}
	defer func() {
		fields["locked"] = status.Locked
		s.observeOperation(ctx, startedAt, "lock_status", err, fields)
	}()

	if s == nil || s.cache == nil {
		err = s.mapError(fmt.Errorf("core: cache is required"))
		return LockStatus{}, err
	}

	key := strings.TrimSpace(req.Key)
	if err = validateLockKey(key); err != nil {
		err = s.mapError(err)
		return LockStatus{}, err
	}
	scope, function, err := resolveLockScope(req.Scope, req.Function)
	if err != nil {
		err = s.mapError(err)
		return LockStatus{}, err
	}

	effective := effectiveLockKey(scope, function, key)
	record, found, err := s.getLockMetadata(ctx, effective)
	if err != nil {
		err = s.mapError(err)
		return LockStatus{}, err
	}
	status = LockStatus{Key: key}
	if !found {
		return status, nil
	}

	now := s.clock()
	if !now.Before(record.ExpiresAt) {
		return status, nil
	}

	remaining := int64(record.ExpiresAt.Sub(now).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	acquiredAt := record.AcquiredAt
	expiresAt := record.ExpiresAt
	status.Locked = true
	status.Owner = record.Owner
	status.AcquiredAt = &acquiredAt
	status.ExpiresAt = &expiresAt
	status.TTLRemaining = &remaining
	return status, nil
}

func (s *Service) putLockMetadata(ctx context.Context, effective string, record lockMetadataRecord, ttl time.Duration) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("core: lock metadata encode failed: %w", err)
	}
	grace := time.Duration(s.config.Locks.MetadataGraceSeconds) * time.Second
	if grace <= 0 {
		grace = 10 * time.Second
	}
	return s.cache.Put(ctx, lockMetadataCacheKey(effective), payload, ttl+grace)
}

func (s *Service) getLockMetadata(ctx context.Context, effective string) (lockMetadataRecord, bool, error) {
	payload, found, err := s.cache.Get(ctx, lockMetadataCacheKey(effective))
	if err != nil {
		return lockMetadataRecord{}, false, err
	}
	if !found {
		return lockMetadataRecord{}, false, nil
	}
	var record lockMetadataRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return lockMetadataRecord{}, false, fmt.Errorf("core: lock metadata decode failed: %w", err)
	}
	return record, true, nil
}

func resolveLockScope(scope LockScope, function string) (LockScope, string, error) {
	function = strings.TrimSpace(function)
	if scope == "" {
		if function != "" {
			scope = LockScopeFunction
		} else {
			scope = LockScopeGlobal
		}
	}
	if !scope.Valid() {
		return "", "", fmt.Errorf("core: invalid lock scope %q", scope)
	}
	if scope == LockScopeFunction {
		if err := validateFunctionName(function); err != nil {
			return "", "", err
		}
		return scope, function, nil
	}
	return LockScopeGlobal, "", nil
}

func effectiveLockKey(scope LockScope, function, key string) string {
	if scope == LockScopeFunction {
		return "fn" + resourceKeyDelimiter + function + resourceKeyDelimiter + key
	}
	return "global" + resourceKeyDelimiter + key
}

func lockMetadataCacheKey(effective string) string {
	return lockMetadataKeyPrefix + resourceKeyDelimiter + url.PathEscape(effective)
}

func validateLockKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key is required", ErrInvalidLockKey)
	}
	if len(key) > maxResourceKeyLength {
		return fmt.Errorf("%w: key exceeds %d characters", ErrInvalidLockKey, maxResourceKeyLength)
	}
	if strings.Contains(key, resourceKeyDelimiter) {
		return fmt.Errorf("%w: key must not contain %q", ErrInvalidLockKey, resourceKeyDelimiter)
	}
	if !validResourceKeyCharset(key) {
		return fmt.Errorf("%w: key contains unsupported characters", ErrInvalidLockKey)
	}
	return nil
}

func validResourceKeyCharset(value string) bool {
	for _, char := range value {
		switch {
		case char >= 'a' && char <= 'z':
		case char >= 'A' && char <= 'Z':
		case char >= '0' && char <= '9':
		case char == '_' || char == '-' || char == '.' || char == ':':
		default:
			return false
		}
	}
	return true
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
