package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	cancellationKeyPrefix      = "go-lifecycle::cancel::v1"
	cancellationCheckKeyPrefix = "go-lifecycle::cancelcheck::v1"

	minCancellationTokenLength = 16
	maxCancellationTokenLength = 64
	cancellationTokenBytes     = 24
)

// RegisterCancellation stores an active cancellation token under TTL. An
// empty token in the request gets a generated one.
func (s *Service) RegisterCancellation(ctx context.Context, req RegisterCancellationRequest) (token string, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		s.observeOperation(ctx, startedAt, "register_cancellation", err, fields)
	}()

	if s == nil || s.cache == nil {
		err = s.mapError(fmt.Errorf("core: cache is required"))
		return "", err
	}

	token = strings.TrimSpace(req.Token)
	if token == "" {
		token, err = generateCancellationToken()
		if err != nil {
			err = s.mapError(err)
			return "", err
		}
	}
	if err = validateCancellationToken(token); err != nil {
		err = s.mapError(err)
		return "", err
	}

	ttl := req.TTL
	if ttl <= 0 {
		ttl = time.Duration(s.config.Cancellation.TokenTTLSeconds) * time.Second
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	if err = s.cache.Put(ctx, cancellationTokenKey(token), []byte(CancellationStatusActive), ttl); err != nil {
		err = s.mapError(err)
		return "", err
	}
	return token, nil
}

// CheckAndConsumeCancellation reports whether cancellation was signaled
// for the token, clearing it when it was. The read and the clear run under
// a token scoped micro lock so concurrent pollers observe the cancelled
// state exactly once. When the micro lock is contended the call reports
// not cancelled and leaves the token for the holder.
func (s *Service) CheckAndConsumeCancellation(ctx context.Context, token string) (cancelled bool, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		fields["cancelled"] = cancelled
		s.observeOperation(ctx, startedAt, "check_cancellation", err, fields)
	}()

	if s == nil || s.cache == nil || s.mutex == nil {
		err = s.mapError(fmt.Errorf("core: mutex and cache are required"))
		return false, err
	}
	token = strings.TrimSpace(token)
	if err = validateCancellationToken(token); err != nil {
		err = s.mapError(err)
		return false, err
	}

	checkTTL := time.Duration(s.config.Cancellation.CheckLockTTLSeconds) * time.Second
	if checkTTL <= 0 {
		checkTTL = 3 * time.Second
	}
	lockName := cancellationCheckKey(token)
	lockOwner := uuid.NewString()
	held, err := s.mutex.TryAcquire(ctx, lockName, lockOwner, checkTTL)
	if err != nil {
		err = s.mapError(err)
		return false, err
	}
	if !held {
		return false, nil
	}
	defer func() {
		_, _ = s.mutex.Release(ctx, lockName, lockOwner)
	}()

	payload, found, err := s.cache.Get(ctx, cancellationTokenKey(token))
	if err != nil {
		err = s.mapError(err)
		return false, err
	}
	if !found {
		return false, nil
	}
	if CancellationStatus(payload) != CancellationStatusCancelled {
		return false, nil
	}
	if _, forgetErr := s.cache.Forget(ctx, cancellationTokenKey(token)); forgetErr != nil {
		err = s.mapError(forgetErr)
		return false, err
	}
	cancelled = true
	return cancelled, nil
}

// CancelToken marks the token cancelled, re-affirming its TTL, and reports
// whether the token was known. Cancelling an unknown token still records
// the signal so a registration racing behind the cancel can observe it.
func (s *Service) CancelToken(ctx context.Context, req CancelTokenRequest) (known bool, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		fields["known"] = known
		s.observeOperation(ctx, startedAt, "cancel_token", err, fields)
	}()

	if s == nil || s.cache == nil {
		err = s.mapError(fmt.Errorf("core: cache is required"))
		return false, err
	}
	token := strings.TrimSpace(req.Token)
	if err = validateCancellationToken(token); err != nil {
		err = s.mapError(err)
		return false, err
	}

	_, known, err = s.cache.Get(ctx, cancellationTokenKey(token))
	if err != nil {
		err = s.mapError(err)
		return false, err
	}

	ttl := time.Duration(s.config.Cancellation.TokenTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if err = s.cache.Put(ctx, cancellationTokenKey(token), []byte(CancellationStatusCancelled), ttl); err != nil {
		err = s.mapError(err)
		return false, err
	}
	return known, nil
}

// CleanupToken removes the token unconditionally.
func (s *Service) CleanupToken(ctx context.Context, req CleanupTokenRequest) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		s.observeOperation(ctx, startedAt, "cleanup_token", err, fields)
	}()

	if s == nil || s.cache == nil {
		err = s.mapError(fmt.Errorf("core: cache is required"))
		return err
	}
	token := strings.TrimSpace(req.Token)
	if err = validateCancellationToken(token); err != nil {
		err = s.mapError(err)
		return err
	}
	if _, forgetErr := s.cache.Forget(ctx, cancellationTokenKey(token)); forgetErr != nil {
		err = s.mapError(forgetErr)
		return err
	}
	return nil
}

func cancellationTokenKey(token string) string {
	return cancellationKeyPrefix + resourceKeyDelimiter + token
}

func cancellationCheckKey(token string) string {
	return cancellationCheckKeyPrefix + resourceKeyDelimiter + token
}

func generateCancellationToken() (string, error) {
	buf := make([]byte, cancellationTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("core: cancellation token generation failed: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func validateCancellationToken(token string) error {
	if len(token) < minCancellationTokenLength || len(token) > maxCancellationTokenLength {
		return fmt.Errorf("%w: length must be between %d and %d characters",
			ErrInvalidCancellationToken, minCancellationTokenLength, maxCancellationTokenLength)
	}
	for _, char := range token {
		switch {
		case char >= 'a' && char <= 'z':
		case char >= 'A' && char <= 'Z':
		case char >= '0' && char <= '9':
		case char == '_' || char == '-':
		default:
			return fmt.Errorf("%w: unsupported characters", ErrInvalidCancellationToken)
		}
	}
	return nil
}
