package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventRequestValidated EventType = "request.validated"
	EventRequestExecuting EventType = "request.executing"
	EventRequestExecuted  EventType = "request.executed"
)

type FailureMode string

const (
	// FailureModeFatal aborts the dispatch and surfaces the handler error.
	FailureModeFatal FailureMode = "fatal"
	// FailureModeRecord keeps dispatching and collects the handler error.
	FailureModeRecord FailureMode = "record"
)

type HandlerFunc func(ctx context.Context, event *Event) error

type Subscription struct {
	Event    EventType
	Priority int
	Failure  FailureMode
	Handler  HandlerFunc
}

type Extension interface {
	ID() string
	Subscriptions() []Subscription
}

type LockDirective struct {
	Key          string
	Scope        LockScope
	Owner        string
	TTL          time.Duration
	Block        bool
	BlockTimeout time.Duration
	AutoRelease  bool
}

type AsyncDirective struct {
	OwnerID     string
	TTL         time.Duration
	CallbackURL string
	Metadata    map[string]any
}

type RequestDirectives struct {
	Lock              *LockDirective
	Async             *AsyncDirective
	CancellationToken string
}

// RequestState carries what extensions produced for one request. It lives
// on the event rather than in any shared registry, so concurrent requests
// never observe each other's locks or operations.
type RequestState struct {
	OperationID       string
	Lock              *HeldLock
	CancellationToken string
}

type Response struct {
	Status int            `json:"status"`
	Body   map[string]any `json:"body,omitempty"`
}

type Event struct {
	ID         string
	Type       EventType
	Function   string
	FnVersion  string
	Caller     Identity
	Payload    map[string]any
	Directives RequestDirectives
	State      *RequestState

	response *Response
	stopped  bool
}

func NewRequestEvent(function string, caller Identity, payload map[string]any) *Event {
	return &Event{
		ID:       uuid.NewString(),
		Function: strings.TrimSpace(function),
		Caller:   caller,
		Payload:  copyAnyMap(payload),
		State:    &RequestState{},
	}
}

// Respond records the terminal response for the request. The last write
// wins; extensions that stop propagation set it first.
func (e *Event) Respond(status int, body map[string]any) {
	if e == nil {
		return
	}
	e.response = &Response{Status: status, Body: copyAnyMap(body)}
}

func (e *Event) StopPropagation() {
	if e == nil {
		return
	}
	e.stopped = true
}

func (e *Event) Stopped() bool {
	return e != nil && e.stopped
}

func (e *Event) Response() (Response, bool) {
	if e == nil || e.response == nil {
		return Response{}, false
	}
	return *e.response, true
}

type HandlerError struct {
	ExtensionID string
	Event       EventType
	Err         error
}

type DispatchResult struct {
	Handled   int
	Stopped   bool
	StoppedBy string
	Recorded  []HandlerError
}

type registeredSubscription struct {
	extensionID  string
	registeredAt int
	subscription Subscription
}

// Pipeline routes request events to extension handlers in ascending
// priority order, with registration order breaking ties.
type Pipeline struct {
	mu            sync.RWMutex
	seq           int
	subscriptions map[EventType][]registeredSubscription
	logger        Logger
}

type PipelineOption func(*Pipeline)

func WithPipelineLogger(logger Logger) PipelineOption {
	return func(p *Pipeline) {
		if p == nil || logger == nil {
			return
		}
		p.logger = logger
	}
}

func NewPipeline(opts ...PipelineOption) *Pipeline {
	pipeline := &Pipeline{
		subscriptions: make(map[EventType][]registeredSubscription),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(pipeline)
		}
	}
	return pipeline
}

// Register installs an extension's subscriptions. Registering an extension
// whose ID is already present replaces its previous subscriptions.
func (p *Pipeline) Register(extension Extension) error {
	if p == nil {
		return fmt.Errorf("core: pipeline is required")
	}
	if extension == nil {
		return fmt.Errorf("core: extension is required")
	}
	id := strings.TrimSpace(extension.ID())
	if id == "" {
		return fmt.Errorf("core: extension id is required")
	}
	subscriptions := extension.Subscriptions()
	for _, subscription := range subscriptions {
		if subscription.Handler != nil && subscription.Event == "" {
			return fmt.Errorf("core: extension %q has a subscription without an event type", id)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(id)
	for _, subscription := range subscriptions {
		if subscription.Handler == nil {
			continue
		}
		if subscription.Failure == "" {
			subscription.Failure = FailureModeFatal
		}
		p.seq++
		p.subscriptions[subscription.Event] = append(p.subscriptions[subscription.Event], registeredSubscription{
			extensionID:  id,
			registeredAt: p.seq,
			subscription: subscription,
		})
	}
	return nil
}

// Unregister removes every subscription owned by the extension, reporting
// whether any were present.
func (p *Pipeline) Unregister(extensionID string) bool {
	if p == nil {
		return false
	}
	extensionID = strings.TrimSpace(extensionID)
	if extensionID == "" {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removeLocked(extensionID)
}

func (p *Pipeline) removeLocked(extensionID string) bool {
	removed := false
	for eventType, entries := range p.subscriptions {
		kept := entries[:0]
		for _, entry := range entries {
			if entry.extensionID == extensionID {
				removed = true
				continue
			}
			kept = append(kept, entry)
		}
		if len(kept) == 0 {
			delete(p.subscriptions, eventType)
			continue
		}
		p.subscriptions[eventType] = kept
	}
	return removed
}

// Extensions returns the distinct registered extension IDs in sorted order.
func (p *Pipeline) Extensions() []string {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	seen := map[string]struct{}{}
	for _, entries := range p.subscriptions {
		for _, entry := range entries {
			seen[entry.extensionID] = struct{}{}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Dispatch runs every handler subscribed to eventType against the event.
// A fatal handler error aborts the dispatch; recorded errors accumulate on
// the result. A handler stopping propagation ends the dispatch after it
// returns.
func (p *Pipeline) Dispatch(ctx context.Context, eventType EventType, event *Event) (DispatchResult, error) {
	result := DispatchResult{}
	if p == nil {
		return result, fmt.Errorf("core: pipeline is required")
	}
	if event == nil {
		return result, fmt.Errorf("core: event is required")
	}
	event.Type = eventType
	// A stop only scopes to one dispatch; the next phase starts fresh.
	event.stopped = false
	if event.State == nil {
		event.State = &RequestState{}
	}

	for _, entry := range p.orderedSubscriptions(eventType) {
		handler := entry.subscription.Handler
		if handler == nil {
			continue
		}
		err := handler(ctx, event)
		result.Handled++
		if err != nil {
			if entry.subscription.Failure == FailureModeRecord {
				result.Recorded = append(result.Recorded, HandlerError{
					ExtensionID: entry.extensionID,
					Event:       eventType,
					Err:         err,
				})
				p.logRecordedError(ctx, entry.extensionID, eventType, err)
			} else {
				return result, fmt.Errorf("core: extension %q failed handling %s: %w", entry.extensionID, eventType, err)
			}
		}
		if event.Stopped() {
			result.Stopped = true
			result.StoppedBy = entry.extensionID
			break
		}
	}
	return result, nil
}

func (p *Pipeline) orderedSubscriptions(eventType EventType) []registeredSubscription {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	entries := make([]registeredSubscription, len(p.subscriptions[eventType]))
	copy(entries, p.subscriptions[eventType])
	p.mu.RUnlock()

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].subscription.Priority != entries[j].subscription.Priority {
			return entries[i].subscription.Priority < entries[j].subscription.Priority
		}
		return entries[i].registeredAt < entries[j].registeredAt
	})
	return entries
}

func (p *Pipeline) logRecordedError(ctx context.Context, extensionID string, eventType EventType, err error) {
	if p == nil || p.logger == nil || err == nil {
		return
	}
	logger := p.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Error("extension handler error recorded",
		"extension_id", extensionID,
		"event_type", string(eventType),
		"error", err.Error(),
	)
}
