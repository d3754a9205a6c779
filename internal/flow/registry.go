package flow

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"kycflow/internal/audit"
	"kycflow/internal/domain"
	"kycflow/pkg/platform/sentinel"
	"kycflow/pkg/requestcontext"
)

// Registry tracks the live flows of the process. Flows evicted from memory
// are resumed from the session store on lookup.
type Registry struct {
	deps   Deps
	source ConfigSource
	newID  func() string

	mu    sync.Mutex
	flows map[string]*Sequencer
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithIDGenerator overrides verification id generation (tests).
func WithIDGenerator(fn func() string) RegistryOption {
	return func(r *Registry) {
		if fn != nil {
			r.newID = fn
		}
	}
}

func NewRegistry(source ConfigSource, deps Deps, opts ...RegistryOption) (*Registry, error) {
	if source == nil {
		return nil, fmt.Errorf("flow config source is required")
	}
	deps, err := deps.withDefaults()
	if err != nil {
		return nil, err
	}
	r := &Registry{
		deps:   deps,
		source: source,
		newID:  uuid.NewString,
		flows:  make(map[string]*Sequencer),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// Start loads the user's flow configuration and starts a new session on its
// first step.
func (r *Registry) Start(ctx context.Context, userID string) (*Sequencer, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required: %w", sentinel.ErrInvalidInput)
	}
	cfg, err := r.source.FlowConfig(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load flow config: %w", err)
	}
	session, err := domain.NewVerificationSession(r.newID(), userID, cfg.Steps, cfg.Settings, r.deps.Now())
	if err != nil {
		return nil, err
	}
	seq := newSequencer(r.deps, session, deviceLabel(ctx))

	r.mu.Lock()
	r.flows[session.ID] = seq
	r.mu.Unlock()

	r.deps.Metrics.IncrementFlowsStarted()
	if err := seq.start(ctx, false); err != nil {
		return seq, err
	}
	return seq, nil
}

// Get returns a live flow, resuming it from the session store if needed.
func (r *Registry) Get(ctx context.Context, verificationID string) (*Sequencer, error) {
	r.mu.Lock()
	seq, ok := r.flows[verificationID]
	r.mu.Unlock()
	if ok {
		return seq, nil
	}

	session, err := r.deps.Sessions.Get(ctx, verificationID)
	if err != nil {
		return nil, err
	}
	resumed := newSequencer(r.deps, session, deviceLabel(ctx))

	r.mu.Lock()
	if existing, ok := r.flows[verificationID]; ok {
		r.mu.Unlock()
		return existing, nil
	}
	r.flows[verificationID] = resumed
	r.mu.Unlock()

	if err := resumed.start(ctx, true); err != nil {
		return resumed, err
	}
	return resumed, nil
}

// Close tears a flow down: the camera is released and the session dropped.
func (r *Registry) Close(ctx context.Context, verificationID string) error {
	seq, err := r.Get(ctx, verificationID)
	if err != nil {
		return err
	}
	r.remove(verificationID)
	seq.close(ctx, audit.ActionFlowClosed)
	return nil
}

// Restart closes a flow and starts a fresh one for the same user.
func (r *Registry) Restart(ctx context.Context, verificationID string) (*Sequencer, error) {
	seq, err := r.Get(ctx, verificationID)
	if err != nil {
		return nil, err
	}
	userID := seq.UserID()
	r.remove(verificationID)
	seq.close(ctx, audit.ActionFlowRestarted)
	return r.Start(ctx, userID)
}

// Shutdown exits every live step and forgets the flows. Sessions stay in the
// store so they can be resumed.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	flows := r.flows
	r.flows = make(map[string]*Sequencer)
	r.mu.Unlock()

	for _, seq := range flows {
		seq.mu.Lock()
		step := seq.step
		seq.step = nil
		seq.closed = true
		seq.mu.Unlock()
		if step != nil {
			step.Exit(ctx)
		}
	}
	r.deps.Camera.Release()
}

// Len is the number of flows in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flows)
}

func (r *Registry) remove(verificationID string) {
	r.mu.Lock()
	delete(r.flows, verificationID)
	r.mu.Unlock()
}

func deviceLabel(ctx context.Context) string {
	d, ok := requestcontext.DeviceInfo(ctx)
	if !ok {
		return ""
	}
	parts := make([]string, 0, 4)
	for _, p := range []string{d.Platform, d.OS, d.Browser} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if d.Mobile {
		parts = append(parts, "mobile")
	}
	return strings.Join(parts, "; ")
}
