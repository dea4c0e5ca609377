// Package identity provides the execution identity used by unattended
// retention runs.
//
// Background processing acts on files across every managed container, so it
// needs a privileged identity. Instead of switching a process-wide session,
// the identity is bound into an explicit ExecutionContext value that travels
// with the context.Context passed to the executor and the storage backend,
// and is released in a deferred cleanup step when the run ends:
//
//	id, err := provider.FindPrivilegedIdentity(ctx)
//	exec, err := provider.BindExecutionContext(ctx, id)
//	defer provider.ClearExecutionContext(ctx, exec)
//	ctx = identity.WithExecution(ctx, exec)
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNoPrivilegedIdentity is returned when no identity with sufficient
// rights can be found.
var ErrNoPrivilegedIdentity = errors.New("no privileged identity available")

// Identity is a principal that storage operations are performed as.
type Identity struct {
	ID    string   `json:"id" yaml:"id"`
	Name  string   `json:"name" yaml:"name"`
	Roles []string `json:"roles" yaml:"roles"`
}

// HasRole reports whether the identity carries role.
func (i *Identity) HasRole(role string) bool {
	return i != nil && slices.Contains(i.Roles, role)
}

// ExecutionContext is a scoped binding of an identity to one run.
type ExecutionContext struct {
	SessionID string
	Identity  Identity
	BoundAt   time.Time
}

// Provider finds and binds execution identities.
type Provider interface {
	// FindPrivilegedIdentity returns an identity able to act across all
	// containers, or ErrNoPrivilegedIdentity.
	FindPrivilegedIdentity(ctx context.Context) (*Identity, error)

	// BindExecutionContext opens a session for the identity.
	BindExecutionContext(ctx context.Context, id *Identity) (*ExecutionContext, error)

	// ClearExecutionContext closes a session opened by BindExecutionContext.
	ClearExecutionContext(ctx context.Context, exec *ExecutionContext) error
}

type contextKey string

const executionKey contextKey = "execution"

// WithExecution attaches an execution context to ctx.
func WithExecution(ctx context.Context, exec *ExecutionContext) context.Context {
	return context.WithValue(ctx, executionKey, exec)
}

// FromContext returns the execution context attached to ctx, if any.
func FromContext(ctx context.Context) (*ExecutionContext, bool) {
	exec, ok := ctx.Value(executionKey).(*ExecutionContext)
	return exec, ok && exec != nil
}

// StaticProvider serves a single configured service identity.
type StaticProvider struct {
	identity     *Identity
	requiredRole string

	mu       sync.Mutex
	sessions map[string]*ExecutionContext
	logger   *slog.Logger
}

// NewStaticProvider creates a provider for a configured identity. When
// requiredRole is non-empty the identity must carry it to count as
// privileged. A nil identity makes every lookup fail.
func NewStaticProvider(id *Identity, requiredRole string) *StaticProvider {
	return &StaticProvider{
		identity:     id,
		requiredRole: requiredRole,
		sessions:     make(map[string]*ExecutionContext),
		logger:       slog.Default().With("component", "identity"),
	}
}

// FindPrivilegedIdentity returns the configured identity when it qualifies.
func (p *StaticProvider) FindPrivilegedIdentity(ctx context.Context) (*Identity, error) {
	if p.identity == nil || p.identity.ID == "" {
		return nil, ErrNoPrivilegedIdentity
	}
	if p.requiredRole != "" && !p.identity.HasRole(p.requiredRole) {
		return nil, fmt.Errorf("%w: identity %q lacks role %q",
			ErrNoPrivilegedIdentity, p.identity.ID, p.requiredRole)
	}
	c := *p.identity
	c.Roles = slices.Clone(p.identity.Roles)
	return &c, nil
}

// BindExecutionContext opens a session for id.
func (p *StaticProvider) BindExecutionContext(ctx context.Context, id *Identity) (*ExecutionContext, error) {
	if id == nil {
		return nil, ErrNoPrivilegedIdentity
	}
	exec := &ExecutionContext{
		SessionID: uuid.NewString(),
		Identity:  *id,
		BoundAt:   time.Now().UTC(),
	}

	p.mu.Lock()
	p.sessions[exec.SessionID] = exec
	p.mu.Unlock()

	p.logger.Debug("execution context bound",
		"identity", id.ID,
		"session_id", exec.SessionID,
	)
	return exec, nil
}

// ClearExecutionContext closes a session. Clearing an unknown or nil
// session is a no-op.
func (p *StaticProvider) ClearExecutionContext(ctx context.Context, exec *ExecutionContext) error {
	if exec == nil {
		return nil
	}

	p.mu.Lock()
	delete(p.sessions, exec.SessionID)
	p.mu.Unlock()

	p.logger.Debug("execution context cleared",
		"identity", exec.Identity.ID,
		"session_id", exec.SessionID,
	)
	return nil
}

// ActiveSessions returns the number of bound, uncleared sessions.
func (p *StaticProvider) ActiveSessions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}
