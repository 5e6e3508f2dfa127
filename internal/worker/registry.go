// Package worker defines the external worker boundary and the closed
// role-to-handler dispatch table.
package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/maestrohq/maestro/pkg/models"
)

// Worker executes one action given its minimal dependency sub-plan and
// returns the result text. Failures come back as ordinary errors; the
// coordinator converts them into structured step results.
type Worker func(ctx context.Context, action *models.Action, subPlan *models.Plan) (string, error)

// Registry maps worker roles to handlers. The role set is the closed
// models.Role enum, so an unregistered or unknown role is a hard error
// rather than a silent fallback.
type Registry struct {
	mu      sync.RWMutex
	workers map[models.Role]Worker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{workers: make(map[models.Role]Worker)}
}

// Register binds a handler to a role. Registering an unknown role or a
// nil handler is an error.
func (r *Registry) Register(role models.Role, w Worker) error {
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", role)
	}
	if w == nil {
		return fmt.Errorf("nil worker for role %s", role)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers[role] = w
	return nil
}

// RegisterAll binds one handler to every known role. Useful when a
// single backend serves all roles with different prompts.
func (r *Registry) RegisterAll(w Worker) error {
	for _, role := range models.Roles {
		if err := r.Register(role, w); err != nil {
			return err
		}
	}
	return nil
}

// Resolve returns the handler for a role.
func (r *Registry) Resolve(role models.Role) (Worker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[role]
	if !ok {
		return nil, fmt.Errorf("no worker registered for role %q", role)
	}
	return w, nil
}
