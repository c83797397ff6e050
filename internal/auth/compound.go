package auth

import (
	"context"
	"net/http"
)

type CompoundAuthEngine struct {
	engines []AuthEngine
}

// NewCompoundAuthEngine creates a new CompoundAuthEngine with the given AuthEngines.
func NewCompoundAuthEngine(engines ...AuthEngine) *CompoundAuthEngine {
	return &CompoundAuthEngine{
		engines: engines,
	}
}

// AuthenticateRequest accepts the request if any of the wrapped engines
// accepts it. Errors from individual engines are treated as rejections.
func (e *CompoundAuthEngine) AuthenticateRequest(ctx context.Context, r *http.Request) (bool, error) {
	for _, engine := range e.engines {
		if ok, err := engine.AuthenticateRequest(ctx, r); ok && err == nil {
			return true, nil
		}
	}

	return false, nil
}
