package observability

import "context"

// Checker is implemented by every dependency that participates in the
// readiness probe. Implementations must honor the context deadline.
type Checker interface {
	// Name identifies the component ("postgres", "redis").
	Name() string
	// Check returns nil when the dependency is reachable and serving.
	Check(ctx context.Context) error
}
