package lock

import "context"

// Handle is held ownership of one session.
type Handle interface {
	// Refresh extends ownership while the run is in progress.
	Refresh(ctx context.Context) error
	// Release drops ownership if this handle still holds it.
	Release(ctx context.Context) error
}

// Locker guards the one-driver-per-session rule across processes.
type Locker interface {
	Acquire(ctx context.Context, sessionID string) (Handle, error)
}
