package optimization

import (
	"context"
	"time"
)

// RemoteService submits and tracks runs on the remote optimizer.
type RemoteService interface {
	Submit(ctx context.Context, params Params) (string, error)
	Status(ctx context.Context, remoteJobID string) (RemoteStatus, error)
	Cancel(ctx context.Context, remoteJobID string) error
}

// Repository is the job ledger.
type Repository interface {
	Upsert(ctx context.Context, job Job) error
	Get(ctx context.Context, requestID string) (Job, bool, error)
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
}
