// Package syncer coordinates replication between the device store and the
// remote snapshot store.
//
// Pull-then-apply is a destructive replace: local edits made while a pull is
// in flight, and any pending journal entries, are overwritten by the remote
// snapshot. Push pending changes before pulling when that matters.
package syncer

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"daycard/internal/apperr"
	"daycard/internal/localstore"
	"daycard/internal/model"
	"daycard/pkg/metrics"
)

// Remote is the server side as seen from the device.
type Remote interface {
	Pull(ctx context.Context, since string) (*model.Snapshot, error)
	Push(ctx context.Context, cs model.Changeset) error
}

// Local is the device store.
type Local interface {
	Apply(ctx context.Context, snap *model.Snapshot) error
	BuildChangeset(ctx context.Context) (model.Changeset, []localstore.Change, error)
	Acknowledge(ctx context.Context, changes []localstore.Change) error
}

type Coordinator struct {
	remote Remote
	local  Local
	logger *zap.Logger

	mu     sync.Mutex
	pulled bool
}

func NewCoordinator(remote Remote, local Local, logger *zap.Logger) *Coordinator {
	return &Coordinator{remote: remote, local: local, logger: logger}
}

// Pull returns the remote snapshot, or nil when the remote cannot be reached
// or refuses the credential. It never returns an error: nil means this
// session stays local-only.
func (c *Coordinator) Pull(ctx context.Context, since string) *model.Snapshot {
	snap, err := c.remote.Pull(ctx, since)
	if err != nil {
		metrics.IncrementSyncOperation("client_pull", "unavailable")
		c.logger.Warn("Remote pull failed, staying local-only",
			zap.String("kind", string(apperr.KindOf(err))),
			zap.Error(err),
		)
		return nil
	}
	metrics.IncrementSyncOperation("client_pull", "ok")
	return snap
}

// Apply replaces every local collection with snap atomically.
func (c *Coordinator) Apply(ctx context.Context, snap *model.Snapshot) error {
	if snap == nil {
		return errors.New("apply: nil snapshot")
	}
	return c.local.Apply(ctx, snap)
}

// Push sends cs as is. An empty changeset is not sent.
func (c *Coordinator) Push(ctx context.Context, cs model.Changeset) error {
	if cs.IsEmpty() {
		return nil
	}
	if err := cs.Validate(); err != nil {
		return err
	}
	if err := c.remote.Push(ctx, cs); err != nil {
		metrics.IncrementSyncOperation("client_push", "unavailable")
		return err
	}
	metrics.IncrementSyncOperation("client_push", "ok")
	return nil
}

// PushPending pushes the local journal and acknowledges it on success. It
// returns the number of rows sent.
func (c *Coordinator) PushPending(ctx context.Context) (int, error) {
	cs, changes, err := c.local.BuildChangeset(ctx)
	if err != nil {
		return 0, err
	}
	if cs.IsEmpty() {
		// Upserts of rows deleted since; nothing left to send.
		return 0, c.local.Acknowledge(ctx, changes)
	}
	if err := c.Push(ctx, cs); err != nil {
		return 0, err
	}
	if err := c.local.Acknowledge(ctx, changes); err != nil {
		return 0, err
	}
	c.logger.Info("Pending changes pushed", zap.Int("rows", cs.Size()))
	return cs.Size(), nil
}

// StartSession pulls once per coordinator lifetime and applies the result.
// It reports whether a snapshot was applied; a failed pull is not an error.
func (c *Coordinator) StartSession(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pulled {
		return false, nil
	}
	c.pulled = true

	snap := c.Pull(ctx, "")
	if snap == nil {
		return false, nil
	}
	if err := c.Apply(ctx, snap); err != nil {
		return false, err
	}
	return true, nil
}

// Sync pushes pending changes, then pulls and applies. When the push fails
// the pull is skipped so unsent local edits survive.
func (c *Coordinator) Sync(ctx context.Context) (pushed int, applied bool, err error) {
	pushed, err = c.PushPending(ctx)
	if err != nil {
		return 0, false, err
	}
	snap := c.Pull(ctx, "")
	if snap == nil {
		return pushed, false, nil
	}
	if err := c.Apply(ctx, snap); err != nil {
		return pushed, false, err
	}
	return pushed, true, nil
}
