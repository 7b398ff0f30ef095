package directory

import (
	"context"
	"time"
)

// RunSyncLoop syncs once immediately and then on every tick until ctx ends.
// A non-positive interval runs the initial sync only. Failures are logged and
// the loop keeps going.
func (s *Syncer) RunSyncLoop(ctx context.Context, interval time.Duration) {
	if s == nil {
		return
	}
	s.syncAll(ctx)
	if interval <= 0 {
		return
	}
	s.log.Info("directory_sync_loop_start", "interval", interval.String())

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("directory_sync_loop_stop", "reason", ctx.Err().Error())
			return
		case <-t.C:
			s.syncAll(ctx)
		}
	}
}

func (s *Syncer) syncAll(ctx context.Context) {
	if s.CanSyncLists() {
		if _, err := s.SyncLists(ctx); err != nil {
			s.log.Warn("directory_sync_error", "kind", "lists", "error", err.Error())
		}
	}
	if s.CanSyncChannels() {
		if _, err := s.SyncChannels(ctx); err != nil {
			s.log.Warn("directory_sync_error", "kind", "channels", "error", err.Error())
		}
	}
}
