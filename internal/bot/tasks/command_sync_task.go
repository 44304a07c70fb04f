package tasks

import (
	"context"
	"fmt"
)

// newCommandSyncTask re-runs command registration so chats that missed it at startup, or whose
// registration failed, catch up without a restart.
func newCommandSyncTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "command_sync")

	return func(ctx context.Context) error {
		summary, err := deps.Registrar.RegisterAll(ctx)
		if err != nil {
			return fmt.Errorf("command sync failed: %w", err)
		}

		if summary.Failed > 0 {
			log.WarnContext(ctx, "Command sync finished with failures", "guilds", summary.Guilds, "failed", summary.Failed)
			return nil
		}
		log.DebugContext(ctx, "Command sync finished", "guilds", summary.Guilds, "registered", summary.Registered)
		return nil
	}
}
