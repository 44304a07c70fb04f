package tasks

import (
	"context"

	"github.com/edgard/ohirun/internal/config"
)

// ScheduledTaskFunc is the signature of every scheduled task. Tasks must honour ctx.
type ScheduledTaskFunc func(ctx context.Context) error

// RegisterAllTasks returns the available tasks keyed by the name used under scheduler.tasks
// in the configuration.
func RegisterAllTasks(deps TaskDeps) map[string]ScheduledTaskFunc {
	tasks := map[string]ScheduledTaskFunc{
		config.TaskSQLMaintenance: newSQLMaintenanceTask(deps),
		config.TaskCommandSync:    newCommandSyncTask(deps),
	}

	deps.Logger.Info("Initialized scheduled tasks", "count", len(tasks))
	return tasks
}
