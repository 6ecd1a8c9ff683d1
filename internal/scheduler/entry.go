package scheduler

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ScheduleEntry describes a recurring background task. Each trigger enqueues
// one task of TaskType with Params; the processor picks it up like any other
// pending task.
type ScheduleEntry struct {
	ID          string         `yaml:"id" json:"id"`
	Title       string         `yaml:"title,omitempty" json:"title,omitempty"`
	CronSpec    string         `yaml:"cron,omitempty" json:"cron,omitempty"`
	IntervalSec int            `yaml:"interval_sec,omitempty" json:"interval_sec,omitempty"`
	TaskType    string         `yaml:"task_type" json:"task_type"`
	Params      map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
	CooldownSec int            `yaml:"cooldown_sec,omitempty" json:"cooldown_sec,omitempty"`
	MaxRuns     int            `yaml:"max_runs,omitempty" json:"max_runs,omitempty"`
	RunCount    int            `yaml:"run_count,omitempty" json:"run_count,omitempty"`
	Enabled     bool           `yaml:"enabled" json:"enabled"`
	CreatedAt   time.Time      `yaml:"created_at,omitempty" json:"created_at,omitempty"`
	LastRunAt   *time.Time     `yaml:"last_run_at,omitempty" json:"last_run_at,omitempty"`
}

// GenerateScheduleID creates a unique schedule identifier with "sched_" prefix.
func GenerateScheduleID() string {
	u := uuid.New().String()
	return "sched_" + strings.ReplaceAll(u[:8], "-", "")
}
