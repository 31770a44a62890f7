package schemas

import "time"

// -- Task Queue Schemas --
//
// Tasks are submitted by the web dashboard through the gateway API and
// executed by whatever decision loop is attached to the queue. The gateway
// only tracks their lifecycle; it never interprets the prompt.

// TaskStatus is the lifecycle state of a queued task.
type TaskStatus string

const (
	TaskQueued    TaskStatus = "queued"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskStopped   TaskStatus = "stopped"
)

// Task is a single unit of dashboard-submitted work.
type Task struct {
	ID         string     `json:"id"`
	Prompt     string     `json:"prompt"`
	MaxSteps   int        `json:"max_steps"`
	Status     TaskStatus `json:"status"`
	Result     string     `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Clone returns a copy of the task safe to hand outside the queue's lock.
func (t *Task) Clone() *Task {
	c := *t
	if t.StartedAt != nil {
		started := *t.StartedAt
		c.StartedAt = &started
	}
	if t.FinishedAt != nil {
		finished := *t.FinishedAt
		c.FinishedAt = &finished
	}
	return &c
}
