package store

import (
	"errors"
	"time"

	"github.com/btouchard/taskboard/internal/domain"
)

// ErrTaskChanged is returned by UpdateTask when the task's status no longer
// matches the one the caller read.
var ErrTaskChanged = errors.New("task changed concurrently")

// TaskPatch lists the task columns to overwrite. Nil fields are left as stored.
type TaskPatch struct {
	Description *string
	Urgency     *bool
	Deadline    *time.Time
	Status      *domain.Status
}

// TaskFilter specifies criteria for listing tasks.
type TaskFilter struct {
	NameContains     string
	Status           domain.Status
	CreatorUsername  string
	CreatorRole      domain.Role
	ExecutorUsername string
	ExecutorID       domain.UserID
	CreatorID        domain.UserID
	CreatedOn        time.Time
	Limit            int
	Offset           int
}

// UserFilter specifies criteria for listing users.
type UserFilter struct {
	Username string
	Role     domain.Role
	Limit    int
	Offset   int
}

var migrations = []string{
	`CREATE TABLE users (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		username   TEXT NOT NULL UNIQUE,
		email      TEXT NOT NULL UNIQUE,
		password   TEXT NOT NULL,
		role       TEXT NOT NULL DEFAULT 'user',
		created_at TEXT NOT NULL
	);
	CREATE TABLE tasks (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL,
		deadline    TEXT NOT NULL DEFAULT '',
		urgency     INTEGER NOT NULL DEFAULT 0,
		status      TEXT NOT NULL DEFAULT 'created',
		creator_id  INTEGER REFERENCES users(id) ON DELETE SET NULL
	);
	CREATE TABLE task_executors (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id     INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		task_id     INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		is_executor INTEGER NOT NULL DEFAULT 1,
		CONSTRAINT unique_user_task UNIQUE (user_id, task_id)
	);`,
	`CREATE INDEX idx_tasks_creator ON tasks(creator_id);
	CREATE INDEX idx_tasks_status ON tasks(status);
	CREATE INDEX idx_task_executors_task ON task_executors(task_id);`,
}
