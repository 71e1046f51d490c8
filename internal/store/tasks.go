package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/btouchard/taskboard/internal/domain"
)

const taskSelect = `SELECT t.id, t.name, t.description, t.created_at, t.deadline, t.urgency,
	t.status, t.creator_id, c.username, c.email
	FROM tasks t LEFT JOIN users c ON c.id = t.creator_id`

// CreateTask inserts t together with one executor association per id, in a
// single transaction. t.ID is set on success. An executor id that matches no
// user yields domain.ErrNotFound and nothing is written.
func (s *SQLiteStore) CreateTask(ctx context.Context, t *domain.Task, executors []domain.UserID) error {
	if t.Status == "" {
		t.Status = domain.StatusCreated
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		var creator any
		if t.CreatorID != nil {
			creator = int64(*t.CreatorID)
		}

		res, err := tx.ExecContext(ctx, `INSERT INTO tasks (name, description, created_at, deadline, urgency, status, creator_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			t.Name, t.Description, formatTime(t.CreatedAt), formatOptionalTime(t.Deadline),
			boolToInt(t.Urgency), string(t.Status), creator)
		if err != nil {
			return fmt.Errorf("inserting task: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading task id: %w", err)
		}

		if err := insertExecutors(ctx, tx, id, executors); err != nil {
			return err
		}
		t.ID = id
		return nil
	})
}

// UpdateTask applies patch to task id and adds an association for every id
// in added, in a single transaction. The write only happens while the stored
// status still equals expected; otherwise ErrTaskChanged is returned and
// nothing is written.
func (s *SQLiteStore) UpdateTask(ctx context.Context, id int64, expected domain.Status, patch TaskPatch, added []domain.UserID) error {
	sets := []string{"status = status"}
	var args []any
	if patch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *patch.Description)
	}
	if patch.Urgency != nil {
		sets = append(sets, "urgency = ?")
		args = append(args, boolToInt(*patch.Urgency))
	}
	if patch.Deadline != nil {
		sets = append(sets, "deadline = ?")
		args = append(args, formatOptionalTime(patch.Deadline))
	}
	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	args = append(args, id, string(expected))

	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "UPDATE tasks SET "+strings.Join(sets, ", ")+" WHERE id = ? AND status = ?", args...)
		if err != nil {
			return fmt.Errorf("updating task: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var current string
			err := tx.QueryRowContext(ctx, "SELECT status FROM tasks WHERE id = ?", id).Scan(&current)
			if errors.Is(err, sql.ErrNoRows) {
				return notFound("task", id)
			}
			if err != nil {
				return fmt.Errorf("reading task status: %w", err)
			}
			return fmt.Errorf("task %d is %q, expected %q: %w", id, current, expected, ErrTaskChanged)
		}
		return insertExecutors(ctx, tx, id, added)
	})
}

func insertExecutors(ctx context.Context, tx *sql.Tx, taskID int64, executors []domain.UserID) error {
	for _, uid := range executors {
		_, err := tx.ExecContext(ctx, `INSERT INTO task_executors (user_id, task_id, is_executor) VALUES (?, ?, 1)`,
			int64(uid), taskID)
		if err != nil {
			if isForeignKeyViolation(err) {
				return notFound("user", int64(uid))
			}
			if isUniqueViolation(err) {
				return fmt.Errorf("executor %d on task %d: %w", uid, taskID, domain.ErrConflict)
			}
			return fmt.Errorf("inserting executor: %w", err)
		}
	}
	return nil
}

// GetTask returns the task with its creator and executors.
func (s *SQLiteStore) GetTask(ctx context.Context, id int64) (*domain.Task, error) {
	row := s.db.QueryRowContext(ctx, taskSelect+" WHERE t.id = ?", id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("task", id)
	}
	if err != nil {
		return nil, err
	}

	byTask, err := s.loadExecutors(ctx, []int64{t.ID})
	if err != nil {
		return nil, err
	}
	if ex, ok := byTask[t.ID]; ok {
		t.Executors = ex
	}
	return t, nil
}

// ListTasks returns tasks matching the filter, newest first.
func (s *SQLiteStore) ListTasks(ctx context.Context, f TaskFilter) ([]domain.Task, error) {
	query := taskSelect + " WHERE 1=1"
	var args []any

	if f.NameContains != "" {
		query += " AND t.name LIKE ? ESCAPE '\\'"
		args = append(args, "%"+escapeLike(f.NameContains)+"%")
	}
	if f.Status != "" {
		query += " AND t.status = ?"
		args = append(args, string(f.Status))
	}
	if f.CreatorID != 0 {
		query += " AND t.creator_id = ?"
		args = append(args, int64(f.CreatorID))
	}
	if f.CreatorUsername != "" {
		query += " AND c.username = ?"
		args = append(args, f.CreatorUsername)
	}
	if f.CreatorRole != "" {
		query += " AND c.role = ?"
		args = append(args, string(f.CreatorRole))
	}
	if f.ExecutorID != 0 {
		query += " AND EXISTS (SELECT 1 FROM task_executors te WHERE te.task_id = t.id AND te.user_id = ?)"
		args = append(args, int64(f.ExecutorID))
	}
	if f.ExecutorUsername != "" {
		query += ` AND EXISTS (SELECT 1 FROM task_executors te JOIN users u ON u.id = te.user_id
			WHERE te.task_id = t.id AND u.username = ?)`
		args = append(args, f.ExecutorUsername)
	}
	if !f.CreatedOn.IsZero() {
		day := f.CreatedOn.UTC().Truncate(24 * time.Hour)
		query += " AND t.created_at >= ? AND t.created_at < ?"
		args = append(args, formatTime(day), formatTime(day.Add(24*time.Hour)))
	}

	query += " ORDER BY t.created_at DESC, t.id DESC"

	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}

	var tasks []domain.Task
	var ids []int64
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		tasks = append(tasks, *t)
		ids = append(ids, t.ID)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	// The single connection must be released before the next query.
	_ = rows.Close()

	byTask, err := s.loadExecutors(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		if ex, ok := byTask[tasks[i].ID]; ok {
			tasks[i].Executors = ex
		}
	}
	return tasks, nil
}

// DeleteTask removes the task and, by cascade, its executor associations.
func (s *SQLiteStore) DeleteTask(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("task", id)
	}
	return nil
}

func (s *SQLiteStore) loadExecutors(ctx context.Context, taskIDs []int64) (map[int64][]domain.Executor, error) {
	out := make(map[int64][]domain.Executor, len(taskIDs))
	if len(taskIDs) == 0 {
		return out, nil
	}

	args := make([]any, 0, len(taskIDs))
	for _, id := range taskIDs {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT te.user_id, te.task_id, te.is_executor, u.username, u.email
		FROM task_executors te JOIN users u ON u.id = te.user_id
		WHERE te.task_id IN (`+placeholders(len(taskIDs))+`) ORDER BY te.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("loading executors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var e domain.Executor
		var uid int64
		var isExecutor int
		var ref domain.UserRef
		if err := rows.Scan(&uid, &e.TaskID, &isExecutor, &ref.Username, &ref.Email); err != nil {
			return nil, fmt.Errorf("scanning executor: %w", err)
		}
		e.UserID = domain.UserID(uid)
		e.IsExecutor = isExecutor != 0
		ref.ID = e.UserID
		e.User = &ref
		out[e.TaskID] = append(out[e.TaskID], e)
	}
	return out, rows.Err()
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var t domain.Task
	var createdAt, deadline, status string
	var urgency int
	var creatorID sql.NullInt64
	var creatorName, creatorEmail sql.NullString

	err := row.Scan(&t.ID, &t.Name, &t.Description, &createdAt, &deadline, &urgency,
		&status, &creatorID, &creatorName, &creatorEmail)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning task: %w", err)
	}

	t.CreatedAt = parseTime(createdAt)
	t.Deadline = parseOptionalTime(deadline)
	t.Urgency = urgency != 0
	t.Status = domain.Status(status)
	if creatorID.Valid {
		id := domain.UserID(creatorID.Int64)
		t.CreatorID = &id
		t.Creator = &domain.UserRef{ID: id, Username: creatorName.String, Email: creatorEmail.String}
	}
	t.Executors = []domain.Executor{}
	return &t, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
