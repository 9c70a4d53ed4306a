package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

const DefaultCategory = "general"

type Status string

const (
	StatusAll       Status = "all"
	StatusCompleted Status = "completed"
	StatusPending   Status = "pending"
)

type Task struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Completed bool       `json:"completed"`
	DueDate   *time.Time `json:"dueDate"`
	Priority  Priority   `json:"priority"`
	Category  string     `json:"category"`
	UserID    string     `json:"userId"`
	CreatedAt time.Time  `json:"createdAt"`
	User      *Account   `json:"user,omitempty"`
}

// ListFilter scopes a task listing. OwnerID takes precedence over
// UnassignedOnly. A zero Limit returns every matching task.
type ListFilter struct {
	OwnerID        string
	UnassignedOnly bool
	Status         Status
	Limit          int
	Offset         int
}

type CreateTaskInput struct {
	Title     string
	UserID    string
	UserEmail string
	DueDate   string
	Priority  string
	Category  string
}

// TaskPatch lists the only fields an update may touch. Nil fields are left
// unchanged; a DueDate pointing at an empty string clears the due date.
type TaskPatch struct {
	Title     *string
	Completed *bool
	DueDate   *string
	Priority  *string
	Category  *string
}

type TaskStats struct {
	Total                int64 `json:"total"`
	Completed            int64 `json:"completed"`
	Active               int64 `json:"active"`
	CompletionPercentage int   `json:"completionPercentage"`
}

const selectTasks = `SELECT t.id, t.title, t.completed, t.due_date, t.priority, t.category, t.user_id, t.created_at,
			  a.id, a.email, a.name
			  FROM tasks t
			  LEFT JOIN accounts a ON a.id = t.user_id`

func (s *Storage) ListTasks(ctx context.Context, f ListFilter) ([]*Task, error) {
	if f.Limit < 0 || f.Offset < 0 {
		return nil, invalidInput("limit and offset must not be negative")
	}

	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.OwnerID != "" {
		conds = append(conds, "t.user_id = "+arg(f.OwnerID))
	} else if f.UnassignedOnly {
		conds = append(conds, "t.user_id IS NULL")
	}

	switch f.Status {
	case "", StatusAll:
	case StatusCompleted:
		conds = append(conds, "t.completed = "+arg(true))
	case StatusPending:
		conds = append(conds, "t.completed = "+arg(false))
	default:
		return nil, invalidInput("unknown status %q", f.Status)
	}

	var sb strings.Builder
	sb.WriteString(selectTasks)
	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}
	sb.WriteString(" ORDER BY t.created_at DESC, t.id DESC")
	switch {
	case f.Limit > 0:
		sb.WriteString(" LIMIT " + arg(f.Limit))
	case f.Offset > 0:
		sb.WriteString(s.unlimited())
	}
	if f.Offset > 0 {
		sb.WriteString(" OFFSET " + arg(f.Offset))
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, storageError("list tasks", err)
	}
	defer rows.Close()

	tasks := []*Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, storageError("list tasks", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list tasks", err)
	}
	return tasks, nil
}

func (s *Storage) GetTask(ctx context.Context, id string) (*Task, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return getTask(ctx, s.db, id)
}

func (s *Storage) CreateTask(ctx context.Context, in CreateTaskInput) (*Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, invalidInput("title must be provided")
	}
	if strings.TrimSpace(in.UserID) == "" {
		return nil, ErrUnauthorized
	}

	priority := PriorityNormal
	if in.Priority != "" {
		p, err := parsePriority(in.Priority)
		if err != nil {
			return nil, err
		}
		priority = p
	}

	category := strings.TrimSpace(in.Category)
	if category == "" {
		category = DefaultCategory
	}

	t := &Task{
		ID:        uuid.NewString(),
		Title:     title,
		Completed: false,
		Priority:  priority,
		Category:  category,
		UserID:    in.UserID,
		CreatedAt: s.timestamp(),
	}
	if in.DueDate != "" {
		d, err := parseDueDate(in.DueDate)
		if err != nil {
			return nil, err
		}
		t.DueDate = &d
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var created bool
	err := s.inTx(ctx, "create task", func(tx *sql.Tx) error {
		a, c, err := resolveOrCreate(ctx, tx, in.UserID, in.UserEmail)
		if err != nil {
			if errors.Is(err, ErrMissingIdentityInfo) {
				return fmt.Errorf("%w: %w", ErrInvalidInput, err)
			}
			return err
		}
		t.User, created = a, c

		query := `INSERT INTO tasks (id, title, completed, due_date, priority, category, user_id, created_at)
				  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
		_, err = tx.ExecContext(ctx, query, t.ID, t.Title, t.Completed, nullTime(t.DueDate), string(t.Priority), t.Category, t.UserID, t.CreatedAt)
		if err != nil {
			return storageError("create task", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if created {
		s.provisioned(*t.User)
	}
	return t, nil
}

// Tasks of another owner are reported as not found when ownerID is set.
func (s *Storage) UpdateTask(ctx context.Context, id, ownerID string, p TaskPatch) (*Task, error) {
	var (
		sets []string
		args []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return nil, invalidInput("title must not be empty")
		}
		sets = append(sets, "title = "+arg(title))
	}
	if p.Completed != nil {
		sets = append(sets, "completed = "+arg(*p.Completed))
	}
	if p.DueDate != nil {
		var due sql.NullTime
		if *p.DueDate != "" {
			d, err := parseDueDate(*p.DueDate)
			if err != nil {
				return nil, err
			}
			due = sql.NullTime{Time: d, Valid: true}
		}
		sets = append(sets, "due_date = "+arg(due))
	}
	if p.Priority != nil {
		priority, err := parsePriority(*p.Priority)
		if err != nil {
			return nil, err
		}
		sets = append(sets, "priority = "+arg(string(priority)))
	}
	if p.Category != nil {
		category := strings.TrimSpace(*p.Category)
		if category == "" {
			return nil, invalidInput("category must not be empty")
		}
		sets = append(sets, "category = "+arg(category))
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var t *Task
	err := s.inTx(ctx, "update task", func(tx *sql.Tx) error {
		if len(sets) > 0 {
			query := "UPDATE tasks SET " + strings.Join(sets, ", ") + " WHERE id = " + arg(id)
			if ownerID != "" {
				query += " AND user_id = " + arg(ownerID)
			}
			res, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return storageError("update task", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return storageError("update task", err)
			}
			if n == 0 {
				return ErrNotFound
			}
		}

		var err error
		t, err = getTask(ctx, tx, id)
		if err != nil {
			return err
		}
		if ownerID != "" && t.UserID != ownerID {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Storage) DeleteTask(ctx context.Context, id, ownerID string) error {
	query := `DELETE FROM tasks
			  WHERE id = $1`
	args := []any{id}
	if ownerID != "" {
		query += " AND user_id = $2"
		args = append(args, ownerID)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return storageError("delete task", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageError("delete task", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Storage) DeleteCompletedTasks(ctx context.Context, ownerID string) (int64, error) {
	query := `DELETE FROM tasks
			  WHERE completed = $1`
	args := []any{true}
	if ownerID != "" {
		query += " AND user_id = $2"
		args = append(args, ownerID)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, storageError("delete completed tasks", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageError("delete completed tasks", err)
	}
	return n, nil
}

func (s *Storage) TaskStats(ctx context.Context, ownerID string) (*TaskStats, error) {
	query := `SELECT COUNT(*), COALESCE(SUM(CASE WHEN completed THEN 1 ELSE 0 END), 0)
			  FROM tasks`
	var args []any
	if ownerID != "" {
		query += " WHERE user_id = $1"
		args = append(args, ownerID)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var st TaskStats
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&st.Total, &st.Completed)
	if err != nil {
		return nil, storageError("task stats", err)
	}
	st.Active = st.Total - st.Completed
	if st.Total > 0 {
		st.CompletionPercentage = int(math.Floor(float64(st.Completed)*100/float64(st.Total) + 0.5))
	}
	return &st, nil
}

func (s *Storage) unlimited() string {
	if s.driver == DriverSQLite {
		return " LIMIT -1"
	}
	return " LIMIT ALL"
}

type scanner interface {
	Scan(dest ...any) error
}

func getTask(ctx context.Context, q querier, id string) (*Task, error) {
	row := q.QueryRowContext(ctx, selectTasks+" WHERE t.id = $1", id)
	t, err := scanTask(row)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, ErrNotFound
		default:
			return nil, storageError("get task", err)
		}
	}
	return t, nil
}

func scanTask(sc scanner) (*Task, error) {
	var (
		t                        Task
		priority                 string
		due                      sql.NullTime
		accID, accEmail, accName sql.NullString
	)
	err := sc.Scan(&t.ID, &t.Title, &t.Completed, &due, &priority, &t.Category, &t.UserID, &t.CreatedAt,
		&accID, &accEmail, &accName)
	if err != nil {
		return nil, err
	}
	t.Priority = Priority(priority)
	t.CreatedAt = t.CreatedAt.UTC()
	if due.Valid {
		d := due.Time.UTC()
		t.DueDate = &d
	}
	if accID.Valid {
		t.User = &Account{ID: accID.String, Email: accEmail.String, Name: accName.String}
	}
	return &t, nil
}

func parsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return p, nil
	default:
		return "", invalidInput("priority must be one of low, normal or high")
	}
}

var dueDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

func parseDueDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dueDateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d.UTC().Truncate(time.Microsecond), nil
		}
	}
	return time.Time{}, invalidInput("dueDate %q is not a valid date", s)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
