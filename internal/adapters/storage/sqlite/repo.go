package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hylla/nexus/internal/app"
	"github.com/hylla/nexus/internal/domain"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// busyTimeoutMS bounds lock waits for concurrent serve + CLI access.
const busyTimeoutMS = 5000

// Repository implements app.Repository and app.Notifier over SQLite.
type Repository struct {
	db *sql.DB
}

// Open opens the requested operation.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return newRepository(db, true)
}

// OpenInMemory opens a private in-memory database.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	return newRepository(db, false)
}

func newRepository(db *sql.DB, wal bool) (*Repository, error) {
	// One connection keeps pragmas and in-memory databases attached to every query.
	db.SetMaxOpenConns(1)
	repo := &Repository{db: db}
	if err := repo.configure(context.Background(), wal); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the requested operation.
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) configure(ctx context.Context, wal bool) error {
	pragmas := []string{
		`PRAGMA foreign_keys = ON;`,
		fmt.Sprintf(`PRAGMA busy_timeout = %d;`, busyTimeoutMS),
	}
	if wal {
		pragmas = append(pragmas, `PRAGMA journal_mode = WAL;`, `PRAGMA synchronous = NORMAL;`)
	}
	for _, stmt := range pragmas {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("configure sqlite: %w", err)
		}
	}
	return nil
}

// migrate handles migrate.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS project_members (
			project_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL CHECK (role IN ('member', 'lead')),
			created_at TEXT NOT NULL,
			PRIMARY KEY (project_id, user_id),
			FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			assignee_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL CHECK (status IN ('TODO', 'IN_PROGRESS', 'BLOCKED', 'DONE')),
			created_by TEXT NOT NULL DEFAULT '',
			updated_by TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			deleted_at TEXT,
			FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS comments (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			author_id TEXT NOT NULL,
			body TEXT NOT NULL CHECK (length(trim(body)) > 0),
			created_at TEXT NOT NULL,
			FOREIGN KEY(task_id) REFERENCES tasks(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			recipient_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			message TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS change_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			operation TEXT NOT NULL,
			actor_id TEXT NOT NULL DEFAULT '',
			metadata_json TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_project_live ON tasks(project_id, deleted_at, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_comments_task_created ON comments(task_id, created_at, id);`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_change_events_task ON change_events(task_id, id);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// CreateProject creates project.
func (r *Repository) CreateProject(ctx context.Context, p domain.Project) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO projects(id, name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.Description, ts(p.CreatedAt), ts(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// GetProject returns project.
func (r *Repository) GetProject(ctx context.Context, id string) (domain.Project, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM projects
		WHERE id = ?
	`, id)
	var (
		p          domain.Project
		createdRaw string
		updatedRaw string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &createdRaw, &updatedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Project{}, app.ErrNotFound
		}
		return domain.Project{}, err
	}
	p.CreatedAt = parseTS(createdRaw)
	p.UpdatedAt = parseTS(updatedRaw)
	return p, nil
}

// AddProjectMember inserts a membership or updates the role of an existing one.
func (r *Repository) AddProjectMember(ctx context.Context, m domain.Membership) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO project_members(project_id, user_id, role, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(project_id, user_id) DO UPDATE SET role = excluded.role
	`, m.ProjectID, m.UserID, string(m.Role), ts(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("upsert project member: %w", err)
	}
	return nil
}

// ListProjectMembers lists project members.
func (r *Repository) ListProjectMembers(ctx context.Context, projectID string) ([]domain.Membership, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT project_id, user_id, role, created_at
		FROM project_members
		WHERE project_id = ?
		ORDER BY user_id ASC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Membership{}
	for rows.Next() {
		var (
			m          domain.Membership
			roleRaw    string
			createdRaw string
		)
		if err := rows.Scan(&m.ProjectID, &m.UserID, &roleRaw, &createdRaw); err != nil {
			return nil, err
		}
		m.Role = domain.Role(roleRaw)
		m.CreatedAt = parseTS(createdRaw)
		out = append(out, m)
	}
	return out, rows.Err()
}

// CreateTask creates task.
func (r *Repository) CreateTask(ctx context.Context, t domain.Task) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks(id, project_id, title, description, assignee_id, status, created_by, updated_by, created_at, updated_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID,
		t.ProjectID,
		t.Title,
		t.Description,
		t.AssigneeID,
		string(t.Status),
		t.CreatedBy,
		t.UpdatedBy,
		ts(t.CreatedAt),
		ts(t.UpdatedAt),
		nullableTS(t.DeletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}

	err = insertChangeEvent(ctx, tx, domain.ChangeEvent{
		ProjectID:  t.ProjectID,
		TaskID:     t.ID,
		Operation:  domain.ChangeOperationCreate,
		ActorID:    t.CreatedBy,
		Metadata:   map[string]string{"status": string(t.Status), "title": t.Title},
		OccurredAt: t.CreatedAt,
	})
	if err != nil {
		return err
	}

	err = tx.Commit()
	return err
}

// UpdateTask writes task fields, including the soft-delete marker.
func (r *Repository) UpdateTask(ctx context.Context, t domain.Task) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	prev, err := getTaskByID(ctx, tx, t.ID)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE tasks
		SET title = ?, description = ?, assignee_id = ?, status = ?, updated_by = ?, updated_at = ?, deleted_at = ?
		WHERE id = ?
	`,
		t.Title,
		t.Description,
		t.AssigneeID,
		string(t.Status),
		t.UpdatedBy,
		ts(t.UpdatedAt),
		nullableTS(t.DeletedAt),
		t.ID,
	)
	if err != nil {
		return err
	}
	if err = translateNoRows(res); err != nil {
		return err
	}

	op, metadata, changed := classifyTaskChange(prev, t)
	if changed {
		err = insertChangeEvent(ctx, tx, domain.ChangeEvent{
			ProjectID:  t.ProjectID,
			TaskID:     t.ID,
			Operation:  op,
			ActorID:    t.UpdatedBy,
			Metadata:   metadata,
			OccurredAt: t.UpdatedAt,
		})
		if err != nil {
			return err
		}
	}

	err = tx.Commit()
	return err
}

// ApplyTransition writes a status change and its optional reason comment atomically.
func (r *Repository) ApplyTransition(ctx context.Context, t domain.Task, comment *domain.Comment) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	prev, err := getTaskByID(ctx, tx, t.ID)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, updated_by = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`, string(t.Status), t.UpdatedBy, ts(t.UpdatedAt), t.ID)
	if err != nil {
		return err
	}
	if err = translateNoRows(res); err != nil {
		return err
	}

	metadata := map[string]string{
		"from_status": string(prev.Status),
		"to_status":   string(t.Status),
	}
	op := domain.ChangeOperationStatus
	if comment != nil {
		if err = insertComment(ctx, tx, *comment); err != nil {
			return err
		}
		op = domain.ChangeOperationBlock
		metadata["comment_id"] = comment.ID
	}

	err = insertChangeEvent(ctx, tx, domain.ChangeEvent{
		ProjectID:  t.ProjectID,
		TaskID:     t.ID,
		Operation:  op,
		ActorID:    t.UpdatedBy,
		Metadata:   metadata,
		OccurredAt: t.UpdatedAt,
	})
	if err != nil {
		return err
	}

	err = tx.Commit()
	return err
}

// GetTask returns task.
func (r *Repository) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return getTaskByID(ctx, r.db, id)
}

// ListTasks lists tasks.
func (r *Repository) ListTasks(ctx context.Context, projectID string, includeDeleted bool) ([]domain.Task, error) {
	query := `
		SELECT id, project_id, title, description, assignee_id, status, created_by, updated_by, created_at, updated_at, deleted_at
		FROM tasks
		WHERE project_id = ?
	`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

// ListTaskComments lists comments oldest first.
func (r *Repository) ListTaskComments(ctx context.Context, taskID string) ([]domain.Comment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, task_id, author_id, body, created_at
		FROM comments
		WHERE task_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Comment, 0)
	for rows.Next() {
		comment, scanErr := scanComment(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, comment)
	}
	return out, rows.Err()
}

// LatestTaskComment returns the newest comment or app.ErrNotFound.
func (r *Repository) LatestTaskComment(ctx context.Context, taskID string) (domain.Comment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, task_id, author_id, body, created_at
		FROM comments
		WHERE task_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`, taskID)
	return scanComment(row)
}

// ListTaskChangeEvents lists ledger entries newest first.
func (r *Repository) ListTaskChangeEvents(ctx context.Context, taskID string, limit int) ([]domain.ChangeEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, task_id, operation, actor_id, metadata_json, created_at
		FROM change_events
		WHERE task_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, taskID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.ChangeEvent{}
	for rows.Next() {
		var (
			event        domain.ChangeEvent
			opRaw        string
			metadataJSON string
			createdRaw   string
		)
		if err := rows.Scan(&event.ID, &event.ProjectID, &event.TaskID, &opRaw, &event.ActorID, &metadataJSON, &createdRaw); err != nil {
			return nil, err
		}
		event.Operation = domain.ChangeOperation(opRaw)
		if err := json.Unmarshal([]byte(metadataJSON), &event.Metadata); err != nil {
			return nil, fmt.Errorf("decode change event metadata: %w", err)
		}
		event.OccurredAt = parseTS(createdRaw)
		out = append(out, event)
	}
	return out, rows.Err()
}

// Notify stores one notification batch as inbox rows.
func (r *Repository) Notify(ctx context.Context, batch []domain.Notification) (err error) {
	if len(batch) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, n := range batch {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO notifications(id, project_id, task_id, recipient_id, kind, message, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, n.ID, n.ProjectID, n.TaskID, n.RecipientID, string(n.Kind), n.Message, ts(n.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}
	}
	err = tx.Commit()
	return err
}

// ListNotifications lists a recipient's inbox newest first.
func (r *Repository) ListNotifications(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, task_id, recipient_id, kind, message, created_at
		FROM notifications
		WHERE recipient_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, recipientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Notification{}
	for rows.Next() {
		var (
			n          domain.Notification
			kindRaw    string
			createdRaw string
		)
		if err := rows.Scan(&n.ID, &n.ProjectID, &n.TaskID, &n.RecipientID, &kindRaw, &n.Message, &createdRaw); err != nil {
			return nil, err
		}
		n.Kind = domain.NotificationKind(kindRaw)
		n.CreatedAt = parseTS(createdRaw)
		out = append(out, n)
	}
	return out, rows.Err()
}

// queryRower represents a read-only DB contract used by DB and Tx implementations.
type queryRower interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// execerContext represents a write-only DB contract used by DB and Tx implementations.
type execerContext interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

func getTaskByID(ctx context.Context, q queryRower, id string) (domain.Task, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, project_id, title, description, assignee_id, status, created_by, updated_by, created_at, updated_at, deleted_at
		FROM tasks
		WHERE id = ?
	`, id)
	return scanTask(row)
}

func insertComment(ctx context.Context, execer execerContext, c domain.Comment) error {
	body := strings.TrimSpace(c.Body)
	if body == "" {
		return domain.ErrInvalidBody
	}
	_, err := execer.ExecContext(ctx, `
		INSERT INTO comments(id, task_id, author_id, body, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, c.ID, c.TaskID, c.AuthorID, body, ts(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

// insertChangeEvent inserts a change-event ledger record.
func insertChangeEvent(ctx context.Context, execer execerContext, event domain.ChangeEvent) error {
	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode change event metadata: %w", err)
	}
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	_, err = execer.ExecContext(ctx, `
		INSERT INTO change_events(project_id, task_id, operation, actor_id, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		event.ProjectID,
		event.TaskID,
		string(event.Operation),
		event.ActorID,
		string(metadataJSON),
		ts(occurredAt),
	)
	if err != nil {
		return fmt.Errorf("insert change event: %w", err)
	}
	return nil
}

// classifyTaskChange derives the ledger operation for a generic task update.
func classifyTaskChange(prev, next domain.Task) (domain.ChangeOperation, map[string]string, bool) {
	switch {
	case prev.DeletedAt == nil && next.DeletedAt != nil:
		return domain.ChangeOperationDelete, map[string]string{"status": string(next.Status)}, true
	case prev.DeletedAt != nil && next.DeletedAt == nil:
		return domain.ChangeOperationRestore, map[string]string{"status": string(next.Status)}, true
	case prev.Status != next.Status:
		return domain.ChangeOperationStatus, map[string]string{
			"from_status": string(prev.Status),
			"to_status":   string(next.Status),
		}, true
	default:
		return "", nil, false
	}
}

// scanner represents scanner data used by this package.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (domain.Task, error) {
	var (
		t          domain.Task
		statusRaw  string
		createdRaw string
		updatedRaw string
		deletedRaw sql.NullString
	)
	if err := s.Scan(
		&t.ID,
		&t.ProjectID,
		&t.Title,
		&t.Description,
		&t.AssigneeID,
		&statusRaw,
		&t.CreatedBy,
		&t.UpdatedBy,
		&createdRaw,
		&updatedRaw,
		&deletedRaw,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Task{}, app.ErrNotFound
		}
		return domain.Task{}, err
	}
	status, err := domain.ParseStatus(statusRaw)
	if err != nil {
		return domain.Task{}, fmt.Errorf("decode task status %q: %w", statusRaw, err)
	}
	t.Status = status
	t.CreatedAt = parseTS(createdRaw)
	t.UpdatedAt = parseTS(updatedRaw)
	t.DeletedAt = parseNullTS(deletedRaw)
	return t, nil
}

func scanComment(s scanner) (domain.Comment, error) {
	var (
		c          domain.Comment
		createdRaw string
	)
	if err := s.Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.Body, &createdRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Comment{}, app.ErrNotFound
		}
		return domain.Comment{}, err
	}
	c.CreatedAt = parseTS(createdRaw)
	return c, nil
}

// translateNoRows handles translate no rows.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

// timestampLayout is fixed width so stored values sort lexically in time order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func ts(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func nullableTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return ts(*t)
}

func parseTS(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

func parseNullTS(v sql.NullString) *time.Time {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil
	}
	ts := parseTS(v.String)
	return &ts
}
