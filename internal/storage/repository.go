package storage

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

	"github.com/google/uuid"

	"expensa/internal/core"
	"expensa/internal/log"
	"expensa/internal/ports"

	_ "modernc.org/sqlite"
)

// SQLiteRepository implements ports.Store on a single SQLite file.
type SQLiteRepository struct {
	db     *sql.DB
	logger *log.Logger
	now    func() time.Time
}

var _ ports.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = log.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repo := &SQLiteRepository{
		db:     db,
		logger: logger.WithComponent(log.ComponentStorage),
		now:    time.Now,
	}
	repo.logger.Info("SQLite repository ready", "path", dbPath, "schema_version", version)
	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const expenseColumns = `
	SELECT e.id, e.user_id, e.amount_cents, e.description, e.category_id, e.metadata, e.created_at,
	       c.id, c.name, c.icon, c.color, c.limit_cents
	FROM expenses e
	LEFT JOIN categories c ON c.id = e.category_id AND c.user_id = e.user_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (core.Expense, error) {
	var (
		e                                 core.Expense
		categoryID, metadata              sql.NullString
		createdAt                         int64
		catID, catName, catIcon, catColor sql.NullString
		catLimit                          sql.NullInt64
	)
	if err := row.Scan(&e.ID, &e.OwnerID, &e.Amount.Cents, &e.Description, &categoryID, &metadata, &createdAt,
		&catID, &catName, &catIcon, &catColor, &catLimit); err != nil {
		return core.Expense{}, err
	}
	e.CreatedAt = fromMillis(createdAt)
	if categoryID.Valid {
		id := categoryID.String
		e.CategoryID = &id
	}
	e.Metadata = decodeMetadata(metadata.String)
	if catID.Valid {
		e.Category = &core.CategorySnapshot{
			ID:    catID.String,
			Name:  catName.String,
			Icon:  catIcon.String,
			Color: catColor.String,
			Limit: limitFromNull(catLimit),
		}
	}
	return e, nil
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context, ownerID string, tr *core.TimeRange) ([]core.Expense, error) {
	query := expenseColumns + ` WHERE e.user_id = ?`
	args := []any{ownerID}
	if tr != nil {
		query += ` AND e.created_at BETWEEN ? AND ?`
		args = append(args, toMillis(tr.Start), toMillis(tr.End))
	}
	query += ` ORDER BY e.created_at DESC, e.rowid DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	expenses := []core.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return expenses, nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, ownerID, id string) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx, expenseColumns+` WHERE e.user_id = ? AND e.id = ?`, ownerID, id)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) CreateExpense(ctx context.Context, ne core.NewExpense) (core.Expense, error) {
	ne = ne.Normalize()
	if err := ne.Validate(); err != nil {
		return core.Expense{}, err
	}
	if ne.CategoryID != nil {
		if _, err := r.GetCategory(ctx, ne.OwnerID, *ne.CategoryID); err != nil {
			return core.Expense{}, err
		}
	}
	metadata, err := json.Marshal(ne.Metadata)
	if err != nil {
		return core.Expense{}, fmt.Errorf("encode metadata: %w", err)
	}
	createdAt := ne.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now()
	}

	id := uuid.NewString()
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO expenses (id, user_id, amount_cents, description, category_id, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, ne.OwnerID, ne.Amount.Cents, ne.Description, nullString(ne.CategoryID), string(metadata), toMillis(createdAt))
	if err != nil {
		return core.Expense{}, fmt.Errorf("insert expense: %w", err)
	}

	r.logger.DebugContext(ctx, "Expense saved to SQLite",
		log.FieldExpenseID, id,
		log.FieldOwnerID, ne.OwnerID,
		log.FieldAmountCents, ne.Amount.Cents)

	return r.GetExpense(ctx, ne.OwnerID, id)
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, ownerID, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ? AND user_id = ?`, id, ownerID); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return nil
}

const categoryColumns = `SELECT id, user_id, name, icon, color, is_default, limit_cents, created_at, updated_at FROM categories`

func scanCategory(row rowScanner) (core.Category, error) {
	var (
		c                    core.Category
		limit                sql.NullInt64
		createdAt, updatedAt int64
	)
	if err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Icon, &c.Color, &c.IsDefault, &limit, &createdAt, &updatedAt); err != nil {
		return core.Category{}, err
	}
	c.Limit = limitFromNull(limit)
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)
	return c, nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, ownerID string) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, categoryColumns+` WHERE user_id = ? ORDER BY name, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := []core.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return categories, nil
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, ownerID, id string) (core.Category, error) {
	row := r.db.QueryRowContext(ctx, categoryColumns+` WHERE user_id = ? AND id = ?`, ownerID, id)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, fmt.Errorf("category %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, nc core.NewCategory) (core.Category, error) {
	nc = nc.Normalize()
	if err := nc.Validate(); err != nil {
		return core.Category{}, err
	}
	id := uuid.NewString()
	now := toMillis(r.now())
	if err := insertCategory(ctx, r.db, id, nc, now); err != nil {
		return core.Category{}, err
	}
	return r.GetCategory(ctx, nc.OwnerID, id)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertCategory(ctx context.Context, db execer, id string, nc core.NewCategory, now int64) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO categories (id, user_id, name, icon, color, is_default, limit_cents, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, nc.OwnerID, nc.Name, nc.Icon, nc.Color, nc.IsDefault, nullLimit(nc.Limit), now, now)
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) UpdateCategoryLimit(ctx context.Context, ownerID, id string, limit *core.Money) (core.Category, error) {
	if err := core.ValidateLimit(limit); err != nil {
		return core.Category{}, err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE categories SET limit_cents = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		nullLimit(limit), toMillis(r.now()), id, ownerID)
	if err != nil {
		return core.Category{}, fmt.Errorf("update category limit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Category{}, fmt.Errorf("category %s: %w", id, core.ErrNotFound)
	}
	return r.GetCategory(ctx, ownerID, id)
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, ownerID, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	detached, err := tx.ExecContext(ctx,
		`UPDATE expenses SET category_id = NULL WHERE category_id = ? AND user_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("detach expenses: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = ? AND user_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("category %s: %w", id, core.ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit category delete: %w", err)
	}

	n, _ := detached.RowsAffected()
	r.logger.DebugContext(ctx, "Category deleted",
		log.FieldCategoryID, id,
		log.FieldOwnerID, ownerID,
		"detached_expenses", n)
	return nil
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, email, passwordHash string, seed []core.NewCategory) (ports.User, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return ports.User{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE email = ?`, email).Scan(&exists)
	if err != nil {
		return ports.User{}, fmt.Errorf("check email: %w", err)
	}
	if exists > 0 {
		return ports.User{}, ports.ErrEmailTaken
	}

	now := r.now()
	u := ports.User{ID: uuid.NewString(), Email: email, PasswordHash: passwordHash, CreatedAt: fromMillis(toMillis(now))}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, toMillis(now))
	if err != nil {
		if isUniqueViolation(err) {
			return ports.User{}, ports.ErrEmailTaken
		}
		return ports.User{}, fmt.Errorf("insert user: %w", err)
	}

	for _, nc := range seed {
		nc.OwnerID = u.ID
		nc = nc.Normalize()
		if err := nc.Validate(); err != nil {
			return ports.User{}, fmt.Errorf("seed category %q: %w", nc.Name, err)
		}
		if err := insertCategory(ctx, tx, uuid.NewString(), nc, toMillis(now)); err != nil {
			return ports.User{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return ports.User{}, fmt.Errorf("commit user: %w", err)
	}
	return u, nil
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (ports.User, error) {
	var (
		u         ports.User
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = ?`, email).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.User{}, fmt.Errorf("user: %w", core.ErrNotFound)
	}
	if err != nil {
		return ports.User{}, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt = fromMillis(createdAt)
	return u, nil
}

func (r *SQLiteRepository) CreateSession(ctx context.Context, s ports.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		s.Token, s.UserID, toMillis(s.CreatedAt), toMillis(s.ExpiresAt))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetSession(ctx context.Context, token string) (ports.Session, error) {
	var (
		s                    ports.Session
		createdAt, expiresAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT s.token, s.user_id, u.email, s.created_at, s.expires_at
		 FROM sessions s JOIN users u ON u.id = s.user_id
		 WHERE s.token = ?`, token).
		Scan(&s.Token, &s.UserID, &s.Email, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.Session{}, ports.ErrSessionNotFound
	}
	if err != nil {
		return ports.Session{}, fmt.Errorf("get session: %w", err)
	}
	s.CreatedAt = fromMillis(createdAt)
	s.ExpiresAt = fromMillis(expiresAt)
	return s, nil
}

func (r *SQLiteRepository) DeleteSession(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullLimit(m *core.Money) sql.NullInt64 {
	if m == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: m.Cents, Valid: true}
}

func limitFromNull(n sql.NullInt64) *core.Money {
	if !n.Valid {
		return nil
	}
	return &core.Money{Cents: n.Int64}
}

func decodeMetadata(raw string) map[string]any {
	out := map[string]any{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
