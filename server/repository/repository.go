package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/ponyo877/livebid/server/domain"
	"github.com/ponyo877/livebid/server/usecase"
)

const driverName = "sqlite3_with_go_func"

var registerOnce sync.Once

func regex(re, s string) (bool, error) {
	return regexp.MatchString(re, s)
}

const schema = `
CREATE TABLE IF NOT EXISTS livestreams (
	id                     TEXT PRIMARY KEY,
	title                  TEXT NOT NULL,
	status                 TEXT NOT NULL,
	credits_balance        INTEGER NOT NULL DEFAULT 0,
	total_credits_consumed INTEGER NOT NULL DEFAULT 0,
	started_at             DATETIME,
	ended_at               DATETIME,
	created_at             DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS products (
	id            TEXT PRIMARY KEY,
	livestream_id TEXT NOT NULL REFERENCES livestreams(id),
	name          TEXT NOT NULL,
	price         REAL NOT NULL,
	created_at    DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS biddings (
	id             TEXT PRIMARY KEY,
	livestream_id  TEXT NOT NULL REFERENCES livestreams(id),
	product_id     TEXT NOT NULL REFERENCES products(id),
	starting_price REAL NOT NULL,
	timer_duration INTEGER NOT NULL,
	status         TEXT NOT NULL,
	winner_id      TEXT NOT NULL DEFAULT '',
	winner_name    TEXT NOT NULL DEFAULT '',
	amount         REAL NOT NULL DEFAULT 0,
	reason         TEXT NOT NULL DEFAULT '',
	started_at     DATETIME NOT NULL,
	ended_at       DATETIME
);
CREATE TABLE IF NOT EXISTS messages (
	id            TEXT PRIMARY KEY,
	livestream_id TEXT NOT NULL,
	sender_id     TEXT NOT NULL,
	display_name  TEXT NOT NULL,
	role          TEXT NOT NULL,
	content       TEXT NOT NULL,
	created_at    DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS messages_livestream_created ON messages (livestream_id, created_at);
`

// Open opens a sqlite database with the REGEXP function available and the
// schema in place. dsn may be ":memory:".
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	registerOnce.Do(func() {
		sql.Register(driverName,
			&sqlite3.SQLiteDriver{
				ConnectHook: func(conn *sqlite3.SQLiteConn) error {
					return conn.RegisterFunc("regexp", regex, true)
				},
			})
	})
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return db, nil
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) usecase.Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateLivestream(ctx context.Context, ls domain.Livestream) error {
	query := `INSERT INTO livestreams (id, title, status, credits_balance, total_credits_consumed, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, ls.ID, ls.Title, string(ls.Status),
		ls.CreditsBalance, ls.TotalCreditsConsumed, ls.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert livestream '%s': %w", ls.Title, mapErr(err))
	}
	return nil
}

func (r *Repository) GetLivestream(ctx context.Context, id string) (domain.Livestream, error) {
	query := `SELECT id, title, status, credits_balance, total_credits_consumed, started_at, ended_at, created_at
		FROM livestreams WHERE id = ?`
	var ls domain.Livestream
	var status string
	var startedAt, endedAt sql.NullTime
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&ls.ID, &ls.Title, &status,
		&ls.CreditsBalance, &ls.TotalCreditsConsumed, &startedAt, &endedAt, &ls.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Livestream{}, fmt.Errorf("livestream %s: %w", id, domain.ErrNotFound)
		}
		return domain.Livestream{}, fmt.Errorf("error querying livestream: %w", err)
	}
	ls.Status = domain.LivestreamStatus(status)
	ls.StartedAt = timePtr(startedAt)
	ls.EndedAt = timePtr(endedAt)
	return ls, nil
}

func (r *Repository) UpdateLivestream(ctx context.Context, ls domain.Livestream) error {
	query := "UPDATE livestreams SET status = ?, started_at = ?, ended_at = ? WHERE id = ?"
	res, err := r.db.ExecContext(ctx, query, string(ls.Status), nullTime(ls.StartedAt), nullTime(ls.EndedAt), ls.ID)
	if err != nil {
		return fmt.Errorf("failed to update livestream %s: %w", ls.ID, err)
	}
	return affectedOne(res, "livestream "+ls.ID)
}

// DeductCredit takes one credit inside a transaction. A livestream with no
// credits left yields ErrInsufficientCredits.
func (r *Repository) DeductCredit(ctx context.Context, id string) (domain.CreditDeduction, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.CreditDeduction{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var balance, consumed int
	query := "SELECT credits_balance, total_credits_consumed FROM livestreams WHERE id = ?"
	if err := tx.QueryRowContext(ctx, query, id).Scan(&balance, &consumed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CreditDeduction{}, fmt.Errorf("livestream %s: %w", id, domain.ErrNotFound)
		}
		return domain.CreditDeduction{}, fmt.Errorf("error querying credits: %w", err)
	}
	if balance <= 0 {
		return domain.CreditDeduction{}, domain.ErrInsufficientCredits
	}

	query = `UPDATE livestreams
		SET credits_balance = credits_balance - 1, total_credits_consumed = total_credits_consumed + 1
		WHERE id = ?`
	if _, err := tx.ExecContext(ctx, query, id); err != nil {
		return domain.CreditDeduction{}, fmt.Errorf("failed to deduct credit for %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return domain.CreditDeduction{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return domain.CreditDeduction{
		Deducted:             true,
		RemainingCredits:     balance - 1,
		TotalCreditsConsumed: consumed + 1,
	}, nil
}

func (r *Repository) CreateProduct(ctx context.Context, p domain.Product) error {
	query := "INSERT INTO products (id, livestream_id, name, price, created_at) VALUES (?, ?, ?, ?, ?)"
	if _, err := r.db.ExecContext(ctx, query, p.ID, p.LivestreamID, p.Name, p.Price, p.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert product '%s': %w", p.Name, mapErr(err))
	}
	return nil
}

func (r *Repository) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	query := "SELECT id, livestream_id, name, price, created_at FROM products WHERE id = ?"
	var p domain.Product
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.LivestreamID, &p.Name, &p.Price, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
		}
		return domain.Product{}, fmt.Errorf("error querying product: %w", err)
	}
	return p, nil
}

func (r *Repository) ListProducts(ctx context.Context, livestreamID string) ([]domain.Product, error) {
	query := "SELECT id, livestream_id, name, price, created_at FROM products WHERE livestream_id = ? ORDER BY created_at, id"
	rows, err := r.db.QueryContext(ctx, query, livestreamID)
	if err != nil {
		return nil, fmt.Errorf("failed to query products for %s: %w", livestreamID, err)
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.LivestreamID, &p.Name, &p.Price, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over products for %s: %w", livestreamID, err)
	}
	return products, nil
}

func (r *Repository) CreateBidding(ctx context.Context, b domain.Bidding) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var open int
	query := "SELECT COUNT(*) FROM biddings WHERE livestream_id = ? AND status = ?"
	if err := tx.QueryRowContext(ctx, query, b.LivestreamID, string(domain.BiddingActive)).Scan(&open); err != nil {
		return fmt.Errorf("error counting open rounds: %w", err)
	}
	if open > 0 {
		return fmt.Errorf("%w: livestream %s already has an active round", domain.ErrConflict, b.LivestreamID)
	}

	query = `INSERT INTO biddings (id, livestream_id, product_id, starting_price, timer_duration, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, query, b.ID, b.LivestreamID, b.ProductID, b.StartingPrice,
		b.TimerDuration, string(b.Status), b.StartedAt); err != nil {
		return fmt.Errorf("failed to insert bidding: %w", mapErr(err))
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *Repository) GetBidding(ctx context.Context, id string) (domain.Bidding, error) {
	query := `SELECT id, livestream_id, product_id, starting_price, timer_duration, status,
		winner_id, winner_name, amount, reason, started_at, ended_at
		FROM biddings WHERE id = ?`
	var b domain.Bidding
	var status string
	var endedAt sql.NullTime
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&b.ID, &b.LivestreamID, &b.ProductID,
		&b.StartingPrice, &b.TimerDuration, &status, &b.WinnerID, &b.WinnerName, &b.Amount,
		&b.Reason, &b.StartedAt, &endedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Bidding{}, fmt.Errorf("bidding %s: %w", id, domain.ErrNotFound)
		}
		return domain.Bidding{}, fmt.Errorf("error querying bidding: %w", err)
	}
	b.Status = domain.BiddingStatus(status)
	b.EndedAt = timePtr(endedAt)
	return b, nil
}

func (r *Repository) FinishBidding(ctx context.Context, b domain.Bidding) error {
	query := `UPDATE biddings
		SET status = ?, winner_id = ?, winner_name = ?, amount = ?, reason = ?, ended_at = ?
		WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, string(b.Status), b.WinnerID, b.WinnerName,
		b.Amount, b.Reason, nullTime(b.EndedAt), b.ID)
	if err != nil {
		return fmt.Errorf("failed to update bidding %s: %w", b.ID, err)
	}
	return affectedOne(res, "bidding "+b.ID)
}

func (r *Repository) CancelOpenBiddings(ctx context.Context, livestreamID, reason string) (int64, error) {
	query := "UPDATE biddings SET status = ?, reason = ?, ended_at = ? WHERE livestream_id = ? AND status = ?"
	res, err := r.db.ExecContext(ctx, query, string(domain.BiddingCancelled), reason,
		time.Now().UTC(), livestreamID, string(domain.BiddingActive))
	if err != nil {
		return 0, fmt.Errorf("failed to cancel rounds for %s: %w", livestreamID, err)
	}
	return res.RowsAffected()
}

func (r *Repository) CreateMessage(ctx context.Context, m domain.Message) error {
	query := `INSERT INTO messages (id, livestream_id, sender_id, display_name, role, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, m.ID, m.LivestreamID, m.SenderID, m.DisplayName,
		m.Role, m.Content, m.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert message for livestream %s: %w", m.LivestreamID, mapErr(err))
	}
	return nil
}

// ListMessages returns the newest limit messages in chronological order.
func (r *Repository) ListMessages(ctx context.Context, livestreamID string, limit int) ([]domain.Message, error) {
	query := `SELECT id, livestream_id, sender_id, display_name, role, content, created_at
		FROM messages WHERE livestream_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, livestreamID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages for livestream %s: %w", livestreamID, err)
	}
	defer rows.Close()
	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	slices.Reverse(messages)
	return messages, nil
}

func (r *Repository) ListMessagesByQuery(ctx context.Context, livestreamID, pattern string) ([]domain.Message, error) {
	if _, err := regexp.Compile(pattern); err != nil {
		return nil, fmt.Errorf("%w: bad pattern: %v", domain.ErrInvalidInput, err)
	}
	query := `SELECT id, livestream_id, sender_id, display_name, role, content, created_at
		FROM messages WHERE livestream_id = ? AND content REGEXP ? ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, livestreamID, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search in livestream %s for query '%s': %w", livestreamID, pattern, err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]domain.Message, error) {
	messages := []domain.Message{}
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.LivestreamID, &m.SenderID, &m.DisplayName, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message content: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over messages: %w", err)
	}
	return messages, nil
}

func mapErr(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	}
	return err
}

func affectedOne(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
