package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/raycs13/RealCasino/internal/model"
)

type Store struct{ DB *sql.DB }

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{DB: db}, nil
}

func (s *Store) Migrate(dir string) error {
	driver, err := postgres.WithInstance(s.DB, &postgres.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// ── Users ────────────────────────────────────────────

func (s *Store) CreateUser(ctx context.Context, email, username, hash string, startingBalance int64) (*model.User, error) {
	u := &model.User{}
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO users (email, username, password_hash, role, balance) VALUES ($1,$2,$3,$4,$5)
		 RETURNING user_id, email, username, avatar_url, password_hash, role, balance, created_at`,
		email, username, hash, model.RoleUser, startingBalance,
	).Scan(&u.ID, &u.Email, &u.Username, &u.AvatarURL, &u.PasswordHash, &u.Role, &u.Balance, &u.CreatedAt)
	return u, err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.scanUser(s.DB.QueryRowContext(ctx,
		`SELECT user_id, email, username, avatar_url, password_hash, role, balance, last_daily_claim, created_at
		 FROM users WHERE email=$1`, email))
}

func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.scanUser(s.DB.QueryRowContext(ctx,
		`SELECT user_id, email, username, avatar_url, password_hash, role, balance, last_daily_claim, created_at
		 FROM users WHERE user_id=$1`, id))
}

func (s *Store) scanUser(row *sql.Row) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.AvatarURL, &u.PasswordHash, &u.Role, &u.Balance, &u.LastClaim, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

// ── Balances ─────────────────────────────────────────

func (s *Store) GetBalance(ctx context.Context, userID string) (int64, error) {
	var bal int64
	err := s.DB.QueryRowContext(ctx,
		`SELECT balance FROM users WHERE user_id=$1`, userID).Scan(&bal)
	if err == sql.ErrNoRows {
		return 0, model.ErrUserNotFound
	}
	return bal, err
}

// Deposit credits a top-up and returns the new balance.
func (s *Store) Deposit(ctx context.Context, userID string, amount int64) (int64, error) {
	var bal int64
	err := s.DB.QueryRowContext(ctx,
		`UPDATE users SET balance = balance + $1 WHERE user_id=$2 RETURNING balance`,
		amount, userID).Scan(&bal)
	if err == sql.ErrNoRows {
		return 0, model.ErrUserNotFound
	}
	return bal, err
}

// ClaimDailyReward credits the daily reward as one conditional update:
// eligibility check and credit are a single atomic step, never a read
// followed by a write, so concurrent claims credit at most once per day.
func (s *Store) ClaimDailyReward(ctx context.Context, userID string, amount int64) (int64, error) {
	var bal int64
	err := s.DB.QueryRowContext(ctx,
		`UPDATE users SET balance = balance + $1, last_daily_claim = now()
		 WHERE user_id=$2
		   AND (last_daily_claim IS NULL OR last_daily_claim < date_trunc('day', now()))
		 RETURNING balance`,
		amount, userID).Scan(&bal)
	if err == sql.ErrNoRows {
		if _, gerr := s.GetBalance(ctx, userID); gerr != nil {
			return 0, gerr
		}
		return 0, model.ErrAlreadyClaimed
	}
	return bal, err
}

// ── Rounds ───────────────────────────────────────────

func (s *Store) CreateRound(ctx context.Context, gameID int) (int64, error) {
	var id int64
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO rounds (gameid) VALUES ($1) RETURNING roundid`, gameID).Scan(&id)
	return id, err
}

func (s *Store) SetOutcome(ctx context.Context, roundID int64, slot int, color model.Color) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE rounds SET win_number=$1, win_color=$2 WHERE roundid=$3`,
		slot, color, roundID)
	return err
}

func (s *Store) MarkRoundErrored(ctx context.Context, roundID int64) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE rounds SET errored=true WHERE roundid=$1`, roundID)
	return err
}

func (s *Store) LastSpins(ctx context.Context, n int) ([]model.Spin, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT roundid, win_number, win_color FROM rounds
		 WHERE win_number IS NOT NULL AND win_color IS NOT NULL
		 ORDER BY roundid DESC LIMIT $1`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Spin
	for rows.Next() {
		var sp model.Spin
		if err := rows.Scan(&sp.RoundID, &sp.Slot, &sp.Color); err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	// oldest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

// ── Bets ─────────────────────────────────────────────

// PlaceBet debits the stake and records the bet in one transaction. The
// debit is conditional on the balance covering the stake; the row lock
// serializes concurrent debits for the same user, so two wagers can never
// jointly overdraw a balance that only supports one.
func (s *Store) PlaceBet(ctx context.Context, bet *model.Bet) (int64, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var bal int64
	err = tx.QueryRowContext(ctx,
		`UPDATE users SET balance = balance - $1
		 WHERE user_id=$2 AND balance >= $1
		 RETURNING balance`,
		bet.Stake, bet.UserID).Scan(&bal)
	if err == sql.ErrNoRows {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM users WHERE user_id=$1)`, bet.UserID).Scan(&exists); err != nil {
			return 0, err
		}
		if !exists {
			return 0, model.ErrUserNotFound
		}
		return 0, model.ErrInsufficientBalance
	}
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO bets (betid, roundid, userid, color, stake, placed_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		bet.ID, bet.RoundID, bet.UserID, bet.Color, bet.Stake, bet.PlacedAt); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return bal, nil
}

// VoidBet compensates a wager whose round locked while the debit was in
// flight: the bet row is flagged void and the stake credited back, in one
// transaction. Repeat calls are no-ops.
func (s *Store) VoidBet(ctx context.Context, bet *model.Bet) (int64, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE bets SET voided=true WHERE betid=$1 AND NOT voided`, bet.ID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	var bal int64
	if n == 0 {
		// already voided; report the current balance
		if err := tx.QueryRowContext(ctx,
			`SELECT balance FROM users WHERE user_id=$1`, bet.UserID).Scan(&bal); err != nil {
			return 0, err
		}
		return bal, tx.Commit()
	}

	if err := tx.QueryRowContext(ctx,
		`UPDATE users SET balance = balance + $1 WHERE user_id=$2 RETURNING balance`,
		bet.Stake, bet.UserID).Scan(&bal); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return bal, nil
}

// ── Settlement ───────────────────────────────────────

// SettleRound applies a resolved round's payouts. Flipping the settled
// flag is part of the same transaction that writes the payout rows and
// credits the balances, so the crediting effect happens at most once no
// matter how often settlement is retried or re-invoked.
func (s *Store) SettleRound(ctx context.Context, roundID int64, payouts []model.Payout) (bool, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE rounds SET settled=true WHERE roundid=$1 AND settled=false`, roundID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, tx.Commit()
	}

	for _, p := range payouts {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO payouts (roundid, userid, payout) VALUES ($1,$2,$3)`,
			p.RoundID, p.UserID, p.Amount); err != nil {
			return false, err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET balance = balance + $1 WHERE user_id=$2`,
			p.Amount, p.UserID); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}
