package store

import (
	"context"

	"github.com/confseat/confseat/internal/domain"
	"github.com/jackc/pgx/v5"
)

// CreateUser inserts the user and its interest topics atomically.
func (s *Store) CreateUser(ctx context.Context, userID string, topics []string) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `INSERT INTO users (user_id) VALUES ($1)`, userID); err != nil {
		return mapError(err)
	}
	for _, t := range topics {
		if _, err := tx.Exec(ctx, `INSERT INTO user_interests (user_id, topic) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, t); err != nil {
			return mapError(err)
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) GetUser(ctx context.Context, userID string) (domain.User, error) {
	var u domain.User
	err := s.Pool.QueryRow(ctx, `SELECT user_id FROM users WHERE user_id = $1`, userID).Scan(&u.UserID)
	if err != nil {
		return domain.User{}, mapError(err)
	}

	rows, err := s.Pool.Query(ctx, `SELECT topic FROM user_interests WHERE user_id = $1 ORDER BY topic`, userID)
	if err != nil {
		return domain.User{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return domain.User{}, err
		}
		u.Topics = append(u.Topics, t)
	}
	return u, rows.Err()
}
