package store

import (
	"context"

	"github.com/confseat/confseat/internal/domain"
	"github.com/jackc/pgx/v5"
)

// CreateConference inserts the conference and its topics atomically and
// returns the stored row.
func (s *Store) CreateConference(ctx context.Context, conf domain.Conference, topics []string) (domain.Conference, error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Conference{}, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO conferences (name, location, start_timestamp, end_timestamp, total_slots, available_slots)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING conference_id, name, location, start_timestamp, end_timestamp, total_slots, available_slots, created_at`,
		conf.Name, conf.Location, conf.StartTimestamp, conf.EndTimestamp, conf.TotalSlots)
	created, err := scanConference(row)
	if err != nil {
		return domain.Conference{}, mapError(err)
	}

	for _, t := range topics {
		if _, err := tx.Exec(ctx, `INSERT INTO conference_topics (conference_id, topic) VALUES ($1, $2) ON CONFLICT DO NOTHING`, created.ID, t); err != nil {
			return domain.Conference{}, mapError(err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Conference{}, err
	}
	return created, nil
}

func (s *Store) GetConferenceByName(ctx context.Context, name string) (domain.Conference, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT conference_id, name, location, start_timestamp, end_timestamp, total_slots, available_slots, created_at
		FROM conferences
		WHERE name = $1`, name)
	conf, err := scanConference(row)
	return conf, mapError(err)
}

func (s *Store) GetConferenceByID(ctx context.Context, id int64) (domain.Conference, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT conference_id, name, location, start_timestamp, end_timestamp, total_slots, available_slots, created_at
		FROM conferences
		WHERE conference_id = $1`, id)
	conf, err := scanConference(row)
	return conf, mapError(err)
}

func scanConference(row pgx.Row) (domain.Conference, error) {
	var c domain.Conference
	err := row.Scan(&c.ID, &c.Name, &c.Location, &c.StartTimestamp, &c.EndTimestamp, &c.TotalSlots, &c.AvailableSlots, &c.CreatedAt)
	return c, err
}
