package workers

import (
	"context"
	"fmt"

	"github.com/confseat/confseat/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Sweeper is the safety net behind the conference-start timer: if a
// start message is lost, started conferences would keep Waitlisted and
// ConfirmationPending bookings forever. A periodic pass finds them and
// runs the same sweep the timer would have triggered.
type Sweeper struct {
	pool   *pgxpool.Pool
	engine Engine
}

func NewSweeper(pool *pgxpool.Pool, engine Engine) *Sweeper {
	return &Sweeper{pool: pool, engine: engine}
}

// Sweep cancels leftover pre-start bookings of every conference that has
// already started.
func (s *Sweeper) Sweep(ctx context.Context) error {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT c.conference_id
		FROM conferences c
		JOIN bookings b ON b.conference_id = c.conference_id
		WHERE c.start_timestamp <= now()
		  AND b.status IN ($1, $2)`,
		domain.StatusWaitlisted, domain.StatusConfirmationPending)
	if err != nil {
		return fmt.Errorf("query started conferences: %w", err)
	}
	defer rows.Close()

	var confIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scan conference id: %w", err)
		}
		confIDs = append(confIDs, id)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range confIDs {
		if err := s.engine.HandleConferenceStart(ctx, id); err != nil {
			log.Error().Err(err).Int64("conference_id", id).Msg("sweep failed for started conference")
			continue
		}
		log.Info().Int64("conference_id", id).Msg("swept started conference with leftover bookings")
	}
	return nil
}
