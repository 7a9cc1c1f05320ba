package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/fieldworks/teamchat/internal/metrics"
	"github.com/fieldworks/teamchat/internal/models"
	"github.com/fieldworks/teamchat/internal/store"
)

// GetOrCreateDM returns the unique dm channel for the unordered pair
// {requester, target}, creating it if needed.
//
// Two concurrent calls for the same pair can both miss the lookup, so the
// create path is a unique-constrained insert on the canonical pair key: the
// loser gets a duplicate error, discards its attempt and re-reads the
// winner's row. A plain check-then-insert cannot give the at-most-one
// guarantee and is not used anywhere in this path.
func (s *Service) GetOrCreateDM(ctx context.Context, requester, target uuid.UUID) (*models.Channel, error) {
	if requester == target {
		return nil, fmt.Errorf("%w: cannot open a dm with yourself", ErrBadRequest)
	}

	key := models.DMKeyFor(requester, target)

	ch, err := s.store.GetChannelByDMKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("dm lookup: %w", err)
	}
	if ch != nil {
		metrics.DMsResolved.WithLabelValues("existing").Inc()
		return ch, nil
	}

	createdBy := requester
	attempt := &models.Channel{
		ID:        uuid.New(),
		Name:      key,
		Kind:      models.KindDM,
		DMKey:     &key,
		CreatedBy: &createdBy,
	}
	err = s.store.InsertChannel(ctx, attempt, []uuid.UUID{requester, target})
	if err == nil {
		metrics.DMsResolved.WithLabelValues("created").Inc()
		return attempt, nil
	}
	if !errors.Is(err, store.ErrDuplicate) {
		return nil, fmt.Errorf("dm create: %w", err)
	}

	// Lost the race: a concurrent resolver inserted the pair first. Fetch
	// the winner.
	ch, err = s.store.GetChannelByDMKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("dm re-lookup: %w", err)
	}
	if ch == nil {
		// Winner's row vanished between conflict and re-read; treat as an
		// unresolvable race rather than looping.
		return nil, fmt.Errorf("%w: dm resolution race", ErrConflict)
	}
	metrics.DMsResolved.WithLabelValues("recovered").Inc()
	return ch, nil
}
