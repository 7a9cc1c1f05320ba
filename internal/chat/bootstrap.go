package chat

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/fieldworks/teamchat/internal/metrics"
	"github.com/fieldworks/teamchat/internal/models"
	"github.com/fieldworks/teamchat/internal/store"
)

// EnsureDefaults lazily provisions the well-known shared channel with every
// active user enrolled. There is no explicit provisioning step: the first
// caller to get here seeds it.
//
// The channel insert doubles as the race probe, guarded by the unique index
// on public channel names. The winner enrolls the whole active roster in one
// insert-if-absent batch; every loser only ensures its own membership, so an
// overlapping initializer can never double-enroll anyone.
//
// Failures are logged and swallowed: bootstrap must never fail the caller's
// primary request. The shared channel simply stays absent from that caller's
// list until a future call succeeds.
func (s *Service) EnsureDefaults(ctx context.Context, callerID uuid.UUID) {
	users, err := s.store.ListActiveUsers(ctx)
	if err != nil {
		metrics.BootstrapRuns.WithLabelValues("error").Inc()
		s.logger.Warn().Err(err).Msg("bootstrap: active roster unavailable")
		return
	}

	members := make([]uuid.UUID, 0, len(users)+2)
	for _, u := range users {
		members = append(members, u.ID)
	}
	members = appendIfMissing(members, callerID)
	members = appendIfMissing(members, models.AssistantUserID)

	ch := &models.Channel{
		ID:          uuid.New(),
		Name:        s.generalName,
		Kind:        models.KindPublic,
		Description: "Shared channel for the whole team",
	}
	err = s.store.InsertChannel(ctx, ch, members)
	if err == nil {
		metrics.BootstrapRuns.WithLabelValues("seeded").Inc()
		s.logger.Info().Str("channel", ch.ID.String()).Int("members", len(members)).
			Msgf("bootstrap: seeded %q channel", s.generalName)
		return
	}
	if !errors.Is(err, store.ErrDuplicate) {
		metrics.BootstrapRuns.WithLabelValues("error").Inc()
		s.logger.Warn().Err(err).Msg("bootstrap: seed failed")
		return
	}

	// Channel already exists; only make sure this caller is enrolled.
	existing, err := s.store.GetChannelByName(ctx, s.generalName)
	if err != nil || existing == nil {
		metrics.BootstrapRuns.WithLabelValues("error").Inc()
		s.logger.Warn().Err(err).Msg("bootstrap: shared channel lookup failed")
		return
	}
	if err := s.store.AddMember(ctx, existing.ID, callerID); err != nil {
		metrics.BootstrapRuns.WithLabelValues("error").Inc()
		s.logger.Warn().Err(err).Str("user", callerID.String()).Msg("bootstrap: self-enroll failed")
		return
	}
	metrics.BootstrapRuns.WithLabelValues("joined").Inc()
}

func appendIfMissing(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
