package chat

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/fieldworks/teamchat/internal/models"
)

func TestGetOrCreateDM_RejectsSelf(t *testing.T) {
	svc, st := newTestService(t)
	alice := seedUser(t, st, "tech")

	_, err := svc.GetOrCreateDM(context.Background(), alice, alice)
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestGetOrCreateDM_SameChannelBothDirections(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	alice := seedUser(t, st, "tech")
	bob := seedUser(t, st, "tech")

	first, err := svc.GetOrCreateDM(ctx, alice, bob)
	require.NoError(t, err)
	require.Equal(t, models.KindDM, first.Kind)

	// The reverse direction resolves to the same channel, not a new one.
	second, err := svc.GetOrCreateDM(ctx, bob, alice)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// Exactly the two participants are enrolled.
	n, err := st.CountMembers(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestGetOrCreateDM_ConcurrentResolversConverge(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	alice := seedUser(t, st, "tech")
	bob := seedUser(t, st, "tech")

	const resolvers = 8
	results := make([]uuid.UUID, resolvers)

	var g errgroup.Group
	for i := 0; i < resolvers; i++ {
		i := i
		g.Go(func() error {
			requester, target := alice, bob
			if i%2 == 1 {
				requester, target = bob, alice
			}
			ch, err := svc.GetOrCreateDM(ctx, requester, target)
			if err != nil {
				return err
			}
			results[i] = ch.ID
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for i := 1; i < resolvers; i++ {
		assert.Equal(t, results[0], results[i], "resolver %d got a different channel", i)
	}

	ch, err := st.GetChannelByDMKey(ctx, models.DMKeyFor(alice, bob))
	require.NoError(t, err)
	require.NotNil(t, ch)
	assert.Equal(t, results[0], ch.ID)
}
