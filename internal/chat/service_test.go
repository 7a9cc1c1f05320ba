package chat

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/fieldworks/teamchat/internal/models"
	"github.com/fieldworks/teamchat/internal/notify"
	"github.com/fieldworks/teamchat/internal/store"
)

func newTestService(t *testing.T) (*Service, store.DataStore) {
	t.Helper()
	st, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return NewService(st, notify.Nop{}, zerolog.Nop(), ""), st
}

func seedUser(t *testing.T, st store.DataStore, role string) uuid.UUID {
	t.Helper()
	u := &models.User{
		ID:     uuid.New(),
		Name:   fmt.Sprintf("user-%s", uuid.New().String()[:8]),
		Role:   role,
		Active: true,
	}
	require.NoError(t, st.UpsertUser(context.Background(), u))
	return u.ID
}

func seedChannel(t *testing.T, st store.DataStore, name string, members ...uuid.UUID) uuid.UUID {
	t.Helper()
	ch := &models.Channel{
		ID:        uuid.New(),
		Name:      name,
		Kind:      models.KindPublic,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.InsertChannel(context.Background(), ch, members))
	return ch.ID
}
