// Package chat implements the channel messaging core: channel directory,
// DM resolution, the append-only message log, per-member read state and lazy
// bootstrap provisioning.
package chat

import (
	"github.com/rs/zerolog"

	"github.com/fieldworks/teamchat/internal/notify"
	"github.com/fieldworks/teamchat/internal/store"
)

// DefaultGeneralChannel is the well-known shared channel the bootstrap
// initializer provisions on first use.
const DefaultGeneralChannel = "general"

// Service wires the messaging core to its store and the external broadcast
// transport.
type Service struct {
	store    store.DataStore
	notifier notify.Notifier
	logger   zerolog.Logger

	generalName string
}

// NewService creates the messaging core service. generalName falls back to
// DefaultGeneralChannel when empty.
func NewService(st store.DataStore, notifier notify.Notifier, logger zerolog.Logger, generalName string) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if generalName == "" {
		generalName = DefaultGeneralChannel
	}
	return &Service{
		store:       st,
		notifier:    notifier,
		logger:      logger,
		generalName: generalName,
	}
}
