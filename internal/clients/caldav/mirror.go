package caldav

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tazhate/holidaybot/internal/calendar"
	"github.com/tazhate/holidaybot/internal/domain"
)

const mirrorTimeout = 10 * time.Second

// Mirror copies exceptions into one CalDAV calendar. The target is either a
// collection path (starting with "/") or a display name; empty picks the
// first calendar found.
type Mirror struct {
	client *Client
	target string
	owner  string
	log    zerolog.Logger

	mu   sync.Mutex
	path string
}

func NewMirror(client *Client, target string, log zerolog.Logger) *Mirror {
	m := &Mirror{
		client: client,
		target: strings.TrimSpace(target),
		log:    log.With().Str("component", "caldav").Logger(),
	}
	if strings.HasPrefix(m.target, "/") {
		m.path = m.target
	}
	return m
}

// SetOwner restricts the mirror to one owner. Other owners' exceptions are
// ignored, so their notes never reach the shared calendar.
func (m *Mirror) SetOwner(ownerID string) {
	m.owner = strings.TrimSpace(ownerID)
}

func (m *Mirror) mirrors(ownerID string) bool {
	return m.owner == "" || m.owner == ownerID
}

func (m *Mirror) Put(ctx context.Context, e *domain.Exception) error {
	if !m.mirrors(e.OwnerID) {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, mirrorTimeout)
	defer cancel()

	path, err := m.calendarPath(ctx)
	if err != nil {
		return err
	}
	cal := calendar.Feed("", []*domain.Exception{e}, time.Now())
	if err := m.client.PutObject(ctx, path, calendar.UID(e.ID), cal); err != nil {
		return err
	}
	m.log.Debug().Int64("id", e.ID).Str("calendar", path).Msg("mirrored")
	return nil
}

func (m *Mirror) Remove(ctx context.Context, ownerID string, id int64) error {
	if !m.mirrors(ownerID) {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, mirrorTimeout)
	defer cancel()

	path, err := m.calendarPath(ctx)
	if err != nil {
		return err
	}
	if err := m.client.DeleteObject(ctx, path, calendar.UID(id)); err != nil {
		return err
	}
	m.log.Debug().Int64("id", id).Str("owner", ownerID).Msg("mirror removed")
	return nil
}

func (m *Mirror) calendarPath(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.path != "" {
		return m.path, nil
	}

	cals, err := m.client.DiscoverCalendars(ctx)
	if err != nil {
		return "", err
	}
	for _, c := range cals {
		if m.target == "" || strings.EqualFold(c.DisplayName, m.target) {
			m.path = c.Path
			return m.path, nil
		}
	}
	return "", fmt.Errorf("calendar %q not found", m.target)
}
