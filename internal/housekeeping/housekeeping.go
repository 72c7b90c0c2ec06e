// Package housekeeping runs the periodic maintenance jobs a live Bancho
// deployment needs outside the request/response cycle: expiring lapsed
// supporter privileges, rotating the cached bot presence, and disconnecting
// sessions the client itself never told us it was leaving.
package housekeeping

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/stlalpha/bancho3/internal/channel"
	"github.com/stlalpha/bancho3/internal/packet"
	"github.com/stlalpha/bancho3/internal/ports"
	"github.com/stlalpha/bancho3/internal/session"
)

// ghostDisconnectThreshold mirrors the osu! client's minimum ping interval:
// a session silent for longer than this is presumed dead rather than slow.
const ghostDisconnectThreshold = 300 * time.Second

// DonorStore resolves accounts whose donor privilege window has lapsed.
// Kept narrow and local rather than folded into ports.Persistence, since
// nothing else in the core needs to enumerate users by expiry.
type DonorStore interface {
	ExpiredDonors(ctx context.Context, asOf time.Time) ([]ports.UserRecord, error)
}

// BotSnapshot caches the bot's presence+stats frame so every login and
// presence refresh doesn't re-encode it from scratch. Clear forces the next
// Get to rebuild it, standing in for the original's per-interval cache
// invalidation of a memoized bot-stats packet.
type BotSnapshot struct {
	mu    sync.RWMutex
	build func() []byte
	cache []byte
}

// NewBotSnapshot wraps build behind a cache. build must be safe to call
// concurrently; it is only ever called while holding the write lock.
func NewBotSnapshot(build func() []byte) *BotSnapshot {
	return &BotSnapshot{build: build}
}

// Get returns the cached frame, building and caching it on first use or
// after a Clear.
func (b *BotSnapshot) Get() []byte {
	b.mu.RLock()
	cached := b.cache
	b.mu.RUnlock()
	if cached != nil {
		return cached
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cache == nil {
		b.cache = b.build()
	}
	return b.cache
}

// Clear drops the cached frame.
func (b *BotSnapshot) Clear() {
	b.mu.Lock()
	b.cache = nil
	b.mu.Unlock()
}

// Scheduler runs the three periodic maintenance jobs: donor privilege
// expiry every 30 minutes, bot status rotation every 5 minutes, and ghost
// disconnects every 100 seconds.
type Scheduler struct {
	sessions *session.Registry
	channels *channel.Registry
	store    ports.Persistence
	donors   DonorStore
	bot      *BotSnapshot
	log      *slog.Logger

	cron *cron.Cron
}

// NewScheduler builds a Scheduler. donors and bot may be nil: a nil donors
// skips privilege expiry entirely, a nil bot skips status rotation.
func NewScheduler(sessions *session.Registry, channels *channel.Registry, store ports.Persistence, donors DonorStore, bot *BotSnapshot, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{sessions: sessions, channels: channels, store: store, donors: donors, bot: bot, log: log}
}

// Start registers the jobs and blocks until ctx is cancelled, then waits for
// any job already running to finish before returning.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron = cron.New()

	if _, err := s.cron.AddFunc("@every 30m", func() { s.expireDonors(ctx) }); err != nil {
		s.log.Error("housekeeping: failed to schedule donor expiry", "err", err)
	}
	if _, err := s.cron.AddFunc("@every 5m", s.rotateBotStatus); err != nil {
		s.log.Error("housekeeping: failed to schedule bot status rotation", "err", err)
	}
	if _, err := s.cron.AddFunc("@every 1m40s", s.disconnectGhosts); err != nil {
		s.log.Error("housekeeping: failed to schedule ghost disconnect", "err", err)
	}

	s.cron.Start()
	s.log.Info("housekeeping: scheduler running")

	<-ctx.Done()
	s.log.Info("housekeeping: stopping")
	stopped := s.cron.Stop()
	<-stopped.Done()
	s.log.Info("housekeeping: stopped")
}

func (s *Scheduler) rotateBotStatus() {
	if s.bot == nil {
		return
	}
	s.bot.Clear()
}

func (s *Scheduler) expireDonors(ctx context.Context) {
	if s.donors == nil {
		return
	}
	expired, err := s.donors.ExpiredDonors(ctx, time.Now())
	if err != nil {
		s.log.Error("housekeeping: failed to list expired donors", "err", err)
		return
	}

	for _, rec := range expired {
		rec.Privileges &^= ports.Donator
		rec.DonorEnd = time.Time{}
		if err := s.store.SaveUser(ctx, rec); err != nil {
			s.log.Error("housekeeping: failed to save expired donor", "user", rec.Name, "err", err)
			continue
		}
		if sess, online := s.sessions.GetByID(rec.ID); online {
			sess.Privileges = rec.Privileges
			sess.Enqueue(notifyFrame("Your supporter status has expired."))
		}
		s.log.Info("housekeeping: supporter status expired", "user", rec.Name)
	}
}

func (s *Scheduler) disconnectGhosts() {
	for _, sess := range s.sessions.All() {
		if sess.IdleFor() <= ghostDisconnectThreshold {
			continue
		}
		s.log.Info("housekeeping: disconnecting ghost session", "user", sess.Name, "idle", sess.IdleFor())
		s.logout(sess)
	}
}

// logout removes sess from every channel and the registry, then announces
// its departure to every remaining session.
func (s *Scheduler) logout(sess *session.BanchoSession) {
	for name := range sess.Channels {
		if ch, ok := s.channels.Get(name); ok {
			ch.Leave(sess)
		}
	}
	s.sessions.Remove(sess)
	s.sessions.EnqueueAll(logoutFrame(sess.ID), nil)
}

func notifyFrame(msg string) []byte {
	w := packet.NewWriter()
	w.WriteString(msg)
	return packet.Build(packet.Notification, w.Bytes())
}

func logoutFrame(userID int32) []byte {
	w := packet.NewWriter()
	w.WriteI32(userID)
	w.WriteU8(0)
	return packet.Build(packet.UserLogout, w.Bytes())
}
