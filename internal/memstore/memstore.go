// Package memstore is an in-memory ports.Persistence implementation,
// suitable for local development and tests: every table is a guarded map,
// nothing survives a process restart. Production deployments are expected
// to provide their own adapter over a real database.
package memstore

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/stlalpha/bancho3/internal/packet"
	"github.com/stlalpha/bancho3/internal/ports"
)

// Store is a concrete, in-memory ports.Persistence. Safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	usersByID   map[int32]ports.UserRecord
	usersByName map[string]int32

	relationships []ports.Relationship
	mail          []ports.MailMessage
	audit         []ports.AuditLogEntry
	channels      []ports.ChannelRecord

	pools    map[int32]ports.TourneyPool
	poolMaps map[int32][]ports.TourneyPoolMap
}

// New returns an empty store.
func New() *Store {
	return &Store{
		usersByID:   make(map[int32]ports.UserRecord),
		usersByName: make(map[string]int32),
		pools:       make(map[int32]ports.TourneyPool),
		poolMaps:    make(map[int32][]ports.TourneyPoolMap),
	}
}

// errNotFound is returned by lookups against a missing record.
type errNotFound struct{ what string }

func (e errNotFound) Error() string { return e.what + " not found" }

// SeedUser registers u directly, bypassing normal write paths. Used at
// bootstrap to install the builtin bot account and any fixture accounts.
func (s *Store) SeedUser(u ports.UserRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usersByID[u.ID] = u
	s.usersByName[u.SafeName] = u.ID
}

// SeedChannels replaces the channel table wholesale.
func (s *Store) SeedChannels(chs []ports.ChannelRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = append([]ports.ChannelRecord(nil), chs...)
}

func (s *Store) UserByID(ctx context.Context, id int32) (ports.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.usersByID[id]
	if !ok {
		return ports.UserRecord{}, errNotFound{"user"}
	}
	return u, nil
}

func (s *Store) UserBySafeName(ctx context.Context, safeName string) (ports.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usersByName[safeName]
	if !ok {
		return ports.UserRecord{}, errNotFound{"user"}
	}
	return s.usersByID[id], nil
}

func (s *Store) SaveUser(ctx context.Context, u ports.UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usersByID[u.ID] = u
	s.usersByName[u.SafeName] = u.ID
	return nil
}

func (s *Store) Relationships(ctx context.Context, userID int32) ([]ports.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ports.Relationship
	for _, r := range s.relationships {
		if r.User1ID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) SetRelationship(ctx context.Context, r ports.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.relationships {
		if existing.User1ID == r.User1ID && existing.User2ID == r.User2ID {
			s.relationships[i] = r
			return nil
		}
	}
	s.relationships = append(s.relationships, r)
	return nil
}

func (s *Store) RemoveRelationship(ctx context.Context, user1, user2 int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.relationships[:0]
	for _, r := range s.relationships {
		if r.User1ID == user1 && r.User2ID == user2 {
			continue
		}
		out = append(out, r)
	}
	s.relationships = out
	return nil
}

func (s *Store) PendingMail(ctx context.Context, toID int32) ([]ports.MailMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ports.MailMessage
	for _, m := range s.mail {
		if m.ToID == toID && !m.Read {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) SendMail(ctx context.Context, m ports.MailMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mail = append(s.mail, m)
	return nil
}

func (s *Store) MarkMailRead(ctx context.Context, toID int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.mail {
		if m.ToID == toID {
			s.mail[i].Read = true
		}
	}
	return nil
}

func (s *Store) AppendAuditLog(ctx context.Context, e ports.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
	return nil
}

func (s *Store) Channels(ctx context.Context) ([]ports.ChannelRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ports.ChannelRecord(nil), s.channels...), nil
}

func (s *Store) TourneyPool(ctx context.Context, id int32) (ports.TourneyPool, []ports.TourneyPoolMap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pool, ok := s.pools[id]
	if !ok {
		return ports.TourneyPool{}, nil, errNotFound{"tourney pool"}
	}
	return pool, append([]ports.TourneyPoolMap(nil), s.poolMaps[id]...), nil
}

// ExpiredDonors satisfies internal/housekeeping.DonorStore: every account
// whose donor privilege is set but whose window has already closed.
func (s *Store) ExpiredDonors(ctx context.Context, asOf time.Time) ([]ports.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ports.UserRecord
	for _, u := range s.usersByID {
		if u.Privileges&ports.Donator == 0 {
			continue
		}
		if u.DonorEnd.IsZero() || u.DonorEnd.After(asOf) {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

var _ ports.Persistence = (*Store)(nil)

// Bot account constants, matching the original's hardcoded builtin bot.
const (
	BotUserID    int32 = 1
	BotUserName        = "Aika"
	botUTCOffset int8  = -5
	// BOT_COUNTRY_CODE in the original is 256, which overflows the wire
	// format's single-byte country field and truncates to 0 ("no country").
	botCountryCode uint8 = 0
)

// botPrivileges matches the original's BOT_PRIVILEGES: unrestricted,
// donator, and every staff tier.
const botPrivileges = ports.Unrestricted | ports.Donator | ports.Staff

// botStatuses mirrors BOT_USER_STATUSES: (action, info text) pairs the bot
// rotates between on every bot-status housekeeping refresh.
var botStatuses = []struct {
	action uint8
	text   string
}{
	{3, "the source code.."},
	{6, "geohot livestreams.."},
	{6, "asottile tutorials.."},
	{6, "over the server.."},
	{8, "out new features.."},
	{9, "a pull request.."},
}

// BotUser returns the seedable UserRecord for the builtin bot account.
func BotUser() ports.UserRecord {
	return ports.UserRecord{
		ID:         BotUserID,
		Name:       BotUserName,
		SafeName:   "aika",
		Privileges: botPrivileges,
		Country:    "xx",
		Stats:      map[uint8]ports.ModeStats{},
	}
}

// BuildBotSnapshot encodes a fresh presence+stats frame pair for the bot
// account, picking a random status line each call. Intended as the build
// function passed to housekeeping.NewBotSnapshot.
func BuildBotSnapshot() []byte {
	status := botStatuses[rand.Intn(len(botStatuses))]

	presenceW := packet.NewWriter()
	packet.Presence{
		UserID:           BotUserID,
		Name:             BotUserName,
		UTCOffset:        botUTCOffset,
		CountryCode:      botCountryCode,
		ClientPrivileges: uint8(ports.ToClient(botPrivileges)),
		Mode:             0,
		Longitude:        4321.0,
		Latitude:         1234.0,
		GlobalRank:       0,
	}.Encode(presenceW)

	statsW := packet.NewWriter()
	packet.Stats{
		UserID:   BotUserID,
		Action:   status.action,
		InfoText: status.text,
	}.Encode(statsW)

	out := packet.Build(packet.UserPresence, presenceW.Bytes())
	out = append(out, packet.Build(packet.UserStats, statsW.Bytes())...)
	return out
}

// DefaultChannels seeds the handful of always-present static channels a
// fresh deployment needs to be usable out of the box.
func DefaultChannels() []ports.ChannelRecord {
	return []ports.ChannelRecord{
		{Name: "#osu", Topic: "General discussion.", AutoJoin: true},
		{Name: "#lobby", Topic: "Multiplayer lobby chat.", AutoJoin: false},
		{Name: "#announce", Topic: "Announcements.", ReadPriv: ports.Unrestricted, WritePriv: ports.Staff, AutoJoin: true},
	}
}
