// Package session holds the authoritative in-memory set of logged-in users.
package session

import (
	"sync"
	"time"

	"github.com/stlalpha/bancho3/internal/ports"
)

// Status mirrors the osu! client's current action/mode/map selection, as
// broadcast to other clients in USER_STATS.
type Status struct {
	Action    uint8
	Info      string
	MapMD5    string
	Mods      int32
	Mode      uint8
	MapID     int32
}

// LastNP records the beatmap a user last linked with /np, used to resolve
// the target of a following !with or map-request command. A zero Expiry
// means no map has been linked.
type LastNP struct {
	BeatmapMD5 string
	BeatmapID  int32
	Mods       int32
	Mode       uint8
	Expiry     time.Time
}

// BanchoSession is one logged-in user's live, in-memory state. Nothing here
// is persisted directly; ports.UserRecord is the durable shape this is
// hydrated from at login and occasionally flushed back to.
type BanchoSession struct {
	mu sync.Mutex

	ID         int32
	Name       string
	SafeName   string
	Privileges ports.Privileges
	Token      string

	UTCOffset int8
	Country   string
	Latitude  float64
	Longitude float64

	Status Status

	pending []byte

	Friends map[int32]struct{}
	Blocks  map[int32]struct{}

	Channels map[string]struct{}

	SpectatorHostID int32   // non-zero while this user spectates someone
	Spectators      map[int32]*BanchoSession
	Stealth         bool

	MatchID int32 // -1 when not in a match

	PresenceFilter uint8
	PMPrivate      bool // true: reject DMs from non-friends
	AwayMessage    string
	SilenceEnd     time.Time
	LastReceive    time.Time
	LoginTime      time.Time

	LastScores map[uint8]ports.ModeStats
	LastNP     LastNP

	Restricted bool
}

// NewBanchoSession builds a session for a freshly authenticated user. Token
// is assigned by the caller (see session.NewToken).
func NewBanchoSession(rec ports.UserRecord, token string) *BanchoSession {
	return &BanchoSession{
		ID:         rec.ID,
		Name:       rec.Name,
		SafeName:   rec.SafeName,
		Privileges: rec.Privileges,
		Token:      token,
		Country:    rec.Country,
		Channels:   make(map[string]struct{}),
		Friends:    make(map[int32]struct{}),
		Blocks:     make(map[int32]struct{}),
		Spectators: make(map[int32]*BanchoSession),
		MatchID:    -1,
		SilenceEnd: rec.SilenceEnd,
		LoginTime:  time.Now(),
		LastScores: make(map[uint8]ports.ModeStats),
	}
}

// SessionID satisfies channel.Member.
func (s *BanchoSession) SessionID() int32 {
	return s.ID
}

// Silenced reports whether the user is currently under a chat silence.
func (s *BanchoSession) Silenced() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Now().Before(s.SilenceEnd)
}

// IsRestricted reports whether the account is currently restricted.
func (s *BanchoSession) IsRestricted() bool {
	return s.Restricted
}

// Enqueue appends a framed packet to this session's outbound buffer. It
// never blocks: the buffer grows until the next request drains it, matching
// the HTTP long-poll transport's pull model rather than a channel send.
func (s *BanchoSession) Enqueue(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, frame...)
}

// DrainOutbound returns and clears the accumulated outbound bytes.
func (s *BanchoSession) DrainOutbound() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil
	}
	out := s.pending
	s.pending = nil
	return out
}

// Touch records activity for idle-timeout purposes.
func (s *BanchoSession) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastReceive = time.Now()
}

// IdleFor reports how long it has been since the last recorded activity.
func (s *BanchoSession) IdleFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.LastReceive)
}

// IsFriend reports whether id is in this session's friends set.
func (s *BanchoSession) IsFriend(id int32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.Friends[id]
	return ok
}

// IsBlocked reports whether id is in this session's block set.
func (s *BanchoSession) IsBlocked(id int32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.Blocks[id]
	return ok
}

// IsStaff satisfies internal/match.Session: staff bypass password and
// referee gating that an ordinary player is held to.
func (s *BanchoSession) IsStaff() bool {
	return s.Privileges&ports.Staff != 0
}
