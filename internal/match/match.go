// Package match implements the multiplayer lobby state machine: slots,
// settings changes, host transfer, the start timer, and scrim scoring.
package match

import (
	"fmt"
	"sync"
	"time"

	"github.com/stlalpha/bancho3/internal/channel"
	"github.com/stlalpha/bancho3/internal/packet"
	"github.com/stlalpha/bancho3/internal/ports"
)

// SlotCount is the fixed number of slots in every match.
const SlotCount = 16

// WinCondition selects which scalar scrim scoring sums per player/team.
type WinCondition uint8

const (
	WinScore WinCondition = iota
	WinAccuracy
	WinCombo
	WinScoreV2
)

// TeamType selects whether slots are free-for-all or assigned to teams.
type TeamType uint8

const (
	HeadToHead TeamType = iota
	TagCoop
	TeamVs
	TagTeamVs
)

func (t TeamType) IsFFA() bool { return t == HeadToHead || t == TagCoop }

// Team is a slot's team assignment under a team-based TeamType.
type Team uint8

const (
	TeamNeutral Team = iota
	TeamBlue
	TeamRed
)

func hasPlayer(status uint8) bool {
	return status&(packet.SlotNotReady|packet.SlotReady|packet.SlotNoMap|packet.SlotPlaying|packet.SlotComplete) != 0
}

// Slot is one of a match's sixteen player slots.
type Slot struct {
	PlayerID int32
	Status   uint8
	Team     Team
	Mods     int32
	Loaded   bool
	Skipped  bool
}

func (s *Slot) reset(status uint8) {
	s.PlayerID = 0
	s.Status = status
	s.Team = TeamNeutral
	s.Mods = 0
	s.Loaded = false
	s.Skipped = false
}

// Session is the subset of a live connection the match engine needs:
// identity, delivery, and privilege bypass for password checks.
type Session interface {
	channel.Member
	IsStaff() bool
	IsRestricted() bool
	Silenced() bool
}

// Scrim holds a scrim's running point totals, bans, and winner history.
// Keys in Points are either a player id (free-for-all) or -(Team+1) as an
// int32 (team play), so the two key spaces never collide.
type Scrim struct {
	Active       bool
	TargetPoints int
	UsePPScoring bool
	Points       map[int32]int
	Bans         map[BanKey]struct{}
	Winners      []*int32 // nil entry = a tied round, no point awarded
}

// BanKey identifies a banned (mods, slot) combination for scrim play.
type BanKey struct {
	Mods int32
	Slot int
}

func newScrim() *Scrim {
	return &Scrim{
		Points: make(map[int32]int),
		Bans:   make(map[BanKey]struct{}),
	}
}

// teamKey and playerKey keep the two Points key spaces disjoint.
func teamKey(t Team) int32     { return -int32(t) - 1 }
func playerKey(id int32) int32 { return id }

// startState models the armed start timer as present-or-absent, resolving
// the "not starting vs starting with a deadline" question as a nilable
// pointer rather than a boolean plus zero-value deadline.
type startState struct {
	fireAt      time.Time
	fireTimer   *time.Timer
	alertTimers []*time.Timer
	requestedBy int32
}

// Match is one multiplayer lobby's full live state.
type Match struct {
	mu sync.Mutex

	ID           int32
	Name         string
	Password     string
	MapID        int32
	MapMD5       string
	MapName      string
	PrevMapID    int32
	Mods         int32
	Mode         uint8
	FreeMods     bool
	WinCondition WinCondition
	TeamType     TeamType
	InProgress   bool
	HostID       int32
	Seed         int32

	Refs  map[int32]struct{}
	Slots [SlotCount]Slot

	Chat *channel.Channel

	Scrim *Scrim

	// Pool is the mappool a tourney host has loaded with !mp pool, resolving
	// a (mods, slot) pick to a beatmap. nil when no pool is loaded.
	Pool     *ports.TourneyPool
	PoolMaps []ports.TourneyPoolMap

	start *startState

	sessions map[int32]Session // playerID -> live session, for broadcast + lookups

	// tourneyClients is the set of tournament client observer user ids
	// attached to this match's channel without occupying a player slot.
	// Distinct from sessions: an observer never holds a slot.
	tourneyClients map[int32]struct{}
}

// New builds an empty match bound to chat, a freshly created instanced
// channel (e.g. #multi_<id>).
func New(id int32, name, password, mapName string, mapID int32, mapMD5 string, hostID int32, mode uint8, mods int32, wc WinCondition, tt TeamType, freemods bool, seed int32, chat *channel.Channel) *Match {
	m := &Match{
		ID:           id,
		Name:         name,
		Password:     password,
		MapID:        mapID,
		MapMD5:       mapMD5,
		MapName:      mapName,
		Mods:         mods,
		Mode:         mode,
		FreeMods:     freemods,
		WinCondition: wc,
		TeamType:     tt,
		HostID:       hostID,
		Seed:         seed,
		Refs:           make(map[int32]struct{}),
		Chat:           chat,
		sessions:       make(map[int32]Session),
		tourneyClients: make(map[int32]struct{}),
	}
	for i := range m.Slots {
		m.Slots[i].Status = packet.SlotOpen
	}
	return m
}

// JoinFailure enumerates why a MATCH_JOIN_FAIL was sent.
type JoinFailure int

const (
	JoinOK JoinFailure = iota
	JoinWrongPassword
	JoinFull
	JoinRestricted
	JoinAlreadyInMatch
)

// Join places session into the first open slot. Staff sessions bypass the
// password check. A restricted or silenced account, and a tourney client
// that already observes this match, are rejected before the password and
// slot checks run.
func (m *Match) Join(s Session, playerID int32, password string, staffBypass bool) JoinFailure {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.IsRestricted() || s.Silenced() {
		return JoinRestricted
	}

	if _, already := m.sessions[playerID]; already {
		return JoinAlreadyInMatch
	}
	if _, observing := m.tourneyClients[playerID]; observing {
		return JoinAlreadyInMatch
	}

	if m.Password != "" && password != m.Password && !staffBypass {
		return JoinWrongPassword
	}

	for i := range m.Slots {
		if m.Slots[i].Status == packet.SlotOpen {
			m.Slots[i].PlayerID = playerID
			m.Slots[i].Status = packet.SlotNotReady
			m.sessions[playerID] = s
			m.Chat.Join(s)
			return JoinOK
		}
	}
	return JoinFull
}

// AddTourneyObserver records userID as watching this match's channel via a
// tourney client, without occupying a slot.
func (m *Match) AddTourneyObserver(userID int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tourneyClients[userID] = struct{}{}
}

// RemoveTourneyObserver clears userID's tourney-client observer status.
func (m *Match) RemoveTourneyObserver(userID int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tourneyClients, userID)
}

// IsTourneyObserver reports whether userID currently observes this match
// via a tourney client.
func (m *Match) IsTourneyObserver(userID int32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tourneyClients[userID]
	return ok
}

// slotIndexOf returns the slot index occupied by playerID, or -1.
func (m *Match) slotIndexOf(playerID int32) int {
	for i := range m.Slots {
		if hasPlayer(m.Slots[i].Status) && m.Slots[i].PlayerID == playerID {
			return i
		}
	}
	return -1
}

// Part removes playerID from the match. If the departing player was host,
// host transfers to the first remaining occupied slot. Returns true if the
// match is now empty and should be destroyed.
func (m *Match) Part(playerID int32) (destroyed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.slotIndexOf(playerID)
	if idx < 0 {
		return m.occupantCount() == 0
	}
	m.Slots[idx].reset(packet.SlotOpen)
	delete(m.sessions, playerID)
	delete(m.Refs, playerID)

	if m.occupantCount() == 0 {
		m.cancelStartLocked()
		return true
	}

	if m.HostID == playerID {
		m.transferHostToFirstOccupantLocked()
	}
	return false
}

func (m *Match) occupantCount() int {
	n := 0
	for i := range m.Slots {
		if hasPlayer(m.Slots[i].Status) {
			n++
		}
	}
	return n
}

func (m *Match) transferHostToFirstOccupantLocked() {
	for i := range m.Slots {
		if hasPlayer(m.Slots[i].Status) {
			m.HostID = m.Slots[i].PlayerID
			return
		}
	}
}

// TransferHost moves host status to the occupant of slot idx. Returns false
// if idx is out of range or unoccupied.
func (m *Match) TransferHost(idx int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if idx < 0 || idx >= SlotCount || !hasPlayer(m.Slots[idx].Status) {
		return false
	}
	m.HostID = m.Slots[idx].PlayerID
	return true
}

// IsHost reports whether playerID currently hosts the match. The host is
// always implicitly a referee.
func (m *Match) IsHost(playerID int32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.HostID == playerID
}

// IsReferee reports whether playerID is the host or an explicit referee.
func (m *Match) IsReferee(playerID int32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.HostID == playerID {
		return true
	}
	_, ok := m.Refs[playerID]
	return ok
}

// LoadPool attaches a tourney mappool to the match, replacing any
// previously loaded pool.
func (m *Match) LoadPool(pool ports.TourneyPool, maps []ports.TourneyPoolMap) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Pool = &pool
	m.PoolMaps = maps
}

// UnloadPool clears the currently loaded mappool, if any. Reports whether
// one was loaded.
func (m *Match) UnloadPool() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Pool == nil {
		return false
	}
	m.Pool = nil
	m.PoolMaps = nil
	return true
}

// PoolPick resolves a (mods, slot) pick against the loaded mappool.
func (m *Match) PoolPick(mods int32, slot int) (ports.TourneyPoolMap, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Pool == nil {
		return ports.TourneyPoolMap{}, false
	}
	for _, pm := range m.PoolMaps {
		if pm.Mods == mods && pm.Slot == slot {
			return pm, true
		}
	}
	return ports.TourneyPoolMap{}, false
}

// ChatChannelName satisfies command.MatchContext: the match's own chat
// channel, used to gate mp subcommands to messages sent there.
func (m *Match) ChatChannelName() string {
	if m.Chat == nil {
		return ""
	}
	return m.Chat.RealName
}

// ChangeSlotStatus sets slot idx's status, subject to the sub-state-machine
// rules (open<->locked host-only is enforced by the caller, which already
// checked host privilege before calling).
func (m *Match) ChangeSlotStatus(idx int, status uint8) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if idx < 0 || idx >= SlotCount {
		return false
	}
	m.Slots[idx].Status = status
	return true
}

// SetReady toggles a slot between not_ready and ready.
func (m *Match) SetReady(playerID int32, ready bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.slotIndexOf(playerID)
	if idx < 0 {
		return false
	}
	s := &m.Slots[idx]
	switch s.Status {
	case packet.SlotNotReady, packet.SlotReady:
		if ready {
			s.Status = packet.SlotReady
		} else {
			s.Status = packet.SlotNotReady
		}
		return true
	}
	return false
}

// SetHasBeatmap toggles a slot out of/into the no_map state.
func (m *Match) SetHasBeatmap(playerID int32, hasMap bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.slotIndexOf(playerID)
	if idx < 0 {
		return false
	}
	s := &m.Slots[idx]
	if hasMap && s.Status == packet.SlotNoMap {
		s.Status = packet.SlotNotReady
		return true
	}
	if !hasMap && (s.Status == packet.SlotNotReady || s.Status == packet.SlotReady) {
		s.Status = packet.SlotNoMap
		return true
	}
	return false
}

// ChangeMap updates the selected beatmap. Passing mapID -1 is the
// "no map yet" sentinel: it un-readies every ready slot and remembers the
// prior map id.
func (m *Match) ChangeMap(mapID int32, md5, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mapID == -1 {
		m.PrevMapID = m.MapID
		for i := range m.Slots {
			if m.Slots[i].Status == packet.SlotReady {
				m.Slots[i].Status = packet.SlotNotReady
			}
		}
	}
	m.MapID = mapID
	m.MapMD5 = md5
	m.MapName = name
}

// ApplyPoolPick resolves a (mods, slot) pick against the loaded pool and
// applies it as the match's selected map and mods, disabling freemods (if
// set) the way a host picking from a tournament pool expects. No
// beatmap-metadata port is wired in this deployment, so the map name and
// md5 are left for the next MATCH_CHANGE_SETTINGS to fill in; only the
// beatmap id is authoritative here.
func (m *Match) ApplyPoolPick(mods int32, slot int) (ports.TourneyPoolMap, bool) {
	pick, ok := m.PoolPick(mods, slot)
	if !ok {
		return ports.TourneyPoolMap{}, false
	}
	m.mu.Lock()
	m.MapID = pick.MapID
	m.mu.Unlock()
	m.SetFreeMods(false)
	m.mu.Lock()
	m.Mods = mods
	m.mu.Unlock()
	return pick, true
}

// ApplySettings updates name, password, mode, win condition, and team type
// from a host-submitted settings change. Map changes go through ChangeMap
// separately, since that also has to un-ready players.
func (m *Match) ApplySettings(name, password string, mode uint8, wc WinCondition, tt TeamType) {
	m.mu.Lock()
	m.Name = name
	m.Password = password
	m.Mode = mode
	m.WinCondition = wc
	m.mu.Unlock()
	m.SetTeamType(tt)
}

// SetPassword changes the match password alone, used by MATCH_CHANGE_PASSWORD.
func (m *Match) SetPassword(password string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Password = password
}

// Snapshot returns the wire Match composite for the current state, with or
// without the password included.
func (m *Match) Snapshot(includePassword bool) packet.Match {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(includePassword)
}

// SetFreeMods toggles freemods, moving mods between the match and occupied
// slots. Speed-changing mods (the low bits shared across all players, e.g.
// double time/half time/nightcore) stay on the match either way.
const speedChangingMods int32 = (1 << 6) | (1 << 8) | (1 << 9) // DT | HT | NC, per the original Mods bitset

func (m *Match) SetFreeMods(freemods bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if freemods == m.FreeMods {
		return
	}
	if freemods {
		carry := m.Mods &^ speedChangingMods
		for i := range m.Slots {
			if hasPlayer(m.Slots[i].Status) {
				m.Slots[i].Mods = carry
			}
		}
		m.Mods &= speedChangingMods
	} else {
		var carry int32
		for i := range m.Slots {
			if hasPlayer(m.Slots[i].Status) {
				carry |= m.Slots[i].Mods &^ speedChangingMods
				m.Slots[i].Mods = 0
			}
		}
		m.Mods = (m.Mods & speedChangingMods) | carry
	}
	m.FreeMods = freemods
}

// SetTeamType changes the team mode, reassigning every occupied slot:
// team modes get `red`, free-for-all modes get `neutral`. Rejected (false)
// if a scrim is active, since scrim rules depend on a stable team layout.
func (m *Match) SetTeamType(tt TeamType) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Scrim != nil && m.Scrim.Active {
		return false
	}
	m.TeamType = tt
	newTeam := TeamNeutral
	if !tt.IsFFA() {
		newTeam = TeamRed
	}
	for i := range m.Slots {
		if hasPlayer(m.Slots[i].Status) {
			m.Slots[i].Team = newTeam
		}
	}
	return true
}

// SlotIndexOf returns the slot index occupied by playerID, or -1.
func (m *Match) SlotIndexOf(playerID int32) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slotIndexOf(playerID)
}

// MovePlayer relocates playerID's slot to idx, provided idx is open.
func (m *Match) MovePlayer(playerID int32, idx int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if idx < 0 || idx >= SlotCount || m.Slots[idx].Status != packet.SlotOpen {
		return false
	}
	from := m.slotIndexOf(playerID)
	if from < 0 {
		return false
	}
	m.Slots[idx] = m.Slots[from]
	m.Slots[from].reset(packet.SlotOpen)
	return true
}

// ToggleLock flips slot idx between open and locked. An occupied slot is
// kicked back to open (and its player reported, so the caller can notify
// them) before being locked. Returns the kicked player id, or 0.
func (m *Match) ToggleLock(idx int) (kicked int32, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if idx < 0 || idx >= SlotCount {
		return 0, false
	}
	s := &m.Slots[idx]
	if hasPlayer(s.Status) {
		kicked = s.PlayerID
		delete(m.sessions, kicked)
		delete(m.Refs, kicked)
		s.reset(packet.SlotLocked)
		return kicked, true
	}
	if s.Status == packet.SlotLocked {
		s.reset(packet.SlotOpen)
	} else {
		s.reset(packet.SlotLocked)
	}
	return 0, true
}

// SetMods replaces the match-wide mod selection, used outside freemods.
func (m *Match) SetMods(mods int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Mods = mods
}

// SetSlotMods replaces playerID's own mod selection under freemods.
func (m *Match) SetSlotMods(playerID int32, mods int32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.slotIndexOf(playerID)
	if idx < 0 {
		return false
	}
	m.Slots[idx].Mods = mods
	return true
}

// ToggleTeam flips playerID's slot between the two team colors.
func (m *Match) ToggleTeam(playerID int32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.slotIndexOf(playerID)
	if idx < 0 {
		return false
	}
	if m.Slots[idx].Team == TeamBlue {
		m.Slots[idx].Team = TeamRed
	} else {
		m.Slots[idx].Team = TeamBlue
	}
	return true
}

// MarkLoaded flags playerID as having finished loading into gameplay.
// Reports whether every playing slot has now loaded.
func (m *Match) MarkLoaded(playerID int32) (allLoaded bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.slotIndexOf(playerID)
	if idx >= 0 {
		m.Slots[idx].Loaded = true
	}
	for i := range m.Slots {
		if m.Slots[i].Status == packet.SlotPlaying && !m.Slots[i].Loaded {
			return false
		}
	}
	return true
}

// ResetLoaded clears every slot's loaded flag, readying the match for the
// next round.
func (m *Match) ResetLoaded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Slots {
		m.Slots[i].Loaded = false
	}
}

// MarkSkipped flags playerID as requesting to skip the intro. Reports
// whether every playing slot has now requested a skip.
func (m *Match) MarkSkipped(playerID int32) (allSkipped bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.slotIndexOf(playerID)
	if idx >= 0 {
		m.Slots[idx].Skipped = true
	}
	for i := range m.Slots {
		if m.Slots[i].Status == packet.SlotPlaying && !m.Slots[i].Skipped {
			return false
		}
	}
	return true
}

// ResetSkipped clears every slot's skipped flag, readying the match for the
// next round.
func (m *Match) ResetSkipped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Slots {
		m.Slots[i].Skipped = false
	}
}

// Start transitions the match to in_progress: every occupied non-no_map
// slot becomes playing; no_map slots are skipped and immune from the
// broadcast. Returns the player ids immune from the start broadcast.
func (m *Match) Start() (immune []int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Slots {
		s := &m.Slots[i]
		if !hasPlayer(s.Status) {
			continue
		}
		if s.Status == packet.SlotNoMap {
			immune = append(immune, s.PlayerID)
			continue
		}
		s.Status = packet.SlotPlaying
	}
	m.InProgress = true
	return immune
}

// CompletePlayer marks a playing slot as complete. Returns true once every
// playing slot has completed (the match round is over).
func (m *Match) CompletePlayer(playerID int32) (roundOver bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.slotIndexOf(playerID)
	if idx >= 0 && m.Slots[idx].Status == packet.SlotPlaying {
		m.Slots[idx].Status = packet.SlotComplete
	}
	for i := range m.Slots {
		if m.Slots[i].Status == packet.SlotPlaying {
			return false
		}
	}
	return true
}

// FinishRound resets every complete slot back to not_ready and clears
// in_progress, readying the match for another round.
func (m *Match) FinishRound() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InProgress = false
	for i := range m.Slots {
		if m.Slots[i].Status == packet.SlotComplete {
			m.Slots[i].Status = packet.SlotNotReady
		}
	}
}

// snapshotLocked builds the wire Match composite from current state. Caller
// must hold m.mu.
func (m *Match) snapshotLocked(includePassword bool) packet.Match {
	wire := packet.Match{
		ID:           uint16(m.ID),
		InProgress:   m.InProgress,
		Mods:         m.Mods,
		Name:         m.Name,
		BeatmapName:  m.MapName,
		BeatmapID:    m.MapID,
		BeatmapMD5:   m.MapMD5,
		HostID:       m.HostID,
		Mode:         m.Mode,
		WinCondition: uint8(m.WinCondition),
		TeamType:     uint8(m.TeamType),
		FreeMods:     m.FreeMods,
		Seed:         m.Seed,
	}
	if includePassword {
		wire.Password = m.Password
	}
	for i := range m.Slots {
		wire.SlotStatus[i] = m.Slots[i].Status
		wire.SlotTeam[i] = uint8(m.Slots[i].Team)
		wire.SlotUserID[i] = m.Slots[i].PlayerID
		if m.FreeMods {
			wire.SlotMods[i] = m.Slots[i].Mods
		}
	}
	return wire
}

// EnqueueMatchState sends UPDATE_MATCH to in-match members (with password)
// and, if lobby is non-nil, also to its members (without password), when
// lobby has any members. Match-scoped packets (this one included when
// lobby is false) are never sent to the lobby.
func (m *Match) EnqueueMatchState(lobby *channel.Channel, broadcastToLobby bool) {
	m.mu.Lock()
	withPW := m.snapshotLocked(true)
	withoutPW := m.snapshotLocked(false)
	m.mu.Unlock()

	w := packet.NewWriter()
	withPW.Encode(w)
	m.Chat.Broadcast(packet.Build(packet.UpdateMatch, w.Bytes()), nil)

	if broadcastToLobby && lobby != nil && lobby.MemberCount() > 0 {
		w2 := packet.NewWriter()
		withoutPW.Encode(w2)
		lobby.Broadcast(packet.Build(packet.UpdateMatch, w2.Bytes()), nil)
	}
}

// SendToMatch enqueues an already-built frame to every match member except
// those in except. Never sent to the lobby.
func (m *Match) SendToMatch(frame []byte, except map[int32]struct{}) {
	m.Chat.Broadcast(frame, except)
}

func validSeconds(secs int) bool { return secs > 0 }

// ArmStartTimer schedules the match to auto-start at now+seconds, firing
// onFire at T and onAlert at each of T-{60,30,10,5,4,3,2,1}s that is
// strictly before T. requestedBy records who can cancel it.
func (m *Match) ArmStartTimer(seconds int, requestedBy int32, onFire func(), onAlert func(secondsLeft int)) bool {
	if !validSeconds(seconds) {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelStartLocked()

	fireAt := time.Now().Add(time.Duration(seconds) * time.Second)
	st := &startState{fireAt: fireAt, requestedBy: requestedBy}

	st.fireTimer = time.AfterFunc(time.Duration(seconds)*time.Second, onFire)
	for _, mark := range []int{60, 30, 10, 5, 4, 3, 2, 1} {
		if mark >= seconds {
			continue
		}
		delay := time.Duration(seconds-mark) * time.Second
		secondsLeft := mark
		st.alertTimers = append(st.alertTimers, time.AfterFunc(delay, func() { onAlert(secondsLeft) }))
	}
	m.start = st
	return true
}

// CancelStartTimer cancels the armed start fire and every pending alert.
// Returns false if no timer was armed.
func (m *Match) CancelStartTimer() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.start == nil {
		return false
	}
	m.cancelStartLocked()
	return true
}

func (m *Match) cancelStartLocked() {
	if m.start == nil {
		return
	}
	m.start.fireTimer.Stop()
	for _, t := range m.start.alertTimers {
		t.Stop()
	}
	m.start = nil
}

// Starting reports whether a start timer is currently armed.
func (m *Match) Starting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.start != nil
}

// StartScrim opens a scrim requiring target wins (odd N, target N/2+1).
func (m *Match) StartScrim(bestOf int, usePPScoring bool) error {
	if bestOf%2 == 0 || bestOf < 1 || bestOf > 15 {
		return fmt.Errorf("match: best-of must be odd in [1,15], got %d", bestOf)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := newScrim()
	s.Active = true
	s.TargetPoints = bestOf/2 + 1
	s.UsePPScoring = usePPScoring
	m.Scrim = s
	return nil
}

// EndScrim deactivates scrim scoring without clearing accumulated history.
func (m *Match) EndScrim() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Scrim != nil {
		m.Scrim.Active = false
	}
}

// ResetScrimState clears the current scrim's points, bans, and winners.
func (m *Match) ResetScrimState() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Scrim == nil {
		return
	}
	m.Scrim.Points = make(map[int32]int)
	m.Scrim.Bans = make(map[BanKey]struct{})
	m.Scrim.Winners = nil
}

// Rematch pops the last winner entry and decrements that winner's points.
func (m *Match) Rematch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Scrim == nil || len(m.Scrim.Winners) == 0 {
		return
	}
	last := m.Scrim.Winners[len(m.Scrim.Winners)-1]
	m.Scrim.Winners = m.Scrim.Winners[:len(m.Scrim.Winners)-1]
	if last != nil {
		m.Scrim.Points[*last]--
	}
}
