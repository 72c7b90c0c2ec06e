// Package spectator manages spectator groups: one instanced channel plus
// fan-out bookkeeping per host being spectated.
package spectator

import (
	"fmt"
	"sync"

	"github.com/stlalpha/bancho3/internal/channel"
	"github.com/stlalpha/bancho3/internal/packet"
	"github.com/stlalpha/bancho3/internal/ports"
)

// Session is the subset of session.BanchoSession the spectator manager
// needs, kept narrow to avoid a dependency cycle with internal/session.
type Session interface {
	channel.Member
}

func instancedChannelName(hostID int32) string {
	return fmt.Sprintf("#spec_%d", hostID)
}

func i32Packet(id uint16, v int32) []byte {
	w := packet.NewWriter()
	w.WriteI32(v)
	return packet.Build(id, w.Bytes())
}

// Group is one host's live spectator set.
type Group struct {
	mu         sync.RWMutex
	hostID     int32
	channel    *channel.Channel
	spectators map[int32]Session
	stealth    map[int32]bool
}

// Manager tracks one Group per spectated host.
type Manager struct {
	mu       sync.Mutex
	channels *channel.Registry
	groups   map[int32]*Group
}

// NewManager builds a spectator manager backed by the given channel
// registry, which owns the instanced #spec_<hostId> channels' lifecycle.
func NewManager(channels *channel.Registry) *Manager {
	return &Manager{
		channels: channels,
		groups:   make(map[int32]*Group),
	}
}

// StartSpectating adds spectatorSession to host's group, creating the group
// and its instanced channel on first spectator. stealth suppresses the
// fellow-spectator notifications this spectator would otherwise generate.
func (m *Manager) StartSpectating(host Session, spectatorSession Session, stealth bool) {
	m.mu.Lock()
	g, ok := m.groups[host.SessionID()]
	if !ok {
		ch := m.channels.CreateInstanced(ports.ChannelRecord{Name: instancedChannelName(host.SessionID())})
		ch.Join(host)
		g = &Group{
			hostID:     host.SessionID(),
			channel:    ch,
			spectators: make(map[int32]Session),
			stealth:    make(map[int32]bool),
		}
		m.groups[host.SessionID()] = g
	}
	m.mu.Unlock()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.channel.Join(spectatorSession)
	sid := spectatorSession.SessionID()

	if !stealth {
		joinedFrame := i32Packet(packet.FellowSpectatorJoined, sid)
		for existingID, existing := range g.spectators {
			if g.stealth[existingID] {
				continue
			}
			existing.Enqueue(joinedFrame)
			spectatorSession.Enqueue(i32Packet(packet.FellowSpectatorJoined, existingID))
		}
		host.Enqueue(i32Packet(packet.SpectatorJoined, sid))
	}

	g.spectators[sid] = spectatorSession
	g.stealth[sid] = stealth
}

// StopSpectating removes spectatorSession from host's group. When the last
// spectator leaves, the host is removed from the instanced channel and the
// channel (and group) are destroyed.
func (m *Manager) StopSpectating(host Session, spectatorSession Session) {
	m.mu.Lock()
	g, ok := m.groups[host.SessionID()]
	m.mu.Unlock()
	if !ok {
		return
	}

	g.mu.Lock()
	sid := spectatorSession.SessionID()
	stealth := g.stealth[sid]
	delete(g.spectators, sid)
	delete(g.stealth, sid)
	g.channel.Leave(spectatorSession)

	if !stealth {
		leftFrame := i32Packet(packet.FellowSpectatorLeft, sid)
		for existingID, existing := range g.spectators {
			if g.stealth[existingID] {
				continue
			}
			existing.Enqueue(leftFrame)
		}
		host.Enqueue(i32Packet(packet.SpectatorLeft, sid))
	}

	empty := len(g.spectators) == 0
	g.mu.Unlock()

	if empty {
		m.mu.Lock()
		delete(m.groups, host.SessionID())
		m.mu.Unlock()
		g.channel.Leave(host)
		m.channels.Remove(instancedChannelName(host.SessionID()))
	}
}

// RelayFrames retransmits a raw SPECTATE_FRAMES payload, verbatim, to every
// spectator of host, stealth spectators included. The bytes are never decoded.
func (m *Manager) RelayFrames(host Session, rawBundlePayload []byte) {
	m.mu.Lock()
	g, ok := m.groups[host.SessionID()]
	m.mu.Unlock()
	if !ok {
		return
	}

	frame := packet.Build(packet.SSpectateFrames, rawBundlePayload)

	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, s := range g.spectators {
		s.Enqueue(frame)
	}
}

// SpectatorCount reports how many users are spectating host, or 0 if host
// has no active group.
func (m *Manager) SpectatorCount(hostID int32) int {
	m.mu.Lock()
	g, ok := m.groups[hostID]
	m.mu.Unlock()
	if !ok {
		return 0
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.spectators)
}
