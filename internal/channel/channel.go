// Package channel manages the named channel registry: static channels
// loaded at startup plus instanced channels created and destroyed on demand
// by the match and spectator components.
package channel

import (
	"sort"
	"sync"

	"github.com/stlalpha/bancho3/internal/ports"
)

// Member is the subset of a session a channel needs to fan packets out: an
// id for membership bookkeeping and an Enqueue sink for delivery. Defined
// here rather than importing internal/session directly, so internal/session
// does not need to import internal/channel back.
type Member interface {
	SessionID() int32
	Enqueue(frame []byte)
}

// Channel is one named chat channel, static or instanced.
type Channel struct {
	mu sync.RWMutex

	RealName  string
	WireName  string
	Topic     string
	ReadPriv  ports.Privileges
	WritePriv ports.Privileges
	AutoJoin  bool
	Instanced bool

	members map[int32]Member
}

func newChannel(rec ports.ChannelRecord, instanced bool) *Channel {
	return &Channel{
		RealName:  rec.Name,
		WireName:  rec.Name,
		Topic:     rec.Topic,
		ReadPriv:  rec.ReadPriv,
		WritePriv: rec.WritePriv,
		AutoJoin:  rec.AutoJoin,
		Instanced: instanced,
		members:   make(map[int32]Member),
	}
}

// CanRead reports whether privs may read this channel: the read mask being
// zero means "anyone", otherwise at least one bit must overlap.
func (c *Channel) CanRead(privs ports.Privileges) bool {
	return c.ReadPriv == 0 || privs&c.ReadPriv != 0
}

// CanWrite reports whether privs may post to this channel.
func (c *Channel) CanWrite(privs ports.Privileges) bool {
	return c.WritePriv == 0 || privs&c.WritePriv != 0
}

// Join adds m to the channel's membership. Returns false if already joined.
func (c *Channel) Join(m Member) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.members[m.SessionID()]; ok {
		return false
	}
	c.members[m.SessionID()] = m
	return true
}

// Leave removes m from the channel's membership. Returns false if not a
// member, and also reports whether the channel is now empty.
func (c *Channel) Leave(m Member) (removed bool, nowEmpty bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.members[m.SessionID()]; !ok {
		return false, len(c.members) == 0
	}
	delete(c.members, m.SessionID())
	return true, len(c.members) == 0
}

// MemberCount returns the number of joined members.
func (c *Channel) MemberCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.members)
}

// Broadcast enqueues frame to every member except those whose id is in
// except.
func (c *Channel) Broadcast(frame []byte, except map[int32]struct{}) {
	c.mu.RLock()
	targets := make([]Member, 0, len(c.members))
	for id, m := range c.members {
		if except != nil {
			if _, skip := except[id]; skip {
				continue
			}
		}
		targets = append(targets, m)
	}
	c.mu.RUnlock()

	for _, m := range targets {
		m.Enqueue(frame)
	}
}

// IsMember reports whether id is currently joined.
func (c *Channel) IsMember(id int32) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.members[id]
	return ok
}

// Registry is the by-name map of every live channel, static and instanced.
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]*Channel
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Channel)}
}

// LoadStatic populates the registry from persisted channel records. Any
// existing entries with the same name are replaced.
func (r *Registry) LoadStatic(records []ports.ChannelRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range records {
		r.byName[rec.Name] = newChannel(rec, false)
	}
}

// CreateInstanced registers a new instanced channel (e.g. #spec_<id> or
// #multi_<id>) and returns it. Replaces any existing channel of the same
// name.
func (r *Registry) CreateInstanced(rec ports.ChannelRecord) *Channel {
	ch := newChannel(rec, true)
	r.mu.Lock()
	r.byName[rec.Name] = ch
	r.mu.Unlock()
	return ch
}

// Remove drops a channel from the registry entirely, used when an instanced
// channel's last member leaves.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byName, name)
}

// Get looks up a channel by its real name.
func (r *Registry) Get(name string) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.byName[name]
	return ch, ok
}

// All returns a name-ordered snapshot of every channel.
func (r *Registry) All() []*Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Channel, 0, len(r.byName))
	for _, ch := range r.byName {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RealName < out[j].RealName })
	return out
}

// Readable returns every channel readable by privs, name-ordered.
func (r *Registry) Readable(privs ports.Privileges) []*Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Channel, 0, len(r.byName))
	for _, ch := range r.byName {
		if ch.CanRead(privs) {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RealName < out[j].RealName })
	return out
}
