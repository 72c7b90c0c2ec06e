package session

import (
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/google/uuid"

	"github.com/stlalpha/bancho3/internal/ports"
)

// Registry is the authoritative set of logged-in sessions, keyed three
// ways. A user's entry is reachable by token, id, or safe name; token
// non-empty is equivalent to presence in the registry.
type Registry struct {
	mu         sync.RWMutex
	byToken    map[string]*BanchoSession
	byID       map[int32]*BanchoSession
	bySafeName map[string]*BanchoSession

	bcryptCache *lru.Cache[string, string]
}

// NewRegistry builds an empty registry. bcryptCacheSize bounds the
// hash->verified-plaintext cache used to skip repeat bcrypt work on login.
func NewRegistry(bcryptCacheSize int) *Registry {
	if bcryptCacheSize <= 0 {
		bcryptCacheSize = 512
	}
	cache, _ := lru.New[string, string](bcryptCacheSize)
	return &Registry{
		byToken:     make(map[string]*BanchoSession),
		byID:        make(map[int32]*BanchoSession),
		bySafeName:  make(map[string]*BanchoSession),
		bcryptCache: cache,
	}
}

// NewToken generates an opaque session token.
func NewToken() string {
	return uuid.NewString()
}

// Insert registers s under all three indices. If a session already exists
// for the same id, the caller is expected to have removed it first (login
// replacement semantics live in internal/login, not here).
func (r *Registry) Insert(s *BanchoSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byToken[s.Token] = s
	r.byID[s.ID] = s
	r.bySafeName[s.SafeName] = s
}

// Remove drops a session from every index.
func (r *Registry) Remove(s *BanchoSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byToken, s.Token)
	delete(r.byID, s.ID)
	delete(r.bySafeName, s.SafeName)
}

func (r *Registry) GetByToken(token string) (*BanchoSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byToken[token]
	return s, ok
}

func (r *Registry) GetByID(id int32) (*BanchoSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	return s, ok
}

func (r *Registry) GetBySafeName(safeName string) (*BanchoSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.bySafeName[safeName]
	return s, ok
}

// All returns a stable, id-ordered snapshot of every logged-in session.
func (r *Registry) All() []*BanchoSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*BanchoSession, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Unrestricted returns every session whose privileges include Unrestricted.
func (r *Registry) Unrestricted() []*BanchoSession {
	return r.filter(func(s *BanchoSession) bool {
		return s.Privileges.Has(ports.Unrestricted)
	})
}

// Staff returns every session with any staff-level privilege.
func (r *Registry) Staff() []*BanchoSession {
	return r.filter(func(s *BanchoSession) bool {
		return s.Privileges&ports.Staff != 0
	})
}

func (r *Registry) filter(keep func(*BanchoSession) bool) []*BanchoSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*BanchoSession, 0, len(r.byID))
	for _, s := range r.byID {
		if keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// EnqueueAll fans a packet out to every session except those whose id is in
// except. Non-blocking per recipient: BanchoSession.Enqueue only appends to
// a buffer, it never waits on the network.
func (r *Registry) EnqueueAll(frame []byte, except map[int32]struct{}) {
	r.mu.RLock()
	targets := make([]*BanchoSession, 0, len(r.byID))
	for id, s := range r.byID {
		if except != nil {
			if _, skip := except[id]; skip {
				continue
			}
		}
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	for _, s := range targets {
		s.Enqueue(frame)
	}
}

// BcryptVerified reports whether hash has a cached, previously-verified
// plaintext match, skipping a repeat bcrypt comparison.
func (r *Registry) BcryptVerified(hash, plaintext string) bool {
	cached, ok := r.bcryptCache.Get(hash)
	return ok && cached == plaintext
}

// RememberBcryptVerified caches hash as having verified against plaintext.
func (r *Registry) RememberBcryptVerified(hash, plaintext string) {
	r.bcryptCache.Add(hash, plaintext)
}
