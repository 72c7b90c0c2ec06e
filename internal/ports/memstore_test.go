package ports_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stlalpha/bancho3/internal/ports"
)

// memStore is a minimal in-memory Persistence fake used to exercise the
// interface shape in tests; it is not a production adapter.
type memStore struct {
	mu    sync.Mutex
	users map[int32]ports.UserRecord
	byName map[string]int32
	mail  []ports.MailMessage
}

func newMemStore() *memStore {
	return &memStore{
		users:  make(map[int32]ports.UserRecord),
		byName: make(map[string]int32),
	}
}

func (m *memStore) UserByID(ctx context.Context, id int32) (ports.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id], nil
}

func (m *memStore) UserBySafeName(ctx context.Context, safeName string) (ports.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[m.byName[safeName]], nil
}

func (m *memStore) SaveUser(ctx context.Context, u ports.UserRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	m.byName[u.SafeName] = u.ID
	return nil
}

func (m *memStore) Relationships(ctx context.Context, userID int32) ([]ports.Relationship, error) {
	return nil, nil
}
func (m *memStore) SetRelationship(ctx context.Context, r ports.Relationship) error { return nil }
func (m *memStore) RemoveRelationship(ctx context.Context, user1, user2 int32) error { return nil }

func (m *memStore) PendingMail(ctx context.Context, toID int32) ([]ports.MailMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ports.MailMessage
	for _, msg := range m.mail {
		if msg.ToID == toID && !msg.Read {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memStore) SendMail(ctx context.Context, msg ports.MailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mail = append(m.mail, msg)
	return nil
}

func (m *memStore) MarkMailRead(ctx context.Context, toID int32) error { return nil }
func (m *memStore) AppendAuditLog(ctx context.Context, e ports.AuditLogEntry) error { return nil }
func (m *memStore) Channels(ctx context.Context) ([]ports.ChannelRecord, error) { return nil, nil }
func (m *memStore) TourneyPool(ctx context.Context, id int32) (ports.TourneyPool, []ports.TourneyPoolMap, error) {
	return ports.TourneyPool{}, nil, nil
}

var _ ports.Persistence = (*memStore)(nil)

func TestMemStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	u := ports.UserRecord{ID: 1, Name: "cookiezi", SafeName: "cookiezi", Privileges: ports.Unrestricted | ports.Verified}
	if err := store.SaveUser(ctx, u); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}

	got, err := store.UserBySafeName(ctx, "cookiezi")
	if err != nil {
		t.Fatalf("UserBySafeName: %v", err)
	}
	if got.ID != 1 {
		t.Fatalf("got id %d, want 1", got.ID)
	}
	if !got.Privileges.Has(ports.Unrestricted) {
		t.Fatal("expected Unrestricted privilege")
	}
}

func TestPendingMail(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	if err := store.SendMail(ctx, ports.MailMessage{FromID: 2, ToID: 1, Body: "gg"}); err != nil {
		t.Fatalf("SendMail: %v", err)
	}

	mail, err := store.PendingMail(ctx, 1)
	if err != nil {
		t.Fatalf("PendingMail: %v", err)
	}
	if len(mail) != 1 || mail[0].Body != "gg" {
		t.Fatalf("got %+v, want one message with body gg", mail)
	}
}

func TestToClientPrivileges(t *testing.T) {
	cases := []struct {
		priv ports.Privileges
		want ports.ClientPrivileges
	}{
		{ports.Unrestricted, ports.ClientPlayer},
		{ports.Unrestricted | ports.Supporter, ports.ClientPlayer | ports.ClientSupporter},
		{ports.Unrestricted | ports.Moderator, ports.ClientPlayer | ports.ClientModerator},
		{ports.Unrestricted | ports.Developer, ports.ClientPlayer | ports.ClientOwner},
	}
	for _, c := range cases {
		got := ports.ToClient(c.priv)
		if got != c.want {
			t.Fatalf("ToClient(%v) = %v, want %v", c.priv, got, c.want)
		}
	}
}
