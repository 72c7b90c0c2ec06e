package login

import (
	"context"
	"fmt"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/stlalpha/bancho3/internal/channel"
	"github.com/stlalpha/bancho3/internal/config"
	"github.com/stlalpha/bancho3/internal/packet"
	"github.com/stlalpha/bancho3/internal/ports"
	"github.com/stlalpha/bancho3/internal/session"
)

func buildBody(username, password, version string, utcOffset int, adapters string) []byte {
	line3 := fmt.Sprintf("%s|%d|0|path:%s:adaptersmd5:uninstall:disksig:|0", version, utcOffset, adapters)
	return []byte(username + "\n" + password + "\n" + line3)
}

func hashPassword(t *testing.T, plain string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt.GenerateFromPassword: %v", err)
	}
	return string(h)
}

func newDeps(store *fakeStore) Dependencies {
	channels := channel.NewRegistry()
	channels.LoadStatic([]ports.ChannelRecord{
		{Name: "#osu", AutoJoin: true},
		{Name: "#lobby", AutoJoin: true},
	})
	return Dependencies{
		Sessions:    session.NewRegistry(16),
		Channels:    channels,
		Store:       store,
		Geolocator:  fakeGeolocator{geo: ports.Geolocator{Country: "US", Latitude: 1, Longitude: 2}},
		Config:      config.ServerConfig{Domain: "test.local", BotUserID: 1},
		Templates:   config.Templates{WelcomeNotification: "hi", WelcomeChatMessage: "welcome", RestrictedNotice: "restricted", ContactStaffNotice: "contact staff"},
		FirstUserID: 3,
	}
}

func decodeFrames(t *testing.T, body []byte) []packet.Frame {
	t.Helper()
	frames, err := packet.Decode(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return frames
}

func readI32(t *testing.T, payload []byte) int32 {
	t.Helper()
	v, err := packet.NewReader(payload).ReadI32()
	if err != nil {
		t.Fatalf("read i32: %v", err)
	}
	return v
}

func firstUserIDFrame(t *testing.T, body []byte) int32 {
	t.Helper()
	for _, f := range decodeFrames(t, body) {
		if f.ID == packet.UserID {
			return readI32(t, f.Payload)
		}
	}
	t.Fatal("no USER_ID frame present")
	return 0
}

func TestPipelineRejectsInvalidVersion(t *testing.T) {
	store := newFakeStore()
	deps := newDeps(store)
	body := buildBody("alice", "hash", "not-a-version", 0, "abc.")

	res := Pipeline(context.Background(), deps, body, "1.2.3.4")
	if got := firstUserIDFrame(t, res.Body); got != FailAuthentication {
		t.Fatalf("got %d, want %d", got, FailAuthentication)
	}
}

func TestPipelineRejectsEmptyAdapters(t *testing.T) {
	store := newFakeStore()
	deps := newDeps(store)
	body := buildBody("alice", "hash", "b20230101", 0, "")

	res := Pipeline(context.Background(), deps, body, "1.2.3.4")
	if res.Token != "empty-adapters" {
		t.Fatalf("got token %q, want empty-adapters", res.Token)
	}
	if got := firstUserIDFrame(t, res.Body); got != FailAuthentication {
		t.Fatalf("got %d, want %d", got, FailAuthentication)
	}
}

func TestPipelineAllowsWineSentinelWithNoAdapters(t *testing.T) {
	store := newFakeStore()
	store.addUser(ports.UserRecord{ID: 10, Name: "alice", SafeName: "alice", PasswordBcrypt: hashPassword(t, "hash"), Privileges: ports.Unrestricted | ports.Verified, Country: "US"})
	deps := newDeps(store)
	line3 := "b20230101|0|0|path:runningunderwine:adaptersmd5:uninstall:disksig:|0"
	body := []byte("alice\nhash\n" + line3)

	res := Pipeline(context.Background(), deps, body, "1.2.3.4")
	if got := firstUserIDFrame(t, res.Body); got != 10 {
		t.Fatalf("got %d, want successful login for user 10", got)
	}
}

func TestPipelineRejectsActiveDuplicateSession(t *testing.T) {
	store := newFakeStore()
	store.addUser(ports.UserRecord{ID: 10, Name: "alice", SafeName: "alice", PasswordBcrypt: hashPassword(t, "hash"), Privileges: ports.Unrestricted | ports.Verified, Country: "US"})
	deps := newDeps(store)

	existing := session.NewBanchoSession(ports.UserRecord{ID: 10, Name: "alice", SafeName: "alice"}, "oldtoken")
	existing.LastReceive = time.Now()
	deps.Sessions.Insert(existing)

	body := buildBody("alice", "hash", "b20230101", 0, "abc.")
	res := Pipeline(context.Background(), deps, body, "1.2.3.4")

	if res.Token != "user-already-logged-in" {
		t.Fatalf("got token %q, want user-already-logged-in", res.Token)
	}
}

func TestPipelineDisplacesStaleSession(t *testing.T) {
	store := newFakeStore()
	store.addUser(ports.UserRecord{ID: 10, Name: "alice", SafeName: "alice", PasswordBcrypt: hashPassword(t, "hash"), Privileges: ports.Unrestricted | ports.Verified, Country: "US"})
	deps := newDeps(store)

	existing := session.NewBanchoSession(ports.UserRecord{ID: 10, Name: "alice", SafeName: "alice"}, "oldtoken")
	existing.LastReceive = time.Now().Add(-time.Minute)
	deps.Sessions.Insert(existing)

	body := buildBody("alice", "hash", "b20230101", 0, "abc.")
	res := Pipeline(context.Background(), deps, body, "1.2.3.4")

	if got := firstUserIDFrame(t, res.Body); got != 10 {
		t.Fatalf("got %d, want successful login replacing the stale session", got)
	}
	if _, ok := deps.Sessions.GetByToken("oldtoken"); ok {
		t.Fatal("expected the stale session to be removed")
	}
}

func TestPipelineRejectsIncorrectCredentials(t *testing.T) {
	store := newFakeStore()
	store.addUser(ports.UserRecord{ID: 10, Name: "alice", SafeName: "alice", PasswordBcrypt: hashPassword(t, "correct"), Privileges: ports.Unrestricted | ports.Verified, Country: "US"})
	deps := newDeps(store)

	body := buildBody("alice", "wrong", "b20230101", 0, "abc.")
	res := Pipeline(context.Background(), deps, body, "1.2.3.4")

	if res.Token != "incorrect-credentials" {
		t.Fatalf("got token %q, want incorrect-credentials", res.Token)
	}
}

func TestPipelineRejectsUnknownUser(t *testing.T) {
	store := newFakeStore()
	deps := newDeps(store)
	body := buildBody("nobody", "hash", "b20230101", 0, "abc.")

	res := Pipeline(context.Background(), deps, body, "1.2.3.4")
	if got := firstUserIDFrame(t, res.Body); got != FailAuthentication {
		t.Fatalf("got %d, want %d", got, FailAuthentication)
	}
}

func TestPipelineRejectsTourneyWithoutPrivileges(t *testing.T) {
	store := newFakeStore()
	store.addUser(ports.UserRecord{ID: 10, Name: "alice", SafeName: "alice", PasswordBcrypt: hashPassword(t, "hash"), Privileges: ports.Unrestricted, Country: "US"})
	deps := newDeps(store)

	body := buildBody("alice", "hash", "b20230101tourney", 0, "abc.")
	res := Pipeline(context.Background(), deps, body, "1.2.3.4")

	if res.Token != "no" {
		t.Fatalf("got token %q, want no", res.Token)
	}
}

func TestPipelineRejectsFingerprintMatchForUnverifiedUser(t *testing.T) {
	store := newFakeStore()
	store.addUser(ports.UserRecord{ID: 10, Name: "alice", SafeName: "alice", PasswordBcrypt: hashPassword(t, "hash"), Privileges: ports.Unrestricted, Country: "US"})
	deps := newDeps(store)
	deps.Clients = &fakeClientRecorder{matches: []ports.UserRecord{{ID: 99, Privileges: 0}}}

	body := buildBody("alice", "hash", "b20230101", 0, "abc.")
	res := Pipeline(context.Background(), deps, body, "1.2.3.4")

	if res.Token != "contact-staff" {
		t.Fatalf("got token %q, want contact-staff", res.Token)
	}
}

func TestPipelineAllowsFingerprintMatchForVerifiedUser(t *testing.T) {
	store := newFakeStore()
	store.addUser(ports.UserRecord{ID: 10, Name: "alice", SafeName: "alice", PasswordBcrypt: hashPassword(t, "hash"), Privileges: ports.Unrestricted | ports.Verified, Country: "US"})
	deps := newDeps(store)
	deps.Clients = &fakeClientRecorder{matches: []ports.UserRecord{{ID: 99, Privileges: 0}}}

	body := buildBody("alice", "hash", "b20230101", 0, "abc.")
	res := Pipeline(context.Background(), deps, body, "1.2.3.4")

	if got := firstUserIDFrame(t, res.Body); got != 10 {
		t.Fatalf("got %d, want login to succeed for an already-verified account", got)
	}
	if len(deps.Clients.(*fakeClientRecorder).recorded) != 1 {
		t.Fatal("expected the login attempt to be recorded regardless of outcome")
	}
}

func TestPipelineAbortsOnGeolocationFailure(t *testing.T) {
	store := newFakeStore()
	store.addUser(ports.UserRecord{ID: 10, Name: "alice", SafeName: "alice", PasswordBcrypt: hashPassword(t, "hash"), Privileges: ports.Unrestricted | ports.Verified, Country: "US"})
	deps := newDeps(store)
	deps.Geolocator = fakeGeolocator{err: fmt.Errorf("geoip unreachable")}

	body := buildBody("alice", "hash", "b20230101", 0, "abc.")
	res := Pipeline(context.Background(), deps, body, "1.2.3.4")

	if res.Token != "login-failed" {
		t.Fatalf("got token %q, want login-failed", res.Token)
	}
}

func TestPipelineFixesXXCountrySentinel(t *testing.T) {
	store := newFakeStore()
	store.addUser(ports.UserRecord{ID: 10, Name: "alice", SafeName: "alice", PasswordBcrypt: hashPassword(t, "hash"), Privileges: ports.Unrestricted | ports.Verified, Country: "xx"})
	deps := newDeps(store)

	body := buildBody("alice", "hash", "b20230101", 0, "abc.")
	Pipeline(context.Background(), deps, body, "1.2.3.4")

	updated, _ := store.UserByID(context.Background(), 10)
	if updated.Country != "US" {
		t.Fatalf("got country %q, want US", updated.Country)
	}
}

func TestPipelineHappyPathBuildsWelcomeFrames(t *testing.T) {
	store := newFakeStore()
	store.addUser(ports.UserRecord{ID: 10, Name: "alice", SafeName: "alice", PasswordBcrypt: hashPassword(t, "hash"), Privileges: ports.Unrestricted | ports.Verified, Country: "US"})
	deps := newDeps(store)

	body := buildBody("alice", "hash", "b20230101", 0, "abc.")
	res := Pipeline(context.Background(), deps, body, "1.2.3.4")

	frames := decodeFrames(t, res.Body)
	if len(frames) == 0 {
		t.Fatal("expected a non-empty welcome response")
	}
	if frames[0].ID != packet.ProtocolVersion {
		t.Fatalf("got first frame id %d, want ProtocolVersion", frames[0].ID)
	}
	if frames[1].ID != packet.UserID || readI32(t, frames[1].Payload) != 10 {
		t.Fatalf("got second frame %+v, want USER_ID(10)", frames[1])
	}

	sawChannelInfoEnd := false
	for _, f := range frames {
		if f.ID == packet.ChannelInfoEnd {
			sawChannelInfoEnd = true
		}
	}
	if !sawChannelInfoEnd {
		t.Fatal("expected a CHANNEL_INFO_END frame")
	}

	if res.Session == nil || res.Session.ID != 10 {
		t.Fatalf("got session %+v, want registered session for user 10", res.Session)
	}
	if _, ok := deps.Sessions.GetByID(10); !ok {
		t.Fatal("expected the new session to be registered")
	}
	if !res.Session.Privileges.Has(ports.Verified) {
		t.Fatal("expected Verified to already be set for a previously-verified user")
	}
}

func TestPipelineGrantsVerifiedOnFirstLogin(t *testing.T) {
	store := newFakeStore()
	store.addUser(ports.UserRecord{ID: 20, Name: "newbie", SafeName: "newbie", PasswordBcrypt: hashPassword(t, "hash"), Privileges: ports.Unrestricted, Country: "US"})
	deps := newDeps(store)

	body := buildBody("newbie", "hash", "b20230101", 0, "abc.")
	res := Pipeline(context.Background(), deps, body, "1.2.3.4")

	if !res.Session.Privileges.Has(ports.Verified) {
		t.Fatal("expected first login to grant Verified")
	}
	saved, _ := store.UserByID(context.Background(), 20)
	if !saved.Privileges.Has(ports.Verified) {
		t.Fatal("expected the granted privilege to be persisted")
	}
}

func TestPipelineGrantsFirstUserFullPrivileges(t *testing.T) {
	store := newFakeStore()
	store.addUser(ports.UserRecord{ID: 3, Name: "founder", SafeName: "founder", PasswordBcrypt: hashPassword(t, "hash"), Privileges: ports.Unrestricted, Country: "US"})
	deps := newDeps(store)
	deps.FirstUserID = 3

	body := buildBody("founder", "hash", "b20230101", 0, "abc.")
	res := Pipeline(context.Background(), deps, body, "1.2.3.4")

	if !res.Session.Privileges.Has(ports.Staff) {
		t.Fatal("expected the first user to be granted full staff privileges on first login")
	}
}

func TestPipelineRestrictedAccountGetsOneWayDataAndNotice(t *testing.T) {
	store := newFakeStore()
	store.addUser(ports.UserRecord{ID: 10, Name: "alice", SafeName: "alice", PasswordBcrypt: hashPassword(t, "hash"), Privileges: ports.Verified, Country: "US"})
	deps := newDeps(store)

	body := buildBody("alice", "hash", "b20230101", 0, "abc.")
	res := Pipeline(context.Background(), deps, body, "1.2.3.4")

	sawRestricted := false
	for _, f := range decodeFrames(t, res.Body) {
		if f.ID == packet.AccountRestricted {
			sawRestricted = true
		}
	}
	if !sawRestricted {
		t.Fatal("expected an ACCOUNT_RESTRICTED frame for a non-unrestricted account")
	}
}

func TestPipelineDeliversUnreadMailWithHeader(t *testing.T) {
	store := newFakeStore()
	store.addUser(ports.UserRecord{ID: 10, Name: "alice", SafeName: "alice", PasswordBcrypt: hashPassword(t, "hash"), Privileges: ports.Unrestricted | ports.Verified, Country: "US"})
	store.addUser(ports.UserRecord{ID: 5, Name: "bob", SafeName: "bob", Privileges: ports.Unrestricted | ports.Verified})
	store.mail[10] = []ports.MailMessage{{FromID: 5, ToID: 10, Body: "hello", Time: time.Now()}}
	deps := newDeps(store)

	body := buildBody("alice", "hash", "b20230101", 0, "abc.")
	res := Pipeline(context.Background(), deps, body, "1.2.3.4")

	var messages []packet.Message
	for _, f := range decodeFrames(t, res.Body) {
		if f.ID == packet.SendMessage {
			m, err := packet.ReadMessage(packet.NewReader(f.Payload))
			if err != nil {
				t.Fatalf("read message: %v", err)
			}
			messages = append(messages, m)
		}
	}

	foundHeader := false
	foundBody := false
	for _, m := range messages {
		if m.Text == "Unread messages" && m.Sender == "bob" {
			foundHeader = true
		}
		if m.Sender == "bob" && m.Text != "Unread messages" {
			foundBody = true
		}
	}
	if !foundHeader {
		t.Fatal("expected an 'Unread messages' header for bob's mail")
	}
	if !foundBody {
		t.Fatal("expected the mail body to follow the header")
	}
	if len(store.markedRead) != 1 || store.markedRead[0] != 10 {
		t.Fatalf("got markedRead %+v, want [10]", store.markedRead)
	}
}

type fakeStore struct {
	usersBySafe map[string]ports.UserRecord
	usersByID   map[int32]ports.UserRecord
	mail        map[int32][]ports.MailMessage
	markedRead  []int32
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		usersBySafe: make(map[string]ports.UserRecord),
		usersByID:   make(map[int32]ports.UserRecord),
		mail:        make(map[int32][]ports.MailMessage),
	}
}

func (f *fakeStore) addUser(rec ports.UserRecord) {
	f.usersBySafe[rec.SafeName] = rec
	f.usersByID[rec.ID] = rec
}

func (f *fakeStore) UserByID(ctx context.Context, id int32) (ports.UserRecord, error) {
	rec, ok := f.usersByID[id]
	if !ok {
		return ports.UserRecord{}, fmt.Errorf("user %d not found", id)
	}
	return rec, nil
}

func (f *fakeStore) UserBySafeName(ctx context.Context, safeName string) (ports.UserRecord, error) {
	rec, ok := f.usersBySafe[safeName]
	if !ok {
		return ports.UserRecord{}, fmt.Errorf("user %q not found", safeName)
	}
	return rec, nil
}

func (f *fakeStore) SaveUser(ctx context.Context, rec ports.UserRecord) error {
	f.addUser(rec)
	return nil
}

func (f *fakeStore) Relationships(ctx context.Context, userID int32) ([]ports.Relationship, error) {
	return nil, nil
}
func (f *fakeStore) SetRelationship(ctx context.Context, rel ports.Relationship) error { return nil }
func (f *fakeStore) RemoveRelationship(ctx context.Context, user1, user2 int32) error  { return nil }

func (f *fakeStore) PendingMail(ctx context.Context, toID int32) ([]ports.MailMessage, error) {
	return f.mail[toID], nil
}
func (f *fakeStore) SendMail(ctx context.Context, m ports.MailMessage) error {
	f.mail[m.ToID] = append(f.mail[m.ToID], m)
	return nil
}
func (f *fakeStore) MarkMailRead(ctx context.Context, toID int32) error {
	f.markedRead = append(f.markedRead, toID)
	return nil
}

func (f *fakeStore) AppendAuditLog(ctx context.Context, e ports.AuditLogEntry) error { return nil }
func (f *fakeStore) Channels(ctx context.Context) ([]ports.ChannelRecord, error)     { return nil, nil }
func (f *fakeStore) TourneyPool(ctx context.Context, id int32) (ports.TourneyPool, []ports.TourneyPoolMap, error) {
	return ports.TourneyPool{}, nil, nil
}

var _ ports.Persistence = (*fakeStore)(nil)

type fakeGeolocator struct {
	geo ports.Geolocator
	err error
}

func (f fakeGeolocator) Locate(ctx context.Context, ip string) (ports.Geolocator, error) {
	return f.geo, f.err
}

var _ ports.GeolocatorSource = fakeGeolocator{}

type fakeClientRecorder struct {
	matches  []ports.UserRecord
	recorded []ClientRecord
}

func (f *fakeClientRecorder) RecordLogin(ctx context.Context, rec ClientRecord) error {
	f.recorded = append(f.recorded, rec)
	return nil
}

func (f *fakeClientRecorder) MatchingUsers(ctx context.Context, rec ClientRecord) ([]ports.UserRecord, error) {
	return f.matches, nil
}

var _ ClientRecorder = (*fakeClientRecorder)(nil)
