package chat

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stlalpha/bancho3/internal/channel"
	"github.com/stlalpha/bancho3/internal/packet"
	"github.com/stlalpha/bancho3/internal/ports"
	"github.com/stlalpha/bancho3/internal/session"
)

func newTestSession(id int32, name string) *session.BanchoSession {
	s := session.NewBanchoSession(ports.UserRecord{ID: id, Name: name, SafeName: strings.ToLower(name)}, "token")
	return s
}

func newTestRouter() (*Router, *channel.Registry) {
	channels := channel.NewRegistry()
	return &Router{Channels: channels, Sessions: session.NewRegistry(16)}, channels
}

func decodeLastMessage(t *testing.T, frame []byte) packet.Message {
	t.Helper()
	frames, err := packet.Decode(frame)
	if err != nil || len(frames) != 1 {
		t.Fatalf("decode frame: %v, %+v", err, frames)
	}
	r := packet.NewReader(frames[0].Payload)
	msg, err := packet.ReadMessage(r)
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	return msg
}

func TestSendPublicRejectsSilenced(t *testing.T) {
	router, channels := newTestRouter()
	channels.LoadStatic([]ports.ChannelRecord{{Name: "#osu"}})
	sender := newTestSession(1, "alice")
	sender.SilenceEnd = time.Now().Add(time.Hour)

	if got := router.SendPublic(sender, "#osu", "hi"); got != SendRejectedSilenced {
		t.Fatalf("got %v, want SendRejectedSilenced", got)
	}
}

func TestSendPublicRejectsIgnoredChannel(t *testing.T) {
	router, _ := newTestRouter()
	sender := newTestSession(1, "alice")

	if got := router.SendPublic(sender, "#highlight", "hi"); got != SendRejectedNotMember {
		t.Fatalf("got %v, want SendRejectedNotMember", got)
	}
}

func TestSendPublicRejectsNotMember(t *testing.T) {
	router, channels := newTestRouter()
	channels.LoadStatic([]ports.ChannelRecord{{Name: "#osu"}})
	sender := newTestSession(1, "alice")

	if got := router.SendPublic(sender, "#osu", "hi"); got != SendRejectedNotMember {
		t.Fatalf("got %v, want SendRejectedNotMember", got)
	}
}

func TestSendPublicRejectsWithoutWritePriv(t *testing.T) {
	router, channels := newTestRouter()
	channels.LoadStatic([]ports.ChannelRecord{{Name: "#staff", WritePriv: ports.Staff}})
	sender := newTestSession(1, "alice")
	ch, _ := channels.Get("#staff")
	ch.Join(sender)

	if got := router.SendPublic(sender, "#staff", "hi"); got != SendRejectedNoWritePriv {
		t.Fatalf("got %v, want SendRejectedNoWritePriv", got)
	}
}

func TestSendPublicDeliversAndSkipsSender(t *testing.T) {
	router, channels := newTestRouter()
	channels.LoadStatic([]ports.ChannelRecord{{Name: "#osu"}})
	sender := newTestSession(1, "alice")
	other := newTestSession(2, "bob")
	ch, _ := channels.Get("#osu")
	ch.Join(sender)
	ch.Join(other)

	if got := router.SendPublic(sender, "#osu", "hello"); got != SendDelivered {
		t.Fatalf("got %v, want SendDelivered", got)
	}
	if len(sender.DrainOutbound()) != 0 {
		t.Fatal("sender should not receive its own broadcast")
	}
	msg := decodeLastMessage(t, other.DrainOutbound())
	if msg.Text != "hello" || msg.Sender != "alice" {
		t.Fatalf("got %+v", msg)
	}
}

func TestSendPublicTruncatesLongMessage(t *testing.T) {
	router, channels := newTestRouter()
	channels.LoadStatic([]ports.ChannelRecord{{Name: "#osu"}})
	sender := newTestSession(1, "alice")
	other := newTestSession(2, "bob")
	ch, _ := channels.Get("#osu")
	ch.Join(sender)
	ch.Join(other)

	long := strings.Repeat("a", MaxMessageLength+500)
	router.SendPublic(sender, "#osu", long)

	notice := sender.DrainOutbound()
	if len(notice) == 0 {
		t.Fatal("expected sender to be notified of truncation")
	}
	msg := decodeLastMessage(t, other.DrainOutbound())
	if len(msg.Text) > MaxMessageLength {
		t.Fatalf("got message length %d, want <= %d", len(msg.Text), MaxMessageLength)
	}
	if !strings.HasSuffix(msg.Text, truncationSuffix) {
		t.Fatalf("expected truncation suffix, got %q", msg.Text[len(msg.Text)-30:])
	}
}

func TestSendPublicAliasesSpectatorChannel(t *testing.T) {
	router, channels := newTestRouter()
	sender := newTestSession(1, "alice")
	sender.SpectatorHostID = 42
	ch := channels.CreateInstanced(ports.ChannelRecord{Name: "#spec_42"})
	ch.Join(sender)

	if got := router.SendPublic(sender, "#spectator", "nice play"); got != SendDelivered {
		t.Fatalf("got %v, want SendDelivered", got)
	}
}

func TestSendPublicHandsOffToCommandDispatch(t *testing.T) {
	router, channels := newTestRouter()
	channels.LoadStatic([]ports.ChannelRecord{{Name: "#osu"}})
	sender := newTestSession(1, "alice")
	other := newTestSession(2, "bob")
	ch, _ := channels.Get("#osu")
	ch.Join(sender)
	ch.Join(other)

	router.CommandPrefix = "!"
	router.Dispatch = func(s *session.BanchoSession, target, text string) (string, bool, bool) {
		return "pong", false, true
	}

	if got := router.SendPublic(sender, "#osu", "!ping"); got != SendCommandHandled {
		t.Fatalf("got %v, want SendCommandHandled", got)
	}
	msg := decodeLastMessage(t, other.DrainOutbound())
	if !strings.Contains(msg.Text, "pong") {
		t.Fatalf("got %+v, want response echoed", msg)
	}
}

func TestSendPublicHiddenCommandOnlyReachesStaffAndSender(t *testing.T) {
	router, channels := newTestRouter()
	channels.LoadStatic([]ports.ChannelRecord{{Name: "#osu"}})
	sender := newTestSession(1, "alice")
	bystander := newTestSession(2, "bob")
	staff := newTestSession(3, "admin")
	staff.Privileges = ports.Administrator

	ch, _ := channels.Get("#osu")
	ch.Join(sender)
	ch.Join(bystander)
	ch.Join(staff)
	router.Sessions.Insert(sender)
	router.Sessions.Insert(bystander)
	router.Sessions.Insert(staff)

	router.CommandPrefix = "!"
	router.Dispatch = func(s *session.BanchoSession, target, text string) (string, bool, bool) {
		return "restricted response", true, true
	}

	router.SendPublic(sender, "#osu", "!rap alice spam")

	if len(bystander.DrainOutbound()) != 0 {
		t.Fatal("hidden command response leaked to a non-staff bystander")
	}
	if len(sender.DrainOutbound()) == 0 {
		t.Fatal("sender should see its own hidden command response")
	}
	if len(staff.DrainOutbound()) == 0 {
		t.Fatal("staff should see the hidden command response")
	}
}

func TestSendPrivateQueuesMailWhenOffline(t *testing.T) {
	store := &fakeStore{}
	router := &Router{Store: store}
	sender := newTestSession(1, "alice")

	got := router.SendPrivate(context.Background(), sender, 2, "bob", nil, "hey")
	if got != SendQueuedAsMail {
		t.Fatalf("got %v, want SendQueuedAsMail", got)
	}
	if len(store.mail) != 1 || store.mail[0].ToID != 2 {
		t.Fatalf("got mail %+v", store.mail)
	}
	if len(sender.DrainOutbound()) == 0 {
		t.Fatal("expected offline notice to sender")
	}
}

func TestSendPrivateRejectsBlocked(t *testing.T) {
	router := &Router{}
	sender := newTestSession(1, "alice")
	recipient := newTestSession(2, "bob")
	recipient.Blocks[1] = struct{}{}

	got := router.SendPrivate(context.Background(), sender, 2, "bob", recipient, "hey")
	if got != SendRejectedBlocked {
		t.Fatalf("got %v, want SendRejectedBlocked", got)
	}
	if len(recipient.DrainOutbound()) != 0 {
		t.Fatal("blocked recipient should not receive the message")
	}
}

func TestSendPrivateRejectsFriendsOnlyPrivacy(t *testing.T) {
	router := &Router{}
	sender := newTestSession(1, "alice")
	recipient := newTestSession(2, "bob")
	recipient.PMPrivate = true

	got := router.SendPrivate(context.Background(), sender, 2, "bob", recipient, "hey")
	if got != SendRejectedDMPrivacy {
		t.Fatalf("got %v, want SendRejectedDMPrivacy", got)
	}
}

func TestSendPrivateDeliversAndReturnsAwayMessage(t *testing.T) {
	router := &Router{}
	sender := newTestSession(1, "alice")
	recipient := newTestSession(2, "bob")
	recipient.AwayMessage = "gone fishing"

	got := router.SendPrivate(context.Background(), sender, 2, "bob", recipient, "hey")
	if got != SendDelivered {
		t.Fatalf("got %v, want SendDelivered", got)
	}
	msg := decodeLastMessage(t, recipient.DrainOutbound())
	if msg.Text != "hey" {
		t.Fatalf("got %+v", msg)
	}
	away := decodeLastMessage(t, sender.DrainOutbound())
	if away.Text != "gone fishing" {
		t.Fatalf("got away message %+v", away)
	}
}

func TestParseNPExtractsBeatmapID(t *testing.T) {
	id, ok := ParseNP("playing [https://osu.ppy.sh/b/75 Camellia - Exit This Earth's Atmosphere]")
	if !ok || id != 75 {
		t.Fatalf("got id=%d ok=%v, want 75/true", id, ok)
	}
}

func TestParseNPNoMatch(t *testing.T) {
	if _, ok := ParseNP("watching a replay"); ok {
		t.Fatal("expected no match")
	}
}

func TestRecordAndCurrentNPExpiry(t *testing.T) {
	s := newTestSession(1, "alice")
	RecordNP(s, 75, "md5hash", 0, 0)

	if np, ok := CurrentNP(s); !ok || np.BeatmapID != 75 {
		t.Fatalf("got %+v, ok=%v", np, ok)
	}

	s.LastNP.Expiry = time.Now().Add(-time.Second)
	if _, ok := CurrentNP(s); ok {
		t.Fatal("expected expired /np context to be unavailable")
	}
}

type fakeStore struct {
	mail []ports.MailMessage
}

func (f *fakeStore) UserByID(ctx context.Context, id int32) (ports.UserRecord, error) {
	return ports.UserRecord{}, nil
}
func (f *fakeStore) UserBySafeName(ctx context.Context, safeName string) (ports.UserRecord, error) {
	return ports.UserRecord{}, nil
}
func (f *fakeStore) SaveUser(ctx context.Context, rec ports.UserRecord) error { return nil }
func (f *fakeStore) Relationships(ctx context.Context, userID int32) ([]ports.Relationship, error) {
	return nil, nil
}
func (f *fakeStore) SetRelationship(ctx context.Context, rel ports.Relationship) error { return nil }
func (f *fakeStore) RemoveRelationship(ctx context.Context, user1, user2 int32) error  { return nil }
func (f *fakeStore) PendingMail(ctx context.Context, toID int32) ([]ports.MailMessage, error) {
	return nil, nil
}
func (f *fakeStore) SendMail(ctx context.Context, m ports.MailMessage) error {
	f.mail = append(f.mail, m)
	return nil
}
func (f *fakeStore) MarkMailRead(ctx context.Context, toID int32) error { return nil }
func (f *fakeStore) AppendAuditLog(ctx context.Context, e ports.AuditLogEntry) error {
	return nil
}
func (f *fakeStore) Channels(ctx context.Context) ([]ports.ChannelRecord, error) { return nil, nil }
func (f *fakeStore) TourneyPool(ctx context.Context, id int32) (ports.TourneyPool, []ports.TourneyPoolMap, error) {
	return ports.TourneyPool{}, nil, nil
}

var _ ports.Persistence = (*fakeStore)(nil)
