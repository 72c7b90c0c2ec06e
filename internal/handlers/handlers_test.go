package handlers

import (
	"context"
	"strings"
	"testing"

	"github.com/stlalpha/bancho3/internal/channel"
	"github.com/stlalpha/bancho3/internal/chat"
	"github.com/stlalpha/bancho3/internal/match"
	"github.com/stlalpha/bancho3/internal/packet"
	"github.com/stlalpha/bancho3/internal/ports"
	"github.com/stlalpha/bancho3/internal/session"
	"github.com/stlalpha/bancho3/internal/spectator"
)

func newTestSession(id int32, name string) *session.BanchoSession {
	return session.NewBanchoSession(ports.UserRecord{ID: id, Name: name, SafeName: strings.ToLower(name)}, "token")
}

func newTestDeps() (Deps, *session.Registry) {
	channels := channel.NewRegistry()
	sessions := session.NewRegistry(16)
	d := Deps{
		Sessions:   sessions,
		Channels:   channels,
		Matches:    match.NewTable(),
		Spectators: spectator.NewManager(channels),
		Chat:       &chat.Router{Channels: channels, Sessions: sessions},
	}
	return d, sessions
}

func decodeOne(t *testing.T, frame []byte) packet.Frame {
	t.Helper()
	frames, err := packet.Decode(frame)
	if err != nil || len(frames) != 1 {
		t.Fatalf("decode frame: %v, %+v", err, frames)
	}
	return frames[0]
}

func TestPingRepliesWithPong(t *testing.T) {
	d, _ := newTestDeps()
	sess := newTestSession(1, "alice")

	if err := d.ping(context.Background(), sess, nil); err != nil {
		t.Fatalf("ping: %v", err)
	}
	f := decodeOne(t, sess.DrainOutbound())
	if f.ID != packet.Pong {
		t.Fatalf("got id %d, want Pong", f.ID)
	}
}

func TestChangeActionBroadcastsStatsToOthers(t *testing.T) {
	d, sessions := newTestDeps()
	alice := newTestSession(1, "alice")
	bob := newTestSession(2, "bob")
	sessions.Insert(alice)
	sessions.Insert(bob)

	w := packet.NewWriter()
	w.WriteU8(1)
	w.WriteString("")
	w.WriteString("")
	w.WriteI32(0)
	w.WriteU8(0)
	w.WriteI32(0)

	if err := d.changeAction(context.Background(), alice, w.Bytes()); err != nil {
		t.Fatalf("changeAction: %v", err)
	}
	if len(alice.DrainOutbound()) != 0 {
		t.Fatalf("sender should not receive its own stats broadcast")
	}
	f := decodeOne(t, bob.DrainOutbound())
	if f.ID != packet.UserStats {
		t.Fatalf("got id %d, want UserStats", f.ID)
	}
}

func TestToggleBlockNonFriendDMsFlipsFlag(t *testing.T) {
	d, _ := newTestDeps()
	sess := newTestSession(1, "alice")

	if err := d.toggleBlockNonFriendDMs(context.Background(), sess, nil); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !sess.PMPrivate {
		t.Fatal("expected PMPrivate to be true after first toggle")
	}
	if err := d.toggleBlockNonFriendDMs(context.Background(), sess, nil); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if sess.PMPrivate {
		t.Fatal("expected PMPrivate to be false after second toggle")
	}
}

func TestLogoutRemovesSessionAndBroadcasts(t *testing.T) {
	d, sessions := newTestDeps()
	alice := newTestSession(1, "alice")
	bob := newTestSession(2, "bob")
	sessions.Insert(alice)
	sessions.Insert(bob)

	if err := d.logout(context.Background(), alice, nil); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, ok := sessions.GetByID(1); ok {
		t.Fatal("expected alice to be removed from the registry")
	}
	f := decodeOne(t, bob.DrainOutbound())
	if f.ID != packet.UserLogout {
		t.Fatalf("got id %d, want UserLogout", f.ID)
	}
}

func TestChannelJoinAndPartUpdateMembership(t *testing.T) {
	d, _ := newTestDeps()
	d.Channels.LoadStatic([]ports.ChannelRecord{{Name: "#osu"}})
	sess := newTestSession(1, "alice")

	w := packet.NewWriter()
	w.WriteString("#osu")
	if err := d.channelJoin(context.Background(), sess, w.Bytes()); err != nil {
		t.Fatalf("channelJoin: %v", err)
	}
	ch, _ := d.Channels.Get("#osu")
	if !ch.IsMember(1) {
		t.Fatal("expected alice to be a member of #osu")
	}
	if _, ok := sess.Channels["#osu"]; !ok {
		t.Fatal("expected session to record #osu membership")
	}
	f := decodeOne(t, sess.DrainOutbound())
	if f.ID != packet.ChannelJoinSuccess {
		t.Fatalf("got id %d, want ChannelJoinSuccess", f.ID)
	}

	w2 := packet.NewWriter()
	w2.WriteString("#osu")
	if err := d.channelPart(context.Background(), sess, w2.Bytes()); err != nil {
		t.Fatalf("channelPart: %v", err)
	}
	if ch.IsMember(1) {
		t.Fatal("expected alice to have left #osu")
	}
	if _, ok := sess.Channels["#osu"]; ok {
		t.Fatal("expected session to drop #osu membership")
	}
}

func TestStartStopSpectatingNotifiesHost(t *testing.T) {
	d, sessions := newTestDeps()
	host := newTestSession(1, "host")
	spec := newTestSession(2, "watcher")
	sessions.Insert(host)
	sessions.Insert(spec)

	w := packet.NewWriter()
	w.WriteI32(host.ID)
	if err := d.startSpectating(context.Background(), spec, w.Bytes()); err != nil {
		t.Fatalf("startSpectating: %v", err)
	}
	if spec.SpectatorHostID != host.ID {
		t.Fatalf("got host id %d, want %d", spec.SpectatorHostID, host.ID)
	}
	if d.Spectators.SpectatorCount(host.ID) != 1 {
		t.Fatalf("got spectator count %d, want 1", d.Spectators.SpectatorCount(host.ID))
	}

	if err := d.stopSpectating(context.Background(), spec, nil); err != nil {
		t.Fatalf("stopSpectating: %v", err)
	}
	if spec.SpectatorHostID != 0 {
		t.Fatal("expected spectator host id to be cleared")
	}
	if d.Spectators.SpectatorCount(host.ID) != 0 {
		t.Fatal("expected host's spectator group to be empty")
	}
}

func TestCreateMatchAndJoinMatch(t *testing.T) {
	d, sessions := newTestDeps()
	host := newTestSession(1, "host")
	joiner := newTestSession(2, "joiner")
	sessions.Insert(host)
	sessions.Insert(joiner)

	wire := packet.Match{Name: "test match", Password: "secret", Mode: 0}
	w := packet.NewWriter()
	wire.Encode(w)
	if err := d.createMatch(context.Background(), host, w.Bytes()); err != nil {
		t.Fatalf("createMatch: %v", err)
	}
	if host.MatchID < 0 {
		t.Fatal("expected host to be assigned a match id")
	}
	f := decodeOne(t, host.DrainOutbound())
	if f.ID != packet.MatchJoinSuccess {
		t.Fatalf("got id %d, want MatchJoinSuccess", f.ID)
	}

	w2 := packet.NewWriter()
	w2.WriteI32(host.MatchID)
	w2.WriteString("secret")
	if err := d.joinMatch(context.Background(), joiner, w2.Bytes()); err != nil {
		t.Fatalf("joinMatch: %v", err)
	}
	if joiner.MatchID != host.MatchID {
		t.Fatalf("got match id %d, want %d", joiner.MatchID, host.MatchID)
	}
}

func TestMatchLockKicksOccupant(t *testing.T) {
	d, sessions := newTestDeps()
	host := newTestSession(1, "host")
	other := newTestSession(2, "other")
	sessions.Insert(host)
	sessions.Insert(other)

	wire := packet.Match{Name: "test match"}
	w := packet.NewWriter()
	wire.Encode(w)
	if err := d.createMatch(context.Background(), host, w.Bytes()); err != nil {
		t.Fatalf("createMatch: %v", err)
	}
	host.DrainOutbound()

	w2 := packet.NewWriter()
	w2.WriteI32(host.MatchID)
	w2.WriteString("")
	if err := d.joinMatch(context.Background(), other, w2.Bytes()); err != nil {
		t.Fatalf("joinMatch: %v", err)
	}

	m, ok := d.Matches.Get(host.MatchID)
	if !ok {
		t.Fatal("expected match to exist")
	}
	idx := m.SlotIndexOf(other.ID)
	if idx < 0 {
		t.Fatal("expected other to occupy a slot")
	}

	w3 := packet.NewWriter()
	w3.WriteI32(int32(idx))
	if err := d.matchLock(context.Background(), host, w3.Bytes()); err != nil {
		t.Fatalf("matchLock: %v", err)
	}
	if other.MatchID != -1 {
		t.Fatal("expected kicked player's match id to be reset")
	}
	if m.SlotIndexOf(other.ID) >= 0 {
		t.Fatal("expected the kicked player's slot to be vacated")
	}
}
