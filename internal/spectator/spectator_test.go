package spectator

import (
	"testing"

	"github.com/stlalpha/bancho3/internal/channel"
	"github.com/stlalpha/bancho3/internal/packet"
)

type fakeSession struct {
	id      int32
	pending [][]byte
}

func (f *fakeSession) SessionID() int32     { return f.id }
func (f *fakeSession) Enqueue(frame []byte) { f.pending = append(f.pending, frame) }

func framesForID(s *fakeSession, packetID uint16) int {
	count := 0
	for _, frame := range s.pending {
		frames, err := packet.Decode(frame)
		if err != nil {
			continue
		}
		for _, fr := range frames {
			if fr.ID == packetID {
				count++
			}
		}
	}
	return count
}

func TestStartSpectatingNotifiesHostAndFellows(t *testing.T) {
	channels := channel.NewRegistry()
	m := NewManager(channels)

	host := &fakeSession{id: 1}
	spec1 := &fakeSession{id: 2}
	spec2 := &fakeSession{id: 3}

	m.StartSpectating(host, spec1, false)
	if framesForID(host, packet.SpectatorJoined) != 1 {
		t.Fatal("expected host to receive SpectatorJoined")
	}

	m.StartSpectating(host, spec2, false)
	if framesForID(host, packet.SpectatorJoined) != 2 {
		t.Fatal("expected host to receive SpectatorJoined twice")
	}
	if framesForID(spec1, packet.FellowSpectatorJoined) != 1 {
		t.Fatal("expected spec1 to learn about spec2")
	}
	if framesForID(spec2, packet.FellowSpectatorJoined) != 1 {
		t.Fatal("expected spec2 to learn about spec1")
	}

	if m.SpectatorCount(1) != 2 {
		t.Fatalf("got %d spectators, want 2", m.SpectatorCount(1))
	}
}

func TestStealthSpectatorSuppressesNotifications(t *testing.T) {
	channels := channel.NewRegistry()
	m := NewManager(channels)

	host := &fakeSession{id: 1}
	stealthSpec := &fakeSession{id: 2}

	m.StartSpectating(host, stealthSpec, true)
	if framesForID(host, packet.SpectatorJoined) != 0 {
		t.Fatal("expected no SpectatorJoined notification for stealth spectator")
	}
	if m.SpectatorCount(1) != 1 {
		t.Fatal("expected stealth spectator to still count as spectating")
	}
}

func TestStopSpectatingDestroysGroupOnLastLeave(t *testing.T) {
	channels := channel.NewRegistry()
	m := NewManager(channels)

	host := &fakeSession{id: 1}
	spec := &fakeSession{id: 2}

	m.StartSpectating(host, spec, false)
	m.StopSpectating(host, spec)

	if m.SpectatorCount(1) != 0 {
		t.Fatal("expected spectator count to drop to 0")
	}
	if framesForID(host, packet.SpectatorLeft) != 1 {
		t.Fatal("expected host to receive SpectatorLeft")
	}
	if _, ok := channels.Get("#spec_1"); ok {
		t.Fatal("expected instanced channel to be destroyed")
	}
}

func TestRelayFramesRetransmitsVerbatim(t *testing.T) {
	channels := channel.NewRegistry()
	m := NewManager(channels)

	host := &fakeSession{id: 1}
	spec := &fakeSession{id: 2}
	m.StartSpectating(host, spec, false)

	raw := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	m.RelayFrames(host, raw)

	frames, err := packet.Decode(spec.pending[len(spec.pending)-1])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(frames) != 1 || frames[0].ID != packet.SSpectateFrames {
		t.Fatalf("got %+v, want one SSpectateFrames frame", frames)
	}
	if string(frames[0].Payload) != string(raw) {
		t.Fatalf("payload not preserved verbatim: got % x, want % x", frames[0].Payload, raw)
	}
}
