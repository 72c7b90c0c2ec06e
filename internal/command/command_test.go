package command

import (
	"log/slog"
	"testing"

	"github.com/stlalpha/bancho3/internal/ports"
	"github.com/stlalpha/bancho3/internal/session"
)

func newTestSender(privs ports.Privileges) *session.BanchoSession {
	return session.NewBanchoSession(ports.UserRecord{ID: 1, Name: "alice", Privileges: privs}, "token")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestDispatchMatchesTriggerCaseInsensitive(t *testing.T) {
	r := NewRegistry("top", discardLogger())
	r.Register(Command{
		Triggers: []string{"ping"},
		Run:      func(ctx Context) Response { return Response{Text: "pong"} },
	})

	resp, handled := r.Dispatch(newTestSender(0), "#osu", "PING")
	if !handled || resp.Text != "pong" {
		t.Fatalf("got %+v handled=%v", resp, handled)
	}
}

func TestDispatchUnknownTriggerNotHandled(t *testing.T) {
	r := NewRegistry("top", discardLogger())
	_, handled := r.Dispatch(newTestSender(0), "#osu", "nope")
	if handled {
		t.Fatal("expected unhandled for unknown trigger")
	}
}

func TestDispatchRejectsMissingPrivilege(t *testing.T) {
	r := NewRegistry("top", discardLogger())
	r.Register(Command{
		Triggers: []string{"ban"},
		Required: ports.Administrator,
		Run:      func(ctx Context) Response { return Response{Text: "banned"} },
	})

	resp, handled := r.Dispatch(newTestSender(0), "#osu", "ban someone")
	if !handled {
		t.Fatal("expected handled=true even when rejected for privilege")
	}
	if resp.Text == "banned" {
		t.Fatal("expected permission denial, not the privileged response")
	}
}

func TestDispatchAllowsWithSufficientPrivilege(t *testing.T) {
	r := NewRegistry("top", discardLogger())
	r.Register(Command{
		Triggers: []string{"ban"},
		Required: ports.Administrator,
		Run:      func(ctx Context) Response { return Response{Text: "banned " + ctx.Args[0]} },
	})

	resp, handled := r.Dispatch(newTestSender(ports.Administrator), "#osu", "ban someone")
	if !handled || resp.Text != "banned someone" {
		t.Fatalf("got %+v handled=%v", resp, handled)
	}
}

func TestDispatchRecoversFromPanic(t *testing.T) {
	r := NewRegistry("top", discardLogger())
	r.Register(Command{
		Triggers: []string{"boom"},
		Run:      func(ctx Context) Response { panic("kaboom") },
	})

	resp, handled := r.Dispatch(newTestSender(0), "#osu", "boom")
	if !handled {
		t.Fatal("expected handled=true after recovering from panic")
	}
	if resp.Text == "" {
		t.Fatal("expected a generic failure response")
	}
}

func TestHiddenFlagIsCopiedFromDefinition(t *testing.T) {
	r := NewRegistry("top", discardLogger())
	r.Register(Command{
		Triggers: []string{"silentrestrict"},
		Hidden:   true,
		Run:      func(ctx Context) Response { return Response{Text: "done"} },
	})

	resp, _ := r.Dispatch(newTestSender(0), "#osu", "silentrestrict x")
	if !resp.Hidden {
		t.Fatal("expected hidden response")
	}
}

type fakeMatch struct {
	channel  string
	hostID   int32
	refereed map[int32]bool
}

func (f fakeMatch) ChatChannelName() string { return f.channel }
func (f fakeMatch) IsHost(id int32) bool    { return f.hostID == id }
func (f fakeMatch) IsReferee(id int32) bool { return f.refereed[id] }

func TestNestedCommandFallsBackToHelpWithNoArgs(t *testing.T) {
	mp := NewRegistry("mp", discardLogger())
	helpCalled := false
	mp.Register(Command{
		Triggers: []string{"help"},
		Run: func(ctx Context) Response {
			helpCalled = true
			return Response{Text: "mp help text"}
		},
	})

	top := NewRegistry("top", discardLogger())
	top.Register(NestedCommand("mp", 0, "multiplayer commands", mp, "help", MultiplayerGate))

	sender := newTestSender(0)
	resp, handled := top.Dispatch(sender, "#multi_1", "mp")
	if !handled || !helpCalled || resp.Text != "mp help text" {
		t.Fatalf("got %+v handled=%v helpCalled=%v", resp, handled, helpCalled)
	}
}

func TestNestedCommandGateRejectsOutsideMatchChannel(t *testing.T) {
	mp := NewRegistry("mp", discardLogger())
	mp.Register(Command{
		Triggers: []string{"start"},
		Run:      func(ctx Context) Response { return Response{Text: "started"} },
	})

	top := NewRegistry("top", discardLogger())
	top.Register(NestedCommand("mp", 0, "multiplayer commands", mp, "help", MultiplayerGate))

	sender := newTestSender(0)
	// No Match set on ctx, and channel isn't the match's own -> vetoed.
	resp, handled := top.Dispatch(sender, "#osu", "mp start")
	if !handled {
		t.Fatal("expected handled=true from the gate rejection")
	}
	if resp.Text == "started" {
		t.Fatal("expected the gate to veto before running the subcommand")
	}
}

func TestNestedCommandGateAllowsHostInOwnChannel(t *testing.T) {
	mp := NewRegistry("mp", discardLogger())
	mp.Register(Command{
		Triggers: []string{"start"},
		Run:      func(ctx Context) Response { return Response{Text: "started"} },
	})

	top := NewRegistry("top", discardLogger())
	top.Register(NestedCommand("mp", 0, "multiplayer commands", mp, "help", MultiplayerGate))

	sender := newTestSender(0)
	m := fakeMatch{channel: "#multi_1", hostID: sender.ID}

	// Registry.Dispatch only populates ctx.Match when MatchLookup is set;
	// this registry has none, so exercise the gate directly with Match set,
	// as it would be once a real MatchLookup resolves the sender's match.
	ctx := Context{Sender: sender, Channel: "#multi_1", Args: []string{"start"}, Match: m}
	if resp, vetoed := MultiplayerGate(ctx); vetoed {
		t.Fatalf("expected gate to allow host, got veto %+v", resp)
	}
}
