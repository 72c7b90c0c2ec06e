package command

import (
	"strings"

	"github.com/stlalpha/bancho3/internal/ports"
)

// NestedCommand wraps set as a single Command under trigger: remaining
// tokens are re-dispatched inside set, falling back to helpTrigger when no
// subcommand was given. gate, if non-nil, runs before re-dispatch and can
// veto the whole nested set (used by mp to require a match context).
func NestedCommand(trigger string, required ports.Privileges, doc string, set *Registry, helpTrigger string, gate func(Context) (Response, bool)) Command {
	return Command{
		Triggers: []string{trigger},
		Required: required,
		Doc:      doc,
		Run: func(ctx Context) Response {
			// No subcommand given, or the subcommand is the set's own help
			// trigger: both run help directly, bypassing the gate, matching
			// the spec's "mp help bypasses this" carve-out.
			isHelp := len(ctx.Args) == 0 || strings.EqualFold(ctx.Args[0], helpTrigger)

			if gate != nil && !isHelp {
				if resp, vetoed := gate(ctx); vetoed {
					return resp
				}
			}

			if len(ctx.Args) == 0 {
				resp, handled := set.Dispatch(ctx.Sender, ctx.Channel, helpTrigger)
				if !handled {
					return Response{Text: "No subcommands are available."}
				}
				return resp
			}

			resp, handled := set.Dispatch(ctx.Sender, ctx.Channel, strings.Join(ctx.Args, " "))
			if !handled {
				return Response{Text: "Unknown subcommand."}
			}
			return resp
		},
	}
}

// MultiplayerGate enforces that an mp subcommand (other than help) only
// runs when the sender is in their own match's chat channel and is the
// match's host, a referee, or holds tournament-manager privilege.
func MultiplayerGate(ctx Context) (Response, bool) {
	if len(ctx.Args) > 0 && strings.EqualFold(ctx.Args[0], "help") {
		return Response{}, false
	}
	if ctx.Match == nil {
		return Response{Text: "You are not in a match."}, true
	}
	if ctx.Channel != ctx.Match.ChatChannelName() {
		return Response{Text: "That command must be used in the match's own channel."}, true
	}
	userID := ctx.Sender.ID
	if ctx.Match.IsHost(userID) || ctx.Match.IsReferee(userID) || ctx.Sender.Privileges.Has(ports.TourneyManager) {
		return Response{}, false
	}
	return Response{Text: "Only the host, a referee, or a tournament manager may use that command."}, true
}
