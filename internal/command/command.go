// Package command implements the trigger-based chat command interpreter:
// a flat registry of top-level commands plus nested sets that re-dispatch
// their own remaining tokens. The only nested set registered is mp; there
// is no pool or clan set.
package command

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/stlalpha/bancho3/internal/ports"
	"github.com/stlalpha/bancho3/internal/session"
)

// Context is what a command callback receives: the invoking session, the
// channel the message arrived on, and the raw argument tokens (the trigger
// itself already stripped).
type Context struct {
	Sender  *session.BanchoSession
	Channel string
	Args    []string

	// Match carries the sender's current match, when one is relevant and
	// known to the caller. Nested mp commands use it to enforce the
	// referee/host/tournament-manager + own-channel gate without this
	// package importing internal/match directly.
	Match MatchContext
}

// MatchContext is the subset of match state an mp subcommand gate needs.
type MatchContext interface {
	ChatChannelName() string
	IsHost(userID int32) bool
	IsReferee(userID int32) bool
}

// Response is a command's result. Hidden copies the command definition's
// Hidden flag; the caller (internal/chat) uses it to decide whether to
// broadcast to the whole channel or only to staff and the sender.
type Response struct {
	Text   string
	Hidden bool
}

// Callback is a command's implementation.
type Callback func(ctx Context) Response

// Command is one registered trigger.
type Command struct {
	Triggers []string
	Required ports.Privileges
	Hidden   bool
	Doc      string
	Run      Callback
}

func (c Command) matches(trigger string) bool {
	for _, t := range c.Triggers {
		if strings.EqualFold(t, trigger) {
			return true
		}
	}
	return false
}

// Registry is a flat, ordered set of commands sharing one dispatch pass.
// Nested sets (mp is the only one) are themselves Registries, wired in as a
// single Command whose Run re-dispatches the remaining tokens.
type Registry struct {
	name     string
	commands []Command
	log      *slog.Logger

	// MatchLookup resolves the sender's current match, if any, so Dispatch
	// can populate Context.Match. nil: commands in this registry never see
	// a match (e.g. the top-level general registry, before an mp-gated
	// nested set is wired in).
	MatchLookup func(sender *session.BanchoSession) MatchContext
}

// NewRegistry builds an empty registry. name is used only in log lines.
func NewRegistry(name string, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{name: name, log: log}
}

// Register adds a command. Later registrations are matched first, mirroring
// the teacher's descriptor-table precedence (most specific entries added
// last win ties, though triggers are expected to be unique in practice).
func (r *Registry) Register(c Command) {
	r.commands = append(r.commands, c)
}

// Dispatch looks up the first token of text as a trigger and runs the
// matching command, gating on privilege. Returns handled=false if no
// command's trigger matched (the caller should treat the text as a plain
// chat message in that case, or as an unknown-command notice).
func (r *Registry) Dispatch(sender *session.BanchoSession, channelName, text string) (resp Response, handled bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Response{}, false
	}
	trigger := fields[0]
	args := fields[1:]

	for i := len(r.commands) - 1; i >= 0; i-- {
		c := r.commands[i]
		if !c.matches(trigger) {
			continue
		}
		if sender.Privileges&c.Required != c.Required {
			return Response{Text: "You do not have permission to use that command."}, true
		}
		return r.run(c, sender, channelName, args), true
	}
	return Response{}, false
}

// run invokes a command's callback with panic recovery, matching the
// teacher's recover-and-log pattern around connection handling.
func (r *Registry) run(c Command, sender *session.BanchoSession, channelName string, args []string) (resp Response) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("command panic", "registry", r.name, "trigger", args, "sender", sender.Name, "recover", fmt.Sprint(rec))
			resp = Response{Text: "An internal error occurred running that command."}
		}
	}()
	ctx := Context{Sender: sender, Channel: channelName, Args: args}
	if r.MatchLookup != nil {
		ctx.Match = r.MatchLookup(sender)
	}
	resp = c.Run(ctx)
	if c.Hidden {
		resp.Hidden = true
	}
	return resp
}

// Visible returns every command privs may run and that carries help text,
// in registration order, for building a !help listing.
func (r *Registry) Visible(privs ports.Privileges) []Command {
	out := make([]Command, 0, len(r.commands))
	for _, c := range r.commands {
		if c.Doc == "" || privs&c.Required != c.Required {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Strip removes a leading command prefix, returning the remainder and
// whether the prefix was present.
func Strip(prefix, text string) (string, bool) {
	if prefix == "" || !strings.HasPrefix(text, prefix) {
		return text, false
	}
	return strings.TrimPrefix(text, prefix), true
}
