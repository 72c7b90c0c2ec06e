package command

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/stlalpha/bancho3/internal/channel"
	"github.com/stlalpha/bancho3/internal/packet"
	"github.com/stlalpha/bancho3/internal/ports"
	"github.com/stlalpha/bancho3/internal/session"
)

// GeneralDeps bundles what the general command catalog needs beyond a
// Context: the live registries to resolve targets and fan out
// notifications, and the persistence port moderative commands write
// through. Built once at bootstrap and closed over by every command's Run.
type GeneralDeps struct {
	Sessions *session.Registry
	Channels *channel.Registry
	Store    ports.Persistence
	Log      *slog.Logger
	Prefix   string
}

// shorthandReasons expands a handful of common moderation reason codes,
// matching the original's terse staff shorthand.
var shorthandReasons = map[string]string{
	"aa": "having their appeal accepted",
	"cc": "using a modified osu! client",
	"3p": "using 3rd party programs",
	"rx": "using 3rd party programs (relax)",
	"tw": "using 3rd party programs (timewarp)",
	"au": "using 3rd party programs (auto play)",
}

func expandReason(reason string) string {
	if expanded, ok := shorthandReasons[strings.ToLower(reason)]; ok {
		return expanded
	}
	return reason
}

func safeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// resolveTarget finds a user by name, preferring a live session (for
// up-to-date privileges) and falling back to the persistence store so
// moderative commands work against offline accounts too.
func (d GeneralDeps) resolveTarget(name string) (ports.UserRecord, *session.BanchoSession, bool) {
	if sess, ok := d.Sessions.GetBySafeName(safeName(name)); ok {
		return ports.UserRecord{
			ID: sess.ID, Name: sess.Name, SafeName: sess.SafeName,
			Privileges: sess.Privileges, Country: sess.Country, SilenceEnd: sess.SilenceEnd,
		}, sess, true
	}
	rec, err := d.Store.UserBySafeName(context.Background(), safeName(name))
	if err != nil {
		return ports.UserRecord{}, nil, false
	}
	return rec, nil, true
}

// logoutSession removes sess from every joined channel and the registry,
// then announces its departure. Mirrors internal/housekeeping's ghost
// disconnect, duplicated locally since a moderative restrict/unrestrict
// needs the same cascade without depending on that package.
func (d GeneralDeps) logoutSession(sess *session.BanchoSession) {
	for name := range sess.Channels {
		if ch, ok := d.Channels.Get(name); ok {
			ch.Leave(sess)
		}
	}
	d.Sessions.Remove(sess)
	w := packet.NewWriter()
	w.WriteI32(sess.ID)
	w.WriteU8(0)
	d.Sessions.EnqueueAll(packet.Build(packet.UserLogout, w.Bytes()), nil)
}

func notifyFrame(msg string) []byte {
	w := packet.NewWriter()
	w.WriteString(msg)
	return packet.Build(packet.Notification, w.Bytes())
}

// parseDuration parses a short duration string (e.g. "30m", "2h", "1d",
// "2w"), defaulting to seconds when no suffix is given.
func parseDuration(s string) (time.Duration, bool) {
	if s == "" {
		return 0, false
	}
	unit := s[len(s)-1]
	numPart := s
	mult := time.Second
	switch unit {
	case 's':
		numPart = s[:len(s)-1]
	case 'm':
		numPart = s[:len(s)-1]
		mult = time.Minute
	case 'h':
		numPart = s[:len(s)-1]
		mult = time.Hour
	case 'd':
		numPart = s[:len(s)-1]
		mult = 24 * time.Hour
	case 'w':
		numPart = s[:len(s)-1]
		mult = 7 * 24 * time.Hour
	}
	n, err := strconv.Atoi(numPart)
	if err != nil || n <= 0 {
		return 0, false
	}
	return time.Duration(n) * mult, true
}

// privilegeNames maps the !addpriv/!rmpriv role tokens to their bit, as in
// the original's str_priv_dict.
var privilegeNames = map[string]ports.Privileges{
	"whitelisted":    ports.Whitelisted,
	"alumni":         ports.Alumni,
	"tourneymanager": ports.TourneyManager,
	"nominator":      ports.Nominator,
	"mod":            ports.Moderator,
	"admin":          ports.Administrator,
	"developer":      ports.Developer,
}

// RegisterGeneral adds the representative general-purpose command catalog
// the original ships beyond the mp/pool/clan sets: help, a dice roll,
// stats lookup, staff notes, restrict/unrestrict, silence/unsilence,
// privilege grants, and a server-wide announcement. Commands needing a
// beatmap-metadata or note-query port (!map, !maprequests, viewing
// !notes) are left out: no such port exists in this deployment's scope.
func RegisterGeneral(r *Registry, deps GeneralDeps) {
	r.Register(Command{
		Triggers: []string{"help", "h"},
		Required: ports.Unrestricted,
		Hidden:   true,
		Doc:      "Show every command you have permission to use.",
		Run: func(ctx Context) Response {
			visible := r.Visible(ctx.Sender.Privileges)
			lines := make([]string, 0, len(visible)+2)
			lines = append(lines, "Individual commands", "-----------")
			for _, c := range visible {
				lines = append(lines, fmt.Sprintf("%s%s: %s", deps.Prefix, c.Triggers[0], c.Doc))
			}
			return Response{Text: strings.Join(lines, "\n"), Hidden: true}
		},
	})

	r.Register(Command{
		Triggers: []string{"roll"},
		Required: ports.Unrestricted,
		Doc:      "Roll an n-sided die (100 default).",
		Run: func(ctx Context) Response {
			max := 100
			if len(ctx.Args) > 0 {
				if n, err := strconv.Atoi(ctx.Args[0]); err == nil && n > 0 {
					if n > 0x7FFF {
						n = 0x7FFF
					}
					max = n
				}
			}
			return Response{Text: fmt.Sprintf("%s rolls %d points!", ctx.Sender.Name, rand.Intn(max))}
		},
	})

	r.Register(Command{
		Triggers: []string{"stats"},
		Required: ports.Unrestricted,
		Doc:      "Show your or another player's ranked statistics.",
		Run: func(ctx Context) Response {
			name := ctx.Sender.Name
			if len(ctx.Args) > 0 {
				name = strings.Join(ctx.Args, " ")
			}
			rec, _, ok := deps.resolveTarget(name)
			if !ok {
				return Response{Text: fmt.Sprintf("%q not found.", name)}
			}
			stats := rec.Stats[ctx.Sender.Status.Mode]
			return Response{Hidden: true, Text: fmt.Sprintf(
				"Stats for %s (mode %d): %d plays, %.2f%% accuracy, %.1fpp, ranked score %d.",
				rec.Name, ctx.Sender.Status.Mode, stats.PlayCount, stats.Accuracy, stats.PerformancePoints, stats.RankedScore,
			)}
		},
	})

	r.Register(Command{
		Triggers: []string{"note"},
		Required: ports.Moderator,
		Hidden:   true,
		Doc:      "Append a staff note to a player's record.",
		Run: func(ctx Context) Response {
			if len(ctx.Args) < 2 {
				return Response{Text: "Invalid syntax: !note <name> <message>"}
			}
			target, _, ok := deps.resolveTarget(ctx.Args[0])
			if !ok {
				return Response{Text: fmt.Sprintf("%q not found.", ctx.Args[0])}
			}
			entry := ports.AuditLogEntry{
				FromID: ctx.Sender.ID, ToID: target.ID, Action: ports.ActionNote,
				Message: strings.Join(ctx.Args[1:], " "), Time: time.Now(),
			}
			if err := deps.Store.AppendAuditLog(context.Background(), entry); err != nil {
				deps.Log.Error("command: failed to append note", "err", err, "target", target.Name)
				return Response{Text: "Failed to save note."}
			}
			return Response{Text: fmt.Sprintf("Added note to %s.", target.Name)}
		},
	})

	r.Register(Command{
		Triggers: []string{"silence"},
		Required: ports.Moderator,
		Hidden:   true,
		Doc:      "Silence a player for a duration, with a reason.",
		Run: func(ctx Context) Response {
			if len(ctx.Args) < 3 {
				return Response{Text: "Invalid syntax: !silence <name> <duration> <reason>"}
			}
			target, sess, ok := deps.resolveTarget(ctx.Args[0])
			if !ok {
				return Response{Text: fmt.Sprintf("%q not found.", ctx.Args[0])}
			}
			if target.Privileges&ports.Staff != 0 && !ctx.Sender.Privileges.Has(ports.Developer) {
				return Response{Text: "Only developers can manage staff members."}
			}
			dur, ok := parseDuration(ctx.Args[1])
			if !ok {
				return Response{Text: "Invalid timespan."}
			}
			reason := expandReason(strings.Join(ctx.Args[2:], " "))

			target.SilenceEnd = time.Now().Add(dur)
			if err := deps.Store.SaveUser(context.Background(), target); err != nil {
				return Response{Text: "Failed to save silence."}
			}
			deps.Store.AppendAuditLog(context.Background(), ports.AuditLogEntry{
				FromID: ctx.Sender.ID, ToID: target.ID, Action: ports.ActionSilence, Message: reason, Time: time.Now(),
			})
			if sess != nil {
				sess.SilenceEnd = target.SilenceEnd
				sess.Enqueue(notifyFrame(fmt.Sprintf("You have been silenced for %s: %s", ctx.Args[1], reason)))
			}
			return Response{Text: fmt.Sprintf("%s was silenced.", target.Name)}
		},
	})

	r.Register(Command{
		Triggers: []string{"unsilence"},
		Required: ports.Moderator,
		Hidden:   true,
		Doc:      "Lift a player's silence, with a reason.",
		Run: func(ctx Context) Response {
			if len(ctx.Args) < 2 {
				return Response{Text: "Invalid syntax: !unsilence <name> <reason>"}
			}
			target, sess, ok := deps.resolveTarget(ctx.Args[0])
			if !ok {
				return Response{Text: fmt.Sprintf("%q not found.", ctx.Args[0])}
			}
			if target.SilenceEnd.Before(time.Now()) {
				return Response{Text: fmt.Sprintf("%s is not silenced.", target.Name)}
			}
			if target.Privileges&ports.Staff != 0 && !ctx.Sender.Privileges.Has(ports.Developer) {
				return Response{Text: "Only developers can manage staff members."}
			}
			reason := expandReason(strings.Join(ctx.Args[1:], " "))

			target.SilenceEnd = time.Time{}
			if err := deps.Store.SaveUser(context.Background(), target); err != nil {
				return Response{Text: "Failed to save unsilence."}
			}
			deps.Store.AppendAuditLog(context.Background(), ports.AuditLogEntry{
				FromID: ctx.Sender.ID, ToID: target.ID, Action: ports.ActionUnsilence, Message: reason, Time: time.Now(),
			})
			if sess != nil {
				sess.SilenceEnd = time.Time{}
				sess.Enqueue(notifyFrame("Your silence has been lifted."))
			}
			return Response{Text: fmt.Sprintf("%s was unsilenced.", target.Name)}
		},
	})

	r.Register(Command{
		Triggers: []string{"restrict"},
		Required: ports.Administrator,
		Hidden:   true,
		Doc:      "Restrict a player's account, with a reason.",
		Run: func(ctx Context) Response {
			if len(ctx.Args) < 2 {
				return Response{Text: "Invalid syntax: !restrict <name> <reason>"}
			}
			target, sess, ok := deps.resolveTarget(ctx.Args[0])
			if !ok {
				return Response{Text: fmt.Sprintf("%q not found.", ctx.Args[0])}
			}
			if target.Privileges&ports.Staff != 0 && !ctx.Sender.Privileges.Has(ports.Developer) {
				return Response{Text: "Only developers can manage staff members."}
			}
			if !target.Privileges.Has(ports.Unrestricted) {
				return Response{Text: fmt.Sprintf("%s is already restricted!", target.Name)}
			}
			reason := expandReason(strings.Join(ctx.Args[1:], " "))

			target.Privileges &^= ports.Unrestricted
			if err := deps.Store.SaveUser(context.Background(), target); err != nil {
				return Response{Text: "Failed to save restriction."}
			}
			deps.Store.AppendAuditLog(context.Background(), ports.AuditLogEntry{
				FromID: ctx.Sender.ID, ToID: target.ID, Action: ports.ActionRestrict, Message: reason, Time: time.Now(),
			})
			if sess != nil {
				deps.logoutSession(sess)
			}
			return Response{Text: fmt.Sprintf("%s was restricted.", target.Name)}
		},
	})

	r.Register(Command{
		Triggers: []string{"unrestrict"},
		Required: ports.Administrator,
		Hidden:   true,
		Doc:      "Unrestrict a player's account, with a reason.",
		Run: func(ctx Context) Response {
			if len(ctx.Args) < 2 {
				return Response{Text: "Invalid syntax: !unrestrict <name> <reason>"}
			}
			target, sess, ok := deps.resolveTarget(ctx.Args[0])
			if !ok {
				return Response{Text: fmt.Sprintf("%q not found.", ctx.Args[0])}
			}
			if target.Privileges.Has(ports.Unrestricted) {
				return Response{Text: fmt.Sprintf("%s is not restricted!", target.Name)}
			}
			reason := expandReason(strings.Join(ctx.Args[1:], " "))

			target.Privileges |= ports.Unrestricted
			if err := deps.Store.SaveUser(context.Background(), target); err != nil {
				return Response{Text: "Failed to save unrestriction."}
			}
			deps.Store.AppendAuditLog(context.Background(), ports.AuditLogEntry{
				FromID: ctx.Sender.ID, ToID: target.ID, Action: ports.ActionUnrestrict, Message: reason, Time: time.Now(),
			})
			if sess != nil {
				deps.logoutSession(sess)
			}
			return Response{Text: fmt.Sprintf("%s was unrestricted.", target.Name)}
		},
	})

	r.Register(Command{
		Triggers: []string{"addpriv"},
		Required: ports.Developer,
		Hidden:   true,
		Doc:      "Grant privilege roles to a player.",
		Run: func(ctx Context) Response {
			return applyPrivDelta(deps, ctx, true)
		},
	})

	r.Register(Command{
		Triggers: []string{"rmpriv"},
		Required: ports.Developer,
		Hidden:   true,
		Doc:      "Revoke privilege roles from a player.",
		Run: func(ctx Context) Response {
			return applyPrivDelta(deps, ctx, false)
		},
	})

	r.Register(Command{
		Triggers: []string{"announce", "alert"},
		Required: ports.Administrator,
		Hidden:   true,
		Doc:      "Send a notification to every connected player.",
		Run: func(ctx Context) Response {
			if len(ctx.Args) == 0 {
				return Response{Text: "Invalid syntax: !announce <message>"}
			}
			deps.Sessions.EnqueueAll(notifyFrame(strings.Join(ctx.Args, " ")), nil)
			return Response{Text: "Alert sent."}
		},
	})
}

func applyPrivDelta(deps GeneralDeps, ctx Context, grant bool) Response {
	verb, syntax := "addpriv", "!addpriv <name> <role1 role2 ...>"
	if !grant {
		verb, syntax = "rmpriv", "!rmpriv <name> <role1 role2 ...>"
	}
	if len(ctx.Args) < 2 {
		return Response{Text: "Invalid syntax: " + syntax}
	}

	var bits ports.Privileges
	for _, token := range ctx.Args[1:] {
		bit, ok := privilegeNames[strings.ToLower(token)]
		if !ok {
			return Response{Text: fmt.Sprintf("Not found: %s.", token)}
		}
		bits |= bit
	}

	target, _, ok := deps.resolveTarget(ctx.Args[0])
	if !ok {
		return Response{Text: "Could not find user."}
	}

	if grant {
		target.Privileges |= bits
	} else {
		target.Privileges &^= bits
		if bits&ports.Donator != 0 {
			target.DonorEnd = time.Time{}
		}
	}
	if err := deps.Store.SaveUser(context.Background(), target); err != nil {
		deps.Log.Error("command: failed to save privilege change", "cmd", verb, "err", err, "target", target.Name)
		return Response{Text: "Failed to save privileges."}
	}
	if sess, online := deps.Sessions.GetByID(target.ID); online {
		sess.Privileges = target.Privileges
	}
	return Response{Text: fmt.Sprintf("Updated %s's privileges.", target.Name)}
}
