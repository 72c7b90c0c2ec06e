// Package chat routes public and private messages: recipient resolution,
// truncation, silence/block/privacy checks, offline mail handoff, and
// now-playing ("/np") parsing.
package chat

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/stlalpha/bancho3/internal/channel"
	"github.com/stlalpha/bancho3/internal/packet"
	"github.com/stlalpha/bancho3/internal/ports"
	"github.com/stlalpha/bancho3/internal/session"
)

// MaxMessageLength is the hard cap before truncation; osu! clients don't
// render longer single messages usefully anyway.
const MaxMessageLength = 2000

const truncationSuffix = " (message truncated)"

// ignoredChannels never receive chat traffic even if a user "sends" to them
// (client-local virtual channels, not real Bancho channels).
var ignoredChannels = map[string]struct{}{
	"#highlight": {},
	"#userlog":   {},
}

// Router wires together the channel registry and persistence port needed
// to deliver public and private messages.
type Router struct {
	Channels *channel.Registry
	Sessions *session.Registry
	Store    ports.Persistence

	// CommandPrefix is the leading character that hands a message off to
	// the command interpreter instead of broadcasting it as chat.
	CommandPrefix string

	// Dispatch, if set, is invoked for any message beginning with
	// CommandPrefix; Router itself has no knowledge of command syntax.
	Dispatch func(sender *session.BanchoSession, target string, text string) (response string, hidden bool, handled bool)
}

// SendResult reports how a public/private send was disposed of, for the
// caller to decide what (if anything) to notify the sender with.
type SendResult int

const (
	SendDelivered SendResult = iota
	SendRejectedSilenced
	SendRejectedNotMember
	SendRejectedNoWritePriv
	SendRejectedBlocked
	SendRejectedDMPrivacy
	SendQueuedAsMail
	SendCommandHandled
)

func notifyPacket(text string) []byte {
	w := packet.NewWriter()
	w.WriteString(text)
	return packet.Build(packet.Notification, w.Bytes())
}

func messagePacket(sender, text, target string, senderID int32) []byte {
	msg := packet.Message{Sender: sender, Text: text, Target: target, SenderID: senderID}
	w := packet.NewWriter()
	msg.Encode(w)
	return packet.Build(packet.SendMessage, w.Bytes())
}

func truncate(text string) string {
	if len(text) <= MaxMessageLength {
		return text
	}
	cut := MaxMessageLength - len(truncationSuffix)
	if cut < 0 {
		cut = 0
	}
	return text[:cut] + truncationSuffix
}

// resolveChannelName maps client-side aliases to the sender's actual
// instanced channel.
func resolveChannelName(sender *session.BanchoSession, target string) string {
	switch target {
	case "#spectator":
		if sender.SpectatorHostID != 0 {
			return fmt.Sprintf("#spec_%d", sender.SpectatorHostID)
		}
		return fmt.Sprintf("#spec_%d", sender.ID)
	case "#multiplayer":
		return fmt.Sprintf("#multi_%d", sender.MatchID)
	default:
		return target
	}
}

// SendPublic routes a message to a channel, applying silence, membership,
// write-privilege, truncation, and ignored-channel rules, then either
// broadcasts it or hands it to the command interpreter.
func (r *Router) SendPublic(sender *session.BanchoSession, target, text string) SendResult {
	if sender.Silenced() {
		return SendRejectedSilenced
	}

	realName := resolveChannelName(sender, target)
	if _, ignored := ignoredChannels[realName]; ignored {
		return SendRejectedNotMember
	}

	ch, ok := r.Channels.Get(realName)
	if !ok || !ch.IsMember(sender.ID) {
		return SendRejectedNotMember
	}
	if !ch.CanWrite(sender.Privileges) {
		return SendRejectedNoWritePriv
	}

	if r.CommandPrefix != "" && strings.HasPrefix(text, r.CommandPrefix) && r.Dispatch != nil {
		response, hidden, handled := r.Dispatch(sender, realName, text)
		if handled {
			frame := messagePacket(sender.Name, text+"\n"+response, realName, sender.ID)
			if hidden {
				r.broadcastToStaffAndSender(sender, frame)
			} else {
				ch.Broadcast(frame, nil)
			}
			return SendCommandHandled
		}
	}

	if len(text) > MaxMessageLength {
		sender.Enqueue(notifyPacket("Your message was truncated."))
	}
	text = truncate(text)

	ch.Broadcast(messagePacket(sender.Name, text, realName, sender.ID), map[int32]struct{}{sender.ID: {}})
	return SendDelivered
}

// broadcastToStaffAndSender delivers a hidden command's echo to the sender
// and every staff member, regardless of channel membership.
func (r *Router) broadcastToStaffAndSender(sender *session.BanchoSession, frame []byte) {
	sender.Enqueue(frame)
	if r.Sessions == nil {
		return
	}
	for _, s := range r.Sessions.Staff() {
		if s.ID != sender.ID {
			s.Enqueue(frame)
		}
	}
}

// SendPrivate routes a direct message, applying block and dm-privacy checks
// and falling back to offline mail when the recipient is not logged in.
// recipientID/recipientName identify the target even when recipient is nil
// (offline); recipient is the live session, if any.
func (r *Router) SendPrivate(ctx context.Context, sender *session.BanchoSession, recipientID int32, recipientName string, recipient *session.BanchoSession, text string) SendResult {
	if sender.Silenced() {
		return SendRejectedSilenced
	}

	if recipient == nil {
		if r.Store != nil {
			_ = r.Store.SendMail(ctx, ports.MailMessage{
				FromID: sender.ID,
				ToID:   recipientID,
				Body:   truncate(text),
				Time:   time.Now(),
			})
		}
		sender.Enqueue(notifyPacket("The player is currently offline, but your message will be delivered on their next login."))
		return SendQueuedAsMail
	}

	if recipient.IsBlocked(sender.ID) {
		sender.Enqueue(packet.Build(packet.UserDMBlocked, mustEncodeMessage(sender.Name, "", recipient.Name, sender.ID)))
		return SendRejectedBlocked
	}

	if recipient.PMPrivate && !recipient.IsFriend(sender.ID) {
		sender.Enqueue(packet.Build(packet.UserDMBlocked, mustEncodeMessage(sender.Name, "", recipient.Name, sender.ID)))
		return SendRejectedDMPrivacy
	}

	text = truncate(text)
	recipient.Enqueue(messagePacket(sender.Name, text, recipient.Name, sender.ID))

	if recipient.AwayMessage != "" {
		sender.Enqueue(messagePacket(recipient.Name, recipient.AwayMessage, sender.Name, recipient.ID))
	}

	return SendDelivered
}

func mustEncodeMessage(sender, text, target string, senderID int32) []byte {
	msg := packet.Message{Sender: sender, Text: text, Target: target, SenderID: senderID}
	w := packet.NewWriter()
	msg.Encode(w)
	return w.Bytes()
}

// npPattern matches the client's now-playing action text, e.g.
// "playing [https://osu.ppy.sh/b/75 Artist - Title [Diff]]".
var npPattern = regexp.MustCompile(`\[https?://(?:osu\.ppy\.sh|old\.ppy\.sh)/(?:b|beatmapsets/\d+#\w+)/(\d+)`)

// ParseNP extracts a beatmap id from a status action string, if present.
func ParseNP(infoText string) (beatmapID int32, ok bool) {
	m := npPattern.FindStringSubmatch(infoText)
	if m == nil {
		return 0, false
	}
	var id int64
	_, err := fmt.Sscanf(m[1], "%d", &id)
	if err != nil {
		return 0, false
	}
	return int32(id), true
}

// npExpiry is how long a captured /np context remains valid for a
// following command (e.g. a "!with" mod-recommendation request).
const npExpiry = 5 * time.Minute

// RecordNP stores a /np context on the sender with a five-minute expiry.
func RecordNP(sender *session.BanchoSession, beatmapID int32, md5 string, mods int32, mode uint8) {
	sender.LastNP = session.LastNP{
		BeatmapID:  beatmapID,
		BeatmapMD5: md5,
		Mods:       mods,
		Mode:       mode,
		Expiry:     time.Now().Add(npExpiry),
	}
}

// CurrentNP returns the sender's /np context if it hasn't expired.
func CurrentNP(sender *session.BanchoSession) (session.LastNP, bool) {
	if sender.LastNP.Expiry.IsZero() || time.Now().After(sender.LastNP.Expiry) {
		return session.LastNP{}, false
	}
	return sender.LastNP, true
}
