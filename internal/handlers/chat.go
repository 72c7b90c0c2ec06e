package handlers

import (
	"context"
	"strings"

	"github.com/stlalpha/bancho3/internal/packet"
	"github.com/stlalpha/bancho3/internal/session"
)

func safeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

func (d Deps) sendPublicMessage(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	r := packet.NewReader(payload)
	msg, err := packet.ReadMessage(r)
	if err != nil {
		return err
	}
	if d.Chat == nil {
		return nil
	}
	d.Chat.SendPublic(sess, msg.Target, msg.Text)
	return nil
}

func (d Deps) sendPrivateMessage(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	r := packet.NewReader(payload)
	msg, err := packet.ReadMessage(r)
	if err != nil {
		return err
	}
	if d.Chat == nil {
		return nil
	}
	recipient, online := d.Sessions.GetBySafeName(safeName(msg.Target))
	var recipientID int32
	if online {
		recipientID = recipient.ID
	}
	d.Chat.SendPrivate(ctx, sess, recipientID, msg.Target, orNil(online, recipient), msg.Text)
	return nil
}

func orNil(ok bool, s *session.BanchoSession) *session.BanchoSession {
	if !ok {
		return nil
	}
	return s
}

func (d Deps) channelJoin(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	r := packet.NewReader(payload)
	name, err := r.ReadString()
	if err != nil {
		return err
	}
	ch, ok := d.Channels.Get(name)
	if !ok || !ch.CanRead(sess.Privileges) {
		return nil
	}
	if ch.Join(sess) {
		sess.Channels[name] = struct{}{}
	}
	sess.Enqueue(channelJoinSuccessFrame(name))
	return nil
}

func (d Deps) channelPart(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	r := packet.NewReader(payload)
	name, err := r.ReadString()
	if err != nil {
		return err
	}
	if ch, ok := d.Channels.Get(name); ok {
		ch.Leave(sess)
	}
	delete(sess.Channels, name)
	return nil
}
