package handlers

import (
	"context"

	"github.com/stlalpha/bancho3/internal/chat"
	"github.com/stlalpha/bancho3/internal/packet"
	"github.com/stlalpha/bancho3/internal/ports"
	"github.com/stlalpha/bancho3/internal/session"
)

func (d Deps) changeAction(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	r := packet.NewReader(payload)
	action, err := r.ReadU8()
	if err != nil {
		return err
	}
	info, err := r.ReadString()
	if err != nil {
		return err
	}
	mapMD5, err := r.ReadString()
	if err != nil {
		return err
	}
	mods, err := r.ReadI32()
	if err != nil {
		return err
	}
	mode, err := r.ReadU8()
	if err != nil {
		return err
	}
	mapID, err := r.ReadI32()
	if err != nil {
		return err
	}

	sess.Status = session.Status{Action: action, Info: info, MapMD5: mapMD5, Mods: mods, Mode: mode, MapID: mapID}

	if beatmapID, ok := chat.ParseNP(info); ok {
		chat.RecordNP(sess, beatmapID, mapMD5, mods, mode)
	}

	d.Sessions.EnqueueAll(statsFrame(sess), map[int32]struct{}{sess.ID: {}})
	return nil
}

func (d Deps) logout(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	d.removeSession(sess)
	return nil
}

// removeSession tears a session out of every channel, any match or
// spectator group it belongs to, and the registry, then announces the
// departure. Called by the LOGOUT handler.
func (d Deps) removeSession(sess *session.BanchoSession) {
	for name := range sess.Channels {
		if ch, ok := d.Channels.Get(name); ok {
			ch.Leave(sess)
		}
	}
	if sess.SpectatorHostID != 0 {
		if host, ok := d.Sessions.GetByID(sess.SpectatorHostID); ok && d.Spectators != nil {
			d.Spectators.StopSpectating(host, sess)
		}
	}
	if sess.MatchID >= 0 && d.Matches != nil {
		if m, ok := d.Matches.Get(sess.MatchID); ok {
			if destroyed := m.Part(sess.ID); destroyed {
				d.Matches.Remove(sess.MatchID)
				if d.Channels != nil {
					d.Channels.Remove(m.ChatChannelName())
				}
			} else {
				m.EnqueueMatchState(d.Lobby, true)
			}
		}
	}
	d.Sessions.Remove(sess)
	d.Sessions.EnqueueAll(logoutFrame(sess.ID), nil)
}

func (d Deps) requestStatusUpdate(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	sess.Enqueue(append(presenceFrame(sess), statsFrame(sess)...))
	return nil
}

func (d Deps) ping(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	sess.Enqueue(packet.Build(packet.Pong, nil))
	return nil
}

func (d Deps) receiveUpdates(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	r := packet.NewReader(payload)
	v, err := r.ReadI32()
	if err != nil {
		return err
	}
	sess.PresenceFilter = uint8(v)
	return nil
}

func (d Deps) userStatsRequest(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	r := packet.NewReader(payload)
	ids, err := r.ReadI32List16()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if other, ok := d.Sessions.GetByID(id); ok {
			sess.Enqueue(statsFrame(other))
		}
	}
	return nil
}

func (d Deps) userPresenceRequest(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	r := packet.NewReader(payload)
	ids, err := r.ReadI32List16()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if other, ok := d.Sessions.GetByID(id); ok {
			sess.Enqueue(presenceFrame(other))
		}
	}
	return nil
}

func (d Deps) userPresenceRequestAll(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	for _, other := range d.Sessions.Unrestricted() {
		if other.ID == sess.ID {
			continue
		}
		sess.Enqueue(presenceFrame(other))
	}
	return nil
}

func (d Deps) friendAdd(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	r := packet.NewReader(payload)
	id, err := r.ReadI32()
	if err != nil {
		return err
	}
	sess.Friends[id] = struct{}{}
	if d.Store != nil {
		return d.Store.SetRelationship(ctx, ports.Relationship{User1ID: sess.ID, User2ID: id, Kind: ports.RelationshipFriend})
	}
	return nil
}

func (d Deps) friendRemove(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	r := packet.NewReader(payload)
	id, err := r.ReadI32()
	if err != nil {
		return err
	}
	delete(sess.Friends, id)
	if d.Store != nil {
		return d.Store.RemoveRelationship(ctx, sess.ID, id)
	}
	return nil
}

func (d Deps) setAwayMessage(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	r := packet.NewReader(payload)
	msg, err := packet.ReadMessage(r)
	if err != nil {
		return err
	}
	sess.AwayMessage = msg.Text
	return nil
}

func (d Deps) toggleBlockNonFriendDMs(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	sess.PMPrivate = !sess.PMPrivate
	return nil
}
