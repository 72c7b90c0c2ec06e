package handlers

import (
	"context"

	"github.com/stlalpha/bancho3/internal/packet"
	"github.com/stlalpha/bancho3/internal/session"
)

func (d Deps) startSpectating(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	r := packet.NewReader(payload)
	hostID, err := r.ReadI32()
	if err != nil {
		return err
	}
	host, ok := d.Sessions.GetByID(hostID)
	if !ok {
		return nil
	}
	if sess.SpectatorHostID != 0 {
		if prev, ok := d.Sessions.GetByID(sess.SpectatorHostID); ok {
			d.Spectators.StopSpectating(prev, sess)
		}
	}
	sess.SpectatorHostID = hostID
	d.Spectators.StartSpectating(host, sess, sess.Stealth)
	host.Enqueue(statsFrame(sess))
	host.Enqueue(presenceFrame(sess))
	return nil
}

func (d Deps) stopSpectating(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	if sess.SpectatorHostID == 0 {
		return nil
	}
	host, ok := d.Sessions.GetByID(sess.SpectatorHostID)
	sess.SpectatorHostID = 0
	if !ok {
		return nil
	}
	d.Spectators.StopSpectating(host, sess)
	return nil
}

func (d Deps) spectateFrames(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	d.Spectators.RelayFrames(sess, payload)
	return nil
}

func (d Deps) cantSpectate(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	if sess.SpectatorHostID == 0 {
		return nil
	}
	host, ok := d.Sessions.GetByID(sess.SpectatorHostID)
	if !ok {
		return nil
	}
	host.Enqueue(i32Frame(packet.SpectatorCantSpectate, sess.ID))
	return nil
}
