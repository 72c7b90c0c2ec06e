package handlers

import (
	"context"
	"fmt"

	"github.com/stlalpha/bancho3/internal/match"
	"github.com/stlalpha/bancho3/internal/packet"
	"github.com/stlalpha/bancho3/internal/ports"
	"github.com/stlalpha/bancho3/internal/session"
)

// currentMatch returns sess's match, if it's in one.
func (d Deps) currentMatch(sess *session.BanchoSession) (*match.Match, bool) {
	if sess.MatchID < 0 || d.Matches == nil {
		return nil, false
	}
	return d.Matches.Get(sess.MatchID)
}

// broadcastMatchState sends UPDATE_MATCH to m's members and, when the lobby
// is populated, to the lobby too.
func (d Deps) broadcastMatchState(m *match.Match) {
	m.EnqueueMatchState(d.Lobby, true)
}

func (d Deps) joinLobby(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	if d.Lobby != nil {
		d.Lobby.Join(sess)
	}
	if d.Matches == nil {
		return nil
	}
	for _, m := range d.Matches.All() {
		sess.Enqueue(matchFrame(packet.NewMatch, m.Snapshot(false)))
	}
	return nil
}

func (d Deps) createMatch(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	r := packet.NewReader(payload)
	wire, err := packet.ReadMatch(r)
	if err != nil {
		return err
	}

	m, ok := d.Matches.Create(func(id int32) *match.Match {
		chName := fmt.Sprintf("#multi_%d", id)
		ch := d.Channels.CreateInstanced(ports.ChannelRecord{Name: chName})
		return match.New(id, wire.Name, wire.Password, wire.BeatmapName, wire.BeatmapID, wire.BeatmapMD5,
			sess.ID, wire.Mode, wire.Mods, match.WinCondition(wire.WinCondition), match.TeamType(wire.TeamType),
			wire.FreeMods, wire.Seed, ch)
	})
	if !ok {
		sess.Enqueue(matchIDFrame(packet.MatchJoinFail, 0))
		return nil
	}

	if res := m.Join(sess, sess.ID, wire.Password, sess.IsStaff()); res != match.JoinOK {
		d.Matches.Remove(m.ID)
		if res == match.JoinRestricted {
			sess.Enqueue(notifyFrame("Multiplayer is not available while restricted or silenced."))
		}
		sess.Enqueue(matchIDFrame(packet.MatchJoinFail, 0))
		return nil
	}
	sess.MatchID = m.ID
	sess.Enqueue(matchFrame(packet.MatchJoinSuccess, m.Snapshot(true)))
	if d.Lobby != nil {
		d.Lobby.Broadcast(matchFrame(packet.NewMatch, m.Snapshot(false)), nil)
	}
	return nil
}

func (d Deps) joinMatch(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	r := packet.NewReader(payload)
	matchID, err := r.ReadI32()
	if err != nil {
		return err
	}
	password, err := r.ReadString()
	if err != nil {
		return err
	}

	m, ok := d.Matches.Get(matchID)
	if !ok {
		sess.Enqueue(matchIDFrame(packet.MatchJoinFail, 0))
		return nil
	}

	if res := m.Join(sess, sess.ID, password, sess.IsStaff()); res != match.JoinOK {
		if res == match.JoinRestricted {
			sess.Enqueue(notifyFrame("Multiplayer is not available while restricted or silenced."))
		}
		sess.Enqueue(matchIDFrame(packet.MatchJoinFail, 0))
		return nil
	}

	sess.MatchID = matchID
	sess.Enqueue(matchFrame(packet.MatchJoinSuccess, m.Snapshot(true)))
	d.broadcastMatchState(m)
	return nil
}

func (d Deps) partMatch(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	m, ok := d.currentMatch(sess)
	if !ok {
		return nil
	}
	sess.MatchID = -1
	if destroyed := m.Part(sess.ID); destroyed {
		d.Matches.Remove(m.ID)
		d.Channels.Remove(m.ChatChannelName())
		if d.Lobby != nil {
			d.Lobby.Broadcast(matchIDFrame(packet.DisposeMatch, m.ID), nil)
		}
		return nil
	}
	d.broadcastMatchState(m)
	return nil
}

func (d Deps) matchChangeSlot(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	m, ok := d.currentMatch(sess)
	if !ok {
		return nil
	}
	r := packet.NewReader(payload)
	idx, err := r.ReadI32()
	if err != nil {
		return err
	}
	if m.MovePlayer(sess.ID, int(idx)) {
		d.broadcastMatchState(m)
	}
	return nil
}

func (d Deps) matchReady(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	m, ok := d.currentMatch(sess)
	if !ok {
		return nil
	}
	m.SetReady(sess.ID, true)
	d.broadcastMatchState(m)
	return nil
}

func (d Deps) matchNotReady(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	m, ok := d.currentMatch(sess)
	if !ok {
		return nil
	}
	m.SetReady(sess.ID, false)
	d.broadcastMatchState(m)
	return nil
}

func (d Deps) matchLock(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	m, ok := d.currentMatch(sess)
	if !ok || (!m.IsHost(sess.ID) && !sess.IsStaff()) {
		return nil
	}
	r := packet.NewReader(payload)
	idx, err := r.ReadI32()
	if err != nil {
		return err
	}
	kicked, changed := m.ToggleLock(int(idx))
	if !changed {
		return nil
	}
	if kicked != 0 {
		if kickedSess, ok := d.Sessions.GetByID(kicked); ok {
			kickedSess.MatchID = -1
			m.Chat.Leave(kickedSess)
		}
	}
	d.broadcastMatchState(m)
	return nil
}

func (d Deps) matchChangeSettings(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	m, ok := d.currentMatch(sess)
	if !ok || (!m.IsHost(sess.ID) && !sess.IsStaff()) {
		return nil
	}
	r := packet.NewReader(payload)
	wire, err := packet.ReadMatch(r)
	if err != nil {
		return err
	}
	m.ApplySettings(wire.Name, wire.Password, wire.Mode, match.WinCondition(wire.WinCondition), match.TeamType(wire.TeamType))
	m.SetFreeMods(wire.FreeMods)
	if wire.BeatmapID != m.MapID || wire.BeatmapMD5 != m.MapMD5 {
		m.ChangeMap(wire.BeatmapID, wire.BeatmapMD5, wire.BeatmapName)
	}
	d.broadcastMatchState(m)
	return nil
}

func (d Deps) matchChangePassword(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	m, ok := d.currentMatch(sess)
	if !ok || (!m.IsHost(sess.ID) && !sess.IsStaff()) {
		return nil
	}
	r := packet.NewReader(payload)
	wire, err := packet.ReadMatch(r)
	if err != nil {
		return err
	}
	m.SetPassword(wire.Password)
	m.SendToMatch(notifyFrame("The match password has changed."), nil)
	d.broadcastMatchState(m)
	return nil
}

func (d Deps) matchStart(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	m, ok := d.currentMatch(sess)
	if !ok || (!m.IsHost(sess.ID) && !sess.IsStaff()) {
		return nil
	}
	immuneIDs := m.Start()
	immune := make(map[int32]struct{}, len(immuneIDs))
	for _, id := range immuneIDs {
		immune[id] = struct{}{}
	}
	m.ResetLoaded()
	m.ResetSkipped()
	d.broadcastMatchState(m)
	m.SendToMatch(matchFrame(packet.SMatchStart, m.Snapshot(true)), immune)
	return nil
}

func (d Deps) matchScoreUpdate(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	m, ok := d.currentMatch(sess)
	if !ok {
		return nil
	}
	m.SendToMatch(packet.Build(packet.SMatchScoreUpdate, payload), map[int32]struct{}{sess.ID: {}})
	return nil
}

func (d Deps) matchComplete(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	m, ok := d.currentMatch(sess)
	if !ok {
		return nil
	}
	idx := m.SlotIndexOf(sess.ID)
	m.SendToMatch(i32Frame(packet.SMatchComplete, int32(idx)), nil)
	if m.CompletePlayer(sess.ID) {
		m.FinishRound()
		m.ResetLoaded()
		m.ResetSkipped()
		d.broadcastMatchState(m)
	}
	return nil
}

func (d Deps) matchChangeMods(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	m, ok := d.currentMatch(sess)
	if !ok {
		return nil
	}
	r := packet.NewReader(payload)
	mods, err := r.ReadI32()
	if err != nil {
		return err
	}
	if m.FreeMods {
		if !m.SetSlotMods(sess.ID, mods) {
			return nil
		}
	} else {
		if !m.IsHost(sess.ID) && !sess.IsStaff() {
			return nil
		}
		m.SetMods(mods)
	}
	d.broadcastMatchState(m)
	return nil
}

func (d Deps) matchLoadComplete(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	m, ok := d.currentMatch(sess)
	if !ok {
		return nil
	}
	if m.MarkLoaded(sess.ID) {
		m.SendToMatch(packet.Build(packet.MatchAllPlayersLoaded, nil), nil)
	}
	return nil
}

func (d Deps) matchNoBeatmap(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	m, ok := d.currentMatch(sess)
	if !ok {
		return nil
	}
	m.SetHasBeatmap(sess.ID, false)
	d.broadcastMatchState(m)
	return nil
}

func (d Deps) matchHasBeatmap(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	m, ok := d.currentMatch(sess)
	if !ok {
		return nil
	}
	m.SetHasBeatmap(sess.ID, true)
	d.broadcastMatchState(m)
	return nil
}

func (d Deps) matchFailed(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	m, ok := d.currentMatch(sess)
	if !ok {
		return nil
	}
	idx := m.SlotIndexOf(sess.ID)
	m.SendToMatch(i32Frame(packet.MatchPlayerFailed, int32(idx)), nil)
	return nil
}

func (d Deps) matchSkipRequest(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	m, ok := d.currentMatch(sess)
	if !ok {
		return nil
	}
	m.SendToMatch(i32Frame(packet.MatchPlayerSkipped, sess.ID), nil)
	if m.MarkSkipped(sess.ID) {
		m.SendToMatch(packet.Build(packet.MatchSkip, nil), nil)
	}
	return nil
}

func (d Deps) matchTransferHost(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	m, ok := d.currentMatch(sess)
	if !ok || (!m.IsHost(sess.ID) && !sess.IsStaff()) {
		return nil
	}
	r := packet.NewReader(payload)
	idx, err := r.ReadI32()
	if err != nil {
		return err
	}
	if !m.TransferHost(int(idx)) {
		return nil
	}
	m.SendToMatch(packet.Build(packet.SMatchTransferHost, nil), nil)
	d.broadcastMatchState(m)
	return nil
}

func (d Deps) matchChangeTeam(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	m, ok := d.currentMatch(sess)
	if !ok {
		return nil
	}
	m.ToggleTeam(sess.ID)
	d.broadcastMatchState(m)
	return nil
}

func (d Deps) matchInvite(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	m, ok := d.currentMatch(sess)
	if !ok {
		return nil
	}
	r := packet.NewReader(payload)
	targetID, err := r.ReadI32()
	if err != nil {
		return err
	}
	target, ok := d.Sessions.GetByID(targetID)
	if !ok {
		return nil
	}
	wire := m.Snapshot(true)
	link := fmt.Sprintf("Come join my multiplayer match: [osump://%d/%s %s]", wire.ID, wire.Password, wire.Name)
	target.Enqueue(messageFrame(sess.Name, link, target.Name, sess.ID))
	return nil
}

func (d Deps) tourneyMatchInfoRequest(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	r := packet.NewReader(payload)
	matchID, err := r.ReadI32()
	if err != nil {
		return err
	}
	m, ok := d.Matches.Get(matchID)
	if !ok {
		return nil
	}
	sess.Enqueue(matchFrame(packet.UpdateMatch, m.Snapshot(false)))
	return nil
}

func (d Deps) tourneyJoinMatchChannel(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	r := packet.NewReader(payload)
	matchID, err := r.ReadI32()
	if err != nil {
		return err
	}
	m, ok := d.Matches.Get(matchID)
	if !ok {
		return nil
	}
	m.AddTourneyObserver(sess.ID)
	m.Chat.Join(sess)
	sess.Channels[m.ChatChannelName()] = struct{}{}
	sess.Enqueue(matchFrame(packet.UpdateMatch, m.Snapshot(true)))
	return nil
}

func (d Deps) tourneyLeaveMatchChannel(ctx context.Context, sess *session.BanchoSession, payload []byte) error {
	r := packet.NewReader(payload)
	matchID, err := r.ReadI32()
	if err != nil {
		return err
	}
	m, ok := d.Matches.Get(matchID)
	if !ok {
		return nil
	}
	m.RemoveTourneyObserver(sess.ID)
	m.Chat.Leave(sess)
	delete(sess.Channels, m.ChatChannelName())
	return nil
}
