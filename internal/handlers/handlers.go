// Package handlers wires every client packet id to the logic packages that
// already implement its behavior (chat, channel, match, spectator, session),
// producing the map banchohttp.Server dispatches against.
package handlers

import (
	"context"
	"log/slog"

	"github.com/stlalpha/bancho3/internal/banchohttp"
	"github.com/stlalpha/bancho3/internal/chat"
	"github.com/stlalpha/bancho3/internal/channel"
	"github.com/stlalpha/bancho3/internal/match"
	"github.com/stlalpha/bancho3/internal/packet"
	"github.com/stlalpha/bancho3/internal/ports"
	"github.com/stlalpha/bancho3/internal/session"
	"github.com/stlalpha/bancho3/internal/spectator"
)

// Deps bundles every component a handler might need to touch.
type Deps struct {
	Sessions   *session.Registry
	Channels   *channel.Registry
	Matches    *match.Table
	Spectators *spectator.Manager
	Store      ports.Persistence
	Chat       *chat.Router
	Log        *slog.Logger

	// Lobby is the static #lobby channel, used to mirror UPDATE_MATCH to
	// anyone browsing the multiplayer lobby list without having joined a
	// match channel.
	Lobby *channel.Channel
}

func (d Deps) log() *slog.Logger {
	if d.Log == nil {
		return slog.Default()
	}
	return d.Log
}

// Build returns the full packet id -> entry map for a banchohttp.Server.
// An id not present here is silently ignored by the transport, matching
// the original's "unhandled packets are ignored" behavior.
func Build(d Deps) map[uint16]banchohttp.HandlerEntry {
	m := map[uint16]banchohttp.HandlerEntry{}

	// Session lifecycle and presence, all restricted-allowed.
	m[packet.ChangeAction] = banchohttp.HandlerEntry{Handler: d.changeAction, RestrictedAllowed: true}
	m[packet.Logout] = banchohttp.HandlerEntry{Handler: d.logout, RestrictedAllowed: true}
	m[packet.RequestStatusUpdate] = banchohttp.HandlerEntry{Handler: d.requestStatusUpdate, RestrictedAllowed: true}
	m[packet.Ping] = banchohttp.HandlerEntry{Handler: d.ping, RestrictedAllowed: true}
	m[packet.ReceiveUpdates] = banchohttp.HandlerEntry{Handler: d.receiveUpdates, RestrictedAllowed: true}
	m[packet.UserStatsRequest] = banchohttp.HandlerEntry{Handler: d.userStatsRequest, RestrictedAllowed: true}
	m[packet.UserPresenceRequest] = banchohttp.HandlerEntry{Handler: d.userPresenceRequest, RestrictedAllowed: true}
	m[packet.UserPresenceRequestAll] = banchohttp.HandlerEntry{Handler: d.userPresenceRequestAll, RestrictedAllowed: true}
	m[packet.ErrorReport] = banchohttp.HandlerEntry{Handler: d.ignore, RestrictedAllowed: true}
	m[packet.IRCOnly] = banchohttp.HandlerEntry{Handler: d.ignore, RestrictedAllowed: true}

	m[packet.FriendAdd] = banchohttp.HandlerEntry{Handler: d.friendAdd}
	m[packet.FriendRemove] = banchohttp.HandlerEntry{Handler: d.friendRemove}
	m[packet.SetAwayMessage] = banchohttp.HandlerEntry{Handler: d.setAwayMessage}
	m[packet.ToggleBlockNonFriendDMs] = banchohttp.HandlerEntry{Handler: d.toggleBlockNonFriendDMs}

	// Chat.
	m[packet.SendPublicMessage] = banchohttp.HandlerEntry{Handler: d.sendPublicMessage}
	m[packet.SendPrivateMessage] = banchohttp.HandlerEntry{Handler: d.sendPrivateMessage}
	m[packet.ChannelJoin] = banchohttp.HandlerEntry{Handler: d.channelJoin, RestrictedAllowed: true}
	m[packet.ChannelPart] = banchohttp.HandlerEntry{Handler: d.channelPart, RestrictedAllowed: true}
	m[packet.BeatmapInfoRequest] = banchohttp.HandlerEntry{Handler: d.ignore}

	// Spectating.
	m[packet.StartSpectating] = banchohttp.HandlerEntry{Handler: d.startSpectating}
	m[packet.StopSpectating] = banchohttp.HandlerEntry{Handler: d.stopSpectating}
	m[packet.SpectateFrames] = banchohttp.HandlerEntry{Handler: d.spectateFrames}
	m[packet.CantSpectate] = banchohttp.HandlerEntry{Handler: d.cantSpectate}

	// Multiplayer lobby and match state.
	m[packet.JoinLobby] = banchohttp.HandlerEntry{Handler: d.joinLobby}
	m[packet.PartLobby] = banchohttp.HandlerEntry{Handler: d.ignore}
	m[packet.CreateMatch] = banchohttp.HandlerEntry{Handler: d.createMatch}
	m[packet.JoinMatch] = banchohttp.HandlerEntry{Handler: d.joinMatch}
	m[packet.PartMatch] = banchohttp.HandlerEntry{Handler: d.partMatch}
	m[packet.MatchChangeSlot] = banchohttp.HandlerEntry{Handler: d.matchChangeSlot}
	m[packet.MatchReady] = banchohttp.HandlerEntry{Handler: d.matchReady}
	m[packet.MatchNotReady] = banchohttp.HandlerEntry{Handler: d.matchNotReady}
	m[packet.MatchLock] = banchohttp.HandlerEntry{Handler: d.matchLock}
	m[packet.MatchChangeSettings] = banchohttp.HandlerEntry{Handler: d.matchChangeSettings}
	m[packet.MatchChangePassword] = banchohttp.HandlerEntry{Handler: d.matchChangePassword}
	m[packet.MatchStart] = banchohttp.HandlerEntry{Handler: d.matchStart}
	m[packet.MatchScoreUpdate] = banchohttp.HandlerEntry{Handler: d.matchScoreUpdate}
	m[packet.MatchComplete] = banchohttp.HandlerEntry{Handler: d.matchComplete}
	m[packet.MatchChangeMods] = banchohttp.HandlerEntry{Handler: d.matchChangeMods}
	m[packet.MatchLoadComplete] = banchohttp.HandlerEntry{Handler: d.matchLoadComplete}
	m[packet.MatchNoBeatmap] = banchohttp.HandlerEntry{Handler: d.matchNoBeatmap}
	m[packet.MatchHasBeatmap] = banchohttp.HandlerEntry{Handler: d.matchHasBeatmap}
	m[packet.MatchFailed] = banchohttp.HandlerEntry{Handler: d.matchFailed}
	m[packet.MatchSkipRequest] = banchohttp.HandlerEntry{Handler: d.matchSkipRequest}
	m[packet.MatchTransferHost] = banchohttp.HandlerEntry{Handler: d.matchTransferHost}
	m[packet.MatchChangeTeam] = banchohttp.HandlerEntry{Handler: d.matchChangeTeam}
	m[packet.MatchInvite] = banchohttp.HandlerEntry{Handler: d.matchInvite}
	m[packet.TourneyMatchInfoRequest] = banchohttp.HandlerEntry{Handler: d.tourneyMatchInfoRequest}
	m[packet.TourneyJoinMatchChannel] = banchohttp.HandlerEntry{Handler: d.tourneyJoinMatchChannel}
	m[packet.TourneyLeaveMatchChannel] = banchohttp.HandlerEntry{Handler: d.tourneyLeaveMatchChannel}

	return m
}

func (d Deps) ignore(_ context.Context, _ *session.BanchoSession, _ []byte) error { return nil }
