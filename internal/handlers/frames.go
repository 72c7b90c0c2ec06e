package handlers

import (
	"github.com/stlalpha/bancho3/internal/packet"
	"github.com/stlalpha/bancho3/internal/ports"
	"github.com/stlalpha/bancho3/internal/session"
)

func notifyFrame(msg string) []byte {
	w := packet.NewWriter()
	w.WriteString(msg)
	return packet.Build(packet.Notification, w.Bytes())
}

func logoutFrame(userID int32) []byte {
	w := packet.NewWriter()
	w.WriteI32(userID)
	w.WriteU8(0)
	return packet.Build(packet.UserLogout, w.Bytes())
}

func i32Frame(id uint16, v int32) []byte {
	w := packet.NewWriter()
	w.WriteI32(v)
	return packet.Build(id, w.Bytes())
}

func presenceFrame(sess *session.BanchoSession) []byte {
	w := packet.NewWriter()
	packet.Presence{
		UserID:           sess.ID,
		Name:             sess.Name,
		UTCOffset:        sess.UTCOffset,
		CountryCode:      ports.CountryCode(sess.Country),
		ClientPrivileges: uint8(ports.ToClient(sess.Privileges)),
		Mode:             sess.Status.Mode,
		Longitude:        float32(sess.Longitude),
		Latitude:         float32(sess.Latitude),
		GlobalRank:       0,
	}.Encode(w)
	return packet.Build(packet.UserPresence, w.Bytes())
}

func statsFrame(sess *session.BanchoSession) []byte {
	stats := sess.LastScores[sess.Status.Mode]
	w := packet.NewWriter()
	packet.Stats{
		UserID:      sess.ID,
		Action:      sess.Status.Action,
		InfoText:    sess.Status.Info,
		MapMD5:      sess.Status.MapMD5,
		Mods:        sess.Status.Mods,
		Mode:        sess.Status.Mode,
		MapID:       sess.Status.MapID,
		RankedScore: stats.RankedScore,
		Accuracy:    float32(stats.Accuracy) / 100,
		PlayCount:   stats.PlayCount,
		TotalScore:  stats.TotalScore,
		GlobalRank:  0,
		PP:          int16(stats.PerformancePoints),
	}.Encode(w)
	return packet.Build(packet.UserStats, w.Bytes())
}

func messageFrame(sender, text, target string, senderID int32) []byte {
	w := packet.NewWriter()
	packet.Message{Sender: sender, Text: text, Target: target, SenderID: senderID}.Encode(w)
	return packet.Build(packet.SendMessage, w.Bytes())
}

func channelJoinSuccessFrame(name string) []byte {
	w := packet.NewWriter()
	w.WriteString(name)
	return packet.Build(packet.ChannelJoinSuccess, w.Bytes())
}

func channelKickFrame(name string) []byte {
	w := packet.NewWriter()
	w.WriteString(name)
	return packet.Build(packet.ChannelKick, w.Bytes())
}

func friendsListFrame(friends map[int32]struct{}) []byte {
	ids := make([]int32, 0, len(friends))
	for id := range friends {
		ids = append(ids, id)
	}
	w := packet.NewWriter()
	w.WriteI32List16(ids)
	return packet.Build(packet.FriendsList, w.Bytes())
}

func dmBlockedFrame(sender, target string, senderID int32) []byte {
	w := packet.NewWriter()
	packet.Message{Sender: sender, Text: "", Target: target, SenderID: senderID}.Encode(w)
	return packet.Build(packet.UserDMBlocked, w.Bytes())
}

func matchFrame(id uint16, wire packet.Match) []byte {
	w := packet.NewWriter()
	wire.Encode(w)
	return packet.Build(id, w.Bytes())
}

func matchIDFrame(id uint16, matchID int32) []byte {
	return i32Frame(id, matchID)
}
