package packet

import "fmt"

// Message is a chat payload: who sent it, the text, which channel or user
// it targets, and the sender's user id (redundant with the session that
// sent it, but part of the wire shape).
type Message struct {
	Sender   string
	Text     string
	Target   string
	SenderID int32
}

func (m Message) Encode(w *Writer) {
	w.WriteString(m.Sender)
	w.WriteString(m.Text)
	w.WriteString(m.Target)
	w.WriteI32(m.SenderID)
}

func ReadMessage(r *Reader) (Message, error) {
	var m Message
	var err error
	if m.Sender, err = r.ReadString(); err != nil {
		return m, err
	}
	if m.Text, err = r.ReadString(); err != nil {
		return m, err
	}
	if m.Target, err = r.ReadString(); err != nil {
		return m, err
	}
	if m.SenderID, err = r.ReadI32(); err != nil {
		return m, err
	}
	return m, nil
}

// ChannelInfo describes a channel for the channel listing broadcast.
type ChannelInfo struct {
	Name        string
	Topic       string
	MemberCount uint16
}

func (c ChannelInfo) Encode(w *Writer) {
	w.WriteString(c.Name)
	w.WriteString(c.Topic)
	w.WriteU16(c.MemberCount)
}

func ReadChannelInfo(r *Reader) (ChannelInfo, error) {
	var c ChannelInfo
	var err error
	if c.Name, err = r.ReadString(); err != nil {
		return c, err
	}
	if c.Topic, err = r.ReadString(); err != nil {
		return c, err
	}
	if c.MemberCount, err = r.ReadU16(); err != nil {
		return c, err
	}
	return c, nil
}

// Slot statuses a match slot can be in.
const (
	SlotOpen      uint8 = 1
	SlotLocked    uint8 = 2
	SlotNotReady  uint8 = 4
	SlotReady     uint8 = 8
	SlotNoMap     uint8 = 16
	SlotPlaying   uint8 = 32
	SlotComplete  uint8 = 64
	SlotQuit      uint8 = 128
)

// slotHasPlayer reports whether a slot status implies an occupant, and
// therefore carries a user id in the wire encoding.
func slotHasPlayer(status uint8) bool {
	return status&(SlotNotReady|SlotReady|SlotNoMap|SlotPlaying|SlotComplete) != 0
}

const matchSlotCount = 16

// Match is the full multiplayer lobby state broadcast in NewMatch/UpdateMatch.
type Match struct {
	ID          uint16
	InProgress  bool
	Mods        int32
	Name        string
	Password    string
	BeatmapName string
	BeatmapID   int32
	BeatmapMD5  string
	SlotStatus  [matchSlotCount]uint8
	SlotTeam    [matchSlotCount]uint8
	SlotUserID  [matchSlotCount]int32 // only slots with slotHasPlayer(status) are meaningful
	HostID      int32
	Mode        uint8
	WinCondition uint8
	TeamType    uint8
	FreeMods    bool
	SlotMods    [matchSlotCount]int32 // only encoded/decoded when FreeMods is set
	Seed        int32
}

func (m Match) Encode(w *Writer) {
	w.WriteU16(m.ID)
	w.WriteBool(m.InProgress)
	w.WriteU8(0) // reserved match-type byte
	w.WriteI32(m.Mods)
	w.WriteString(m.Name)
	w.WriteString(m.Password)
	w.WriteString(m.BeatmapName)
	w.WriteI32(m.BeatmapID)
	w.WriteString(m.BeatmapMD5)
	for _, s := range m.SlotStatus {
		w.WriteU8(s)
	}
	for _, t := range m.SlotTeam {
		w.WriteU8(t)
	}
	for i, s := range m.SlotStatus {
		if slotHasPlayer(s) {
			w.WriteI32(m.SlotUserID[i])
		}
	}
	w.WriteI32(m.HostID)
	w.WriteU8(m.Mode)
	w.WriteU8(m.WinCondition)
	w.WriteU8(m.TeamType)
	w.WriteBool(m.FreeMods)
	if m.FreeMods {
		for _, mod := range m.SlotMods {
			w.WriteI32(mod)
		}
	}
	w.WriteI32(m.Seed)
}

func ReadMatch(r *Reader) (Match, error) {
	var m Match
	var err error
	if m.ID, err = r.ReadU16(); err != nil {
		return m, err
	}
	if m.InProgress, err = r.ReadBool(); err != nil {
		return m, err
	}
	if _, err = r.ReadU8(); err != nil { // reserved match-type byte
		return m, err
	}
	if m.Mods, err = r.ReadI32(); err != nil {
		return m, err
	}
	if m.Name, err = r.ReadString(); err != nil {
		return m, err
	}
	if m.Password, err = r.ReadString(); err != nil {
		return m, err
	}
	if m.BeatmapName, err = r.ReadString(); err != nil {
		return m, err
	}
	if m.BeatmapID, err = r.ReadI32(); err != nil {
		return m, err
	}
	if m.BeatmapMD5, err = r.ReadString(); err != nil {
		return m, err
	}
	for i := range m.SlotStatus {
		if m.SlotStatus[i], err = r.ReadU8(); err != nil {
			return m, err
		}
	}
	for i := range m.SlotTeam {
		if m.SlotTeam[i], err = r.ReadU8(); err != nil {
			return m, err
		}
	}
	for i, s := range m.SlotStatus {
		if slotHasPlayer(s) {
			if m.SlotUserID[i], err = r.ReadI32(); err != nil {
				return m, err
			}
		}
	}
	if m.HostID, err = r.ReadI32(); err != nil {
		return m, err
	}
	if m.Mode, err = r.ReadU8(); err != nil {
		return m, err
	}
	if m.WinCondition, err = r.ReadU8(); err != nil {
		return m, err
	}
	if m.TeamType, err = r.ReadU8(); err != nil {
		return m, err
	}
	if m.FreeMods, err = r.ReadBool(); err != nil {
		return m, err
	}
	if m.FreeMods {
		for i := range m.SlotMods {
			if m.SlotMods[i], err = r.ReadI32(); err != nil {
				return m, err
			}
		}
	}
	if m.Seed, err = r.ReadI32(); err != nil {
		return m, err
	}
	return m, nil
}

// Scoreframe is a live in-progress score update, as sent during a match and
// embedded in replay frame bundles.
type Scoreframe struct {
	Time        int32
	ID          uint8
	Count300    uint16
	Count100    uint16
	Count50     uint16
	CountGeki   uint16
	CountKatu   uint16
	CountMiss   uint16
	TotalScore  int32
	CurrentCombo uint16
	MaxCombo    uint16
	Perfect     bool
	CurrentHP   uint8
	TagByte     uint8
	ScoreV2     bool
	ComboPortion    float64 // only present when ScoreV2
	BonusPortion    float64 // only present when ScoreV2
}

func (s Scoreframe) Encode(w *Writer) {
	w.WriteI32(s.Time)
	w.WriteU8(s.ID)
	w.WriteU16(s.Count300)
	w.WriteU16(s.Count100)
	w.WriteU16(s.Count50)
	w.WriteU16(s.CountGeki)
	w.WriteU16(s.CountKatu)
	w.WriteU16(s.CountMiss)
	w.WriteI32(s.TotalScore)
	w.WriteU16(s.CurrentCombo)
	w.WriteU16(s.MaxCombo)
	w.WriteBool(s.Perfect)
	w.WriteU8(s.CurrentHP)
	w.WriteU8(s.TagByte)
	w.WriteBool(s.ScoreV2)
	if s.ScoreV2 {
		w.WriteF64(s.ComboPortion)
		w.WriteF64(s.BonusPortion)
	}
}

func ReadScoreframe(r *Reader) (Scoreframe, error) {
	var s Scoreframe
	var err error
	if s.Time, err = r.ReadI32(); err != nil {
		return s, err
	}
	if s.ID, err = r.ReadU8(); err != nil {
		return s, err
	}
	if s.Count300, err = r.ReadU16(); err != nil {
		return s, err
	}
	if s.Count100, err = r.ReadU16(); err != nil {
		return s, err
	}
	if s.Count50, err = r.ReadU16(); err != nil {
		return s, err
	}
	if s.CountGeki, err = r.ReadU16(); err != nil {
		return s, err
	}
	if s.CountKatu, err = r.ReadU16(); err != nil {
		return s, err
	}
	if s.CountMiss, err = r.ReadU16(); err != nil {
		return s, err
	}
	if s.TotalScore, err = r.ReadI32(); err != nil {
		return s, err
	}
	if s.CurrentCombo, err = r.ReadU16(); err != nil {
		return s, err
	}
	if s.MaxCombo, err = r.ReadU16(); err != nil {
		return s, err
	}
	if s.Perfect, err = r.ReadBool(); err != nil {
		return s, err
	}
	if s.CurrentHP, err = r.ReadU8(); err != nil {
		return s, err
	}
	if s.TagByte, err = r.ReadU8(); err != nil {
		return s, err
	}
	if s.ScoreV2, err = r.ReadBool(); err != nil {
		return s, err
	}
	if s.ScoreV2 {
		if s.ComboPortion, err = r.ReadF64(); err != nil {
			return s, err
		}
		if s.BonusPortion, err = r.ReadF64(); err != nil {
			return s, err
		}
	}
	return s, nil
}

// ReplayFrame is a single spectator input sample.
type ReplayFrame struct {
	ButtonState uint8
	TaikoByte   uint8
	X           float32
	Y           float32
	Time        int32
}

func (f ReplayFrame) Encode(w *Writer) {
	w.WriteU8(f.ButtonState)
	w.WriteU8(f.TaikoByte)
	w.WriteF32(f.X)
	w.WriteF32(f.Y)
	w.WriteI32(f.Time)
}

func ReadReplayFrame(r *Reader) (ReplayFrame, error) {
	var f ReplayFrame
	var err error
	if f.ButtonState, err = r.ReadU8(); err != nil {
		return f, err
	}
	if f.TaikoByte, err = r.ReadU8(); err != nil {
		return f, err
	}
	if f.X, err = r.ReadF32(); err != nil {
		return f, err
	}
	if f.Y, err = r.ReadF32(); err != nil {
		return f, err
	}
	if f.Time, err = r.ReadI32(); err != nil {
		return f, err
	}
	return f, nil
}

// ReplayFrameBundle is the payload of SpectateFrames: a batch of replay
// frames plus a terminating scoreframe and the action that produced it.
//
// The bundle is retransmitted to fellow spectators byte-for-byte rather than
// re-encoded from decoded fields, so Raw retains the original bytes as
// received; the parsed fields exist for server-side bookkeeping (e.g.
// anticheat sampling) and are not relied on for retransmission.
type ReplayFrameBundle struct {
	Raw []byte

	ExtraInfo     int32
	Frames        []ReplayFrame
	ReplayAction  uint8
	Scoreframe    Scoreframe
	SequenceNum   uint16
}

func ReadReplayFrameBundle(r *Reader) (ReplayFrameBundle, error) {
	start := r.pos
	var b ReplayFrameBundle
	var err error

	if b.ExtraInfo, err = r.ReadI32(); err != nil {
		return b, err
	}
	count, err := r.ReadU16()
	if err != nil {
		return b, err
	}
	b.Frames = make([]ReplayFrame, count)
	for i := range b.Frames {
		if b.Frames[i], err = ReadReplayFrame(r); err != nil {
			return b, err
		}
	}
	if b.ReplayAction, err = r.ReadU8(); err != nil {
		return b, err
	}
	if b.Scoreframe, err = ReadScoreframe(r); err != nil {
		return b, err
	}
	if b.SequenceNum, err = r.ReadU16(); err != nil {
		return b, err
	}

	b.Raw = append([]byte(nil), r.buf[start:r.pos]...)
	return b, nil
}

// String renders a frame as its packet id and payload length, without
// dumping the payload itself.
func (f Frame) String() string {
	return fmt.Sprintf("packet{id=%d, len=%d}", f.ID, len(f.Payload))
}

// Stats is the USER_STATS payload: a user's current status plus ranked
// gameplay totals for whichever mode they're currently playing.
type Stats struct {
	UserID      int32
	Action      uint8
	InfoText    string
	MapMD5      string
	Mods        int32
	Mode        uint8
	MapID       int32
	RankedScore int64
	Accuracy    float32 // already divided by 100, i.e. 0.0-1.0
	PlayCount   int32
	TotalScore  int64
	GlobalRank  int32
	PP          int16
}

// Encode writes the USER_STATS payload, applying the client's pp/ranked-score
// overflow swap: a pp value above the client's int16 cap is displayed via
// ranked score instead, with pp reported as zero.
func (s Stats) Encode(w *Writer) {
	rankedScore := s.RankedScore
	pp := s.PP
	if pp > 0x7FFF {
		rankedScore = int64(pp)
		pp = 0
	}
	w.WriteI32(s.UserID)
	w.WriteU8(s.Action)
	w.WriteString(s.InfoText)
	w.WriteString(s.MapMD5)
	w.WriteI32(s.Mods)
	w.WriteU8(s.Mode)
	w.WriteI32(s.MapID)
	w.WriteI64(rankedScore)
	w.WriteF32(s.Accuracy)
	w.WriteI32(s.PlayCount)
	w.WriteI64(s.TotalScore)
	w.WriteI32(s.GlobalRank)
	w.WriteI16(pp)
}

// Presence is the USER_PRESENCE payload: identity, location, and the
// client-visible privilege/mode byte.
type Presence struct {
	UserID            int32
	Name              string
	UTCOffset         int8
	CountryCode       uint8 // numeric country id, not the ISO letters
	ClientPrivileges  uint8
	Mode              uint8
	Longitude         float32
	Latitude          float32
	GlobalRank        int32
}

func (p Presence) Encode(w *Writer) {
	w.WriteI32(p.UserID)
	w.WriteString(p.Name)
	w.WriteU8(uint8(p.UTCOffset + 24))
	w.WriteU8(p.CountryCode)
	w.WriteU8(p.ClientPrivileges | (p.Mode << 5))
	w.WriteF32(p.Longitude)
	w.WriteF32(p.Latitude)
	w.WriteI32(p.GlobalRank)
}
