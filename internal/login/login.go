// Package login implements the Bancho login pipeline: parsing the
// three-line request body a bare (no osu-token) POST carries, validating
// the client, authenticating the account, and assembling the multi-frame
// welcome response the osu! client expects in return.
//
// The pipeline is structured as a numbered phase chain, grounded on the
// teacher's own multi-phase connection handler: each phase either advances
// the attempt or returns a terminal Result.
package login

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/stlalpha/bancho3/internal/channel"
	"github.com/stlalpha/bancho3/internal/config"
	"github.com/stlalpha/bancho3/internal/packet"
	"github.com/stlalpha/bancho3/internal/ports"
	"github.com/stlalpha/bancho3/internal/session"
)

// Failure ids, returned in the USER_ID packet's payload on a rejected login.
const (
	FailAuthentication    int32 = -1
	FailOldClient         int32 = -2
	FailBanned            int32 = -3
	FailBannedAlt         int32 = -4
	FailServerError       int32 = -5
	FailNeedsSupporter    int32 = -6
	FailPasswordReset     int32 = -7
	FailNeedsVerification int32 = -8
)

var versionPattern = regexp.MustCompile(`^b(?P<date>\d{8})(?:\.(?P<revision>\d+))?(?P<stream>beta|cuttingedge|tourney|dev)?$`)

// ClientVersion is the parsed version token from the third login line.
type ClientVersion struct {
	Date     string // YYYYMMDD
	Revision string
	Stream   string
}

func parseClientVersion(s string) (ClientVersion, bool) {
	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return ClientVersion{}, false
	}
	v := ClientVersion{Stream: "stable"}
	for i, name := range versionPattern.SubexpNames() {
		switch name {
		case "date":
			v.Date = m[i]
		case "revision":
			v.Revision = m[i]
		case "stream":
			if m[i] != "" {
				v.Stream = m[i]
			}
		}
	}
	return v, true
}

// Request is the parsed body of a login POST.
type Request struct {
	Username    string
	PasswordMD5 string
	Version     ClientVersion
	UTCOffset   int8
	DisplayCity bool
	PMPrivate   bool

	OsuPathMD5       string
	AdaptersRaw      string
	AdaptersMD5      string
	UninstallMD5     string
	DiskSignatureMD5 string
	RunningUnderWine bool
}

func parseRequest(body []byte) (Request, error) {
	lines := bytes.SplitN(body, []byte("\n"), 3)
	if len(lines) != 3 {
		return Request{}, fmt.Errorf("login: expected 3 body lines, got %d", len(lines))
	}

	remainder := strings.TrimRight(string(lines[2]), "\n")
	fields := strings.SplitN(remainder, "|", 5)
	if len(fields) != 5 {
		return Request{}, fmt.Errorf("login: malformed client info line")
	}
	versionStr, utcOffsetStr, displayCityStr, clientHashes, pmPrivateStr := fields[0], fields[1], fields[2], fields[3], fields[4]

	version, ok := parseClientVersion(versionStr)
	if !ok {
		return Request{}, errInvalidVersion
	}

	utcOffset, err := strconv.Atoi(utcOffsetStr)
	if err != nil {
		return Request{}, fmt.Errorf("login: bad utc offset %q: %w", utcOffsetStr, err)
	}

	hashes := strings.TrimSuffix(clientHashes, ":")
	hashParts := strings.SplitN(hashes, ":", 5)
	if len(hashParts) != 5 {
		return Request{}, fmt.Errorf("login: malformed client hash line")
	}

	adapters := hashParts[1]
	runningUnderWine := adapters == "runningunderwine"

	return Request{
		Username:         string(lines[0]),
		PasswordMD5:      string(lines[1]),
		Version:          version,
		UTCOffset:        int8(utcOffset),
		DisplayCity:      displayCityStr == "1",
		PMPrivate:        pmPrivateStr == "1",
		OsuPathMD5:       hashParts[0],
		AdaptersRaw:      adapters,
		AdaptersMD5:      hashParts[2],
		UninstallMD5:     hashParts[3],
		DiskSignatureMD5: hashParts[4],
		RunningUnderWine: runningUnderWine,
	}, nil
}

var errInvalidVersion = fmt.Errorf("login: unrecognized client version string")

// adaptersEmpty reports whether the trailing-dot-trimmed adapters string
// carries no real adapter entries.
func adaptersEmpty(raw string) bool {
	trimmed := strings.TrimSuffix(raw, ".")
	if trimmed == "" {
		return true
	}
	for _, a := range strings.Split(trimmed, ".") {
		if a != "" {
			return false
		}
	}
	return true
}

// VersionChecker optionally validates a client's build date against the
// upstream "recent builds" list for its stream. known=false means the
// upstream check itself could not be completed (e.g. the changelog API was
// unreachable), in which case the pipeline allows the client through.
type VersionChecker interface {
	Check(ctx context.Context, stream, date string) (allowed bool, known bool, err error)
}

// ClientRecord is one login attempt's reported client identity, used for
// hardware fingerprint bookkeeping. Kept as its own narrow port rather than
// folded into ports.Persistence, since fingerprint tracking is an optional
// deployment concern: a nil ClientRecorder simply skips it.
type ClientRecord struct {
	UserID           int32
	IP               string
	Stream           string
	Date             string
	OsuPathMD5       string
	AdaptersMD5      string
	UninstallMD5     string
	DiskSignatureMD5 string
	RunningUnderWine bool
	Time             time.Time
}

// ClientRecorder stores login/client-hash history and answers hardware
// fingerprint cross-reference queries.
type ClientRecorder interface {
	RecordLogin(ctx context.Context, rec ClientRecord) error
	MatchingUsers(ctx context.Context, rec ClientRecord) ([]ports.UserRecord, error)
}

// inactionableDiskSignatureMD5 is a disk signature some manufacturers share
// across every unit of a product line; a match against it is not
// actionable evidence of shared hardware.
var inactionableDiskSignatureMD5 = md5Hex("0")

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Dependencies bundles everything the pipeline needs beyond the request
// body itself.
type Dependencies struct {
	Sessions   *session.Registry
	Channels   *channel.Registry
	Store      ports.Persistence
	Geolocator ports.GeolocatorSource

	Versions VersionChecker  // nil: skip the upstream recent-builds check
	Clients  ClientRecorder  // nil: skip fingerprint recording and cross-reference

	Config    config.ServerConfig
	Templates config.Templates
	Log       *slog.Logger

	// FirstUserID is the numerically-first non-bot account; it is granted
	// full staff privileges the first time it ever logs in.
	FirstUserID int32

	// BotSnapshot, when non-nil, returns a precomputed presence+stats frame
	// for the bot account, refreshed periodically by housekeeping's
	// bot-status rotation job. A nil BotSnapshot falls back to encoding the
	// bot session live, the same as any other user.
	BotSnapshot func() []byte
}

// Result is the outcome of a login attempt.
type Result struct {
	Token   string
	Body    []byte
	Session *session.BanchoSession // non-nil only on success
}

// attempt carries one login's working state through the numbered phases.
type attempt struct {
	ctx  context.Context
	deps Dependencies
	ip   string
	req  Request
	user ports.UserRecord
	geo  ports.Geolocator
}

// Pipeline runs the full login flow against a raw request body and returns
// the frames to send back, a success-or-failure osu-token to report, and
// (on success) the newly registered session.
func Pipeline(ctx context.Context, deps Dependencies, body []byte, ip string) Result {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}

	req, err := parseRequest(body)
	if err != nil {
		deps.Log.Warn("login: malformed request", "err", err, "ip", ip)
		return failResult("invalid-request", FailAuthentication, "Please restart your osu! and try again.")
	}

	a := &attempt{ctx: ctx, deps: deps, ip: ip, req: req}

	// Phase 1: client version already parsed by parseRequest; nothing
	// further to validate here besides the stream value it normalized to.

	// Phase 2: optional upstream recent-builds check.
	if res, done := a.phase2VersionCheck(); done {
		return res
	}

	// Phase 3: adapters.
	if res, done := a.phase3Adapters(); done {
		return res
	}

	// Phase 4: existing session displacement.
	if res, done := a.phase4ExistingSession(); done {
		return res
	}

	// Phase 5: authenticate.
	if res, done := a.phase5Authenticate(); done {
		return res
	}

	// Phase 6: tourney stream privilege gate.
	if res, done := a.phase6TourneyGate(); done {
		return res
	}

	// Phase 7 & 8: record + cross-reference hardware fingerprints.
	if res, done := a.phase7and8Fingerprint(); done {
		return res
	}

	// Phase 9: geolocation.
	if res, done := a.phase9Geolocation(); done {
		return res
	}

	// Phase 10: build the session and the welcome response.
	return a.phase10BuildSession()
}

func failResult(token string, failID int32, notice string) Result {
	w := packet.NewWriter()
	w.WriteI32(failID)
	body := packet.Build(packet.UserID, w.Bytes())
	if notice != "" {
		body = append(notifyFrame(notice), body...)
	}
	return Result{Token: token, Body: body}
}

func notifyFrame(msg string) []byte {
	w := packet.NewWriter()
	w.WriteString(msg)
	return packet.Build(packet.Notification, w.Bytes())
}

func (a *attempt) phase2VersionCheck() (Result, bool) {
	if !a.deps.Config.EnforceChangelog || a.deps.Versions == nil {
		return Result{}, false
	}
	allowed, known, err := a.deps.Versions.Check(a.ctx, a.req.Version.Stream, a.req.Version.Date)
	if err != nil || !known {
		// Upstream check failed or had no opinion: allow through.
		return Result{}, false
	}
	if !allowed {
		w := packet.NewWriter()
		body := packet.Build(packet.VersionUpdate, w.Bytes())
		failW := packet.NewWriter()
		failW.WriteI32(FailOldClient)
		body = append(body, packet.Build(packet.UserID, failW.Bytes())...)
		return Result{Token: "client-too-old", Body: body}, true
	}
	return Result{}, false
}

func (a *attempt) phase3Adapters() (Result, bool) {
	if a.req.RunningUnderWine || !adaptersEmpty(a.req.AdaptersRaw) {
		return Result{}, false
	}
	return failResult("empty-adapters", FailAuthentication, "Please restart your osu! and try again."), true
}

func safeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

func (a *attempt) phase4ExistingSession() (Result, bool) {
	if a.req.Version.Stream == "tourney" {
		return Result{}, false
	}
	existing, ok := a.deps.Sessions.GetBySafeName(safeName(a.req.Username))
	if !ok {
		return Result{}, false
	}
	if time.Since(existing.LastReceive) < 10*time.Second {
		return failResult("user-already-logged-in", FailAuthentication, "User already logged in."), true
	}
	a.deps.Sessions.Remove(existing)
	return Result{}, false
}

func (a *attempt) phase5Authenticate() (Result, bool) {
	rec, err := a.deps.Store.UserBySafeName(a.ctx, safeName(a.req.Username))
	if err != nil {
		return failResult("incorrect-credentials", FailAuthentication, fmt.Sprintf("%s: Incorrect credentials", a.deps.Config.Domain)), true
	}

	if a.deps.Sessions.BcryptVerified(rec.PasswordBcrypt, a.req.PasswordMD5) {
		a.user = rec
		return Result{}, false
	}

	if err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordBcrypt), []byte(a.req.PasswordMD5)); err != nil {
		return failResult("incorrect-credentials", FailAuthentication, fmt.Sprintf("%s: Incorrect credentials", a.deps.Config.Domain)), true
	}
	a.deps.Sessions.RememberBcryptVerified(rec.PasswordBcrypt, a.req.PasswordMD5)
	a.user = rec
	return Result{}, false
}

func (a *attempt) phase6TourneyGate() (Result, bool) {
	if a.req.Version.Stream != "tourney" {
		return Result{}, false
	}
	if !a.user.Privileges.Has(ports.Donator) || !a.user.Privileges.Has(ports.Unrestricted) {
		return failResult("no", FailAuthentication, ""), true
	}
	return Result{}, false
}

func (a *attempt) phase7and8Fingerprint() (Result, bool) {
	if a.deps.Clients == nil {
		return Result{}, false
	}

	rec := ClientRecord{
		UserID:           a.user.ID,
		IP:               a.ip,
		Stream:           a.req.Version.Stream,
		Date:             a.req.Version.Date,
		OsuPathMD5:       a.req.OsuPathMD5,
		AdaptersMD5:      a.req.AdaptersMD5,
		UninstallMD5:     a.req.UninstallMD5,
		DiskSignatureMD5: a.req.DiskSignatureMD5,
		RunningUnderWine: a.req.RunningUnderWine,
		Time:             time.Now(),
	}
	if rec.DiskSignatureMD5 == inactionableDiskSignatureMD5 {
		rec.DiskSignatureMD5 = ""
	}

	if err := a.deps.Clients.RecordLogin(a.ctx, rec); err != nil {
		a.deps.Log.Error("login: failed to record client fingerprint", "err", err, "user", a.user.Name)
	}

	if a.user.Privileges.Has(ports.Verified) {
		// Already a known, verified account: fingerprint matches are
		// recorded for later moderation review but never block login.
		return Result{}, false
	}

	matches, err := a.deps.Clients.MatchingUsers(a.ctx, rec)
	if err != nil {
		a.deps.Log.Error("login: fingerprint cross-reference failed", "err", err, "user", a.user.Name)
		return Result{}, false
	}
	for _, m := range matches {
		if !m.Privileges.Has(ports.Unrestricted) {
			return failResult("contact-staff", FailAuthentication, "Please contact staff directly to create an account."), true
		}
	}
	return Result{}, false
}

func (a *attempt) phase9Geolocation() (Result, bool) {
	geo, err := a.deps.Geolocator.Locate(a.ctx, a.ip)
	if err != nil {
		return failResult("login-failed", FailAuthentication, fmt.Sprintf("%s: Login failed. Please contact an admin.", a.deps.Config.Domain)), true
	}
	a.geo = geo

	if strings.EqualFold(a.user.Country, "xx") && geo.Country != "" {
		a.user.Country = geo.Country
		if err := a.deps.Store.SaveUser(a.ctx, a.user); err != nil {
			a.deps.Log.Error("login: failed to fix xx country", "err", err, "user", a.user.Name)
		}
	}
	return Result{}, false
}

func (a *attempt) phase10BuildSession() Result {
	token := session.NewToken()
	sess := session.NewBanchoSession(a.user, token)
	sess.UTCOffset = a.req.UTCOffset
	sess.Country = a.user.Country
	sess.Latitude = a.geo.Latitude
	sess.Longitude = a.geo.Longitude
	sess.PMPrivate = a.req.PMPrivate
	sess.LastReceive = time.Now()

	firstLogin := !sess.Privileges.Has(ports.Verified)
	if firstLogin {
		sess.Privileges |= ports.Verified
		if sess.ID == a.deps.FirstUserID {
			sess.Privileges |= ports.Staff | ports.Nominator | ports.Whitelisted | ports.TourneyManager | ports.Donator | ports.Alumni
		}
		a.user.Privileges = sess.Privileges
		if err := a.deps.Store.SaveUser(a.ctx, a.user); err != nil {
			a.deps.Log.Error("login: failed to persist first-login privileges", "err", err, "user", a.user.Name)
		}
	}

	if rels, err := a.deps.Store.Relationships(a.ctx, sess.ID); err == nil {
		for _, r := range rels {
			switch r.Kind {
			case ports.RelationshipFriend:
				sess.Friends[r.User2ID] = struct{}{}
			case ports.RelationshipBlock:
				sess.Blocks[r.User2ID] = struct{}{}
			}
		}
	} else {
		a.deps.Log.Error("login: failed to load relationships", "err", err, "user", sess.Name)
	}

	var body []byte
	body = append(body, protocolVersionFrame(19)...)
	body = append(body, loginReplyFrame(sess.ID)...)
	body = append(body, banchoPrivilegesFrame(ports.ToClient(sess.Privileges)|ports.ClientSupporter)...)
	body = append(body, notifyFrame(a.deps.Templates.WelcomeNotification)...)

	for _, ch := range a.deps.Channels.Readable(sess.Privileges) {
		if !ch.AutoJoin || ch.RealName == "#lobby" {
			continue
		}
		frame := channelInfoFrame(ch.RealName, ch.Topic, ch.MemberCount())
		body = append(body, frame...)
		a.deps.Sessions.EnqueueAll(frame, nil)
	}
	body = append(body, channelInfoEndFrame()...)

	body = append(body, mainMenuIconFrame(a.deps.Config.MenuIconURL, a.deps.Config.MenuIconText)...)
	body = append(body, friendsListFrame(sess.Friends)...)
	body = append(body, silenceEndFrame(sess.SilenceEnd)...)

	ownPresence := presenceFrame(sess, a.deps.Config)
	ownStats := statsFrame(sess, a.user)
	own := append(append([]byte{}, ownPresence...), ownStats...)
	body = append(body, own...)

	restricted := !sess.Privileges.Has(ports.Unrestricted)
	sess.Restricted = restricted
	if !restricted {
		except := map[int32]struct{}{sess.ID: {}}
		a.deps.Sessions.EnqueueAll(own, except)

		for _, o := range a.deps.Sessions.All() {
			if !o.Privileges.Has(ports.Unrestricted) {
				continue
			}
			body = append(body, a.otherUserFrame(o)...)
		}

		body = append(body, a.unreadMailFrames(sess)...)

		if firstLogin {
			body = append(body, sendMessageFrame(a.botName(), a.deps.Templates.WelcomeChatMessage, sess.Name, a.deps.Config.BotUserID)...)
		}
	} else {
		for _, o := range a.deps.Sessions.Unrestricted() {
			body = append(body, a.otherUserFrame(o)...)
		}
		body = append(body, accountRestrictedFrame()...)
		body = append(body, sendMessageFrame(a.botName(), a.deps.Templates.RestrictedNotice+" "+a.deps.Templates.ContactStaffNotice, sess.Name, a.deps.Config.BotUserID)...)
	}

	a.deps.Sessions.Insert(sess)

	return Result{Token: token, Body: body, Session: sess}
}

func (a *attempt) botName() string {
	if b, ok := a.deps.Sessions.GetByID(a.deps.Config.BotUserID); ok {
		return b.Name
	}
	return "BanchoBot"
}

// otherUserFrame encodes o's presence+stats, using the precomputed bot
// snapshot when o is the configured bot account and one is available.
func (a *attempt) otherUserFrame(o *session.BanchoSession) []byte {
	if o.ID == a.deps.Config.BotUserID && a.deps.BotSnapshot != nil {
		if snap := a.deps.BotSnapshot(); snap != nil {
			return snap
		}
	}
	rec, err := a.deps.Store.UserByID(a.ctx, o.ID)
	if err != nil {
		rec = ports.UserRecord{}
	}
	return append(presenceFrame(o, a.deps.Config), statsFrame(o, rec)...)
}

func (a *attempt) unreadMailFrames(sess *session.BanchoSession) []byte {
	mail, err := a.deps.Store.PendingMail(a.ctx, sess.ID)
	if err != nil || len(mail) == 0 {
		return nil
	}
	sort.Slice(mail, func(i, j int) bool { return mail[i].Time.Before(mail[j].Time) })

	senderNames := make(map[int32]string)
	headered := make(map[int32]struct{})

	var out []byte
	for _, m := range mail {
		name, ok := senderNames[m.FromID]
		if !ok {
			if rec, err := a.deps.Store.UserByID(a.ctx, m.FromID); err == nil {
				name = rec.Name
			} else {
				name = "unknown"
			}
			senderNames[m.FromID] = name
		}

		if _, done := headered[m.FromID]; !done {
			out = append(out, sendMessageFrame(name, "Unread messages", sess.Name, m.FromID)...)
			headered[m.FromID] = struct{}{}
		}

		stamp := m.Time.Format("Mon Jan 2 @ 15:04")
		out = append(out, sendMessageFrame(name, fmt.Sprintf("[%s] %s", stamp, m.Body), sess.Name, m.FromID)...)
	}

	if err := a.deps.Store.MarkMailRead(a.ctx, sess.ID); err != nil {
		a.deps.Log.Error("login: failed to mark mail read", "err", err, "user", sess.Name)
	}
	return out
}

func protocolVersionFrame(v int32) []byte {
	w := packet.NewWriter()
	w.WriteI32(v)
	return packet.Build(packet.ProtocolVersion, w.Bytes())
}

func loginReplyFrame(id int32) []byte {
	w := packet.NewWriter()
	w.WriteI32(id)
	return packet.Build(packet.UserID, w.Bytes())
}

func banchoPrivilegesFrame(p ports.ClientPrivileges) []byte {
	w := packet.NewWriter()
	w.WriteI32(int32(p))
	return packet.Build(packet.Privileges, w.Bytes())
}

func channelInfoFrame(name, topic string, memberCount int) []byte {
	w := packet.NewWriter()
	packet.ChannelInfo{Name: name, Topic: topic, MemberCount: uint16(memberCount)}.Encode(w)
	return packet.Build(packet.ChannelInfo, w.Bytes())
}

func channelInfoEndFrame() []byte {
	return packet.Build(packet.ChannelInfoEnd, nil)
}

func mainMenuIconFrame(iconURL, onclickURL string) []byte {
	w := packet.NewWriter()
	w.WriteString(iconURL + "|" + onclickURL)
	return packet.Build(packet.MainMenuIcon, w.Bytes())
}

func friendsListFrame(friends map[int32]struct{}) []byte {
	ids := make([]int32, 0, len(friends))
	for id := range friends {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	w := packet.NewWriter()
	w.WriteI32List16(ids)
	return packet.Build(packet.FriendsList, w.Bytes())
}

func silenceEndFrame(silenceEnd time.Time) []byte {
	remaining := int32(0)
	if d := time.Until(silenceEnd); d > 0 {
		remaining = int32(d.Seconds())
	}
	w := packet.NewWriter()
	w.WriteI32(remaining)
	return packet.Build(packet.SilenceEnd, w.Bytes())
}

func presenceFrame(sess *session.BanchoSession, cfg config.ServerConfig) []byte {
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

func statsFrame(sess *session.BanchoSession, rec ports.UserRecord) []byte {
	stats := rec.Stats[sess.Status.Mode]
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

func sendMessageFrame(sender, text, target string, senderID int32) []byte {
	w := packet.NewWriter()
	packet.Message{Sender: sender, Text: text, Target: target, SenderID: senderID}.Encode(w)
	return packet.Build(packet.SendMessage, w.Bytes())
}

func accountRestrictedFrame() []byte {
	return packet.Build(packet.AccountRestricted, nil)
}
