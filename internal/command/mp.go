package command

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/stlalpha/bancho3/internal/channel"
	"github.com/stlalpha/bancho3/internal/match"
	"github.com/stlalpha/bancho3/internal/packet"
	"github.com/stlalpha/bancho3/internal/ports"
)

// MultiplayerDeps bundles what the mp subcommand set needs beyond the match
// itself, which it reaches through Context.Match (see matchOf).
type MultiplayerDeps struct {
	// Lobby mirrors UPDATE_MATCH to the multiplayer lobby list on any
	// state change the mp commands cause, matching internal/handlers'
	// own broadcastMatchState behavior.
	Lobby *channel.Channel
	Store ports.Persistence
	Log   *slog.Logger
}

func (d MultiplayerDeps) log() *slog.Logger {
	if d.Log == nil {
		return slog.Default()
	}
	return d.Log
}

// matchOf recovers the concrete *match.Match behind ctx.Match. MultiplayerGate
// has already verified ctx.Match is non-nil and resolves to the sender's own
// match before any mp subcommand runs.
func matchOf(ctx Context) (*match.Match, bool) {
	m, ok := ctx.Match.(*match.Match)
	return m, ok && m != nil
}

func mpStartFrame(m *match.Match) []byte {
	w := packet.NewWriter()
	m.Snapshot(true).Encode(w)
	return packet.Build(packet.SMatchStart, w.Bytes())
}

// RegisterMultiplayer builds the `mp` subcommand set and registers it, via
// NestedCommand and MultiplayerGate, against r. Driven directly from
// internal/match's start-timer, scrim and rematch machinery, matching the
// original's mp_start/mp_abort/mp_scrim/mp_endscrim/mp_rematch/mp_loadpool
// family.
func RegisterMultiplayer(r *Registry, deps MultiplayerDeps) {
	mp := NewRegistry("mp", deps.log())
	mp.MatchLookup = r.MatchLookup

	mp.Register(Command{
		Triggers: []string{"help"},
		Doc:      "Lists available match commands.",
		Run: func(ctx Context) Response {
			lines := []string{"Available match commands:"}
			for _, c := range mp.Visible(ctx.Sender.Privileges) {
				lines = append(lines, fmt.Sprintf("!mp %s - %s", c.Triggers[0], c.Doc))
			}
			return Response{Text: strings.Join(lines, "\n"), Hidden: true}
		},
	})

	mp.Register(Command{
		Triggers: []string{"start"},
		Doc:      "!mp start [force|cancel|<seconds>] - start the match, or arm/cancel a start timer.",
		Run:      deps.mpStart,
	})

	mp.Register(Command{
		Triggers: []string{"abort"},
		Doc:      "Aborts the match in progress.",
		Run:      deps.mpAbort,
	})

	mp.Register(Command{
		Triggers: []string{"scrim"},
		Doc:      "!mp scrim <bo#> - start (or, with bo0, cancel) a scrim requiring an odd best-of count.",
		Run:      deps.mpScrim,
	})

	mp.Register(Command{
		Triggers: []string{"endscrim", "end"},
		Doc:      "Ends the current scrim and clears its points, bans and winner history.",
		Run:      deps.mpEndScrim,
	})

	mp.Register(Command{
		Triggers: []string{"rematch", "rm"},
		Doc:      "Deducts the last scrim point and offers a rematch, or restarts a just-ended scrim.",
		Run:      deps.mpRematch,
	})

	mp.Register(Command{
		Triggers: []string{"loadpool", "lp"},
		Doc:      "!mp loadpool <id> - attach a tourney mappool to this match.",
		Run:      deps.mpLoadPool,
	})

	mp.Register(Command{
		Triggers: []string{"unloadpool", "ulp"},
		Doc:      "Detaches the match's currently loaded mappool.",
		Run:      deps.mpUnloadPool,
	})

	mp.Register(Command{
		Triggers: []string{"pick"},
		Doc:      "!mp pick <mods><slot> - select a map from the loaded pool, e.g. !mp pick HD2.",
		Run:      deps.mpPick,
	})

	r.Register(NestedCommand("mp", ports.Unrestricted, "Multiplayer match commands. !mp help for the full list.", mp, "help", MultiplayerGate))
}

func (d MultiplayerDeps) mpStart(ctx Context) Response {
	m, ok := matchOf(ctx)
	if !ok {
		return Response{Text: "You are not in a match."}
	}
	if len(ctx.Args) > 1 {
		return Response{Text: "Invalid syntax: !mp start <force/cancel/seconds>"}
	}

	if len(ctx.Args) == 0 {
		if m.Starting() {
			return Response{Text: "A start timer is already running."}
		}
		for i := range m.Slots {
			if m.Slots[i].Status == packet.SlotNotReady {
				return Response{Text: "Not all players are ready (`!mp start force` to override)."}
			}
		}
		return d.fireStart(m)
	}

	switch arg := ctx.Args[0]; {
	case arg == "force" || arg == "f":
		return d.fireStart(m)
	case arg == "cancel" || arg == "c":
		if !m.CancelStartTimer() {
			return Response{Text: "Match timer not active!"}
		}
		return Response{Text: "Match timer cancelled."}
	default:
		seconds, err := strconv.Atoi(arg)
		if err != nil || seconds <= 0 || seconds > 300 {
			return Response{Text: "Timer range is 1-300 seconds."}
		}
		if m.Starting() {
			return Response{Text: "A start timer is already running."}
		}
		requestedBy := ctx.Sender.ID
		armed := m.ArmStartTimer(seconds, requestedBy, func() {
			d.onStartFire(m)
		}, func(secondsLeft int) {
			m.SendToMatch(notifyFrame(fmt.Sprintf("Match starting in %d seconds.", secondsLeft)), nil)
		})
		if !armed {
			return Response{Text: "Timer range is 1-300 seconds."}
		}
		return Response{Text: fmt.Sprintf("Match will start in %d seconds.", seconds)}
	}
}

// fireStart starts the match immediately, matching !mp start/force.
func (d MultiplayerDeps) fireStart(m *match.Match) Response {
	d.onStartFire(m)
	return Response{Text: "Good luck!"}
}

// onStartFire performs the actual slot transition and broadcast, shared by
// an immediate start and a timer's fire callback.
func (d MultiplayerDeps) onStartFire(m *match.Match) {
	immuneIDs := m.Start()
	immune := make(map[int32]struct{}, len(immuneIDs))
	for _, id := range immuneIDs {
		immune[id] = struct{}{}
	}
	m.ResetLoaded()
	m.ResetSkipped()
	m.EnqueueMatchState(d.Lobby, true)
	m.SendToMatch(mpStartFrame(m), immune)
}

func (d MultiplayerDeps) mpAbort(ctx Context) Response {
	m, ok := matchOf(ctx)
	if !ok {
		return Response{Text: "You are not in a match."}
	}
	if !m.InProgress {
		return Response{Text: "Abort what?"}
	}
	m.FinishRound()
	m.ResetLoaded()
	m.ResetSkipped()
	m.SendToMatch(packet.Build(packet.MatchAbort, nil), nil)
	m.EnqueueMatchState(d.Lobby, true)
	return Response{Text: "Match aborted."}
}

func (d MultiplayerDeps) mpScrim(ctx Context) Response {
	m, ok := matchOf(ctx)
	if !ok {
		return Response{Text: "You are not in a match."}
	}
	if len(ctx.Args) != 1 {
		return Response{Text: "Invalid syntax: !mp scrim <bo#>"}
	}
	bestOf, err := strconv.Atoi(strings.TrimPrefix(strings.ToLower(ctx.Args[0]), "bo"))
	if err != nil || bestOf < 0 || bestOf >= 16 {
		return Response{Text: "Invalid syntax: !mp scrim <bo#>"}
	}
	if bestOf == 0 {
		if m.Scrim == nil || !m.Scrim.Active {
			return Response{Text: "Not currently scrimming!"}
		}
		m.EndScrim()
		m.ResetScrimState()
		return Response{Text: "Scrimming cancelled."}
	}
	if m.Scrim != nil && m.Scrim.Active {
		return Response{Text: "Already scrimming!"}
	}
	if bestOf%2 == 0 {
		return Response{Text: "Best of must be an odd number!"}
	}
	if err := m.StartScrim(bestOf, false); err != nil {
		return Response{Text: "Best of must be an odd number!"}
	}
	winningPts := bestOf/2 + 1
	return Response{Text: fmt.Sprintf("A scrimmage has been started by %s; first to %d points wins. Best of luck!", ctx.Sender.Name, winningPts)}
}

func (d MultiplayerDeps) mpEndScrim(ctx Context) Response {
	m, ok := matchOf(ctx)
	if !ok {
		return Response{Text: "You are not in a match."}
	}
	if m.Scrim == nil || !m.Scrim.Active {
		return Response{Text: "Not currently scrimming!"}
	}
	m.EndScrim()
	m.ResetScrimState()
	return Response{Text: "Scrimmage ended."}
}

func (d MultiplayerDeps) mpRematch(ctx Context) Response {
	m, ok := matchOf(ctx)
	if !ok {
		return Response{Text: "You are not in a match."}
	}
	if len(ctx.Args) != 0 {
		return Response{Text: "Invalid syntax: !mp rematch"}
	}
	if !m.IsHost(ctx.Sender.ID) {
		return Response{Text: "Only available to the host."}
	}

	if m.Scrim == nil || !m.Scrim.Active {
		if m.Scrim == nil || m.Scrim.TargetPoints == 0 {
			return Response{Text: "No scrim to rematch; to start one, use !mp scrim."}
		}
		target := m.Scrim.TargetPoints
		if err := m.StartScrim(2*target-1, m.Scrim.UsePPScoring); err != nil {
			return Response{Text: "No scrim to rematch; to start one, use !mp scrim."}
		}
		return Response{Text: fmt.Sprintf("A rematch has been started by %s; first to %d points wins. Best of luck!", ctx.Sender.Name, target)}
	}

	if len(m.Scrim.Winners) == 0 {
		return Response{Text: "No match points have yet been awarded!"}
	}
	m.Rematch()
	return Response{Text: "A point has been deducted from the last round's winner."}
}

func (d MultiplayerDeps) mpLoadPool(ctx Context) Response {
	m, ok := matchOf(ctx)
	if !ok {
		return Response{Text: "You are not in a match."}
	}
	if len(ctx.Args) != 1 {
		return Response{Text: "Invalid syntax: !mp loadpool <id>"}
	}
	if !m.IsHost(ctx.Sender.ID) {
		return Response{Text: "Only available to the host."}
	}
	if d.Store == nil {
		return Response{Text: "No pool store is wired for this deployment."}
	}
	id, err := strconv.Atoi(ctx.Args[0])
	if err != nil {
		return Response{Text: "Invalid syntax: !mp loadpool <id>"}
	}
	pool, maps, err := d.Store.TourneyPool(context.Background(), int32(id))
	if err != nil {
		return Response{Text: "Could not find a pool by that id!"}
	}
	if m.Pool != nil && m.Pool.ID == pool.ID {
		return Response{Text: fmt.Sprintf("%s already selected!", pool.Name)}
	}
	m.LoadPool(pool, maps)
	return Response{Text: fmt.Sprintf("%s selected.", pool.Name)}
}

func (d MultiplayerDeps) mpUnloadPool(ctx Context) Response {
	m, ok := matchOf(ctx)
	if !ok {
		return Response{Text: "You are not in a match."}
	}
	if !m.IsHost(ctx.Sender.ID) {
		return Response{Text: "Only available to the host."}
	}
	if !m.UnloadPool() {
		return Response{Text: "No mappool currently selected!"}
	}
	return Response{Text: "Mappool unloaded."}
}

func (d MultiplayerDeps) mpPick(ctx Context) Response {
	m, ok := matchOf(ctx)
	if !ok {
		return Response{Text: "You are not in a match."}
	}
	if len(ctx.Args) != 1 {
		return Response{Text: "Invalid syntax: !mp pick <pick>"}
	}
	mods, slot, ok := parsePick(ctx.Args[0])
	if !ok {
		return Response{Text: "Invalid pick syntax; correct example: HD2"}
	}
	pick, ok := m.ApplyPoolPick(mods, slot)
	if !ok {
		return Response{Text: fmt.Sprintf("Found no %s pick in the pool.", ctx.Args[0])}
	}
	m.EnqueueMatchState(d.Lobby, true)
	return Response{Text: fmt.Sprintf("Picked beatmap %d. (%s)", pick.MapID, ctx.Args[0])}
}

// parsePick splits a pool pick token ("HD2") into its mod abbreviation bits
// and slot number. Only the handful of single/double letter abbreviations
// the original's Mods.from_modstr recognizes are supported.
func parsePick(token string) (mods int32, slot int, ok bool) {
	i := 0
	for i < len(token) && !(token[i] >= '0' && token[i] <= '9') {
		i++
	}
	if i == 0 || i >= len(token) {
		return 0, 0, false
	}
	modStr := strings.ToUpper(token[:i])
	n, err := strconv.Atoi(token[i:])
	if err != nil {
		return 0, 0, false
	}
	m, ok := parseModString(modStr)
	if !ok {
		return 0, 0, false
	}
	return m, n, true
}

var modAbbrev = map[string]int32{
	"NF": 1 << 0,
	"EZ": 1 << 1,
	"HD": 1 << 3,
	"HR": 1 << 4,
	"SD": 1 << 5,
	"DT": 1 << 6,
	"HT": 1 << 8,
	"NC": 1 << 9,
	"FL": 1 << 10,
	"SO": 1 << 12,
	"PF": 1 << 14,
}

func parseModString(s string) (int32, bool) {
	if s == "NM" || s == "" {
		return 0, true
	}
	var mods int32
	for len(s) >= 2 {
		bit, ok := modAbbrev[s[:2]]
		if !ok {
			return 0, false
		}
		mods |= bit
		s = s[2:]
	}
	if s != "" {
		return 0, false
	}
	return mods, true
}
