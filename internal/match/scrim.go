package match

import (
	"time"
)

// RecentScore is the subset of a submitted score the scrim scorer needs.
type RecentScore struct {
	PlayerID          int32
	BeatmapMD5        string
	SubmittedAt       time.Time
	Score             int64
	Accuracy          float64
	MaxCombo          int32
	PerformancePoints float64
}

func (s RecentScore) valueFor(wc WinCondition, usePP bool) int64 {
	if usePP {
		return int64(s.PerformancePoints)
	}
	switch wc {
	case WinAccuracy:
		return int64(s.Accuracy)
	case WinCombo:
		return int64(s.MaxCombo)
	default: // WinScore, WinScoreV2
		return s.Score
	}
}

// ScoreSource looks up a player's most recent submitted score. AwaitScores
// polls it rather than receiving a push, matching the original
// implementation's "recent_score" accessor.
type ScoreSource interface {
	RecentScore(playerID int32) (RecentScore, bool)
}

// ScrimRoundResult is what AwaitScores produced for one completed round.
type ScrimRoundResult struct {
	Points      map[int32]int64 // team/player key -> summed value
	DidNotSubmit []int32
}

// AwaitScores polls scores for everyone in wasPlaying until each has
// submitted a fresh-enough score or the combined wait budget (maxWait)
// expires, polling every pollInterval. A score counts only if its beatmap
// md5 matches and its timestamp is newer than now-(mapTotalLength+waited+0.5s).
func (m *Match) AwaitScores(src ScoreSource, wasPlaying []int32, mapTotalLength time.Duration, pollInterval, maxWait time.Duration) ScrimRoundResult {
	m.mu.Lock()
	ffa := m.TeamType.IsFFA()
	usePP := m.Scrim != nil && m.Scrim.UsePPScoring
	wc := m.WinCondition
	mapMD5 := m.MapMD5
	teamOf := make(map[int32]Team, len(m.Slots))
	for i := range m.Slots {
		if hasPlayer(m.Slots[i].Status) {
			teamOf[m.Slots[i].PlayerID] = m.Slots[i].Team
		}
	}
	m.mu.Unlock()

	result := ScrimRoundResult{Points: make(map[int32]int64)}
	waited := time.Duration(0)

	for _, playerID := range wasPlaying {
		for {
			rc, ok := src.RecentScore(playerID)
			maxAge := time.Now().Add(-(mapTotalLength + waited + 500*time.Millisecond))

			if ok && rc.BeatmapMD5 == mapMD5 && rc.SubmittedAt.After(maxAge) {
				if value := rc.valueFor(wc, usePP); value != 0 {
					key := playerKey(playerID)
					if !ffa {
						key = teamKey(teamOf[playerID])
					}
					result.Points[key] += value
				}
				break
			}

			time.Sleep(pollInterval)
			waited += pollInterval
			if waited > maxWait {
				result.DidNotSubmit = append(result.DidNotSubmit, playerID)
				break
			}
		}
	}
	return result
}

// ApplyScrimRound adds a round's points to the running scrim totals and
// reports whether the target point count has now been reached. A tie
// (two or more keys share the same, highest total) records a nil winner
// and neither key is awarded a point. A round with a single submitter
// always wins outright, even though its lone value trivially equals the
// "best" value found.
func (m *Match) ApplyScrimRound(round ScrimRoundResult) (winner *int32, reachedTarget bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Scrim == nil {
		return nil, false
	}

	if len(round.Points) == 0 {
		return nil, false
	}

	var best int64 = -1
	tie := false
	var bestKey int32
	for k, v := range round.Points {
		if v > best {
			best = v
			bestKey = k
			tie = false
		} else if v == best {
			tie = true
		}
	}

	if len(round.Points) != 1 && tie {
		m.Scrim.Winners = append(m.Scrim.Winners, nil)
		return nil, false
	}

	m.Scrim.Points[bestKey]++
	m.Scrim.Winners = append(m.Scrim.Winners, &bestKey)

	if m.Scrim.Points[bestKey] >= m.Scrim.TargetPoints {
		return &bestKey, true
	}
	return &bestKey, false
}
