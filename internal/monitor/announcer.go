package monitor

import "math"

type announceKey struct {
	guildID string
	symbol  string
}

// Announcer gates price alerts. A (guild, symbol) pair is re-announced only
// when the move is at least the threshold and strictly larger in magnitude
// than the last announced move. Records live until ResetDaily.
//
// Not safe for concurrent use; callers go through the executor.
type Announcer struct {
	threshold float64
	last      map[announceKey]float64
}

func NewAnnouncer(thresholdPct float64) *Announcer {
	return &Announcer{
		threshold: math.Abs(thresholdPct),
		last:      make(map[announceKey]float64),
	}
}

// ShouldAnnounce records pct and returns true when it should be posted.
func (a *Announcer) ShouldAnnounce(guildID, symbol string, pct float64) bool {
	mag := math.Abs(pct)
	if math.IsNaN(mag) || mag < a.threshold {
		return false
	}
	k := announceKey{guildID, symbol}
	if last, ok := a.last[k]; ok && mag <= math.Abs(last) {
		return false
	}
	a.last[k] = pct
	return true
}

func (a *Announcer) ResetDaily() {
	clear(a.last)
}

func (a *Announcer) Threshold() float64 {
	return a.threshold
}

// Last returns the last announced move for the pair, if any.
func (a *Announcer) Last(guildID, symbol string) (float64, bool) {
	v, ok := a.last[announceKey{guildID, symbol}]
	return v, ok
}

func (a *Announcer) Len() int {
	return len(a.last)
}
