package assemble

// TurnMetrics is the per-turn token view used by live displays.
type TurnMetrics struct {
	TurnIndex int    `json:"turn_index"`
	PrevTotal uint64 `json:"prev_total"`
	Delta     uint64 `json:"delta"`
	IsHeavy   bool   `json:"is_heavy"`
	IsActive  bool   `json:"is_active"`
}

// heavyTurnFraction marks a turn heavy when its delta reaches this share
// of the model's context window.
const heavyTurnFraction = 0.1

func isDeltaHeavy(delta uint64, maxContext *uint64) bool {
	if maxContext == nil || *maxContext == 0 {
		return false
	}
	return float64(delta) >= float64(*maxContext)*heavyTurnFraction
}

// ComputeTurnMetrics derives cumulative token totals and per-turn deltas.
// The last turn is always flagged active so streaming displays don't
// flicker while its steps settle.
func ComputeTurnMetrics(session *Session, maxContext *uint64) []TurnMetrics {
	var cumulative uint64
	metrics := make([]TurnMetrics, 0, len(session.Turns))
	for i, turn := range session.Turns {
		end := cumulative
		if turn.Stats.TotalTokens > end {
			end = turn.Stats.TotalTokens
		}
		delta := end - cumulative
		metrics = append(metrics, TurnMetrics{
			TurnIndex: i,
			PrevTotal: cumulative,
			Delta:     delta,
			IsHeavy:   isDeltaHeavy(delta, maxContext),
			IsActive:  i == len(session.Turns)-1,
		})
		cumulative = end
	}
	return metrics
}
