package matching

// Diagnostics identifies the place frame contributing the most accepted
// matches. It is a side channel for debugging and visualization and has no
// effect on matching results.
type Diagnostics struct {
	// BestFrameID is the frame contributing the most accepted matches.
	BestFrameID int64
	// BestMatches pairs each query index matched into the best frame with
	// the keypoint index inside that frame.
	BestMatches []Match
	// FrameIDs and KeypointIdxs are the provenance of the full pool.
	FrameIDs     []int64
	KeypointIdxs []int
}

// Diagnose computes the best-frame diagnostics for a set of accepted matches.
// Returns nil when there are no matches. Ties on match count keep the frame
// whose matches appear first.
func Diagnose(matches []Match, pool *Pool) *Diagnostics {
	if len(matches) == 0 {
		return nil
	}
	counts := map[int64]int{}
	order := []int64{}
	for _, m := range matches {
		frameID := pool.FrameIDs[m.PoolIdx]
		if _, ok := counts[frameID]; !ok {
			order = append(order, frameID)
		}
		counts[frameID]++
	}
	bestFrame := order[0]
	for _, frameID := range order {
		if counts[frameID] > counts[bestFrame] {
			bestFrame = frameID
		}
	}
	diag := &Diagnostics{
		BestFrameID:  bestFrame,
		FrameIDs:     pool.FrameIDs,
		KeypointIdxs: pool.KeypointIdxs,
	}
	for _, m := range matches {
		if pool.FrameIDs[m.PoolIdx] != bestFrame {
			continue
		}
		diag.BestMatches = append(diag.BestMatches, Match{
			QueryIdx: m.QueryIdx,
			PoolIdx:  pool.KeypointIdxs[m.PoolIdx],
		})
	}
	return diag
}
