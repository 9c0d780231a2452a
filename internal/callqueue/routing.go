package callqueue

import (
	"sort"

	"github.com/Matsukatm/callcenter/internal/types"
)

// RankAgents orders agents that can take a call for an operator picking one
// for a queued call: idle agents first, then the most spare capacity, then by
// extension. Agents that cannot take a call are left out.
func RankAgents(agents []types.AgentCapacity) []types.AgentCapacity {
	out := make([]types.AgentCapacity, 0, len(agents))
	for _, a := range agents {
		if a.CanTakeCall {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ActiveCalls != out[j].ActiveCalls {
			return out[i].ActiveCalls < out[j].ActiveCalls
		}
		si, sj := out[i].MaxCalls-out[i].ActiveCalls, out[j].MaxCalls-out[j].ActiveCalls
		if si != sj {
			return si > sj
		}
		return out[i].Extension < out[j].Extension
	})
	return out
}

