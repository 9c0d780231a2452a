package callqueue

import "github.com/Matsukatm/callcenter/internal/types"

const (
	DefaultSLTarget    = 80 // percent
	DefaultSLThreshold = 20 // seconds
)

// SLTracker tracks the share of queued calls answered within the threshold
type SLTracker struct {
	Target        int
	ThresholdSecs int
	AnsweredInSL  int
	TotalAnswered int
}

// NewSLTracker creates a tracker with the given target percentage and threshold
func NewSLTracker(target, thresholdSecs int) *SLTracker {
	return &SLTracker{
		Target:        target,
		ThresholdSecs: thresholdSecs,
	}
}

// RecordAnswer records how long an answered call waited
func (s *SLTracker) RecordAnswer(waitTimeSecs float64) {
	s.TotalAnswered++
	if waitTimeSecs <= float64(s.ThresholdSecs) {
		s.AnsweredInSL++
	}
}

// CurrentSL returns the service level percentage, 100 before any answer
func (s *SLTracker) CurrentSL() float64 {
	if s.TotalAnswered == 0 {
		return 100.0
	}
	return float64(s.AnsweredInSL) / float64(s.TotalAnswered) * 100.0
}

// Meeting reports whether the current level reaches the target
func (s *SLTracker) Meeting() bool {
	return s.CurrentSL() >= float64(s.Target)
}

func (s *SLTracker) Snapshot() types.ServiceLevel {
	return types.ServiceLevel{
		Target:        s.Target,
		ThresholdSecs: s.ThresholdSecs,
		AnsweredInSL:  s.AnsweredInSL,
		TotalAnswered: s.TotalAnswered,
		CurrentSL:     s.CurrentSL(),
	}
}
