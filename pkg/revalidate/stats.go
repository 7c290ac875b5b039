package revalidate

import "sync/atomic"

// Stats accumulates outcome totals across batches. Safe for concurrent
// use.
type Stats struct {
	success        atomic.Uint64
	httpError      atomic.Uint64
	transportError atomic.Uint64
	skipped        atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	Success        uint64 `json:"success"`
	HTTPError      uint64 `json:"httpError"`
	TransportError uint64 `json:"transportError"`
	Skipped        uint64 `json:"skipped"`
}

// Total sums all outcomes.
func (s StatsSnapshot) Total() uint64 {
	return s.Success + s.HTTPError + s.TransportError + s.Skipped
}

func (s *Stats) record(result DispatchResult) {
	for _, o := range result {
		switch o.Status {
		case StatusSuccess:
			s.success.Add(1)
		case StatusHTTPError:
			s.httpError.Add(1)
		case StatusTransportError:
			s.transportError.Add(1)
		case StatusSkipped:
			s.skipped.Add(1)
		}
	}
}

// Snapshot returns the current totals.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Success:        s.success.Load(),
		HTTPError:      s.httpError.Load(),
		TransportError: s.transportError.Load(),
		Skipped:        s.skipped.Load(),
	}
}
