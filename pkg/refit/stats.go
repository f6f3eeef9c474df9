package refit

import (
	"fmt"
	"log/slog"
)

// Stats accumulates solver diagnostics across a whole processing run. The
// wire/light tallies count iterations during which that signal class was
// still above threshold, which shows offline which class dominates the
// iteration count. No locking: events are solved strictly one at a time.
type Stats struct {
	EventsSolved    int
	Attempts        int
	TotalIterations int
	WireIterations  int
	LightIterations int
}

func (s *Stats) addIteration(wireAbove, lightAbove bool) {
	s.TotalIterations++
	if wireAbove {
		s.WireIterations++
	}
	if lightAbove {
		s.LightIterations++
	}
}

// Report logs run-wide averages. Called once at shutdown.
func (s *Stats) Report(logger *slog.Logger) {
	if s.EventsSolved == 0 {
		logger.Info("no events solved", "module", "stats")
		return
	}
	n := float64(s.EventsSolved)
	logger.Info(fmt.Sprintf("Events solved: %d", s.EventsSolved), "module", "stats")
	logger.Info(fmt.Sprintf("Average attempts per event: %.2f", float64(s.Attempts)/n), "module", "stats")
	logger.Info(fmt.Sprintf("Average iterations to solve: %.2f", float64(s.TotalIterations)/n), "module", "stats")
	logger.Info(fmt.Sprintf("Alone, the wires would have required %.2f iterations", float64(s.WireIterations)/n), "module", "stats")
	logger.Info(fmt.Sprintf("Alone, the light would have required %.2f iterations", float64(s.LightIterations)/n), "module", "stats")
}
