package scheduler

// ExportedRunSweep exposes the private runSweep method for external tests.
func (s *Scheduler) ExportedRunSweep() {
	s.runSweep()
}
