package gutter

// Computations returns how many diffs the controller has run.
func (c *Controller) Computations() int64 { return c.computations.Load() }

// PeakInFlight returns the largest number of diffs that ever ran at once.
func (c *Controller) PeakInFlight() int32 { return c.peak.Load() }
