package buffer

// healthyPercentage is the fill level at which the buffer counts as healthy.
const healthyPercentage = 80.0

// Health is a point-in-time view of the buffer fill level relative to its
// configured target.
type Health struct {
	CurrentSize      int
	TargetSize       int
	Percentage       float64
	EstimatedMinutes float64
	IsHealthy        bool
}

// Health derives the current buffer health. Percentage is capped at 100 and
// EstimatedMinutes converts the fill level through the assumed bitrate.
func (r *Ring) Health() Health {
	r.mu.Lock()
	filled := r.filled
	r.mu.Unlock()

	h := Health{
		CurrentSize: filled,
		TargetSize:  r.capacity,
	}

	if r.capacity > 0 {
		h.Percentage = float64(filled) / float64(r.capacity) * 100
		if h.Percentage > 100 {
			h.Percentage = 100
		}
	}
	if r.bytesPerSecond > 0 {
		h.EstimatedMinutes = float64(filled) / float64(r.bytesPerSecond) / 60
	}
	h.IsHealthy = h.Percentage >= healthyPercentage

	return h
}
