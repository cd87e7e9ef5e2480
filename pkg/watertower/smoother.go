package watertower

import "math"

// LevelSmoother is an adaptive exponential moving average: a jump larger
// than the threshold is followed quickly, small ripple on the surface is
// damped.
type LevelSmoother struct {
	value     float64
	primed    bool
	threshold float64 // cm
	kFast     float64
	kSlow     float64
}

// NewLevelSmoother creates a smoother with the default parameters
func NewLevelSmoother() *LevelSmoother {
	return NewLevelSmootherWithParams(DefaultSmoothThresholdCM, DefaultKFast, DefaultKSlow)
}

// NewLevelSmootherWithParams creates a smoother with custom parameters
func NewLevelSmootherWithParams(threshold, kFast, kSlow float64) *LevelSmoother {
	return &LevelSmoother{
		threshold: threshold,
		kFast:     kFast,
		kSlow:     kSlow,
	}
}

// Update feeds a new level and returns the smoothed one. The first value
// is taken as is.
func (s *LevelSmoother) Update(level float64) float64 {
	if !s.primed {
		s.value = level
		s.primed = true
		return level
	}

	k := s.kSlow
	if math.Abs(level-s.value) > s.threshold {
		k = s.kFast
	}
	s.value += (level - s.value) * k
	return s.value
}

// Value returns the current smoothed level
func (s *LevelSmoother) Value() float64 {
	return s.value
}

// Reset forgets the history
func (s *LevelSmoother) Reset() {
	s.value = 0
	s.primed = false
}
