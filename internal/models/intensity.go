package models

// Intensity is the heavy/moderate/light classification of a set.
type Intensity string

const (
	IntensityHeavy    Intensity = "heavy"
	IntensityModerate Intensity = "moderate"
	IntensityLight    Intensity = "light"
)

// Valid reports whether s is one of the three known intensities.
func (i Intensity) Valid() bool {
	switch i {
	case IntensityHeavy, IntensityModerate, IntensityLight:
		return true
	}
	return false
}

// Classify maps a rep count to its default training intensity: 5 reps or
// fewer is heavy, 6-12 is moderate, 13 or more is light.
func Classify(reps int) Intensity {
	switch {
	case reps <= 5:
		return IntensityHeavy
	case reps <= 12:
		return IntensityModerate
	default:
		return IntensityLight
	}
}
