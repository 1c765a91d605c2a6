package location

import "time"

// Sample is a single position fix of the device.
type Sample struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64   // Horizontal accuracy, HDOP for sensor fixes
	Timestamp time.Time // Time of the fix, unique per sample
}
