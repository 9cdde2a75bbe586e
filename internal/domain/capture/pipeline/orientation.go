// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

// Orientation hints keyed by device rotation in degrees.
var (
	defaultOrientations = map[int]int{0: 90, 90: 0, 180: 270, 270: 180}
	inverseOrientations = map[int]int{0: 270, 90: 180, 180: 90, 270: 0}
)

// OrientationHint derives the container rotation tag from how the sensor is
// mounted and how the unit is rotated. Unknown rotations map to 0.
func OrientationHint(inverseSensor bool, deviceRotation int) int {
	table := defaultOrientations
	if inverseSensor {
		table = inverseOrientations
	}
	return table[deviceRotation]
}
