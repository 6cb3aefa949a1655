package ocl

import "math"

var standardLevelDepths = [...]float64{
	0, 10, 20, 30, 50, 75, 100, 125, 150, 200,
	250, 300, 400, 500, 600, 700, 800, 900, 1000, 1100,
	1200, 1300, 1400, 1500, 1750, 2000, 2500, 3000, 3500, 4000,
	4500, 5000, 5500, 6000, 6500, 7000, 7500, 8000, 8500, 9000,
}

// StandardLevelCount is the number of defined standard depths.
const StandardLevelCount = len(standardLevelDepths)

// StandardLevelDepth returns the depth in metres of standard level i, or
// NaN and false when i is outside the table.
func StandardLevelDepth(i int) (float64, bool) {
	if i < 0 || i >= len(standardLevelDepths) {
		return math.NaN(), false
	}
	return standardLevelDepths[i], true
}
