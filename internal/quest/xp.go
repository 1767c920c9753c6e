package quest

// xpForLevel returns the total XP needed to reach level n. The curve is
// quadratic: level 2 at 100 XP, level 3 at 300, level 4 at 600, and so on.
func xpForLevel(n int) int64 {
	return int64(50 * n * (n - 1))
}

// LevelForXP maps a total XP amount to a level. Levels start at 1 and
// never decrease because XP never decreases.
func LevelForXP(xp int64) int {
	level := 1
	for xpForLevel(level+1) <= xp {
		level++
	}
	return level
}
