package hero

// MaxLevel caps hero progression.
const MaxLevel = 99

// ExpNeeded returns the exp needed to go from level to level+1.
// Formula: 30*level + 20*(level-1)*level/2.
func ExpNeeded(level int) int64 {
	if level <= 0 {
		return 30
	}
	l := int64(level)
	return 30*l + 20*(l-1)*l/2
}

// LevelForXP returns the level reached with a lifetime total of xp.
func LevelForXP(xp int64) int {
	level := 1
	for level < MaxLevel {
		need := ExpNeeded(level)
		if xp < need {
			break
		}
		xp -= need
		level++
	}
	return level
}
