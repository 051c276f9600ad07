package resolver

import "github.com/kasuganosora/focusquest/game/event"

type levelBand struct {
	min, max int // offsets from the hero level
}

var mobPools = map[event.MobTier][]string{
	event.TierLight: {"Slime", "Cave Rat", "Goblin Scout", "Bog Imp"},
	event.TierMid:   {"Orc Raider", "Dire Wolf", "Skeleton Knight", "Marsh Troll"},
	event.TierRare:  {"Wyvern", "Lich Acolyte", "Stone Golem", "Shadow Stalker"},
}

var mobBands = map[event.MobTier]levelBand{
	event.TierLight: {-2, 0},
	event.TierMid:   {0, 2},
	event.TierRare:  {2, 5},
}

var quirkyLines = []string{
	"A talking squirrel offers unsolicited career advice.",
	"You find a signpost pointing in every direction at once.",
	"A bard composes an unflattering ballad about your boots.",
	"A frog in a tiny crown demands a toll of one compliment.",
}

var trinketLines = []string{
	"You pocket a smooth river stone. It hums faintly.",
	"A rusted key turns up in the grass. It opens nothing, yet.",
	"You find a feather that is warm to the touch.",
	"A chipped marble rolls to a stop at your feet.",
}

var narrationLines = []string{
	"The road bends toward distant hills.",
	"Wind stirs the tall grass as you press on.",
	"A quiet stretch. Your focus sharpens.",
	"Lanterns flicker in a far-off village.",
}
