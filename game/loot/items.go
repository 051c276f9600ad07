package loot

// Rarity is the tier of a dropped item.
type Rarity string

const (
	Common    Rarity = "common"
	Uncommon  Rarity = "uncommon"
	Rare      Rarity = "rare"
	Epic      Rarity = "epic"
	Legendary Rarity = "legendary"
)

// Item is a dropped item.
type Item struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Rarity Rarity `json:"rarity"`
	Value  int    `json:"value"`
}

// rarityRule is one row of the cumulative rarity table.
type rarityRule struct {
	rarity   Rarity
	chance   float64
	minLevel int
}

// rarityTable is checked top to bottom; Common is the fallback.
var rarityTable = []rarityRule{
	{Legendary, 0.02, 10},
	{Epic, 0.08, 5},
	{Rare, 0.20, 0},
	{Uncommon, 0.30, 0},
}

var itemPools = map[Rarity][]Item{
	Common: {
		{ID: "wooden_token", Name: "Wooden Token", Rarity: Common, Value: 5},
		{ID: "frayed_map", Name: "Frayed Map", Rarity: Common, Value: 4},
		{ID: "copper_ring", Name: "Copper Ring", Rarity: Common, Value: 6},
	},
	Uncommon: {
		{ID: "silver_compass", Name: "Silver Compass", Rarity: Uncommon, Value: 15},
		{ID: "herbal_satchel", Name: "Herbal Satchel", Rarity: Uncommon, Value: 12},
	},
	Rare: {
		{ID: "moonlit_lantern", Name: "Moonlit Lantern", Rarity: Rare, Value: 40},
		{ID: "runed_dagger", Name: "Runed Dagger", Rarity: Rare, Value: 45},
	},
	Epic: {
		{ID: "phoenix_feather", Name: "Phoenix Feather", Rarity: Epic, Value: 120},
		{ID: "stormglass_orb", Name: "Stormglass Orb", Rarity: Epic, Value: 110},
	},
	Legendary: {
		{ID: "crown_of_focus", Name: "Crown of Focus", Rarity: Legendary, Value: 400},
		{ID: "hourglass_of_ages", Name: "Hourglass of Ages", Rarity: Legendary, Value: 450},
	},
}
