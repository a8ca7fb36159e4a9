package domain

import (
	"strings"
)

const (
	QueueSolo = "RANKED_SOLO_5x5"
	QueueFlex = "RANKED_FLEX_SR"
)

// RankOrder is the fixed total ordering used for rank values. Divisioned
// tiers occupy one slot per division, apex tiers one slot each.
var RankOrder = []string{
	"IRON IV", "IRON III", "IRON II", "IRON I",
	"BRONZE IV", "BRONZE III", "BRONZE II", "BRONZE I",
	"SILVER IV", "SILVER III", "SILVER II", "SILVER I",
	"GOLD IV", "GOLD III", "GOLD II", "GOLD I",
	"PLATINUM IV", "PLATINUM III", "PLATINUM II", "PLATINUM I",
	"EMERALD IV", "EMERALD III", "EMERALD II", "EMERALD I",
	"DIAMOND IV", "DIAMOND III", "DIAMOND II", "DIAMOND I",
	"MASTER", "GRANDMASTER", "CHALLENGER",
}

var rankIndex = func() map[string]int {
	m := make(map[string]int, len(RankOrder))
	for i, r := range RankOrder {
		m[r] = i
	}
	return m
}()

var apexTiers = map[string]bool{
	"MASTER":      true,
	"GRANDMASTER": true,
	"CHALLENGER":  true,
}

var shortLabels = map[string]string{
	"IRON": "I", "BRONZE": "B", "SILVER": "S", "GOLD": "G", "PLATINUM": "P",
	"EMERALD": "E", "DIAMOND": "D", "MASTER": "M", "GRANDMASTER": "GM", "CHALLENGER": "C",
}

var divisionDigits = map[string]string{"IV": "4", "III": "3", "II": "2", "I": "1"}

var queueIDs = map[int]string{
	420: QueueSolo,
	440: QueueFlex,
}

var queueNames = map[string]string{
	QueueSolo:    "Solo Queue",
	QueueFlex:    "Flex",
	"TOURNAMENT": "Tournament",
}

func IsApexTier(tier string) bool {
	return apexTiers[strings.ToUpper(tier)]
}

// RankKey normalizes tier+division into a RankOrder entry.
func RankKey(tier, division string) string {
	tier = strings.ToUpper(strings.TrimSpace(tier))
	if IsApexTier(tier) {
		return tier
	}
	return tier + " " + strings.ToUpper(strings.TrimSpace(division))
}

// RankValue maps a rank to a number on the fixed ordering. Divisioned tiers
// add lp/100; apex tiers add lp/1000 capped below the next slot. Unknown
// ranks return -1.
func RankValue(tier, division string, lp int) float64 {
	idx, ok := rankIndex[RankKey(tier, division)]
	if !ok {
		return -1
	}
	if lp < 0 {
		lp = 0
	}
	if IsApexTier(tier) {
		if lp > 999 {
			lp = 999
		}
		return float64(idx) + float64(lp)/1000
	}
	if lp > 99 {
		lp = 99
	}
	return float64(idx) + float64(lp)/100
}

func (o RankObservation) Value() float64 {
	return RankValue(o.Tier, o.Division, o.LeaguePoints)
}

// ShortLabel renders "GOLD II" as "G2" and "GRANDMASTER" as "GM".
func ShortLabel(tier, division string) string {
	tier = strings.ToUpper(tier)
	label, ok := shortLabels[tier]
	if !ok {
		return tier
	}
	if IsApexTier(tier) {
		return label
	}
	return label + divisionDigits[strings.ToUpper(division)]
}

// LabelForIndex returns the short label of a RankOrder slot.
func LabelForIndex(idx int) string {
	if idx < 0 || idx >= len(RankOrder) {
		return ""
	}
	tier, division, _ := strings.Cut(RankOrder[idx], " ")
	return ShortLabel(tier, division)
}

func QueueTypeForID(queueID int) string {
	return queueIDs[queueID]
}

func QueueName(queueType string) string {
	if name, ok := queueNames[queueType]; ok {
		return name
	}
	return "Unknown Queue"
}
