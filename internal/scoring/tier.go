package scoring

// Tier is an ordered score band.
type Tier int

const (
	TierCold Tier = iota
	TierWarm
	TierHot
	TierUrgent
)

// TierFor maps a score onto its band: [0,25] cold, [26,50] warm,
// [51,80] hot and 81 or more urgent.
func TierFor(score int) Tier {
	switch {
	case score >= 81:
		return TierUrgent
	case score >= 51:
		return TierHot
	case score >= 26:
		return TierWarm
	default:
		return TierCold
	}
}

func (t Tier) String() string {
	switch t {
	case TierWarm:
		return "warm"
	case TierHot:
		return "hot"
	case TierUrgent:
		return "urgent"
	default:
		return "cold"
	}
}

// Tag is the CRM tag for the tier.
func (t Tier) Tag() string {
	switch t {
	case TierWarm:
		return "Lead Tibio"
	case TierHot:
		return "Lead Caliente"
	case TierUrgent:
		return "Lead Urgente"
	default:
		return "Lead Frio"
	}
}

// ParseTier reverses Tier.String. Unknown values are cold.
func ParseTier(s string) (Tier, bool) {
	for _, t := range AllTiers() {
		if t.String() == s {
			return t, true
		}
	}
	return TierCold, false
}

// AllTiers lists the tiers in ascending order.
func AllTiers() []Tier {
	return []Tier{TierCold, TierWarm, TierHot, TierUrgent}
}

// AllTags lists every tier tag, used to clear a previous tier on the CRM.
func AllTags() []string {
	tags := make([]string, 0, 4)
	for _, t := range AllTiers() {
		tags = append(tags, t.Tag())
	}
	return tags
}
