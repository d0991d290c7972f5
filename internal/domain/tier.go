package domain

// Membership tiers derived from the current balance.
const (
	TierSilver   = "silver"
	TierGold     = "gold"
	TierPlatinum = "platinum"
)

// Tier thresholds in coins.
const (
	goldThreshold     = 1000
	platinumThreshold = 5000
)

// TierOf maps a balance to its membership tier. Pure and monotonic in
// balance; callers must re-evaluate it after every balance change rather
// than caching the result independently.
func TierOf(balance int64) string {
	switch {
	case balance >= platinumThreshold:
		return TierPlatinum
	case balance >= goldThreshold:
		return TierGold
	default:
		return TierSilver
	}
}

// RewardSchedule is the injected accrual policy. The authoritative rates are
// operational configuration, not code constants.
type RewardSchedule struct {
	DailySilver     int64
	DailyGold       int64
	DailyPlatinum   int64
	ReferralBonus   int64
	ActivationBonus int64
}

// DailyFor returns the daily login reward for a tier.
func (s RewardSchedule) DailyFor(tier string) int64 {
	switch tier {
	case TierPlatinum:
		return s.DailyPlatinum
	case TierGold:
		return s.DailyGold
	default:
		return s.DailySilver
	}
}
