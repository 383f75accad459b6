package bingo

// Payout share expressed as a fraction so the arithmetic stays in integers.
const (
	payoutNumerator   = 4
	payoutDenominator = 5
)

// Prize returns floor(stake × players × 0.8). Negative inputs yield zero.
func Prize(stake int64, players int) int64 {
	if stake <= 0 || players <= 0 {
		return 0
	}
	return stake * int64(players) * payoutNumerator / payoutDenominator
}
