package models

// Summary trims a user down to the fields safe to show the other party.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:             u.ID,
		Name:           DisplayName(u.WalletAddress),
		AvgRating:      u.AvgRating,
		CompletedRides: u.CompletedRides,
	}
}

// DisplayName derives a short handle from a wallet address, e.g.
// 0x1234...abcd. There are no real profiles behind the mock wallet auth.
func DisplayName(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
