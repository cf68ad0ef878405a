package loyalty

import (
	"fmt"
	"time"
)

// RedemptionState is the derived status of a redemption at a point in time.
type RedemptionState string

const (
	RedemptionStateActive  RedemptionState = "active"
	RedemptionStateUsed    RedemptionState = "used"
	RedemptionStateExpired RedemptionState = "expired"
)

// String returns the state tag.
func (state RedemptionState) String() string {
	return string(state)
}

// ExpiryFor returns when a redemption of the given category stops being usable.
func ExpiryFor(category RewardCategory, createdUnixUTC int64) int64 {
	window := InStoreRedemptionWindow
	if category == RewardCategoryDirectOrderCoupon {
		window = DeliveryCouponRedemptionWindow
	}
	return createdUnixUTC + int64(window/time.Second)
}

// RedemptionStateAt derives the state of a redemption. Used wins over expired.
func RedemptionStateAt(redemption Redemption, nowUnixUTC int64) RedemptionState {
	switch {
	case redemption.Used:
		return RedemptionStateUsed
	case nowUnixUTC >= redemption.ExpiresAtUnixUTC:
		return RedemptionStateExpired
	default:
		return RedemptionStateActive
	}
}

// Countdown formats the remaining validity as m:ss. Terminal redemptions report false.
func Countdown(redemption Redemption, nowUnixUTC int64) (string, bool) {
	if RedemptionStateAt(redemption, nowUnixUTC) != RedemptionStateActive {
		return "", false
	}
	remaining := redemption.ExpiresAtUnixUTC - nowUnixUTC
	return fmt.Sprintf("%d:%02d", remaining/60, remaining%60), true
}
