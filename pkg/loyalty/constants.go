package loyalty

import "time"

const (
	operationRedeemDeliveryCode = "redeem_delivery_code"
	operationCheckIn            = "check_in"
	operationRedeemReward       = "redeem_reward"
	operationMarkRedemptionUsed = "mark_redemption_used"
	operationGenerateCodes      = "generate_codes"
	operationAdjustPoints       = "adjust_points"
	operationRegisterAccount    = "register_account"
	operationRateLimit          = "rate_limit"
	operationAuditAttempt       = "audit_attempt"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	// DefaultCodePoints is awarded when a code record carries no explicit award.
	DefaultCodePoints int64 = 5
	// CheckInPoints is awarded for every accepted in-store visit.
	CheckInPoints int64 = 1
	// DefaultGeofenceRadiusMeters bounds the accepted check-in distance.
	DefaultGeofenceRadiusMeters = 100.0

	// CheckInCooldown is the minimum gap between two check-ins at the same location.
	CheckInCooldown = 22 * time.Hour
	// InStoreRedemptionWindow bounds how long staff may honour an in-store reward.
	InStoreRedemptionWindow = 15 * time.Minute
	// DeliveryCouponRedemptionWindow bounds how long a delivery coupon stays usable.
	DeliveryCouponRedemptionWindow = 30 * 24 * time.Hour
	// DefaultPointsLifetime drives the next-expiry warning in PointsSummary.
	DefaultPointsLifetime = 365 * 24 * time.Hour

	maxCodeBatchSize     = 1000
	codeBodyLength       = 6
	redemptionCodeLength = 8
	codeSegmentDelimiter = "-"
)
