package loyalty

import "context"

// Store persists accounts, codes, rewards, redemptions and the points ledger.
//
// ApplyPointsDelta must be atomic: a debit larger than the balance fails with
// ErrInsufficientPoints and leaves the balance untouched. MarkCodeUsed and
// MarkRedemptionUsed are conditional on the record still being unused, so
// concurrent callers observe exactly one success.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	CreateAccount(ctx context.Context, userID UserID, createdUnixUTC int64) (Account, error)
	GetAccount(ctx context.Context, userID UserID) (Account, error)
	ApplyPointsDelta(ctx context.Context, userID UserID, delta PointsDelta) (Points, error)
	SetLastCheckIn(ctx context.Context, userID UserID, marker CheckInMarker) error

	InsertEntry(ctx context.Context, entry EntryInput) (Entry, error)
	ListEntries(ctx context.Context, userID UserID, cursor EntryCursor, limit int) ([]Entry, error)
	OldestCreditSince(ctx context.Context, userID UserID, sinceUnixUTC int64) (Entry, bool, error)

	InsertCodes(ctx context.Context, codes []CodeRecord) error
	FindCode(ctx context.Context, code CodeValue) (CodeRecord, error)
	MarkCodeUsed(ctx context.Context, codeID CodeID, userID UserID, usedUnixUTC int64) error

	GetReward(ctx context.Context, rewardID RewardID) (Reward, error)
	ListRewards(ctx context.Context, activeOnly bool) ([]Reward, error)

	CreateRedemption(ctx context.Context, redemption Redemption) error
	GetRedemption(ctx context.Context, redemptionID RedemptionID) (Redemption, error)
	MarkRedemptionUsed(ctx context.Context, redemptionID RedemptionID, usedUnixUTC int64) error
	ListActiveRedemptions(ctx context.Context, userID UserID, nowUnixUTC int64) ([]Redemption, error)

	InsertFailedAttempt(ctx context.Context, attempt FailedAttempt) error
}
