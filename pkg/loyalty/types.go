package loyalty

import (
	"fmt"
	"strings"
)

// Points is a non-negative point balance.
type Points int64

// PositivePoints is a strictly positive point amount (award or cost).
type PositivePoints int64

// PointsDelta is a signed, non-zero change applied to a balance.
type PointsDelta int64

// UserID identifies a loyalty member.
type UserID struct {
	value string
}

// CodeID identifies a stored code record.
type CodeID struct {
	value string
}

// CodeValue is a normalized code string (upper case, no surrounding space).
type CodeValue struct {
	value string
}

// RewardID identifies a reward definition.
type RewardID struct {
	value string
}

// RedemptionID identifies a redemption record.
type RedemptionID struct {
	value string
}

// EntryID identifies a ledger entry.
type EntryID struct {
	value string
}

// NewPoints validates a balance value.
func NewPoints(raw int64) (Points, error) {
	if raw < 0 {
		return 0, fmt.Errorf("%w: must not be negative", ErrInvalidPoints)
	}
	return Points(raw), nil
}

// Int64 exposes the raw value.
func (points Points) Int64() int64 {
	return int64(points)
}

// NewPositivePoints validates an amount and ensures it is strictly positive.
func NewPositivePoints(raw int64) (PositivePoints, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidPoints)
	}
	return PositivePoints(raw), nil
}

// Int64 exposes the raw value.
func (points PositivePoints) Int64() int64 {
	return int64(points)
}

// ToPoints converts to a balance value.
func (points PositivePoints) ToPoints() Points {
	return Points(points)
}

// ToDelta converts to a credit delta.
func (points PositivePoints) ToDelta() PointsDelta {
	return PointsDelta(points)
}

// NewPointsDelta validates a signed delta; zero deltas are rejected.
func NewPointsDelta(raw int64) (PointsDelta, error) {
	if raw == 0 {
		return 0, fmt.Errorf("%w: must not be zero", ErrInvalidPointsDelta)
	}
	return PointsDelta(raw), nil
}

// Int64 exposes the raw value.
func (delta PointsDelta) Int64() int64 {
	return int64(delta)
}

// Negated returns the opposite delta.
func (delta PointsDelta) Negated() PointsDelta {
	return -delta
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// IsZero reports whether the identifier is unset.
func (id UserID) IsZero() bool {
	return id.value == ""
}

// NewCodeID validates and normalizes a code id.
func NewCodeID(raw string) (CodeID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return CodeID{}, fmt.Errorf("%w: empty value", ErrInvalidCodeID)
	}
	return CodeID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id CodeID) String() string {
	return id.value
}

// NewCodeValue upper-cases a code and checks it only carries letters, digits and dashes.
func NewCodeValue(raw string) (CodeValue, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	if normalized == "" {
		return CodeValue{}, fmt.Errorf("%w: empty value", ErrInvalidCode)
	}
	for _, character := range normalized {
		if !isCodeCharacter(character) {
			return CodeValue{}, fmt.Errorf("%w: unexpected character %q", ErrInvalidCode, character)
		}
	}
	return CodeValue{value: normalized}, nil
}

// String returns the normalized code.
func (code CodeValue) String() string {
	return code.value
}

// NewRewardID validates and normalizes a reward id.
func NewRewardID(raw string) (RewardID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return RewardID{}, fmt.Errorf("%w: empty value", ErrInvalidRewardID)
	}
	return RewardID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id RewardID) String() string {
	return id.value
}

// NewRedemptionID validates and normalizes a redemption id.
func NewRedemptionID(raw string) (RedemptionID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return RedemptionID{}, fmt.Errorf("%w: empty value", ErrInvalidRedemptionID)
	}
	return RedemptionID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id RedemptionID) String() string {
	return id.value
}

// NewEntryID validates and normalizes a ledger entry id.
func NewEntryID(raw string) (EntryID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return EntryID{}, fmt.Errorf("%w: empty value", ErrInvalidEntryID)
	}
	return EntryID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id EntryID) String() string {
	return id.value
}

// RewardCategory drives the validity window of a redemption.
type RewardCategory string

const (
	RewardCategoryInStoreItem       RewardCategory = "in_store_item"
	RewardCategoryInStoreDiscount   RewardCategory = "in_store_discount"
	RewardCategoryDirectOrderCoupon RewardCategory = "direct_order_coupon"
)

// ParseRewardCategory validates a stored or requested category.
func ParseRewardCategory(raw string) (RewardCategory, error) {
	switch RewardCategory(strings.TrimSpace(raw)) {
	case RewardCategoryInStoreItem:
		return RewardCategoryInStoreItem, nil
	case RewardCategoryInStoreDiscount:
		return RewardCategoryInStoreDiscount, nil
	case RewardCategoryDirectOrderCoupon:
		return RewardCategoryDirectOrderCoupon, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRewardCategory, raw)
	}
}

// String returns the category tag.
func (category RewardCategory) String() string {
	return string(category)
}

// IsInStore reports whether staff redeem the reward at the counter.
func (category RewardCategory) IsInStore() bool {
	return category == RewardCategoryInStoreItem || category == RewardCategoryInStoreDiscount
}

// LocalizedText carries the Japanese and English copy of a reward.
type LocalizedText struct {
	Japanese string
	English  string
}

// CodeRecord is a single redeemable code as stored (without its checksum character).
type CodeRecord struct {
	CodeID           CodeID
	Code             CodeValue
	Used             bool
	PointsAwarded    Points
	UsedBy           UserID
	UsedUnixUTC      int64
	CreatedUnixUTC   int64
	ExpiresAtUnixUTC int64
	OrderType        string
	DeliveryPartner  string
}

// Award returns the configured award, falling back to DefaultCodePoints.
func (record CodeRecord) Award() PositivePoints {
	if record.PointsAwarded <= 0 {
		return PositivePoints(DefaultCodePoints)
	}
	return PositivePoints(record.PointsAwarded)
}

// ExpiredAt reports whether the code can no longer be redeemed at the given time.
func (record CodeRecord) ExpiredAt(nowUnixUTC int64) bool {
	return nowUnixUTC > record.ExpiresAtUnixUTC
}

// CheckInMarker remembers the last accepted QR check-in of a user.
type CheckInMarker struct {
	LocationID       LocationID
	CheckedInUnixUTC int64
}

// Account is the balance document of a member.
type Account struct {
	UserID         UserID
	Points         Points
	LastCheckIn    *CheckInMarker
	CreatedUnixUTC int64
}

// Reward is a redeemable catalog item.
type Reward struct {
	RewardID    RewardID
	PointsCost  PositivePoints
	Category    RewardCategory
	Name        LocalizedText
	Description LocalizedText
	Active      bool
}

// Redemption is a reward exchanged for points. Name and description are
// snapshots taken at redemption time.
type Redemption struct {
	RedemptionID      RedemptionID
	UserID            UserID
	RewardID          RewardID
	RewardName        LocalizedText
	RewardDescription LocalizedText
	PointsCost        PositivePoints
	Category          RewardCategory
	Code              string
	Used              bool
	UsedUnixUTC       int64
	CreatedUnixUTC    int64
	ExpiresAtUnixUTC  int64
}

// FailedAttempt is a write-only audit row for rejected code submissions.
type FailedAttempt struct {
	UserID             string
	IPAddress          string
	Code               string
	Reason             string
	AttemptedAtUnixUTC int64
}

// PointsSummary is the balance view shown to members.
type PointsSummary struct {
	Points            Points
	ExpiringPoints    Points
	NextExpiryUnixUTC int64
}

func isCodeCharacter(character rune) bool {
	switch {
	case character >= 'A' && character <= 'Z':
		return true
	case character >= '0' && character <= '9':
		return true
	case character == '-':
		return true
	default:
		return false
	}
}
