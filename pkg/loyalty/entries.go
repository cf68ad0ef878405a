package loyalty

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EntryType enumerates ledger entry kinds.
type EntryType string

const (
	EntryDeliveryCode     EntryType = "delivery_code"
	EntryStoreVisit       EntryType = "store_visit"
	EntryRewardRedemption EntryType = "reward_redemption"
	EntryAdminAdjustment  EntryType = "admin_adjustment"
)

// ParseEntryType validates a stored entry type.
func ParseEntryType(raw string) (EntryType, error) {
	switch EntryType(strings.TrimSpace(raw)) {
	case EntryDeliveryCode:
		return EntryDeliveryCode, nil
	case EntryStoreVisit:
		return EntryStoreVisit, nil
	case EntryRewardRedemption:
		return EntryRewardRedemption, nil
	case EntryAdminAdjustment:
		return EntryAdminAdjustment, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidEntryType, raw)
	}
}

// String returns the entry type tag.
func (entryType EntryType) String() string {
	return string(entryType)
}

// EntryDetails is the type-specific payload of a ledger entry. Each entry type
// has exactly one details type.
type EntryDetails interface {
	EntryType() EntryType
	CorrelationID() string
	validate(delta PointsDelta) error
}

// DeliveryCodeDetails describes points earned from a delivery order code.
type DeliveryCodeDetails struct {
	CodeID          string `json:"code_id"`
	OrderType       string `json:"order_type,omitempty"`
	DeliveryPartner string `json:"delivery_partner,omitempty"`
}

func (DeliveryCodeDetails) EntryType() EntryType { return EntryDeliveryCode }

func (details DeliveryCodeDetails) CorrelationID() string { return details.CodeID }

func (details DeliveryCodeDetails) validate(delta PointsDelta) error {
	if strings.TrimSpace(details.CodeID) == "" {
		return fmt.Errorf("%w: code id is required", ErrInvalidEntryDetails)
	}
	if delta <= 0 {
		return fmt.Errorf("%w: delivery code entries must credit", ErrInvalidPointsDelta)
	}
	return nil
}

// StoreVisitDetails describes points earned from a QR check-in.
type StoreVisitDetails struct {
	LocationID     string  `json:"location_id"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	DistanceMeters float64 `json:"distance_meters"`
}

func (StoreVisitDetails) EntryType() EntryType { return EntryStoreVisit }

func (details StoreVisitDetails) CorrelationID() string { return details.LocationID }

func (details StoreVisitDetails) validate(delta PointsDelta) error {
	if strings.TrimSpace(details.LocationID) == "" {
		return fmt.Errorf("%w: location id is required", ErrInvalidEntryDetails)
	}
	if delta <= 0 {
		return fmt.Errorf("%w: store visit entries must credit", ErrInvalidPointsDelta)
	}
	return nil
}

// RewardRedemptionDetails describes points spent on a reward.
type RewardRedemptionDetails struct {
	RewardID     string `json:"reward_id"`
	RedemptionID string `json:"redemption_id"`
}

func (RewardRedemptionDetails) EntryType() EntryType { return EntryRewardRedemption }

func (details RewardRedemptionDetails) CorrelationID() string { return details.RewardID }

func (details RewardRedemptionDetails) validate(delta PointsDelta) error {
	if strings.TrimSpace(details.RewardID) == "" || strings.TrimSpace(details.RedemptionID) == "" {
		return fmt.Errorf("%w: reward and redemption ids are required", ErrInvalidEntryDetails)
	}
	if delta >= 0 {
		return fmt.Errorf("%w: reward redemption entries must debit", ErrInvalidPointsDelta)
	}
	return nil
}

// AdminAdjustmentDetails describes a manual correction by staff.
type AdminAdjustmentDetails struct {
	AdminID string `json:"admin_id"`
	Note    string `json:"note,omitempty"`
}

func (AdminAdjustmentDetails) EntryType() EntryType { return EntryAdminAdjustment }

func (details AdminAdjustmentDetails) CorrelationID() string { return details.AdminID }

func (details AdminAdjustmentDetails) validate(_ PointsDelta) error {
	if strings.TrimSpace(details.AdminID) == "" {
		return fmt.Errorf("%w: admin id is required", ErrInvalidEntryDetails)
	}
	return nil
}

// MarshalEntryDetails encodes details for persistence.
func MarshalEntryDetails(details EntryDetails) ([]byte, error) {
	if details == nil {
		return nil, fmt.Errorf("%w: nil details", ErrInvalidEntryDetails)
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntryDetails, err)
	}
	return raw, nil
}

// UnmarshalEntryDetails decodes persisted details using the entry type as tag.
func UnmarshalEntryDetails(entryType EntryType, raw []byte) (EntryDetails, error) {
	var (
		details EntryDetails
		err     error
	)
	switch entryType {
	case EntryDeliveryCode:
		var value DeliveryCodeDetails
		err = json.Unmarshal(raw, &value)
		details = value
	case EntryStoreVisit:
		var value StoreVisitDetails
		err = json.Unmarshal(raw, &value)
		details = value
	case EntryRewardRedemption:
		var value RewardRedemptionDetails
		err = json.Unmarshal(raw, &value)
		details = value
	case EntryAdminAdjustment:
		var value AdminAdjustmentDetails
		err = json.Unmarshal(raw, &value)
		details = value
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidEntryType, entryType)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntryDetails, err)
	}
	return details, nil
}

// EntryInput is a validated ledger entry ready to be appended.
type EntryInput struct {
	userID         UserID
	delta          PointsDelta
	details        EntryDetails
	createdUnixUTC int64
}

// NewEntryInput validates the entry against the rules of its details type.
func NewEntryInput(userID UserID, delta PointsDelta, details EntryDetails, createdUnixUTC int64) (EntryInput, error) {
	if userID.IsZero() {
		return EntryInput{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	if delta == 0 {
		return EntryInput{}, fmt.Errorf("%w: must not be zero", ErrInvalidPointsDelta)
	}
	if details == nil {
		return EntryInput{}, fmt.Errorf("%w: nil details", ErrInvalidEntryDetails)
	}
	if err := details.validate(delta); err != nil {
		return EntryInput{}, err
	}
	return EntryInput{
		userID:         userID,
		delta:          delta,
		details:        details,
		createdUnixUTC: createdUnixUTC,
	}, nil
}

// UserID returns the owner of the entry.
func (input EntryInput) UserID() UserID { return input.userID }

// Type returns the entry type derived from its details.
func (input EntryInput) Type() EntryType { return input.details.EntryType() }

// PointsDelta returns the signed change.
func (input EntryInput) PointsDelta() PointsDelta { return input.delta }

// Details returns the typed payload.
func (input EntryInput) Details() EntryDetails { return input.details }

// CorrelationID returns the id of the code, location, reward or admin behind the entry.
func (input EntryInput) CorrelationID() string { return input.details.CorrelationID() }

// CreatedUnixUTC returns the creation timestamp.
func (input EntryInput) CreatedUnixUTC() int64 { return input.createdUnixUTC }

// Entry is a single immutable line in the ledger.
type Entry struct {
	entryID EntryID
	EntryInput
}

// NewEntry pairs a stored id with validated entry content.
func NewEntry(entryID EntryID, input EntryInput) (Entry, error) {
	if entryID.String() == "" {
		return Entry{}, fmt.Errorf("%w: empty value", ErrInvalidEntryID)
	}
	return Entry{entryID: entryID, EntryInput: input}, nil
}

// EntryID returns the stored identifier.
func (entry Entry) EntryID() EntryID { return entry.entryID }

// EntryCursor positions a newest-first ledger page. Entries strictly older
// than the cursor are returned; BeforeEntryID orders entries sharing a second.
type EntryCursor struct {
	BeforeUnixUTC int64
	BeforeEntryID string
}

// NextEntryCursor returns the cursor that continues a page ending at entry.
func NextEntryCursor(entry Entry) EntryCursor {
	return EntryCursor{BeforeUnixUTC: entry.CreatedUnixUTC(), BeforeEntryID: entry.EntryID().String()}
}

// Admits reports whether entry belongs to the page after the cursor.
func (cursor EntryCursor) Admits(entry Entry) bool {
	if entry.CreatedUnixUTC() < cursor.BeforeUnixUTC {
		return true
	}
	return cursor.BeforeEntryID != "" &&
		entry.CreatedUnixUTC() == cursor.BeforeUnixUTC &&
		entry.EntryID().String() < cursor.BeforeEntryID
}
