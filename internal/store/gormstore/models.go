package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Account represents the accounts table.
type Account struct {
	UserID              string     `gorm:"primaryKey"`
	Points              int64      `gorm:"not null;default:0;check:chk_accounts_points_non_negative,points >= 0"`
	LastCheckInLocation *string    `gorm:""`
	LastCheckInAt       *time.Time `gorm:""`
	CreatedAt           time.Time  `gorm:"not null"`
	UpdatedAt           time.Time  `gorm:"not null"`
}

func (Account) TableName() string { return "accounts" }

// LedgerEntry mirrors the ledger_entries table.
type LedgerEntry struct {
	EntryID       string         `gorm:"type:uuid;primaryKey"`
	UserID        string         `gorm:"not null;index:idx_ledger_user_created,priority:1"`
	Type          string         `gorm:"not null"`
	PointsDelta   int64          `gorm:"not null"`
	CorrelationID string         `gorm:"not null;index"`
	Details       datatypes.JSON `gorm:"not null"`
	CreatedAt     time.Time      `gorm:"not null;index:idx_ledger_user_created,priority:2"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

func (entry *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	return nil
}

// Code mirrors the codes table. The check character is never stored.
type Code struct {
	CodeID          string     `gorm:"type:uuid;primaryKey"`
	Code            string     `gorm:"not null;uniqueIndex:uniq_codes_code"`
	Used            bool       `gorm:"not null;default:false"`
	PointsAwarded   int64      `gorm:"not null;default:0"`
	UsedBy          *string    `gorm:""`
	UsedAt          *time.Time `gorm:""`
	ExpiresAt       time.Time  `gorm:"not null"`
	OrderType       string     `gorm:"not null;default:''"`
	DeliveryPartner string     `gorm:"not null;default:''"`
	CreatedAt       time.Time  `gorm:"not null"`
}

func (Code) TableName() string { return "codes" }

func (code *Code) BeforeCreate(tx *gorm.DB) error {
	if code.CodeID == "" {
		code.CodeID = uuid.NewString()
	}
	return nil
}

// Reward mirrors the rewards table.
type Reward struct {
	RewardID      string    `gorm:"primaryKey"`
	PointsCost    int64     `gorm:"not null"`
	Category      string    `gorm:"not null"`
	NameJA        string    `gorm:"column:name_ja;not null;default:''"`
	NameEN        string    `gorm:"column:name_en;not null;default:''"`
	DescriptionJA string    `gorm:"column:description_ja;not null;default:''"`
	DescriptionEN string    `gorm:"column:description_en;not null;default:''"`
	Active        bool      `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

func (Reward) TableName() string { return "rewards" }

// Redemption mirrors the redemptions table.
type Redemption struct {
	RedemptionID  string     `gorm:"type:uuid;primaryKey"`
	UserID        string     `gorm:"not null;index:idx_redemptions_user_expires,priority:1"`
	RewardID      string     `gorm:"not null"`
	NameJA        string     `gorm:"column:name_ja;not null;default:''"`
	NameEN        string     `gorm:"column:name_en;not null;default:''"`
	DescriptionJA string     `gorm:"column:description_ja;not null;default:''"`
	DescriptionEN string     `gorm:"column:description_en;not null;default:''"`
	PointsCost    int64      `gorm:"not null"`
	Category      string     `gorm:"not null"`
	Code          string     `gorm:"not null"`
	Used          bool       `gorm:"not null;default:false"`
	UsedAt        *time.Time `gorm:""`
	ExpiresAt     time.Time  `gorm:"not null;index:idx_redemptions_user_expires,priority:2"`
	CreatedAt     time.Time  `gorm:"not null"`
}

func (Redemption) TableName() string { return "redemptions" }

// RateLimitCounter mirrors the rate_limit_counters table.
type RateLimitCounter struct {
	ScopeKey  string    `gorm:"primaryKey"`
	Count     int64     `gorm:"not null"`
	ResetAt   time.Time `gorm:"not null"`
	Alerted   bool      `gorm:"not null;default:false"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (RateLimitCounter) TableName() string { return "rate_limit_counters" }

// FailedAttempt mirrors the failed_attempts audit table.
type FailedAttempt struct {
	AttemptID   string    `gorm:"type:uuid;primaryKey"`
	UserID      string    `gorm:"not null;index"`
	IPAddress   string    `gorm:"not null;default:''"`
	Code        string    `gorm:"not null;default:''"`
	Reason      string    `gorm:"not null"`
	AttemptedAt time.Time `gorm:"not null;index"`
}

func (FailedAttempt) TableName() string { return "failed_attempts" }

func (attempt *FailedAttempt) BeforeCreate(tx *gorm.DB) error {
	if attempt.AttemptID == "" {
		attempt.AttemptID = uuid.NewString()
	}
	return nil
}

// OperatorAlert mirrors the operator_alerts table.
type OperatorAlert struct {
	AlertID       string    `gorm:"type:uuid;primaryKey"`
	ScopeKey      string    `gorm:"not null;uniqueIndex:uniq_alert_window,priority:1"`
	Count         int64     `gorm:"not null"`
	WindowResetAt time.Time `gorm:"not null;uniqueIndex:uniq_alert_window,priority:2"`
	RaisedAt      time.Time `gorm:"not null"`
}

func (OperatorAlert) TableName() string { return "operator_alerts" }

func (alert *OperatorAlert) BeforeCreate(tx *gorm.DB) error {
	if alert.AlertID == "" {
		alert.AlertID = uuid.NewString()
	}
	return nil
}

// Models lists every table for AutoMigrate.
func Models() []any {
	return []any{
		&Account{},
		&LedgerEntry{},
		&Code{},
		&Reward{},
		&Redemption{},
		&RateLimitCounter{},
		&FailedAttempt{},
		&OperatorAlert{},
	}
}
