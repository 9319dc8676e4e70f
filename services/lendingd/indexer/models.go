package indexer

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventRecord is one committed event in publication order.
type EventRecord struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Sequence    uint64    `gorm:"uniqueIndex;not null" json:"sequence"`
	Type        string    `gorm:"size:64;index" json:"type"`
	Fingerprint string    `gorm:"size:64;uniqueIndex" json:"fingerprint"`
	OfferID     *uint64   `gorm:"index" json:"offerId,omitempty"`
	ClaimID     *uint64   `gorm:"index" json:"claimId,omitempty"`
	Token       string    `gorm:"size:42;index" json:"token,omitempty"`
	Attributes  string    `gorm:"type:text" json:"attributes"`
	CreatedAt   time.Time `json:"createdAt"`
}

// LoanRecord is the read model of an accepted loan, kept current from the
// claims and lending events.
type LoanRecord struct {
	ClaimID    uint64    `gorm:"primaryKey;autoIncrement:false" json:"claimId"`
	OfferID    *uint64   `json:"offerId,omitempty"`
	Creditor   string    `gorm:"size:42;index" json:"creditor"`
	Debtor     string    `gorm:"size:42;index" json:"debtor"`
	Token      string    `gorm:"size:42" json:"token"`
	Amount     string    `gorm:"size:80" json:"amount"`
	PaidAmount string    `gorm:"size:80" json:"paidAmount"`
	Status     string    `gorm:"size:16;index" json:"status"`
	DueBy      int64     `json:"dueBy"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// AutoMigrate provisions the indexer tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&EventRecord{}, &LoanRecord{})
}
