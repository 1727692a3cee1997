package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TransactionStatus represents the status of a kudos transaction
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "Pending"
	TransactionCompleted TransactionStatus = "Completed"
	TransactionFailed    TransactionStatus = "Failed"
)

// KudosTransaction is one row of the append-only kudos ledger. Rows are
// immutable once created.
type KudosTransaction struct {
	ID          uuid.UUID         `json:"id" gorm:"type:uuid;primary_key"`
	SenderID    uuid.UUID         `json:"sender_id" gorm:"type:uuid;not null;index"`
	RecipientID uuid.UUID         `json:"recipient_id" gorm:"type:uuid;not null;index"`
	Amount      int               `json:"amount" gorm:"not null"`
	Status      TransactionStatus `json:"status" gorm:"type:varchar(20);not null;default:'Pending'"`
	CreatedAt   time.Time         `json:"created_at"`

	Sender    *User `json:"sender,omitempty" gorm:"foreignKey:SenderID"`
	Recipient *User `json:"recipient,omitempty" gorm:"foreignKey:RecipientID"`
}

func (KudosTransaction) TableName() string {
	return "kudos_transactions"
}

func (t *KudosTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
