package billing

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cryptoperk/cryptoperk-backend/shared/models"
)

// Owner abstracts the two kinds of card owners (company and user) so one
// consistency routine serves both billing flows.
type Owner interface {
	// OwnerID is the owning row's primary key.
	OwnerID() uuid.UUID
	// ForeignKey is the cards column referencing the owner.
	ForeignKey() string
	// CustomerID is the billing-customer reference, empty when none exists yet.
	CustomerID() string
	// BillingEmail is the address the billing customer is created with.
	BillingEmail() string
	// CompanyName is the company label for the billing customer, empty for users.
	CompanyName() string
	// AttachCustomer persists a freshly created billing-customer reference.
	AttachCustomer(db *gorm.DB, customerID string) error
	// NewCard builds a card row pointing at this owner.
	NewCard(paymentMethodID string, isDefault bool) models.Card
}

type companyOwner struct {
	company      *models.Company
	billingEmail string
}

// CompanyOwner wraps a company as a card owner. The billing email is the
// managing admin's address since companies have none of their own.
func CompanyOwner(company *models.Company, billingEmail string) Owner {
	return &companyOwner{company: company, billingEmail: billingEmail}
}

func (o *companyOwner) OwnerID() uuid.UUID { return o.company.ID }

func (o *companyOwner) ForeignKey() string { return "company_id" }

func (o *companyOwner) CustomerID() string {
	if o.company.CustomerID == nil {
		return ""
	}
	return *o.company.CustomerID
}

func (o *companyOwner) BillingEmail() string { return o.billingEmail }

func (o *companyOwner) CompanyName() string { return o.company.Name }

func (o *companyOwner) AttachCustomer(db *gorm.DB, customerID string) error {
	if err := db.Model(&models.Company{}).
		Where("id = ?", o.company.ID).
		Update("customer_id", customerID).Error; err != nil {
		return err
	}
	o.company.CustomerID = &customerID
	return nil
}

func (o *companyOwner) NewCard(paymentMethodID string, isDefault bool) models.Card {
	id := o.company.ID
	return models.Card{
		PaymentMethodID: paymentMethodID,
		IsDefault:       isDefault,
		CompanyID:       &id,
	}
}

type userOwner struct {
	user *models.User
}

// UserOwner wraps a user as a card owner
func UserOwner(user *models.User) Owner {
	return &userOwner{user: user}
}

func (o *userOwner) OwnerID() uuid.UUID { return o.user.ID }

func (o *userOwner) ForeignKey() string { return "user_id" }

func (o *userOwner) CustomerID() string {
	if o.user.CustomerID == nil {
		return ""
	}
	return *o.user.CustomerID
}

func (o *userOwner) BillingEmail() string { return o.user.Email }

func (o *userOwner) CompanyName() string { return "" }

func (o *userOwner) AttachCustomer(db *gorm.DB, customerID string) error {
	if err := db.Model(&models.User{}).
		Where("id = ?", o.user.ID).
		Update("customer_id", customerID).Error; err != nil {
		return err
	}
	o.user.CustomerID = &customerID
	return nil
}

func (o *userOwner) NewCard(paymentMethodID string, isDefault bool) models.Card {
	id := o.user.ID
	return models.Card{
		PaymentMethodID: paymentMethodID,
		IsDefault:       isDefault,
		UserID:          &id,
	}
}
