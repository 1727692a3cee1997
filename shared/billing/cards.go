// Package billing keeps each owner's stored cards consistent with the
// "exactly one default, if any" rule across add/update/make-default/delete,
// mirroring state into the external payment provider.
//
// No transaction spans the provider and the datastore, so every multi-write
// routine mutates the provider first and storage after, except delete where
// the local row goes first: a local row pointing at an already-detached
// method is a worse failure mode than a detached method still referenced
// locally.
package billing

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cryptoperk/cryptoperk-backend/shared/apperrors"
	"github.com/cryptoperk/cryptoperk-backend/shared/models"
	"github.com/cryptoperk/cryptoperk-backend/shared/providers"
)

// ErrNoBillingCustomer is returned by GetCards when the owner has no
// billing-customer reference at all. Callers must distinguish this from a
// customer with zero cards.
var ErrNoBillingCustomer = errors.New("owner has no billing customer")

// PaymentProvider is the slice of the payment provider the card routine needs
type PaymentProvider interface {
	CreateCustomer(email, firstname, lastname, companyName string) (string, error)
	ListPaymentMethods(customerID string) ([]providers.PaymentMethod, error)
	CreatePaymentMethod(customerID string, card providers.CardDetails, makeDefault bool) (string, error)
	UpdatePaymentMethod(paymentMethodID string, expMonth, expYear int64) error
	SetDefaultPaymentMethod(customerID, paymentMethodID string) error
	DetachPaymentMethod(paymentMethodID, newDefaultID, customerID string) error
}

// AddCardRequest carries the raw card fields for AddCard
type AddCardRequest struct {
	Firstname string
	Lastname  string
	Number    string
	ExpMonth  int64
	ExpYear   int64
	CVC       string
	IsDefault bool
}

// CardInfo is a stored card joined with the provider's live card data
type CardInfo struct {
	ID        uuid.UUID `json:"id"`
	IsDefault bool      `json:"is_default"`
	Last4     string    `json:"last4"`
	ExpMonth  int64     `json:"exp_month"`
	ExpYear   int64     `json:"exp_year"`
	Brand     string    `json:"brand"`
}

// CardService is the card consistency routine shared by the company-billing
// and user-billing flows.
type CardService struct {
	db       *gorm.DB
	payments PaymentProvider
}

// NewCardService creates the routine over the given store and provider
func NewCardService(db *gorm.DB, payments PaymentProvider) *CardService {
	return &CardService{db: db, payments: payments}
}

// AddCard tokenizes and stores a new card for the owner. The first card for
// an owner is always default regardless of the requested flag; the same
// forcing applies when the billing customer exists but carries no methods.
func (s *CardService) AddCard(owner Owner, req AddCardRequest) (string, error) {
	details := providers.CardDetails{
		Number:   req.Number,
		ExpMonth: req.ExpMonth,
		ExpYear:  req.ExpYear,
		CVC:      req.CVC,
	}

	if owner.CustomerID() == "" {
		customerID, err := s.payments.CreateCustomer(
			owner.BillingEmail(), req.Firstname, req.Lastname, owner.CompanyName())
		if err != nil {
			return "", apperrors.Upstream(err.Error())
		}
		if err := owner.AttachCustomer(s.db, customerID); err != nil {
			return "", err
		}
		paymentMethodID, err := s.payments.CreatePaymentMethod(customerID, details, true)
		if err != nil {
			return "", apperrors.Upstream(err.Error())
		}
		card := owner.NewCard(paymentMethodID, true)
		if err := s.db.Create(&card).Error; err != nil {
			return "", err
		}
		return "Card has been saved", nil
	}

	methods, err := s.payments.ListPaymentMethods(owner.CustomerID())
	if err != nil {
		return "", apperrors.Upstream(err.Error())
	}

	makeDefault := req.IsDefault
	if len(methods) == 0 {
		// Customer exists but has no methods attached yet.
		makeDefault = true
	} else if makeDefault {
		// Demote the current default before the new card lands.
		var current models.Card
		err := s.db.Where(owner.ForeignKey()+" = ? AND is_default = ?", owner.OwnerID(), true).
			First(&current).Error
		if err == nil {
			if err := s.db.Model(&models.Card{}).
				Where("id = ?", current.ID).
				Update("is_default", false).Error; err != nil {
				return "", err
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", err
		}
	}

	paymentMethodID, err := s.payments.CreatePaymentMethod(owner.CustomerID(), details, makeDefault)
	if err != nil {
		return "", apperrors.Upstream(err.Error())
	}
	card := owner.NewCard(paymentMethodID, makeDefault)
	if err := s.db.Create(&card).Error; err != nil {
		return "", err
	}
	return "Card has been saved", nil
}

// UpdateCard pushes a new expiry to the provider. The default flag is not
// touched.
func (s *CardService) UpdateCard(owner Owner, cardID uuid.UUID, expMonth, expYear int64) (string, error) {
	card, err := s.ownedCard(owner, cardID)
	if err != nil {
		return "", err
	}
	if err := s.payments.UpdatePaymentMethod(card.PaymentMethodID, expMonth, expYear); err != nil {
		return "", apperrors.Upstream(err.Error())
	}
	return "Card info has been updated", nil
}

// MakeDefault makes the target card the owner's default. Calling it on the
// card that already is default succeeds without touching the provider.
func (s *CardService) MakeDefault(owner Owner, cardID uuid.UUID) (string, error) {
	card, err := s.ownedCard(owner, cardID)
	if err != nil {
		return "", err
	}

	var oldDefault models.Card
	hasOldDefault := true
	err = s.db.Where(owner.ForeignKey()+" = ? AND is_default = ?", owner.OwnerID(), true).
		First(&oldDefault).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		hasOldDefault = false
	} else if err != nil {
		return "", err
	}

	if hasOldDefault && oldDefault.ID == card.ID {
		return "Card is already default", nil
	}

	if err := s.payments.SetDefaultPaymentMethod(owner.CustomerID(), card.PaymentMethodID); err != nil {
		return "", apperrors.Upstream(err.Error())
	}
	if err := s.db.Model(&models.Card{}).
		Where("id = ?", card.ID).
		Update("is_default", true).Error; err != nil {
		return "", err
	}
	if hasOldDefault {
		if err := s.db.Model(&models.Card{}).
			Where("id = ?", oldDefault.ID).
			Update("is_default", false).Error; err != nil {
			return "", err
		}
	}
	return "Changes have been saved", nil
}

// DeleteCard removes the card locally, then detaches it at the provider.
// When the deleted card was default and other cards remain, an arbitrary
// remaining card is promoted and the detach call redirects the customer's
// default pointer to it in the same provider call.
func (s *CardService) DeleteCard(owner Owner, cardID uuid.UUID) (string, error) {
	card, err := s.ownedCard(owner, cardID)
	if err != nil {
		return "", err
	}

	if err := s.db.Delete(&models.Card{}, "id = ?", card.ID).Error; err != nil {
		return "", err
	}

	if card.IsDefault {
		var next models.Card
		err := s.db.Where(owner.ForeignKey()+" = ?", owner.OwnerID()).First(&next).Error
		if err == nil {
			if err := s.db.Model(&models.Card{}).
				Where("id = ?", next.ID).
				Update("is_default", true).Error; err != nil {
				return "", err
			}
			if err := s.payments.DetachPaymentMethod(
				card.PaymentMethodID, next.PaymentMethodID, owner.CustomerID()); err != nil {
				return "", apperrors.Upstream(err.Error())
			}
			return "Card has been deleted", nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", err
		}
	}

	if err := s.payments.DetachPaymentMethod(card.PaymentMethodID, "", ""); err != nil {
		return "", apperrors.Upstream(err.Error())
	}
	return "Card has been deleted", nil
}

// GetCards joins the owner's stored cards against the provider's live
// listing. Returns ErrNoBillingCustomer when the owner has no customer
// reference at all.
func (s *CardService) GetCards(owner Owner) ([]CardInfo, error) {
	if owner.CustomerID() == "" {
		return nil, ErrNoBillingCustomer
	}

	methods, err := s.payments.ListPaymentMethods(owner.CustomerID())
	if err != nil {
		return nil, apperrors.Upstream(err.Error())
	}
	byID := make(map[string]providers.PaymentMethod, len(methods))
	for _, method := range methods {
		byID[method.ID] = method
	}

	var cards []models.Card
	if err := s.db.Where(owner.ForeignKey()+" = ?", owner.OwnerID()).Find(&cards).Error; err != nil {
		return nil, err
	}

	infos := make([]CardInfo, 0, len(cards))
	for _, card := range cards {
		method, ok := byID[card.PaymentMethodID]
		if !ok {
			continue
		}
		infos = append(infos, CardInfo{
			ID:        card.ID,
			IsDefault: card.IsDefault,
			Last4:     method.Last4,
			ExpMonth:  method.ExpMonth,
			ExpYear:   method.ExpYear,
			Brand:     method.Brand,
		})
	}
	return infos, nil
}

func (s *CardService) ownedCard(owner Owner, cardID uuid.UUID) (*models.Card, error) {
	var card models.Card
	err := s.db.Where("id = ? AND "+owner.ForeignKey()+" = ?", cardID, owner.OwnerID()).
		First(&card).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("Card not found")
	}
	if err != nil {
		return nil, fmt.Errorf("lookup card %s: %w", cardID, err)
	}
	return &card, nil
}
