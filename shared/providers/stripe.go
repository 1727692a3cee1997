package providers

import (
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/cryptoperk/cryptoperk-backend/shared/utils"
)

// PaymentMethod is the provider-side view of a stored card
type PaymentMethod struct {
	ID       string `json:"id"`
	Last4    string `json:"last4"`
	ExpMonth int64  `json:"exp_month"`
	ExpYear  int64  `json:"exp_year"`
	Brand    string `json:"brand"`
}

// CardDetails carries raw card fields to the payment provider
type CardDetails struct {
	Number   string
	ExpMonth int64
	ExpYear  int64
	CVC      string
}

// StripeClient wraps the Stripe API behind a circuit breaker (max 5
// failures, 30 second reset), same protection the rest of the providers get.
type StripeClient struct {
	api     *client.API
	breaker *utils.CircuitBreaker
}

// NewStripeClient creates a Stripe client from the secret key
func NewStripeClient(secretKey string) *StripeClient {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeClient{
		api:     api,
		breaker: utils.NewCircuitBreaker(5, 30*time.Second),
	}
}

// CreateCustomer creates a billing customer and returns its reference
func (s *StripeClient) CreateCustomer(email, firstname, lastname, companyName string) (string, error) {
	params := &stripe.CustomerParams{Email: stripe.String(email)}
	params.AddMetadata("firstname", firstname)
	params.AddMetadata("lastname", lastname)
	if companyName != "" {
		params.AddMetadata("companyName", companyName)
	}

	var customer *stripe.Customer
	err := s.breaker.Call(func() error {
		var callErr error
		customer, callErr = s.api.Customers.New(params)
		return callErr
	})
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	return customer.ID, nil
}

// ListPaymentMethods lists the card methods attached to a customer
func (s *StripeClient) ListPaymentMethods(customerID string) ([]PaymentMethod, error) {
	params := &stripe.PaymentMethodListParams{
		Customer: stripe.String(customerID),
		Type:     stripe.String("card"),
	}

	var methods []PaymentMethod
	err := s.breaker.Call(func() error {
		iter := s.api.PaymentMethods.List(params)
		for iter.Next() {
			pm := iter.PaymentMethod()
			if pm.Card == nil {
				continue
			}
			methods = append(methods, PaymentMethod{
				ID:       pm.ID,
				Last4:    pm.Card.Last4,
				ExpMonth: pm.Card.ExpMonth,
				ExpYear:  pm.Card.ExpYear,
				Brand:    string(pm.Card.Brand),
			})
		}
		return iter.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list payment methods: %w", err)
	}
	return methods, nil
}

// GetPaymentMethod retrieves one card method attached to a customer
func (s *StripeClient) GetPaymentMethod(customerID, paymentMethodID string) (*PaymentMethod, error) {
	params := &stripe.CustomerRetrievePaymentMethodParams{
		Customer: stripe.String(customerID),
	}

	var pm *stripe.PaymentMethod
	err := s.breaker.Call(func() error {
		var callErr error
		pm, callErr = s.api.Customers.RetrievePaymentMethod(paymentMethodID, params)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve payment method: %w", err)
	}
	if pm.Card == nil {
		return nil, fmt.Errorf("payment method %s is not a card", paymentMethodID)
	}
	return &PaymentMethod{
		ID:       pm.ID,
		Last4:    pm.Card.Last4,
		ExpMonth: pm.Card.ExpMonth,
		ExpYear:  pm.Card.ExpYear,
		Brand:    string(pm.Card.Brand),
	}, nil
}

// CreatePaymentMethod tokenizes the raw card, attaches it to the customer
// and, when makeDefault is set, redirects the customer's default pointer to
// the new method.
func (s *StripeClient) CreatePaymentMethod(customerID string, card CardDetails, makeDefault bool) (string, error) {
	var pm *stripe.PaymentMethod
	err := s.breaker.Call(func() error {
		var callErr error
		pm, callErr = s.api.PaymentMethods.New(&stripe.PaymentMethodParams{
			Type: stripe.String("card"),
			Card: &stripe.PaymentMethodCardParams{
				Number:   stripe.String(card.Number),
				ExpMonth: stripe.Int64(card.ExpMonth),
				ExpYear:  stripe.Int64(card.ExpYear),
				CVC:      stripe.String(card.CVC),
			},
		})
		return callErr
	})
	if err != nil {
		return "", fmt.Errorf("create payment method: %w", err)
	}

	err = s.breaker.Call(func() error {
		_, callErr := s.api.PaymentMethods.Attach(pm.ID, &stripe.PaymentMethodAttachParams{
			Customer: stripe.String(customerID),
		})
		return callErr
	})
	if err != nil {
		return "", fmt.Errorf("attach payment method: %w", err)
	}

	if makeDefault {
		if err := s.SetDefaultPaymentMethod(customerID, pm.ID); err != nil {
			return "", err
		}
	}
	return pm.ID, nil
}

// UpdatePaymentMethod pushes a new expiry to the provider
func (s *StripeClient) UpdatePaymentMethod(paymentMethodID string, expMonth, expYear int64) error {
	err := s.breaker.Call(func() error {
		_, callErr := s.api.PaymentMethods.Update(paymentMethodID, &stripe.PaymentMethodParams{
			Card: &stripe.PaymentMethodCardParams{
				ExpMonth: stripe.Int64(expMonth),
				ExpYear:  stripe.Int64(expYear),
			},
		})
		return callErr
	})
	if err != nil {
		return fmt.Errorf("update payment method: %w", err)
	}
	return nil
}

// SetDefaultPaymentMethod points the customer's invoice default at a method
func (s *StripeClient) SetDefaultPaymentMethod(customerID, paymentMethodID string) error {
	err := s.breaker.Call(func() error {
		_, callErr := s.api.Customers.Update(customerID, &stripe.CustomerParams{
			InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
				DefaultPaymentMethod: stripe.String(paymentMethodID),
			},
		})
		return callErr
	})
	if err != nil {
		return fmt.Errorf("set default payment method: %w", err)
	}
	return nil
}

// DetachPaymentMethod detaches a method. When newDefaultID is non-empty the
// customer's default pointer is redirected to it before the detach.
func (s *StripeClient) DetachPaymentMethod(paymentMethodID, newDefaultID, customerID string) error {
	if newDefaultID != "" {
		if err := s.SetDefaultPaymentMethod(customerID, newDefaultID); err != nil {
			return err
		}
	}
	err := s.breaker.Call(func() error {
		_, callErr := s.api.PaymentMethods.Detach(paymentMethodID, nil)
		return callErr
	})
	if err != nil {
		return fmt.Errorf("detach payment method: %w", err)
	}
	return nil
}

// DeleteCustomer detaches every method attached to the customer and then
// deletes the customer itself.
func (s *StripeClient) DeleteCustomer(customerID string) error {
	methods, err := s.ListPaymentMethods(customerID)
	if err != nil {
		return err
	}
	for _, method := range methods {
		if err := s.DetachPaymentMethod(method.ID, "", ""); err != nil {
			return err
		}
	}
	err = s.breaker.Call(func() error {
		_, callErr := s.api.Customers.Del(customerID, nil)
		return callErr
	})
	if err != nil {
		return fmt.Errorf("delete customer: %w", err)
	}
	return nil
}
