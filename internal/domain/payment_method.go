package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

type PaymentMethodKind string

const (
	PaymentMethodCard         PaymentMethodKind = "card"
	PaymentMethodMobileMoney  PaymentMethodKind = "mobile_money"
	PaymentMethodBankTransfer PaymentMethodKind = "bank_transfer"
	PaymentMethodCash         PaymentMethodKind = "cash"
)

// PaymentMethod is one of CardPayment, MobileMoneyPayment, BankTransferPayment or CashPayment.
type PaymentMethod interface {
	Kind() PaymentMethodKind
	Validate(now time.Time) error
}

// CardPayment carries either a gateway token or raw card fields to tokenize.
type CardPayment struct {
	Token       string `json:"token,omitempty"`
	Number      string `json:"number,omitempty"`
	HolderName  string `json:"holderName,omitempty"`
	ExpiryMonth int    `json:"expiryMonth,omitempty"`
	ExpiryYear  int    `json:"expiryYear,omitempty"`
	CVC         string `json:"cvc,omitempty"`
}

// MobileMoneyPayment charges a wallet bound to a phone number.
type MobileMoneyPayment struct {
	PhoneNumber string `json:"phoneNumber"`
	Provider    string `json:"provider"`
}

// BankTransferPayment charges a bank account.
type BankTransferPayment struct {
	BankCode      string `json:"bankCode"`
	AccountNumber string `json:"accountNumber"`
	AccountName   string `json:"accountName"`
}

// CashPayment is collected on site and never reaches the gateway.
type CashPayment struct{}

func (CardPayment) Kind() PaymentMethodKind         { return PaymentMethodCard }
func (MobileMoneyPayment) Kind() PaymentMethodKind  { return PaymentMethodMobileMoney }
func (BankTransferPayment) Kind() PaymentMethodKind { return PaymentMethodBankTransfer }
func (CashPayment) Kind() PaymentMethodKind         { return PaymentMethodCash }

var (
	digitsOnly   = regexp.MustCompile(`^[0-9]+$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9]{8,15}$`)
	bankCode     = regexp.MustCompile(`^[A-Za-z0-9_]{2,32}$`)
)

func (c CardPayment) Validate(now time.Time) error {
	if c.Token != "" {
		if c.Number != "" || c.CVC != "" {
			return fmt.Errorf("%w: card token and raw card fields are mutually exclusive", ErrInvalidPaymentMethod)
		}
		return nil
	}
	number := strings.ReplaceAll(c.Number, " ", "")
	if len(number) < 12 || len(number) > 19 || !digitsOnly.MatchString(number) || !luhnValid(number) {
		return fmt.Errorf("%w: invalid card number", ErrInvalidPaymentMethod)
	}
	if strings.TrimSpace(c.HolderName) == "" {
		return fmt.Errorf("%w: card holder name is required", ErrInvalidPaymentMethod)
	}
	if c.ExpiryMonth < 1 || c.ExpiryMonth > 12 {
		return fmt.Errorf("%w: invalid expiry month", ErrInvalidPaymentMethod)
	}
	// A card is valid through the last day of its expiry month.
	expires := time.Date(c.ExpiryYear, time.Month(c.ExpiryMonth)+1, 1, 0, 0, 0, 0, time.UTC)
	if !now.Before(expires) {
		return fmt.Errorf("%w: card expired", ErrInvalidPaymentMethod)
	}
	if (len(c.CVC) != 3 && len(c.CVC) != 4) || !digitsOnly.MatchString(c.CVC) {
		return fmt.Errorf("%w: invalid security code", ErrInvalidPaymentMethod)
	}
	return nil
}

func (m MobileMoneyPayment) Validate(time.Time) error {
	if !phonePattern.MatchString(strings.ReplaceAll(m.PhoneNumber, " ", "")) {
		return fmt.Errorf("%w: invalid mobile number", ErrInvalidPaymentMethod)
	}
	if strings.TrimSpace(m.Provider) == "" {
		return fmt.Errorf("%w: mobile money provider is required", ErrInvalidPaymentMethod)
	}
	return nil
}

func (b BankTransferPayment) Validate(time.Time) error {
	if !bankCode.MatchString(b.BankCode) {
		return fmt.Errorf("%w: invalid bank code", ErrInvalidPaymentMethod)
	}
	account := strings.ReplaceAll(b.AccountNumber, "-", "")
	if len(account) < 6 || len(account) > 34 || !digitsOnly.MatchString(account) {
		return fmt.Errorf("%w: invalid bank account number", ErrInvalidPaymentMethod)
	}
	if strings.TrimSpace(b.AccountName) == "" {
		return fmt.Errorf("%w: account name is required", ErrInvalidPaymentMethod)
	}
	return nil
}

func (CashPayment) Validate(time.Time) error { return nil }

// DecodePaymentMethod reads {"type": ..., <fields>} into the matching variant.
// Unknown types and fields that do not belong to the variant are rejected.
func DecodePaymentMethod(raw json.RawMessage) (PaymentMethod, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, fmt.Errorf("%w: payment details are required", ErrInvalidPaymentMethod)
	}

	var head struct {
		Type PaymentMethodKind `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPaymentMethod, err)
	}

	switch head.Type {
	case PaymentMethodCard:
		var v struct {
			Type PaymentMethodKind `json:"type"`
			CardPayment
		}
		if err := strictDecode(raw, &v); err != nil {
			return nil, err
		}
		return v.CardPayment, nil
	case PaymentMethodMobileMoney:
		var v struct {
			Type PaymentMethodKind `json:"type"`
			MobileMoneyPayment
		}
		if err := strictDecode(raw, &v); err != nil {
			return nil, err
		}
		return v.MobileMoneyPayment, nil
	case PaymentMethodBankTransfer:
		var v struct {
			Type PaymentMethodKind `json:"type"`
			BankTransferPayment
		}
		if err := strictDecode(raw, &v); err != nil {
			return nil, err
		}
		return v.BankTransferPayment, nil
	case PaymentMethodCash:
		var v struct {
			Type PaymentMethodKind `json:"type"`
		}
		if err := strictDecode(raw, &v); err != nil {
			return nil, err
		}
		return CashPayment{}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported type %q", ErrInvalidPaymentMethod, head.Type)
	}
}

func strictDecode(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPaymentMethod, err)
	}
	return nil
}

func luhnValid(number string) bool {
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
