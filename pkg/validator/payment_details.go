package validator

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Card details are "number|MM/YY|cvv[|holder name]".
// Bank transfer details are "bank code|account number[|account name]".

var (
	// ErrEmptyDetails indicates no payment details were supplied
	ErrEmptyDetails = errors.New("payment details cannot be empty")

	// ErrMalformedDetails indicates the details do not have the expected fields
	ErrMalformedDetails = errors.New("payment details are malformed")

	// ErrInvalidCardNumber indicates a card number that fails length or checksum
	ErrInvalidCardNumber = errors.New("card number is invalid")

	// ErrCardExpired indicates an expiry month in the past
	ErrCardExpired = errors.New("card has expired")

	// ErrInvalidExpiry indicates an unparsable expiry date
	ErrInvalidExpiry = errors.New("card expiry must be MM/YY")

	// ErrInvalidCVV indicates a CVV that is not 3 or 4 digits
	ErrInvalidCVV = errors.New("card security code must be 3 or 4 digits")

	// ErrInvalidBankCode indicates a bank code that is not 4 digits
	ErrInvalidBankCode = errors.New("bank code must be 4 digits")

	// ErrInvalidAccountNumber indicates an account number that is not 6-18 digits
	ErrInvalidAccountNumber = errors.New("account number must be 6 to 18 digits")
)

var (
	digitsRegex = regexp.MustCompile(`^\d+$`)
	expiryRegex = regexp.MustCompile(`^(0[1-9]|1[0-2])/(\d{2})$`)
)

// CardDetails is a parsed card
type CardDetails struct {
	Number      string
	ExpiryMonth int
	ExpiryYear  int
	CVV         string
	Holder      string
}

// Last4 returns the last four digits of the card number
func (c *CardDetails) Last4() string {
	return c.Number[len(c.Number)-4:]
}

// BankAccountDetails is a parsed bank account
type BankAccountDetails struct {
	BankCode      string
	AccountNumber string
	AccountName   string
}

// PaymentDetailsValidator validates opaque payment detail strings
type PaymentDetailsValidator struct {
	now func() time.Time
}

// NewPaymentDetailsValidator creates a new payment details validator instance
func NewPaymentDetailsValidator() *PaymentDetailsValidator {
	return &PaymentDetailsValidator{now: time.Now}
}

// ValidateCard parses and validates card details
func (v *PaymentDetailsValidator) ValidateCard(details string) (*CardDetails, error) {
	if strings.TrimSpace(details) == "" {
		return nil, ErrEmptyDetails
	}

	parts := splitDetails(details)
	if len(parts) < 3 || len(parts) > 4 {
		return nil, ErrMalformedDetails
	}

	number := sanitizeDigits(parts[0])
	if !digitsRegex.MatchString(number) || len(number) < 12 || len(number) > 19 || !luhnValid(number) {
		return nil, ErrInvalidCardNumber
	}

	m := expiryRegex.FindStringSubmatch(parts[1])
	if m == nil {
		return nil, ErrInvalidExpiry
	}
	month, _ := strconv.Atoi(m[1])
	year, _ := strconv.Atoi(m[2])
	year += 2000

	// A card is valid through the last day of its expiry month
	now := v.now()
	if year < now.Year() || (year == now.Year() && month < int(now.Month())) {
		return nil, ErrCardExpired
	}

	cvv := parts[2]
	if !digitsRegex.MatchString(cvv) || len(cvv) < 3 || len(cvv) > 4 {
		return nil, ErrInvalidCVV
	}

	card := &CardDetails{
		Number:      number,
		ExpiryMonth: month,
		ExpiryYear:  year,
		CVV:         cvv,
	}
	if len(parts) == 4 {
		card.Holder = parts[3]
	}
	return card, nil
}

// ValidateBankAccount parses and validates bank transfer details
func (v *PaymentDetailsValidator) ValidateBankAccount(details string) (*BankAccountDetails, error) {
	if strings.TrimSpace(details) == "" {
		return nil, ErrEmptyDetails
	}

	parts := splitDetails(details)
	if len(parts) < 2 || len(parts) > 3 {
		return nil, ErrMalformedDetails
	}

	if !digitsRegex.MatchString(parts[0]) || len(parts[0]) != 4 {
		return nil, ErrInvalidBankCode
	}

	account := sanitizeDigits(parts[1])
	if !digitsRegex.MatchString(account) || len(account) < 6 || len(account) > 18 {
		return nil, ErrInvalidAccountNumber
	}

	bank := &BankAccountDetails{BankCode: parts[0], AccountNumber: account}
	if len(parts) == 3 {
		bank.AccountName = parts[2]
	}
	return bank, nil
}

// MaskCard returns a display label such as "**** 1111", or "" if invalid
func (v *PaymentDetailsValidator) MaskCard(details string) string {
	card, err := v.ValidateCard(details)
	if err != nil {
		return ""
	}
	return "**** " + card.Last4()
}

func splitDetails(details string) []string {
	parts := strings.Split(details, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func sanitizeDigits(s string) string {
	s = strings.ReplaceAll(s, " ", "")
	return strings.ReplaceAll(s, "-", "")
}

// luhnValid runs the mod-10 checksum used by card numbers
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
