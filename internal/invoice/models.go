package invoice

import "time"

// Currency of an invoice. It only affects presentation.
type Currency string

const (
	USD Currency = "USD"
	INR Currency = "INR"
	NPR Currency = "NPR"
)

// Valid reports whether c is a supported currency.
func (c Currency) Valid() bool {
	switch c {
	case USD, INR, NPR:
		return true
	}
	return false
}

// Status is the payment status of an invoice.
type Status string

const (
	StatusUnpaid  Status = "unpaid"
	StatusPaid    Status = "paid"
	StatusPartial Status = "partial"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusUnpaid, StatusPaid, StatusPartial:
		return true
	}
	return false
}

// Client is the bill-to block of an invoice.
type Client struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// LineItem is one billable row.
type LineItem struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	Rate        float64 `json:"rate"`
	Category    string  `json:"category,omitempty"`
}

// Transaction is an informational payment record; it never affects totals.
type Transaction struct {
	ID            string    `json:"id"`
	Date          time.Time `json:"date"`
	Gateway       string    `json:"gateway"`
	TransactionID string    `json:"transactionId"`
	Amount        float64   `json:"amount"`
}

// Invoice is the stored billable document. The amount fields are derived
// by Apply on every write.
type Invoice struct {
	ID               string        `json:"id"`
	InvoiceNumber    string        `json:"invoiceNumber"`
	IssueDate        time.Time     `json:"issueDate"`
	DueDate          time.Time     `json:"dueDate"`
	Currency         Currency      `json:"currency"`
	Client           Client        `json:"client"`
	LineItems        []LineItem    `json:"lineItems"`
	Status           Status        `json:"status"`
	VATPercent       float64       `json:"vatPercent"`
	TDSPercent       float64       `json:"tdsPercent"`
	Subtotal         float64       `json:"subtotal"`
	VATAmount        float64       `json:"vatAmount"`
	TDSAmount        float64       `json:"tdsAmount"`
	Total            float64       `json:"total"`
	AmountReceived   *float64      `json:"amountReceived,omitempty"`
	Transactions     []Transaction `json:"transactions,omitempty"`
	ShowTransactions bool          `json:"showTransactions,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	InvoiceNumber    *string        `json:"invoiceNumber,omitempty"`
	IssueDate        *time.Time     `json:"issueDate,omitempty"`
	DueDate          *time.Time     `json:"dueDate,omitempty"`
	Currency         *Currency      `json:"currency,omitempty"`
	Client           *Client        `json:"client,omitempty"`
	LineItems        *[]LineItem    `json:"lineItems,omitempty"`
	Status           *Status        `json:"status,omitempty"`
	VATPercent       *float64       `json:"vatPercent,omitempty"`
	TDSPercent       *float64       `json:"tdsPercent,omitempty"`
	AmountReceived   *float64       `json:"amountReceived,omitempty"`
	Transactions     *[]Transaction `json:"transactions,omitempty"`
	ShowTransactions *bool          `json:"showTransactions,omitempty"`
}

// ValidationErrorItem describes one rule violation.
type ValidationErrorItem struct {
	Code    string `json:"code"`
	Path    string `json:"path"`
	Message string `json:"message"`
	RuleID  string `json:"ruleId"`
}

// ValidationResult is the outcome of Validate.
type ValidationResult struct {
	Valid  bool                  `json:"valid"`
	Errors []ValidationErrorItem `json:"errors"`
	Totals Totals                `json:"totals"`
}
