package invoice

import (
	"fmt"
	"strings"
)

// Validator checks an invoice before it is stored.
type Validator struct {
	Config Config
}

func (v Validator) Validate(inv Invoice) ValidationResult {
	errors := make([]ValidationErrorItem, 0)

	if strings.TrimSpace(inv.InvoiceNumber) == "" {
		errors = append(errors, errItem("INV-REQ-001", "invoiceNumber", "Invoice number is required"))
	}
	if strings.TrimSpace(inv.Client.Name) == "" {
		errors = append(errors, errItem("INV-REQ-002", "client.name", "Client name is required"))
	}
	if strings.TrimSpace(inv.Client.Address) == "" {
		errors = append(errors, errItem("INV-REQ-003", "client.address", "Client address is required"))
	}
	if inv.IssueDate.IsZero() || inv.DueDate.IsZero() {
		errors = append(errors, errItem("INV-REQ-004", "issueDate/dueDate", "Issue and due dates are required"))
	} else if inv.DueDate.Before(inv.IssueDate) {
		errors = append(errors, errItem("INV-MATH-001", "dueDate", "Due date must be on or after issue date"))
	}
	if !inv.Currency.Valid() {
		errors = append(errors, errItem("INV-REQ-005", "currency", "Currency must be USD, INR or NPR"))
	}
	if !inv.Status.Valid() {
		errors = append(errors, errItem("INV-REQ-006", "status", "Status must be unpaid, paid or partial"))
	}

	if len(inv.LineItems) == 0 {
		errors = append(errors, errItem("INV-REQ-007", "lineItems", "At least one line item is required"))
	}
	if v.Config.MaxLines > 0 && len(inv.LineItems) > v.Config.MaxLines {
		errors = append(errors, errItem("INV-LIMIT-001", "lineItems", fmt.Sprintf("Too many line items (max %d)", v.Config.MaxLines)))
	}
	for i, item := range inv.LineItems {
		path := fmt.Sprintf("lineItems[%d]", i)
		if strings.TrimSpace(item.Description) == "" {
			errors = append(errors, errItem("INV-REQ-008", path+".description", "Description is required"))
		}
		if v.Config.MaxDescription > 0 && len(item.Description) > v.Config.MaxDescription {
			errors = append(errors, errItem("INV-LIMIT-002", path+".description", "Description too long"))
		}
		if item.Quantity <= 0 {
			errors = append(errors, errItem("INV-MATH-002", path+".quantity", "Quantity must be positive"))
		}
		if item.Rate < 0 {
			errors = append(errors, errItem("INV-MATH-003", path+".rate", "Rate must be non-negative"))
		}
	}

	if inv.VATPercent < 0 || inv.VATPercent > 100 {
		errors = append(errors, errItem("INV-MATH-004", "vatPercent", "VAT must be between 0 and 100"))
	}
	if inv.TDSPercent < 0 || inv.TDSPercent > 100 {
		errors = append(errors, errItem("INV-MATH-005", "tdsPercent", "TDS must be between 0 and 100"))
	}

	if inv.Status == StatusPartial {
		if inv.AmountReceived == nil {
			errors = append(errors, errItem("INV-REQ-009", "amountReceived", "Amount received is required for partially paid invoices"))
		} else if *inv.AmountReceived < 0 {
			errors = append(errors, errItem("INV-MATH-006", "amountReceived", "Amount received must be non-negative"))
		}
	}

	for i, tx := range inv.Transactions {
		path := fmt.Sprintf("transactions[%d]", i)
		if strings.TrimSpace(tx.Gateway) == "" {
			errors = append(errors, errItem("INV-REQ-010", path+".gateway", "Gateway is required"))
		}
		if strings.TrimSpace(tx.TransactionID) == "" {
			errors = append(errors, errItem("INV-REQ-011", path+".transactionId", "Transaction ID is required"))
		}
		if tx.Amount <= 0 {
			errors = append(errors, errItem("INV-MATH-007", path+".amount", "Amount must be positive"))
		}
	}

	return ValidationResult{
		Valid:  len(errors) == 0,
		Errors: errors,
		Totals: Compute(inv.LineItems, inv.VATPercent, inv.TDSPercent),
	}
}

func errItem(ruleID, path, message string) ValidationErrorItem {
	return ValidationErrorItem{
		Code:    ruleID,
		Path:    path,
		Message: message,
		RuleID:  ruleID,
	}
}
