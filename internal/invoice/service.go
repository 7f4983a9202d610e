package invoice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codelits/invoice-manager/internal/clock"
	"github.com/codelits/invoice-manager/internal/docstore"
	"github.com/codelits/invoice-manager/internal/settings"
)

var (
	ErrNotFound = errors.New("invoice: not found")
	ErrInvalid  = errors.New("invoice: invalid")
)

// ValidationError carries the rule violations of a rejected write.
type ValidationError struct {
	Items []ValidationErrorItem
}

func (e *ValidationError) Error() string {
	if len(e.Items) == 0 {
		return ErrInvalid.Error()
	}
	return fmt.Sprintf("%s: %s: %s", ErrInvalid, e.Items[0].Path, e.Items[0].Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

// LookupKey selects the field Lookup matches on.
type LookupKey int

const (
	ByID LookupKey = iota
	ByNumber
)

// SettingsSource supplies default tax rates for new drafts.
type SettingsSource interface {
	Get(ctx context.Context) (settings.Settings, error)
}

// Options configure a Service.
type Options struct {
	Config   Config
	Clock    clock.Clock
	Settings SettingsSource
	// Numbers returns the numeric suffix of generated invoice numbers.
	Numbers func() int
	Logger  *slog.Logger
}

// Service is the invoice record lifecycle over the invoices collection.
type Service struct {
	store     docstore.Store
	validator Validator
	clock     clock.Clock
	settings  SettingsSource
	numbers   func() int
	logger    *slog.Logger
}

// NewService creates an invoice service over store.
func NewService(store docstore.Store, opts Options) *Service {
	if opts.Numbers == nil {
		opts.Numbers = func() int { return 1000 + rand.IntN(9000) }
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		store:     store,
		validator: Validator{Config: opts.Config},
		clock:     clock.OrReal(opts.Clock),
		settings:  opts.Settings,
		numbers:   opts.Numbers,
		logger:    opts.Logger,
	}
}

// NewNumber returns a fresh editable invoice number, INV-1000 to INV-9999.
// Numbers are not checked for uniqueness.
func (s *Service) NewNumber() string {
	return fmt.Sprintf("INV-%04d", s.numbers())
}

// Draft returns an unsaved invoice prefilled the way the editor starts:
// today's issue date, due in 30 days, one empty line and the default tax
// rates from settings.
func (s *Service) Draft(ctx context.Context) Invoice {
	now := s.clock.Now().UTC()
	inv := Invoice{
		InvoiceNumber: s.NewNumber(),
		IssueDate:     now,
		DueDate:       now.AddDate(0, 0, 30),
		Currency:      USD,
		LineItems:     []LineItem{{ID: uuid.NewString(), Quantity: 1}},
		Status:        StatusUnpaid,
	}
	if s.settings != nil {
		if st, err := s.settings.Get(ctx); err == nil {
			inv.VATPercent = st.Defaults.VATPercent
			inv.TDSPercent = st.Defaults.TDSPercent
		} else {
			s.logger.Warn("draft defaults unavailable", slog.String("error", err.Error()))
		}
	}
	Apply(&inv)
	return inv
}

// Create validates inv, derives its totals and stores it under a new id.
func (s *Service) Create(ctx context.Context, inv Invoice) (Invoice, error) {
	s.prepare(&inv)
	if err := s.check(inv); err != nil {
		return Invoice{}, err
	}
	now := s.clock.Now().UTC()
	inv.ID = ""
	inv.CreatedAt = now
	inv.UpdatedAt = now
	id, err := s.store.Add(ctx, docstore.Invoices, inv)
	if err != nil {
		return Invoice{}, err
	}
	inv.ID = id
	return inv, nil
}

// Replace overwrites invoice id with inv.
func (s *Service) Replace(ctx context.Context, id string, inv Invoice) (Invoice, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	s.prepare(&inv)
	if err := s.check(inv); err != nil {
		return Invoice{}, err
	}
	inv.ID = id
	inv.CreatedAt = current.CreatedAt
	inv.UpdatedAt = s.clock.Now().UTC()
	if err := s.store.Set(ctx, docstore.Invoices, id, inv); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

// Update applies the non-nil fields of p to invoice id. Totals are
// recomputed from the merged invoice and written with the patch.
func (s *Service) Update(ctx context.Context, id string, p Patch) (Invoice, error) {
	inv, err := s.Get(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	partial := p.apply(&inv)
	s.prepare(&inv)
	if err := s.check(inv); err != nil {
		return Invoice{}, err
	}
	inv.UpdatedAt = s.clock.Now().UTC()
	partial["subtotal"] = inv.Subtotal
	partial["vatAmount"] = inv.VATAmount
	partial["tdsAmount"] = inv.TDSAmount
	partial["total"] = inv.Total
	partial["updatedAt"] = inv.UpdatedAt
	if p.LineItems != nil {
		partial["lineItems"] = inv.LineItems
	}
	if p.Status != nil || p.AmountReceived != nil {
		partial["amountReceived"] = inv.AmountReceived
	}
	if err := s.store.Update(ctx, docstore.Invoices, id, partial); err != nil {
		return Invoice{}, s.mapErr(err)
	}
	return inv, nil
}

// Delete removes invoice id.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.mapErr(s.store.Delete(ctx, docstore.Invoices, id))
}

// Get returns invoice id.
func (s *Service) Get(ctx context.Context, id string) (Invoice, error) {
	rec, err := s.store.Get(ctx, docstore.Invoices, id)
	if err != nil {
		return Invoice{}, s.mapErr(err)
	}
	var inv Invoice
	if err := rec.Decode(&inv); err != nil {
		return Invoice{}, fmt.Errorf("decode invoice %s: %w", id, err)
	}
	inv.ID = rec.ID
	return inv, nil
}

// List returns every invoice, most recent issue date first.
func (s *Service) List(ctx context.Context) ([]Invoice, error) {
	recs, err := s.store.List(ctx, docstore.Invoices)
	if err != nil {
		return nil, err
	}
	return decodeInvoices(recs)
}

// Lookup finds an invoice by id or, case-insensitively, by invoice number.
// When several invoices share a number the most recently issued wins.
func (s *Service) Lookup(ctx context.Context, identifier string, by LookupKey) (Invoice, error) {
	if by == ByID {
		return s.Get(ctx, identifier)
	}
	list, err := s.List(ctx)
	if err != nil {
		return Invoice{}, err
	}
	if inv, ok := lookup(list, identifier, by); ok {
		return inv, nil
	}
	return Invoice{}, ErrNotFound
}

// DistinctPriorDescriptions returns every line-item description used so
// far, each once.
func (s *Service) DistinctPriorDescriptions(ctx context.Context) ([]string, error) {
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return distinctDescriptions(list), nil
}

// Validate runs the validator without storing anything.
func (s *Service) Validate(inv Invoice) ValidationResult {
	s.prepare(&inv)
	return s.validator.Validate(inv)
}

func (s *Service) prepare(inv *Invoice) {
	for i := range inv.LineItems {
		if inv.LineItems[i].ID == "" {
			inv.LineItems[i].ID = uuid.NewString()
		}
	}
	for i := range inv.Transactions {
		if inv.Transactions[i].ID == "" {
			inv.Transactions[i].ID = uuid.NewString()
		}
	}
	if inv.Status != StatusPartial {
		inv.AmountReceived = nil
	}
	Apply(inv)
}

func (s *Service) check(inv Invoice) error {
	res := s.validator.Validate(inv)
	if !res.Valid {
		return &ValidationError{Items: res.Errors}
	}
	return nil
}

func (s *Service) mapErr(err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// apply merges p into inv and returns the stored field names that change.
func (p Patch) apply(inv *Invoice) map[string]any {
	partial := map[string]any{}
	if p.InvoiceNumber != nil {
		inv.InvoiceNumber = *p.InvoiceNumber
		partial["invoiceNumber"] = inv.InvoiceNumber
	}
	if p.IssueDate != nil {
		inv.IssueDate = *p.IssueDate
		partial["issueDate"] = inv.IssueDate
	}
	if p.DueDate != nil {
		inv.DueDate = *p.DueDate
		partial["dueDate"] = inv.DueDate
	}
	if p.Currency != nil {
		inv.Currency = *p.Currency
		partial["currency"] = inv.Currency
	}
	if p.Client != nil {
		inv.Client = *p.Client
		partial["client"] = inv.Client
	}
	if p.LineItems != nil {
		inv.LineItems = *p.LineItems
	}
	if p.Status != nil {
		inv.Status = *p.Status
		partial["status"] = inv.Status
	}
	if p.VATPercent != nil {
		inv.VATPercent = *p.VATPercent
		partial["vatPercent"] = inv.VATPercent
	}
	if p.TDSPercent != nil {
		inv.TDSPercent = *p.TDSPercent
		partial["tdsPercent"] = inv.TDSPercent
	}
	if p.AmountReceived != nil {
		v := *p.AmountReceived
		inv.AmountReceived = &v
	}
	if p.Transactions != nil {
		inv.Transactions = *p.Transactions
		partial["transactions"] = inv.Transactions
	}
	if p.ShowTransactions != nil {
		inv.ShowTransactions = *p.ShowTransactions
		partial["showTransactions"] = inv.ShowTransactions
	}
	return partial
}

func decodeInvoices(recs []docstore.Record) ([]Invoice, error) {
	list, err := docstore.DecodeAll(recs, func(inv *Invoice, id string) { inv.ID = id })
	if err != nil {
		return nil, err
	}
	sortByIssueDate(list)
	return list, nil
}

func sortByIssueDate(list []Invoice) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].IssueDate.After(list[j].IssueDate)
	})
}

func lookup(list []Invoice, identifier string, by LookupKey) (Invoice, bool) {
	for _, inv := range list {
		switch by {
		case ByID:
			if inv.ID == identifier {
				return inv, true
			}
		case ByNumber:
			if strings.EqualFold(inv.InvoiceNumber, strings.TrimSpace(identifier)) {
				return inv, true
			}
		}
	}
	return Invoice{}, false
}

func distinctDescriptions(list []Invoice) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0)
	for _, inv := range list {
		for _, item := range inv.LineItems {
			if item.Description == "" {
				continue
			}
			if _, ok := seen[item.Description]; ok {
				continue
			}
			seen[item.Description] = struct{}{}
			out = append(out, item.Description)
		}
	}
	return out
}

// overdue reports whether inv is past due and not fully paid at now.
func overdue(inv Invoice, now time.Time) bool {
	return inv.Status != StatusPaid && !inv.DueDate.IsZero() && now.After(inv.DueDate)
}

// Watch returns a live view of the invoices collection that follows the
// store until ctx is done.
func (s *Service) Watch(ctx context.Context) (*View, error) {
	return Watch(ctx, s.store)
}
