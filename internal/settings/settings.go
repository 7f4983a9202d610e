// Package settings holds the single application settings document: the
// company profile printed on invoices and the default tax rates.
package settings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/codelits/invoice-manager/internal/docstore"
)

// DocumentID is the id of the settings document.
const DocumentID = "app"

var ErrInvalid = errors.New("settings: invalid")

// Company is the issuing company profile.
type Company struct {
	Name       string `json:"name" yaml:"name"`
	LogoURL    string `json:"logoUrl,omitempty" yaml:"logo_url,omitempty"`
	Address    string `json:"address" yaml:"address"`
	PAN        string `json:"pan" yaml:"pan"`
	FooterNote string `json:"footerNote" yaml:"footer_note"`
}

// Defaults are applied to new invoices.
type Defaults struct {
	VATPercent float64 `json:"vatPercent" yaml:"vat_percent"`
	TDSPercent float64 `json:"tdsPercent" yaml:"tds_percent"`
}

// Settings is the application settings document.
type Settings struct {
	Company  Company  `json:"company" yaml:"company"`
	Defaults Defaults `json:"defaults" yaml:"defaults"`
}

// Default returns the settings used until an admin saves their own.
func Default() Settings {
	return Settings{
		Company: Company{
			Name:       "Codelits Studio Pvt. Ltd.",
			LogoURL:    "https://placehold.co/150x50.png",
			Address:    "Kathmandu, Nepal",
			PAN:        "123456789",
			FooterNote: "Codelits Studio Pvt. Ltd. is a PAN registered company.",
		},
		Defaults: Defaults{VATPercent: 13, TDSPercent: 1.5},
	}
}

// Validate checks required company fields and tax ranges.
func (s Settings) Validate() error {
	var problems []string
	if strings.TrimSpace(s.Company.Name) == "" {
		problems = append(problems, "company.name is required")
	}
	if strings.TrimSpace(s.Company.Address) == "" {
		problems = append(problems, "company.address is required")
	}
	if s.Defaults.VATPercent < 0 || s.Defaults.VATPercent > 100 {
		problems = append(problems, "defaults.vatPercent must be between 0 and 100")
	}
	if s.Defaults.TDSPercent < 0 || s.Defaults.TDSPercent > 100 {
		problems = append(problems, "defaults.tdsPercent must be between 0 and 100")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// LoadProfile reads a YAML settings seed. Fields missing from the file
// keep their Default values.
func LoadProfile(path string) (Settings, error) {
	s := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read company profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse company profile %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// Service reads and writes the settings document. Until one is saved,
// Get returns the seed.
type Service struct {
	store docstore.Store
	seed  Settings

	mu     sync.RWMutex
	cached *Settings
}

// NewService creates a service over store with seed as the fallback.
func NewService(store docstore.Store, seed Settings) *Service {
	return &Service{store: store, seed: seed}
}

// Get returns the stored settings or the seed.
func (s *Service) Get(ctx context.Context) (Settings, error) {
	rec, err := s.store.Get(ctx, docstore.Settings, DocumentID)
	if errors.Is(err, docstore.ErrNotFound) {
		return s.seed, nil
	}
	if err != nil {
		return Settings{}, err
	}
	var out Settings
	if err := rec.Decode(&out); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	s.remember(out)
	return out, nil
}

// Put validates and replaces the settings document.
func (s *Service) Put(ctx context.Context, next Settings) error {
	if err := next.Validate(); err != nil {
		return err
	}
	if err := s.store.Set(ctx, docstore.Settings, DocumentID, next); err != nil {
		return err
	}
	s.remember(next)
	return nil
}

// CompanyName returns the last known company name without touching the
// store, for callers that run without an identity.
func (s *Service) CompanyName(context.Context) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cached != nil {
		return s.cached.Company.Name
	}
	return s.seed.Company.Name
}

func (s *Service) remember(v Settings) {
	s.mu.Lock()
	s.cached = &v
	s.mu.Unlock()
}
