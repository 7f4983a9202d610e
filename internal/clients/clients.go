// Package clients manages the saved clients offered when filling in an
// invoice's bill-to block.
package clients

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/codelits/invoice-manager/internal/docstore"
)

var (
	ErrNotFound = errors.New("clients: not found")
	ErrInvalid  = errors.New("clients: invalid")
)

// Client is a saved customer.
type Client struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

// Validate checks required fields.
func (c Client) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if strings.TrimSpace(c.Address) == "" {
		return fmt.Errorf("%w: address is required", ErrInvalid)
	}
	return nil
}

// Service stores clients in the clients collection.
type Service struct {
	store docstore.Store
}

// NewService creates a client service over store.
func NewService(store docstore.Store) *Service {
	return &Service{store: store}
}

// List returns every client in creation order.
func (s *Service) List(ctx context.Context) ([]Client, error) {
	recs, err := s.store.List(ctx, docstore.Clients)
	if err != nil {
		return nil, err
	}
	return docstore.DecodeAll(recs, setID)
}

// Get returns client id.
func (s *Service) Get(ctx context.Context, id string) (Client, error) {
	rec, err := s.store.Get(ctx, docstore.Clients, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return Client{}, ErrNotFound
	}
	if err != nil {
		return Client{}, err
	}
	var c Client
	if err := rec.Decode(&c); err != nil {
		return Client{}, err
	}
	c.ID = rec.ID
	return c, nil
}

// Create stores c under a new id.
func (s *Service) Create(ctx context.Context, c Client) (Client, error) {
	if err := c.Validate(); err != nil {
		return Client{}, err
	}
	c.ID = ""
	id, err := s.store.Add(ctx, docstore.Clients, c)
	if err != nil {
		return Client{}, err
	}
	c.ID = id
	return c, nil
}

// Update replaces client id.
func (s *Service) Update(ctx context.Context, id string, c Client) (Client, error) {
	if err := c.Validate(); err != nil {
		return Client{}, err
	}
	if _, err := s.Get(ctx, id); err != nil {
		return Client{}, err
	}
	c.ID = id
	if err := s.store.Set(ctx, docstore.Clients, id, c); err != nil {
		return Client{}, err
	}
	return c, nil
}

// Delete removes client id.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.store.Delete(ctx, docstore.Clients, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func setID(c *Client, id string) { c.ID = id }
