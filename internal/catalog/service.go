// Package catalog manages the service listings agents offer. Jobs may reference a
// listing, which must then be active and belong to the hired provider.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/inaiurai/shellmarket/internal/apperr"
	"github.com/inaiurai/shellmarket/internal/auth"
	"github.com/inaiurai/shellmarket/internal/ledger"
	"github.com/inaiurai/shellmarket/internal/models"
	"github.com/inaiurai/shellmarket/internal/store"
)

const DefaultCategory = "general"

var Categories = []string{
	"general",
	"coding",
	"writing",
	"research",
	"data",
	"creative",
	"automation",
	"consulting",
}

type CreateInput struct {
	ProviderID  uuid.UUID
	Title       string
	Description string
	Category    string
	BasePrice   int64
}

type Service interface {
	Create(ctx context.Context, in CreateInput) (*models.Service, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Service, error)
	List(ctx context.Context, f models.ServiceFilter) ([]*models.Service, error)
	Deactivate(ctx context.Context, id uuid.UUID) (*models.Service, error)
}

type service struct {
	store  store.Store
	ledger *ledger.Ledger
	log    *slog.Logger
}

func NewService(st store.Store, l *ledger.Ledger, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{store: st, ledger: l, log: log}
}

var _ Service = (*service)(nil)

func (s *service) Create(ctx context.Context, in CreateInput) (*models.Service, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.Validation("title", "title is required")
	}
	if in.BasePrice <= 0 {
		return nil, apperr.Validation("basePrice", "basePrice must be a positive integer")
	}
	category := strings.ToLower(strings.TrimSpace(in.Category))
	if category == "" {
		category = DefaultCategory
	}
	if !slices.Contains(Categories, category) {
		return nil, apperr.ValidationCode("INVALID_CATEGORY", "unknown service category",
			map[string]any{"category": in.Category, "allowed": Categories})
	}
	if err := auth.RequireActor(ctx, in.ProviderID, "NOT_SERVICE_OWNER", "services can only be listed for yourself"); err != nil {
		return nil, err
	}

	now := s.ledger.Now()
	svc := &models.Service{
		ID:          uuid.New(),
		ProviderID:  in.ProviderID,
		Title:       title,
		Description: in.Description,
		Category:    category,
		BasePrice:   in.BasePrice,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		err := tx.InsertService(ctx, svc)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("agent")
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("service listed", "service_id", svc.ID, "provider_id", svc.ProviderID, "category", svc.Category)
	return svc, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Service, error) {
	var svc *models.Service
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		svc, err = getService(ctx, tx, id)
		return err
	})
	return svc, err
}

// List returns active listings, most recent first.
func (s *service) List(ctx context.Context, f models.ServiceFilter) ([]*models.Service, error) {
	f.Category = strings.ToLower(strings.TrimSpace(f.Category))
	var list []*models.Service
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		list, err = tx.ListServices(ctx, f)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return list, nil
}

func (s *service) Deactivate(ctx context.Context, id uuid.UUID) (*models.Service, error) {
	var svc *models.Service
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		if svc, err = getService(ctx, tx, id); err != nil {
			return err
		}
		if err := auth.RequireActor(ctx, svc.ProviderID, "NOT_SERVICE_OWNER", "only the provider can deactivate this service"); err != nil {
			return err
		}
		now := s.ledger.Now()
		if err := tx.SetServiceActive(ctx, id, false, now); err != nil {
			return fmt.Errorf("deactivate service: %w", err)
		}
		svc.IsActive = false
		svc.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("service deactivated", "service_id", id)
	return svc, nil
}

func getService(ctx context.Context, tx store.Tx, id uuid.UUID) (*models.Service, error) {
	svc, err := tx.GetService(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("service")
	}
	if err != nil {
		return nil, fmt.Errorf("get service: %w", err)
	}
	return svc, nil
}
