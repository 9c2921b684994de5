package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mundorum/harena/internal/apperror"
	"github.com/mundorum/harena/internal/model"
	"github.com/mundorum/harena/internal/repository"
)

// DomainInvalidator drops a cached domain lookup.
type DomainInvalidator interface {
	Invalidate(domain string)
}

// InstitutionService is the admin surface for institutions and their
// email domains. It is driven from harenactl, not from HTTP.
type InstitutionService struct {
	store   repository.Store
	domains DomainInvalidator
	logger  *slog.Logger
}

func NewInstitutionService(store repository.Store, domains DomainInvalidator, opts ...Option) *InstitutionService {
	o := buildOptions(opts)
	return &InstitutionService{store: store, domains: domains, logger: o.logger}
}

func (s *InstitutionService) Create(ctx context.Context, name string) (*model.Institution, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "name is required")
	}

	inst := &model.Institution{Name: name}
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		return tx.CreateInstitution(ctx, inst)
	})
	if err != nil {
		return nil, fmt.Errorf("service/institution: %w", err)
	}

	s.logger.Info("institution created", slog.String("institutionID", inst.ID), slog.String("name", name))
	return inst, nil
}

// AddDomain claims an email domain for an institution. Users whose email
// ends in exactly this domain are placed in the institution at sign-in.
func (s *InstitutionService) AddDomain(ctx context.Context, institutionID, domain string) (*model.InstitutionDomain, error) {
	domain = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(domain, "@")))
	if domain == "" || strings.Contains(domain, "@") {
		return nil, apperror.ValidationFailed("domain", "a bare domain such as unicamp.br is required")
	}
	if _, err := s.store.GetInstitution(ctx, institutionID); err != nil {
		return nil, err
	}

	d := &model.InstitutionDomain{Name: domain, InstitutionID: institutionID}
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		return tx.AddDomain(ctx, d)
	})
	if err != nil {
		return nil, fmt.Errorf("service/institution: %w", err)
	}
	if s.domains != nil {
		s.domains.Invalidate(domain)
	}

	s.logger.Info("domain added",
		slog.String("institutionID", institutionID),
		slog.String("domain", domain),
	)
	return d, nil
}

func (s *InstitutionService) List(ctx context.Context) ([]model.Institution, error) {
	list, err := s.store.ListInstitutions(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/institution: %w", err)
	}
	return list, nil
}

func (s *InstitutionService) Get(ctx context.Context, id string) (*model.Institution, error) {
	return s.store.GetInstitution(ctx, id)
}
