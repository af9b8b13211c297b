package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-provisioner/internal/domains"
	"github.com/angelmondragon/storefront-provisioner/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-provisioner/pkg/errors"
)

type fakeDomainChecker struct {
	pending   []domains.DomainConfigurationDTO
	listErr   error
	lastLimit int
	results   map[uuid.UUID]enums.DomainStatus
	failures  map[uuid.UUID]error
	checked   []uuid.UUID
}

func (f *fakeDomainChecker) ListUnverified(_ context.Context, limit int) ([]domains.DomainConfigurationDTO, error) {
	f.lastLimit = limit
	return f.pending, f.listErr
}

func (f *fakeDomainChecker) Check(_ context.Context, id uuid.UUID) (*domains.DomainConfigurationDTO, error) {
	f.checked = append(f.checked, id)
	if err := f.failures[id]; err != nil {
		return nil, err
	}
	return &domains.DomainConfigurationDTO{ID: id, Status: f.results[id]}, nil
}

func TestDomainRecheckJobChecksEveryCandidate(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	checker := &fakeDomainChecker{
		pending: []domains.DomainConfigurationDTO{
			{ID: a, Domain: "a.example.com"},
			{ID: b, Domain: "b.example.com"},
			{ID: c, Domain: "c.example.com"},
		},
		results: map[uuid.UUID]enums.DomainStatus{
			a: enums.DomainStatusVerified,
			c: enums.DomainStatusPending,
		},
		failures: map[uuid.UUID]error{b: errors.New("db down")},
	}
	job, err := NewDomainRecheckJob(DomainRecheckJobParams{Logger: testLogger(), Domains: checker, Limit: 25})
	if err != nil {
		t.Fatalf("NewDomainRecheckJob: %v", err)
	}
	if job.Name() != "domain-recheck" {
		t.Fatalf("unexpected job name %q", job.Name())
	}

	err = job.Run(context.Background())
	if err == nil {
		t.Fatal("expected the failed check to surface")
	}
	if len(checker.checked) != 3 {
		t.Fatalf("expected all 3 domains checked despite failure, got %d", len(checker.checked))
	}
	if checker.lastLimit != 25 {
		t.Fatalf("expected limit 25, got %d", checker.lastLimit)
	}
}

func TestDomainRecheckJobPropagatesListError(t *testing.T) {
	checker := &fakeDomainChecker{listErr: errors.New("boom")}
	job, err := NewDomainRecheckJob(DomainRecheckJobParams{Logger: testLogger(), Domains: checker})
	if err != nil {
		t.Fatalf("NewDomainRecheckJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if checker.lastLimit != defaultDomainRecheckLimit {
		t.Fatalf("expected default limit, got %d", checker.lastLimit)
	}
}

func TestNewDomainRecheckJobRequiresDependencies(t *testing.T) {
	if _, err := NewDomainRecheckJob(DomainRecheckJobParams{Domains: &fakeDomainChecker{}}); err == nil {
		t.Fatal("expected error without logger")
	}
	if _, err := NewDomainRecheckJob(DomainRecheckJobParams{Logger: testLogger()}); err == nil {
		t.Fatal("expected error without checker")
	}
}

func TestDomainRecheckJobSkipsRemovedDomains(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	checker := &fakeDomainChecker{
		pending: []domains.DomainConfigurationDTO{
			{ID: a, Domain: "a.example.com"},
			{ID: b, Domain: "b.example.com"},
		},
		results:  map[uuid.UUID]enums.DomainStatus{b: enums.DomainStatusPending},
		failures: map[uuid.UUID]error{a: pkgerrors.New(pkgerrors.CodeNotFound, "domain configuration not found")},
	}
	job, err := NewDomainRecheckJob(DomainRecheckJobParams{Logger: testLogger(), Domains: checker})
	if err != nil {
		t.Fatalf("NewDomainRecheckJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("removed domain should not fail the run: %v", err)
	}
	if len(checker.checked) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(checker.checked))
	}
}
