package suppression

import (
	"context"
	"testing"
	"time"

	"github.com/frontdeskhq/callback-platform/internal/business"
	"github.com/frontdeskhq/callback-platform/pkg/logging"
)

type fakePolicyStore struct {
	blocked  map[string]bool
	contacts map[string]bool
	bypass   map[string]bool
	records  []Record
}

func (f *fakePolicyStore) IsBlocked(ctx context.Context, businessID, phone string) (bool, error) {
	return f.blocked[phone], nil
}

func (f *fakePolicyStore) ContactStatus(ctx context.Context, businessID, phone string) (bool, bool, error) {
	return f.contacts[phone], f.bypass[phone], nil
}

func (f *fakePolicyStore) InsertRecord(ctx context.Context, rec Record) error {
	f.records = append(f.records, rec)
	return nil
}

type fakeCooldownStore struct {
	cooling map[string]bool
	marked  []string
}

func (f *fakeCooldownStore) InCooldown(ctx context.Context, businessID, phone string) (bool, error) {
	return f.cooling[phone], nil
}

func (f *fakeCooldownStore) MarkOutreach(ctx context.Context, businessID, phone string) error {
	f.marked = append(f.marked, phone)
	return nil
}

func newTestEngine() (*Engine, *fakePolicyStore, *fakeCooldownStore) {
	policies := &fakePolicyStore{
		blocked:  map[string]bool{},
		contacts: map[string]bool{},
		bypass:   map[string]bool{},
	}
	cooldowns := &fakeCooldownStore{cooling: map[string]bool{}}
	return NewEngine(policies, cooldowns, nil, logging.Default()), policies, cooldowns
}

func TestShouldSuppressBlockedWinsOverEverything(t *testing.T) {
	engine, policies, cooldowns := newTestEngine()
	policies.blocked["+15550001"] = true
	policies.contacts["+15550001"] = true
	cooldowns.cooling["+15550001"] = true

	decision, err := engine.ShouldSuppress(context.Background(), &business.Business{ID: "biz-1"}, "+15550001", time.Now())
	if err != nil {
		t.Fatalf("should suppress: %v", err)
	}
	if !decision.Suppress || decision.Reason != ReasonBlocked {
		t.Fatalf("expected blocked decision, got %+v", decision)
	}
	if len(policies.records) != 1 || policies.records[0].Reason != ReasonBlocked {
		t.Fatalf("expected one blocked record, got %+v", policies.records)
	}
}

func TestShouldSuppressExistingContact(t *testing.T) {
	engine, policies, _ := newTestEngine()
	policies.contacts["+15550002"] = true

	decision, err := engine.ShouldSuppress(context.Background(), &business.Business{ID: "biz-1"}, "+15550002", time.Now())
	if err != nil {
		t.Fatalf("should suppress: %v", err)
	}
	if !decision.Suppress || decision.Reason != ReasonExistingContact {
		t.Fatalf("expected existing_contact decision, got %+v", decision)
	}
}

func TestShouldSuppressBypassSkipsContactAndCooldown(t *testing.T) {
	engine, policies, cooldowns := newTestEngine()
	policies.contacts["+15550003"] = true
	policies.bypass["+15550003"] = true
	cooldowns.cooling["+15550003"] = true

	decision, err := engine.ShouldSuppress(context.Background(), &business.Business{ID: "biz-1"}, "+15550003", time.Now())
	if err != nil {
		t.Fatalf("should suppress: %v", err)
	}
	if decision.Suppress {
		t.Fatalf("bypass caller should never be suppressed on cooldown grounds, got %+v", decision)
	}
	if len(policies.records) != 0 {
		t.Fatalf("no record expected, got %+v", policies.records)
	}
}

func TestShouldSuppressCooldown(t *testing.T) {
	engine, policies, cooldowns := newTestEngine()
	cooldowns.cooling["+15550004"] = true

	decision, err := engine.ShouldSuppress(context.Background(), &business.Business{ID: "biz-1"}, "+15550004", time.Now())
	if err != nil {
		t.Fatalf("should suppress: %v", err)
	}
	if !decision.Suppress || decision.Reason != ReasonCooldown {
		t.Fatalf("expected cooldown decision, got %+v", decision)
	}
	if len(policies.records) != 1 {
		t.Fatalf("expected one suppression record, got %d", len(policies.records))
	}
}

func TestShouldSuppressUnknownCallerAllowsOutreach(t *testing.T) {
	engine, policies, _ := newTestEngine()

	decision, err := engine.ShouldSuppress(context.Background(), &business.Business{ID: "biz-1"}, "+15550005", time.Now())
	if err != nil {
		t.Fatalf("should suppress: %v", err)
	}
	if decision.Suppress {
		t.Fatalf("fresh caller should not be suppressed, got %+v", decision)
	}
	if len(policies.records) != 0 {
		t.Fatal("no suppression record expected for allowed outreach")
	}
}

func TestMarkOutreach(t *testing.T) {
	engine, _, cooldowns := newTestEngine()
	engine.MarkOutreach(context.Background(), "biz-1", "+15550006")
	if len(cooldowns.marked) != 1 || cooldowns.marked[0] != "+15550006" {
		t.Fatalf("expected outreach marked, got %+v", cooldowns.marked)
	}
}
