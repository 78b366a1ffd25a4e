package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/YOLOVibeCode/fieldview-live-sub002/internal/domain/enums"
	"github.com/YOLOVibeCode/fieldview-live-sub002/internal/domain/model"
	"github.com/YOLOVibeCode/fieldview-live-sub002/internal/infra/processor"
	pgrepo "github.com/YOLOVibeCode/fieldview-live-sub002/internal/repo/postgres"
	ledgersvc "github.com/YOLOVibeCode/fieldview-live-sub002/internal/services/ledger"
	vaultsvc "github.com/YOLOVibeCode/fieldview-live-sub002/internal/services/vault"
)

type fakePurchaseStore struct {
	stuck    []model.Purchase
	released []string
}

func (f *fakePurchaseStore) ListStuckProcessing(_ context.Context, _ time.Time, _ int) ([]model.Purchase, error) {
	return f.stuck, nil
}

func (f *fakePurchaseStore) ReleaseClaim(_ context.Context, purchaseID string) error {
	f.released = append(f.released, purchaseID)
	return nil
}

type fakePoster struct {
	posted []ledgersvc.PostChargeInput
	err    error
}

func (f *fakePoster) PostChargeEntries(_ context.Context, in ledgersvc.PostChargeInput) (model.Purchase, error) {
	if f.err != nil {
		return model.Purchase{}, f.err
	}
	f.posted = append(f.posted, in)
	p := in.Purchase
	p.Status = enums.PurchaseStatusPaid
	return p, nil
}

type fakeIssuer struct {
	issued []string
}

func (f *fakeIssuer) Issue(_ context.Context, purchase model.Purchase) (model.Entitlement, error) {
	f.issued = append(f.issued, purchase.ID)
	return model.Entitlement{TokenID: "ent_" + purchase.ID, PurchaseID: purchase.ID}, nil
}

type fakeGateway struct {
	payments map[string]processor.ChargeResult
	err      error
}

func (f *fakeGateway) LookupPayment(_ context.Context, _, idempotencyKey string) (processor.ChargeResult, bool, error) {
	if f.err != nil {
		return processor.ChargeResult{}, false, f.err
	}
	result, found := f.payments[idempotencyKey]
	return result, found, nil
}

type fakeOwners struct{}

func (fakeOwners) FindByGame(_ context.Context, gameID string) (pgrepo.GameOwnerRecord, error) {
	return pgrepo.GameOwnerRecord{GameID: gameID, OwnerAccountID: "owner-1"}, nil
}

type fakeVault struct{}

func (fakeVault) MerchantCredentials(_ context.Context, _ string) (vaultsvc.Credentials, error) {
	return vaultsvc.Credentials{AccessToken: "sq-token", LocationID: "loc-1"}, nil
}

type fakeReports struct {
	reports map[string]Report
}

func (f *fakeReports) PutReport(_ context.Context, key string, report Report) error {
	if f.reports == nil {
		f.reports = make(map[string]Report)
	}
	f.reports[key] = report
	return nil
}

func stuckPurchase(id string) model.Purchase {
	return model.Purchase{
		ID:                id,
		GameID:            "game-1",
		ViewerID:          "viewer-1",
		AmountCents:       1000,
		Currency:          "USD",
		PlatformFeeCents:  100,
		ProcessorFeeCents: 59,
		OwnerNetCents:     841,
		Status:            enums.PurchaseStatusProcessing,
	}
}

func newJob(store *fakePurchaseStore, poster *fakePoster, issuer *fakeIssuer, gateway *fakeGateway) *Job {
	return New(Dependencies{
		Purchases:    store,
		Ledger:       poster,
		Entitlements: issuer,
		Gateway:      gateway,
		Owners:       fakeOwners{},
		Vault:        fakeVault{},
	}, 10*time.Minute, 100, nil)
}

func TestRunCompletesChargedPurchase(t *testing.T) {
	store := &fakePurchaseStore{stuck: []model.Purchase{stuckPurchase("pur-1")}}
	poster := &fakePoster{}
	issuer := &fakeIssuer{}
	gateway := &fakeGateway{payments: map[string]processor.ChargeResult{
		"pur-1": {PaymentID: "pay-1", Approved: true, ProcessorFeeCents: 62},
	}}

	job := newJob(store, poster, issuer, gateway)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run reconcile job: %v", err)
	}

	if len(poster.posted) != 1 {
		t.Fatalf("expected one paid transition, got %d", len(poster.posted))
	}
	posted := poster.posted[0]
	if posted.ProviderPaymentID != "pay-1" {
		t.Fatalf("unexpected provider payment id: %s", posted.ProviderPaymentID)
	}
	if posted.Purchase.ProcessorFeeCents != 62 {
		t.Fatalf("actual processor fee not applied: %d", posted.Purchase.ProcessorFeeCents)
	}
	if posted.Purchase.OwnerNetCents != 1000-100-62 {
		t.Fatalf("owner net not recomputed: %d", posted.Purchase.OwnerNetCents)
	}
	if len(issuer.issued) != 1 || issuer.issued[0] != "pur-1" {
		t.Fatalf("entitlement not issued: %v", issuer.issued)
	}
	if len(store.released) != 0 {
		t.Fatalf("charged purchase must not be released")
	}
}

func TestRunReleasesUnchargedPurchase(t *testing.T) {
	store := &fakePurchaseStore{stuck: []model.Purchase{stuckPurchase("pur-1")}}
	poster := &fakePoster{}
	issuer := &fakeIssuer{}
	gateway := &fakeGateway{payments: map[string]processor.ChargeResult{}}

	job := newJob(store, poster, issuer, gateway)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run reconcile job: %v", err)
	}

	if len(store.released) != 1 || store.released[0] != "pur-1" {
		t.Fatalf("uncharged purchase must be released: %v", store.released)
	}
	if len(poster.posted) != 0 {
		t.Fatalf("uncharged purchase must not be marked paid")
	}
	if len(issuer.issued) != 0 {
		t.Fatalf("uncharged purchase must not get an entitlement")
	}
}

func TestRunDefersOnLookupFailure(t *testing.T) {
	store := &fakePurchaseStore{stuck: []model.Purchase{stuckPurchase("pur-1")}}
	poster := &fakePoster{}
	issuer := &fakeIssuer{}
	gateway := &fakeGateway{err: processor.ErrUnavailable}
	reports := &fakeReports{}

	job := newJob(store, poster, issuer, gateway)
	job.AttachReportStore(reports)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run reconcile job: %v", err)
	}

	if len(store.released) != 0 || len(poster.posted) != 0 {
		t.Fatalf("purchase with unknown processor state must stay untouched")
	}
	if len(reports.reports) != 1 {
		t.Fatalf("expected one exported report, got %d", len(reports.reports))
	}
	for _, report := range reports.reports {
		if len(report.Deferred) != 1 || report.Deferred[0].PurchaseID != "pur-1" {
			t.Fatalf("expected pur-1 in deferred items: %+v", report.Deferred)
		}
	}
}

func TestRunContinuesAfterSinglePurchaseFailure(t *testing.T) {
	store := &fakePurchaseStore{stuck: []model.Purchase{stuckPurchase("pur-1"), stuckPurchase("pur-2")}}
	poster := &fakePoster{err: errors.New("pg down")}
	issuer := &fakeIssuer{}
	gateway := &fakeGateway{payments: map[string]processor.ChargeResult{
		"pur-1": {PaymentID: "pay-1", Approved: true},
	}}
	reports := &fakeReports{}

	job := newJob(store, poster, issuer, gateway)
	job.AttachReportStore(reports)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run reconcile job: %v", err)
	}

	// pur-1 fails on the paid transition, pur-2 has no charge and is released.
	if len(store.released) != 1 || store.released[0] != "pur-2" {
		t.Fatalf("expected pur-2 released, got %v", store.released)
	}
	for _, report := range reports.reports {
		if len(report.Deferred) != 1 || report.Deferred[0].PurchaseID != "pur-1" {
			t.Fatalf("expected pur-1 deferred: %+v", report.Deferred)
		}
		if report.Swept != 2 {
			t.Fatalf("expected swept=2, got %d", report.Swept)
		}
	}
}
