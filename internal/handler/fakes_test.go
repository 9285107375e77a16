package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"

	"github.com/DukeRupert/magicsocial/internal/auth"
	"github.com/DukeRupert/magicsocial/internal/billing"
	"github.com/DukeRupert/magicsocial/internal/domain"
	"github.com/DukeRupert/magicsocial/internal/service"
)

var testUser = &domain.User{
	ID:    uuid.MustParse("9b2f0c1e-5d7a-4c3b-9e1f-2a6d8c4b7e10"),
	Email: "ana@example.com",
}

// withUser stands in for the auth middleware.
func withUser(user *domain.User) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user == nil {
				UnauthorizedResponse(w, r, discardLogger())
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.SetUser(r.Context(), user)))
		})
	}
}

func serve(mux *http.ServeMux, method, target string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

// =============================================================================
// Quota gate
// =============================================================================

type fakeQuota struct {
	mu       sync.Mutex
	ent      domain.Entitlement
	err      error
	recorded []string
}

func (f *fakeQuota) Admit(ctx context.Context, userID uuid.UUID) (*domain.Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	ent := f.ent
	if ent.Exhausted() {
		return domain.Deny(domain.DenyReasonQuotaExceeded, &ent), nil
	}
	return domain.Allow(&ent), nil
}

func (f *fakeQuota) Record(ctx context.Context, userID uuid.UUID, model string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, model)
	f.ent.Used++
	f.ent.Remaining--
	return nil
}

func (f *fakeQuota) Run(ctx context.Context, userID uuid.UUID, model string, fn func(ctx context.Context) error) (*domain.Decision, error) {
	d, err := f.Admit(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !d.Allowed {
		return d, domain.QuotaExceeded("quota.run", d.Entitlement)
	}
	if err := fn(ctx); err != nil {
		return d, err
	}
	return d, f.Record(ctx, userID, model)
}

func (f *fakeQuota) recordCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recorded)
}

// =============================================================================
// Entitlements
// =============================================================================

type fakeEntitlements struct {
	ent      domain.Entitlement
	sub      *domain.SubscriptionRecord
	count    int64
	err      error
	lastFrom time.Time
	lastTo   time.Time
}

func (f *fakeEntitlements) Resolve(ctx context.Context, userID uuid.UUID, now time.Time) (*domain.Entitlement, error) {
	if f.err != nil {
		return nil, f.err
	}
	ent := f.ent
	return &ent, nil
}

func (f *fakeEntitlements) CurrentSubscription(ctx context.Context, userID uuid.UUID) (*domain.SubscriptionRecord, error) {
	return f.sub, f.err
}

func (f *fakeEntitlements) CountUsage(ctx context.Context, userID uuid.UUID, from, to time.Time) (int64, error) {
	f.lastFrom, f.lastTo = from, to
	if f.err != nil {
		return 0, f.err
	}
	if from.After(to) {
		return 0, domain.Invalid("entitlement.count_usage", "from must not be after to")
	}
	return f.count, nil
}

// =============================================================================
// Billing
// =============================================================================

type fakeBilling struct {
	session      *billing.CheckoutSession
	portalURL    string
	prices       []service.PlanPrice
	err          error
	lastPriceID  string
	lastRedirect string
}

func (f *fakeBilling) CreateCheckout(ctx context.Context, user *domain.User, priceID, redirectPath string) (*billing.CheckoutSession, error) {
	f.lastPriceID, f.lastRedirect = priceID, redirectPath
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

func (f *fakeBilling) CreatePortal(ctx context.Context, user *domain.User, redirectPath string) (string, error) {
	f.lastRedirect = redirectPath
	if f.err != nil {
		return "", f.err
	}
	return f.portalURL, nil
}

func (f *fakeBilling) ListPrices(ctx context.Context) ([]service.PlanPrice, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.prices, nil
}

// =============================================================================
// Webhooks
// =============================================================================

type fakeVerifier struct {
	event stripe.Event
	err   error
}

func (f *fakeVerifier) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	if f.err != nil {
		return stripe.Event{}, f.err
	}
	return f.event, nil
}

type fakeReconciler struct {
	outcome  service.Outcome
	err      error
	calls    int
	deadline bool
}

func (f *fakeReconciler) Reconcile(ctx context.Context, event stripe.Event) (service.Outcome, error) {
	f.calls++
	_, f.deadline = ctx.Deadline()
	return f.outcome, f.err
}
