package service

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"

	"github.com/DukeRupert/magicsocial/internal/billing"
	"github.com/DukeRupert/magicsocial/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// =============================================================================
// In-memory subscription store
// =============================================================================

type fakeSubscriptionStore struct {
	mu      sync.Mutex
	rows    map[string]repository.Subscription
	upserts int
	err     error
}

func newFakeSubscriptionStore() *fakeSubscriptionStore {
	return &fakeSubscriptionStore{rows: make(map[string]repository.Subscription)}
}

func (f *fakeSubscriptionStore) GetSubscription(ctx context.Context, id string) (repository.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return repository.Subscription{}, f.err
	}
	row, ok := f.rows[id]
	if !ok {
		return repository.Subscription{}, sql.ErrNoRows
	}
	return row, nil
}

func (f *fakeSubscriptionStore) GetLatestSubscriptionByCustomerID(ctx context.Context, customerID string) (repository.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return repository.Subscription{}, f.err
	}
	var best *repository.Subscription
	for _, row := range f.rows {
		if row.StripeCustomerID != customerID {
			continue
		}
		if best == nil || row.UpdatedAt.After(best.UpdatedAt) {
			r := row
			best = &r
		}
	}
	if best == nil {
		return repository.Subscription{}, sql.ErrNoRows
	}
	return *best, nil
}

func (f *fakeSubscriptionStore) GetCurrentSubscriptionForUser(ctx context.Context, arg repository.GetCurrentSubscriptionForUserParams) (repository.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return repository.Subscription{}, f.err
	}
	var matches []repository.Subscription
	for _, row := range f.rows {
		if row.UserID != arg.UserID {
			continue
		}
		for _, st := range arg.Statuses {
			if row.Status == st {
				matches = append(matches, row)
			}
		}
	}
	if len(matches) == 0 {
		return repository.Subscription{}, sql.ErrNoRows
	}
	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i].CurrentPeriodEnd, matches[j].CurrentPeriodEnd
		if a.Valid != b.Valid {
			return a.Valid
		}
		if !a.Time.Equal(b.Time) {
			return a.Time.After(b.Time)
		}
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	return matches[0], nil
}

func (f *fakeSubscriptionStore) UpsertSubscription(ctx context.Context, arg repository.UpsertSubscriptionParams) (repository.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return repository.Subscription{}, f.err
	}

	now := time.Now()
	prev, exists := f.rows[arg.StripeSubscriptionID]
	if exists && prev.Status == "canceled" && arg.Status != "canceled" {
		return repository.Subscription{}, sql.ErrNoRows
	}

	row := repository.Subscription{
		StripeSubscriptionID: arg.StripeSubscriptionID,
		UserID:               arg.UserID,
		StripeCustomerID:     arg.StripeCustomerID,
		StripePriceID:        arg.StripePriceID,
		Plan:                 arg.Plan,
		Status:               arg.Status,
		CancelAtPeriodEnd:    arg.CancelAtPeriodEnd,
		CanceledAt:           arg.CanceledAt,
		CurrentPeriodStart:   arg.CurrentPeriodStart,
		CurrentPeriodEnd:     arg.CurrentPeriodEnd,
		TrialStart:           arg.TrialStart,
		TrialEnd:             arg.TrialEnd,
		EndedAt:              arg.EndedAt,
		Metadata:             arg.Metadata,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if exists {
		row.CreatedAt = prev.CreatedAt
	}
	f.rows[arg.StripeSubscriptionID] = row
	f.upserts++
	return row, nil
}

func (f *fakeSubscriptionStore) get(id string) (repository.Subscription, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	return row, ok
}

func (f *fakeSubscriptionStore) put(row repository.Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = row.CreatedAt
	}
	f.rows[row.StripeSubscriptionID] = row
}

// =============================================================================
// In-memory usage ledger
// =============================================================================

type fakeUsageLedger struct {
	mu        sync.Mutex
	events    []repository.CreateUsageEventParams
	countErr  error
	createErr error
}

func (f *fakeUsageLedger) CountUsageEvents(ctx context.Context, arg repository.CountUsageEventsParams) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	var n int64
	for _, e := range f.events {
		if e.UserID != arg.UserID {
			continue
		}
		if !e.CreatedAt.Before(arg.From) && !e.CreatedAt.After(arg.To) {
			n++
		}
	}
	return n, nil
}

func (f *fakeUsageLedger) CreateUsageEvent(ctx context.Context, arg repository.CreateUsageEventParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.events = append(f.events, arg)
	return nil
}

func (f *fakeUsageLedger) add(userID uuid.UUID, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, repository.CreateUsageEventParams{ID: uuid.New(), UserID: userID, CreatedAt: at})
}

func (f *fakeUsageLedger) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

// =============================================================================
// Customers, webhook log, Stripe
// =============================================================================

type fakeCustomerStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]repository.BillingCustomer
	err  error
}

func newFakeCustomerStore() *fakeCustomerStore {
	return &fakeCustomerStore{rows: make(map[uuid.UUID]repository.BillingCustomer)}
}

func (f *fakeCustomerStore) GetCustomerByUserID(ctx context.Context, userID uuid.UUID) (repository.BillingCustomer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return repository.BillingCustomer{}, f.err
	}
	c, ok := f.rows[userID]
	if !ok {
		return repository.BillingCustomer{}, sql.ErrNoRows
	}
	return c, nil
}

func (f *fakeCustomerStore) GetCustomerByStripeID(ctx context.Context, stripeCustomerID string) (repository.BillingCustomer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return repository.BillingCustomer{}, f.err
	}
	for _, c := range f.rows {
		if c.StripeCustomerID == stripeCustomerID {
			return c, nil
		}
	}
	return repository.BillingCustomer{}, sql.ErrNoRows
}

func (f *fakeCustomerStore) UpsertCustomer(ctx context.Context, arg repository.UpsertCustomerParams) (repository.BillingCustomer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return repository.BillingCustomer{}, f.err
	}
	c := repository.BillingCustomer{
		UserID:           arg.UserID,
		StripeCustomerID: arg.StripeCustomerID,
		Email:            arg.Email,
		CreatedAt:        time.Now(),
	}
	f.rows[arg.UserID] = c
	return c, nil
}

type fakeEventLog struct {
	mu        sync.Mutex
	seen      map[string]bool
	processed map[string]sql.NullString
}

func newFakeEventLog() *fakeEventLog {
	return &fakeEventLog{seen: map[string]bool{}, processed: map[string]sql.NullString{}}
}

func (f *fakeEventLog) RecordWebhookEvent(ctx context.Context, arg repository.RecordWebhookEventParams) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen[arg.StripeEventID] {
		return 0, nil
	}
	f.seen[arg.StripeEventID] = true
	return 1, nil
}

func (f *fakeEventLog) MarkWebhookEventProcessed(ctx context.Context, arg repository.MarkWebhookEventProcessedParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed[arg.StripeEventID] = arg.Error
	return nil
}

type fakeStripe struct {
	mu    sync.Mutex
	subs  map[string]*stripe.Subscription
	err   error
	calls int
}

func (f *fakeStripe) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	sub, ok := f.subs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return sub, nil
}

// fakeBillingProvider implements billing.Provider.
type fakeBillingProvider struct {
	mu sync.Mutex

	customerID      string
	createCustomers int
	checkouts       []billing.CheckoutParams
	portalReturn    string
	prices          map[string]*billing.Price
	priceCalls      int
	err             error
}

func (f *fakeBillingProvider) CreateCustomer(ctx context.Context, email string, userID uuid.UUID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.createCustomers++
	return f.customerID, nil
}

func (f *fakeBillingProvider) CreateCheckoutSession(ctx context.Context, p billing.CheckoutParams) (*billing.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.checkouts = append(f.checkouts, p)
	return &billing.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/cs_test_1"}, nil
}

func (f *fakeBillingProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.portalReturn = returnURL
	return "https://billing.stripe.com/p/session_1", nil
}

func (f *fakeBillingProvider) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	return nil, sql.ErrNoRows
}

func (f *fakeBillingProvider) GetPrice(ctx context.Context, priceID string) (*billing.Price, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.priceCalls++
	p, ok := f.prices[priceID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return p, nil
}

func (f *fakeBillingProvider) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	return stripe.Event{}, nil
}
