package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/roadwarden/internal/cache"
	"github.com/stwalsh4118/roadwarden/internal/events"
	"github.com/stwalsh4118/roadwarden/internal/gateway"
	"github.com/stwalsh4118/roadwarden/internal/idgen"
	"github.com/stwalsh4118/roadwarden/internal/logger"
	"github.com/stwalsh4118/roadwarden/internal/models"
	"github.com/stwalsh4118/roadwarden/internal/repository/memory"
)

const mockGatewayName = "mockpay"

// MockGateway is a mock implementation of gateway.Gateway for testing
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Name() string { return mockGatewayName }

func (m *MockGateway) SignatureHeader() string { return "x-mock-signature" }

func (m *MockGateway) Initialize(ctx context.Context, req gateway.InitializeRequest) (*gateway.InitializeResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.InitializeResult), args.Error(1)
}

func (m *MockGateway) Verify(ctx context.Context, reference string) (*gateway.VerifyResult, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.VerifyResult), args.Error(1)
}

func (m *MockGateway) Refund(ctx context.Context, providerReference string, amount decimal.Decimal) (*gateway.RefundResult, error) {
	args := m.Called(ctx, providerReference, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.RefundResult), args.Error(1)
}

func (m *MockGateway) VerifyWebhookSignature(payload []byte, signature string) bool {
	return m.Called(payload, signature).Bool(0)
}

func (m *MockGateway) ExtractReference(payload []byte) (string, error) {
	args := m.Called(payload)
	return args.String(0), args.Error(1)
}

// MockPublisher is a mock implementation of events.Publisher for testing
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, event events.Event) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockPublisher) Close() error {
	return m.Called().Error(0)
}

// published returns the events passed to Publish, in order.
func (m *MockPublisher) published() []events.Event {
	var out []events.Event
	for _, call := range m.Calls {
		if call.Method == "Publish" {
			out = append(out, call.Arguments.Get(1).(events.Event))
		}
	}
	return out
}

func (m *MockPublisher) publishedTypes() []events.Type {
	var out []events.Type
	for _, e := range m.published() {
		out = append(out, e.Type)
	}
	return out
}

// countingRecorder tallies domain counters.
type countingRecorder struct {
	mu          sync.Mutex
	violations  int
	suspensions int
	resolved    map[string]int
	refunds     map[string]int
	sigFailures int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{resolved: map[string]int{}, refunds: map[string]int{}}
}

func (r *countingRecorder) ViolationsCreated(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.violations += n
}

func (r *countingRecorder) SuspensionTriggered() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.suspensions++
}

func (r *countingRecorder) PaymentResolved(_, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved[status]++
}

func (r *countingRecorder) RefundProcessed(_, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refunds[kind]++
}

func (r *countingRecorder) SignatureFailure(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sigFailures++
}

// fixedIDs hands out the listed ticket numbers and references in order,
// then falls back to generated ones.
type fixedIDs struct {
	mu         sync.Mutex
	tickets    []string
	references []string
	fallback   idgen.Generator
}

func (f *fixedIDs) TicketNumber() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tickets) == 0 {
		return f.fallback.TicketNumber()
	}
	t := f.tickets[0]
	f.tickets = f.tickets[1:]
	return t
}

func (f *fixedIDs) PaymentReference() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.references) == 0 {
		return f.fallback.PaymentReference()
	}
	r := f.references[0]
	f.references = f.references[1:]
	return r
}

var testNow = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

type fixture struct {
	store      *memory.Store
	gw         *MockGateway
	publisher  *MockPublisher
	recorder   *countingRecorder
	ids        *fixedIDs
	vehicles   VehicleService
	violations ViolationService
	payments   PaymentService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewWithClock(func() time.Time { return testNow })
	log := logger.Nop()
	gw := new(MockGateway)
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything).Return(nil)
	rec := newCountingRecorder()
	ids := &fixedIDs{fallback: idgen.NewWithClock(func() time.Time { return testNow })}
	index := cache.NewDirectIndex(store.Vehicles())

	vehicles := NewVehicleService(store, index, log)

	violations := NewViolationService(store, vehicles, index, ids, pub, rec, DefaultGraceDays, log)
	violations.(*violationService).now = func() time.Time { return testNow }

	payments := NewPaymentService(store, gateway.NewRegistry(gw), ids, pub, rec,
		PaymentConfig{Currency: "NGN", CallbackURL: "https://pay.example/callback"}, log)
	payments.(*paymentService).now = func() time.Time { return testNow }

	return &fixture{
		store:      store,
		gw:         gw,
		publisher:  pub,
		recorder:   rec,
		ids:        ids,
		vehicles:   vehicles,
		violations: violations,
		payments:   payments,
	}
}

func (f *fixture) seedType(t *testing.T, code string, fine string, points int, active bool) models.ViolationType {
	t.Helper()
	vt := &models.ViolationType{
		Code:       code,
		Name:       code,
		Category:   "traffic",
		FineAmount: decimal.RequireFromString(fine),
		Points:     points,
		Active:     active,
	}
	require.NoError(t, f.store.ViolationTypes().Create(context.Background(), vt))
	return *vt
}

func (f *fixture) registerVehicle(t *testing.T, plate string) *models.Vehicle {
	t.Helper()
	email := "owner@example.com"
	v, err := f.vehicles.Create(context.Background(), VehicleInput{
		PlateNumber: plate,
		OwnerName:   "Ada Obi",
		OwnerEmail:  &email,
	})
	require.NoError(t, err)
	return v
}

// recordBatch records one violation per type against plate and returns the rows.
func (f *fixture) recordBatch(t *testing.T, plate string, types ...models.ViolationType) *BatchResult {
	t.Helper()
	ids := make([]int64, 0, len(types))
	for _, vt := range types {
		ids = append(ids, vt.ID)
	}
	res, err := f.violations.CreateBatch(context.Background(), BatchInput{
		PlateNumber:      plate,
		OfficerID:        7,
		ViolationTypeIDs: ids,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) expectInitialize(reference string) {
	f.gw.On("Initialize", mock.Anything, mock.MatchedBy(func(req gateway.InitializeRequest) bool {
		return req.Reference == reference
	})).Return(&gateway.InitializeResult{
		RedirectURL:       "https://checkout.mockpay.test/" + reference,
		ProviderReference: "MP-" + reference,
		Raw:               json.RawMessage(`{"status":true}`),
	}, nil).Once()
}

func (f *fixture) expectVerify(reference string, status gateway.Status, amount decimal.Decimal) {
	f.gw.On("Verify", mock.Anything, reference).Return(&gateway.VerifyResult{
		Status:                status,
		ProviderTransactionID: fmt.Sprintf("txn-%s", reference),
		Amount:                amount,
		Raw:                   json.RawMessage(`{"status":"` + string(status) + `"}`),
	}, nil)
}

// initiate opens a checkout for the given violations under reference.
func (f *fixture) initiate(t *testing.T, reference string, violations ...models.Violation) *InitiateResult {
	t.Helper()
	f.ids.references = append(f.ids.references, reference)
	f.expectInitialize(reference)

	ids := make([]int64, 0, len(violations))
	for _, v := range violations {
		ids = append(ids, v.ID)
	}
	res, err := f.payments.Initiate(context.Background(), InitiateInput{
		ViolationIDs: ids,
		Payer:        models.Payer{Name: "Ada Obi", Email: "ada@example.com"},
		Method:       models.PaymentMethodCard,
		Gateway:      mockGatewayName,
	})
	require.NoError(t, err)
	return res
}
