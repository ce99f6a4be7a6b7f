package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	apierrors "github.com/stwalsh4118/roadwarden/internal/errors"
	"github.com/stwalsh4118/roadwarden/internal/gateway"
	"github.com/stwalsh4118/roadwarden/internal/logger"
	"github.com/stwalsh4118/roadwarden/internal/middleware"
	"github.com/stwalsh4118/roadwarden/internal/models"
	"github.com/stwalsh4118/roadwarden/internal/repository"
	"github.com/stwalsh4118/roadwarden/internal/services"
)

// MockVehicleService is a mock implementation of services.VehicleService.
type MockVehicleService struct {
	mock.Mock
}

func (m *MockVehicleService) Lookup(ctx context.Context, rawPlate string) (*services.LookupResult, error) {
	args := m.Called(ctx, rawPlate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.LookupResult), args.Error(1)
}

func (m *MockVehicleService) FindSimilar(ctx context.Context, rawPlate string, limit int) ([]services.Candidate, error) {
	args := m.Called(ctx, rawPlate, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]services.Candidate), args.Error(1)
}

func (m *MockVehicleService) GetByID(ctx context.Context, id int64) (*models.Vehicle, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Vehicle), args.Error(1)
}

func (m *MockVehicleService) Create(ctx context.Context, input services.VehicleInput) (*models.Vehicle, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Vehicle), args.Error(1)
}

func (m *MockVehicleService) Update(ctx context.Context, id int64, input services.VehicleInput) (*models.Vehicle, error) {
	args := m.Called(ctx, id, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Vehicle), args.Error(1)
}

func (m *MockVehicleService) AdjustPoints(ctx context.Context, rawPlate string, delta int) (*services.PointsResult, error) {
	args := m.Called(ctx, rawPlate, delta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.PointsResult), args.Error(1)
}

// MockViolationService is a mock implementation of services.ViolationService.
type MockViolationService struct {
	mock.Mock
}

func (m *MockViolationService) CreateBatch(ctx context.Context, input services.BatchInput) (*services.BatchResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.BatchResult), args.Error(1)
}

func (m *MockViolationService) UpdateStatus(ctx context.Context, id int64, status models.ViolationStatus, actorID int64, notes string) (*models.Violation, error) {
	args := m.Called(ctx, id, status, actorID, notes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Violation), args.Error(1)
}

func (m *MockViolationService) Contest(ctx context.Context, id int64, reason string, actorID int64) (*models.Violation, error) {
	args := m.Called(ctx, id, reason, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Violation), args.Error(1)
}

func (m *MockViolationService) GetByID(ctx context.Context, id int64) (*models.Violation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Violation), args.Error(1)
}

func (m *MockViolationService) GetByTicket(ctx context.Context, ticket string) (*models.Violation, error) {
	args := m.Called(ctx, ticket)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Violation), args.Error(1)
}

func (m *MockViolationService) GetByPlate(ctx context.Context, rawPlate string) (*services.PlateHistory, error) {
	args := m.Called(ctx, rawPlate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.PlateHistory), args.Error(1)
}

func (m *MockViolationService) ListViolationTypes(ctx context.Context, activeOnly bool) ([]models.ViolationType, error) {
	args := m.Called(ctx, activeOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ViolationType), args.Error(1)
}

// MockPaymentService is a mock implementation of services.PaymentService.
type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) Initiate(ctx context.Context, input services.InitiateInput) (*services.InitiateResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.InitiateResult), args.Error(1)
}

func (m *MockPaymentService) Verify(ctx context.Context, reference, gatewayName, gatewayReference string) (*services.VerifyResult, error) {
	args := m.Called(ctx, reference, gatewayName, gatewayReference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.VerifyResult), args.Error(1)
}

func (m *MockPaymentService) HandleWebhook(ctx context.Context, gatewayName, signature string, payload []byte) error {
	args := m.Called(ctx, gatewayName, signature, payload)
	return args.Error(0)
}

func (m *MockPaymentService) Refund(ctx context.Context, paymentID int64, amount decimal.Decimal, reason string, actorID int64) (*models.Payment, error) {
	args := m.Called(ctx, paymentID, amount, reason, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *MockPaymentService) Statistics(ctx context.Context, filter repository.StatsFilter) (*services.StatisticsReport, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.StatisticsReport), args.Error(1)
}

func (m *MockPaymentService) GetByReference(ctx context.Context, reference string) ([]models.Payment, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Payment), args.Error(1)
}

// stubGateway only exists so the registry can resolve webhook signature
// headers; the payment service is mocked.
type stubGateway struct {
	name   string
	header string
}

func (g stubGateway) Name() string { return g.name }

func (g stubGateway) Initialize(context.Context, gateway.InitializeRequest) (*gateway.InitializeResult, error) {
	return nil, gateway.ErrRefundUnsupported
}

func (g stubGateway) Verify(context.Context, string) (*gateway.VerifyResult, error) {
	return nil, gateway.ErrRefundUnsupported
}

func (g stubGateway) Refund(context.Context, string, decimal.Decimal) (*gateway.RefundResult, error) {
	return nil, gateway.ErrRefundUnsupported
}

func (g stubGateway) SignatureHeader() string { return g.header }

func (g stubGateway) VerifyWebhookSignature([]byte, string) bool { return false }

func (g stubGateway) ExtractReference([]byte) (string, error) { return "", gateway.ErrNoReference }

// testServer bundles a router wired with mocked services.
type testServer struct {
	router     *gin.Engine
	vehicles   *MockVehicleService
	violations *MockViolationService
	payments   *MockPaymentService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &testServer{
		router:     gin.New(),
		vehicles:   new(MockVehicleService),
		violations: new(MockViolationService),
		payments:   new(MockPaymentService),
	}
	t.Cleanup(func() {
		s.vehicles.AssertExpectations(t)
		s.violations.AssertExpectations(t)
		s.payments.AssertExpectations(t)
	})

	registry := gateway.NewRegistry(stubGateway{name: "paystack", header: "x-paystack-signature"})

	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger(logger.Nop()))

	v1 := s.router.Group("/api/v1")
	NewPlateHandler().Register(v1)
	NewVehicleHandler(s.vehicles).Register(v1)
	NewViolationHandler(s.violations).Register(v1)
	NewPaymentHandler(s.payments, registry).Register(v1)

	return s
}

// do serves a request. body may be nil, a string sent verbatim, or a value
// encoded as JSON.
func (s *testServer) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) apierrors.ErrorDetail {
	t.Helper()
	var resp apierrors.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp.Error
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

func actor(id string) map[string]string {
	return map[string]string{middleware.ActorIDHeader: id}
}
