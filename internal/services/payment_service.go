package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stwalsh4118/roadwarden/internal/events"
	"github.com/stwalsh4118/roadwarden/internal/gateway"
	"github.com/stwalsh4118/roadwarden/internal/idgen"
	"github.com/stwalsh4118/roadwarden/internal/logger"
	"github.com/stwalsh4118/roadwarden/internal/models"
	"github.com/stwalsh4118/roadwarden/internal/repository"
	"golang.org/x/sync/errgroup"
)

// maxReferenceAttempts bounds payment reference regeneration.
const maxReferenceAttempts = 3

// PaymentConfig holds settings passed through to gateways on checkout.
type PaymentConfig struct {
	Currency    string
	CallbackURL string
}

// InitiateInput describes a checkout covering one or more violations.
type InitiateInput struct {
	Payer        models.Payer
	Method       models.PaymentMethod
	Gateway      string
	ViolationIDs []int64
}

// InitiateResult is the outcome of Initiate.
type InitiateResult struct {
	PaymentURL       string             `json:"paymentUrl"`
	PaymentReference string             `json:"paymentReference"`
	TotalAmount      decimal.Decimal    `json:"totalAmount"`
	Violations       []models.Violation `json:"violations"`
	Payments         []models.Payment   `json:"payments"`
}

// VerifyResult is the outcome of Verify. AlreadyProcessed is set when the
// reference had no pending payments left; Payments then holds the rows as
// they were resolved earlier.
type VerifyResult struct {
	PaymentReference string               `json:"paymentReference"`
	Status           models.PaymentStatus `json:"status"`
	TotalAmount      decimal.Decimal      `json:"totalAmount"`
	Payments         []models.Payment     `json:"payments"`
	Success          bool                 `json:"success"`
	AlreadyProcessed bool                 `json:"alreadyProcessed"`
}

// StatisticsReport aggregates payments in a window.
type StatisticsReport struct {
	ByStatus        []repository.GroupTotal `json:"byStatus"`
	ByGateway       []repository.GroupTotal `json:"byGateway"`
	ByDay           []repository.GroupTotal `json:"byDay"`
	TotalAmount     decimal.Decimal         `json:"totalAmount"`
	CompletedAmount decimal.Decimal         `json:"completedAmount"`
	TotalCount      int64                   `json:"totalCount"`
}

// PaymentService defines the payment orchestration operations.
type PaymentService interface {
	// Initiate reserves the violations under one shared reference and opens a
	// checkout with the gateway. Nothing is persisted unless the gateway call
	// succeeds.
	Initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error)

	// Verify asks the gateway for the outcome of a reference and applies it to
	// every pending payment under that reference together. The gateway call
	// happens outside the database transaction; rows are re-locked before the
	// terminal transition so a reference resolves at most once.
	Verify(ctx context.Context, reference, gatewayName, gatewayReference string) (*VerifyResult, error)

	// HandleWebhook authenticates a provider callback and verifies the
	// reference it names. Payloads without a usable reference are dropped.
	HandleWebhook(ctx context.Context, gatewayName, signature string, payload []byte) error

	// Refund returns money for a completed payment. A full refund reopens the
	// violation; points are never reverted.
	Refund(ctx context.Context, paymentID int64, amount decimal.Decimal, reason string, actorID int64) (*models.Payment, error)

	Statistics(ctx context.Context, filter repository.StatsFilter) (*StatisticsReport, error)

	GetByReference(ctx context.Context, reference string) ([]models.Payment, error)
}

type paymentService struct {
	store     repository.Store
	gateways  *gateway.Registry
	ids       idgen.Generator
	publisher events.Publisher
	recorder  Recorder
	log       *logger.Logger
	now       func() time.Time
	cfg       PaymentConfig
}

// NewPaymentService creates a new instance of PaymentService.
func NewPaymentService(
	store repository.Store,
	gateways *gateway.Registry,
	ids idgen.Generator,
	publisher events.Publisher,
	recorder Recorder,
	cfg PaymentConfig,
	log *logger.Logger,
) PaymentService {
	return &paymentService{
		store:     store,
		gateways:  gateways,
		ids:       ids,
		publisher: publisher,
		recorder:  recorderOrNop(recorder),
		log:       log,
		now:       time.Now,
		cfg:       cfg,
	}
}

func (s *paymentService) gateway(name string) (gateway.Gateway, error) {
	g, err := s.gateways.Get(name)
	if err != nil {
		return nil, invalidInput(err.Error(), map[string]interface{}{
			"supportedGateways": s.gateways.Names(),
		})
	}
	return g, nil
}

func gatewayErr(err error) error {
	return fmt.Errorf("%w: %w", ErrGateway, err)
}

func validateInitiate(input InitiateInput) error {
	if len(input.ViolationIDs) == 0 {
		return invalidInput("at least one violation is required", nil)
	}
	seen := make(map[int64]bool, len(input.ViolationIDs))
	for _, id := range input.ViolationIDs {
		if id <= 0 {
			return invalidInput(fmt.Sprintf("invalid violation id %d", id), nil)
		}
		if seen[id] {
			return invalidInput(fmt.Sprintf("violation %d is listed more than once", id), nil)
		}
		seen[id] = true
	}
	if strings.TrimSpace(input.Payer.Email) == "" {
		return invalidInput("payer email is required", nil)
	}
	if !models.IsValidPaymentMethod(input.Method) {
		return invalidInput(fmt.Sprintf("unknown payment method %q", input.Method), nil)
	}
	return nil
}

func (s *paymentService) Initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error) {
	if err := validateInitiate(input); err != nil {
		return nil, err
	}
	gw, err := s.gateway(input.Gateway)
	if err != nil {
		return nil, err
	}

	var result *InitiateResult
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		violations, err := tx.Violations().FindPayableForUpdate(ctx, input.ViolationIDs)
		if err != nil {
			return storeErr("failed to lock violations", err)
		}
		if len(violations) != len(input.ViolationIDs) {
			found := make(map[int64]bool, len(violations))
			for _, v := range violations {
				found[v.ID] = true
			}
			var unavailable []int64
			for _, id := range input.ViolationIDs {
				if !found[id] {
					unavailable = append(unavailable, id)
				}
			}
			return invalidInput("some violations do not exist or are not payable", map[string]interface{}{
				"violationIds": unavailable,
			})
		}

		total := decimal.Zero
		for _, v := range violations {
			total = total.Add(v.FineAmount)
		}

		reference, err := s.newReference(ctx, tx)
		if err != nil {
			return err
		}

		payments := make([]models.Payment, 0, len(violations))
		for _, v := range violations {
			p := &models.Payment{
				ViolationID:      v.ID,
				PaymentReference: reference,
				Gateway:          gw.Name(),
				Method:           input.Method,
				Amount:           v.FineAmount,
				RefundedAmount:   decimal.Zero,
				Status:           models.PaymentStatusPending,
				Payer:            input.Payer,
			}
			if err := tx.Payments().Create(ctx, p); err != nil {
				return storeErr("failed to create payment", err)
			}
			payments = append(payments, *p)
		}

		tickets := make([]string, 0, len(violations))
		for _, v := range violations {
			tickets = append(tickets, v.TicketNumber)
		}
		opened, err := gw.Initialize(ctx, gateway.InitializeRequest{
			Email:       input.Payer.Email,
			Name:        input.Payer.Name,
			Phone:       input.Payer.Phone,
			Reference:   reference,
			Currency:    s.cfg.Currency,
			CallbackURL: s.cfg.CallbackURL,
			Amount:      total,
			Metadata: map[string]string{
				"tickets": strings.Join(tickets, ","),
				"method":  string(input.Method),
			},
		})
		if err != nil {
			return gatewayErr(err)
		}

		for i := range payments {
			p := &payments[i]
			url := opened.RedirectURL
			p.PaymentURL = &url
			if opened.ProviderReference != "" {
				ref := opened.ProviderReference
				p.GatewayReference = &ref
			}
			p.GatewayResponse = opened.Raw
			if err := tx.Payments().Update(ctx, p); err != nil {
				return storeErr("failed to store checkout details", err)
			}
		}

		result = &InitiateResult{
			PaymentURL:       opened.RedirectURL,
			PaymentReference: reference,
			TotalAmount:      total,
			Violations:       violations,
			Payments:         payments,
		}
		return nil
	})
	if err != nil {
		s.log.Error("Failed to initiate payment", err, map[string]interface{}{
			"gateway":       input.Gateway,
			"violation_ids": input.ViolationIDs,
		})
		return nil, txErr("failed to initiate payment", err)
	}

	s.log.Info("Payment initiated", map[string]interface{}{
		"reference":    result.PaymentReference,
		"gateway":      input.Gateway,
		"violations":   len(result.Violations),
		"total_amount": result.TotalAmount.String(),
	})
	return result, nil
}

func (s *paymentService) newReference(ctx context.Context, tx repository.Store) (string, error) {
	for attempt := 0; attempt < maxReferenceAttempts; attempt++ {
		ref := s.ids.PaymentReference()
		exists, err := tx.Payments().ReferenceExists(ctx, ref)
		if err != nil {
			return "", storeErr("failed to check payment reference", err)
		}
		if !exists {
			return ref, nil
		}
		s.log.Warn("Payment reference collision, regenerating", map[string]interface{}{
			"reference": ref,
			"attempt":   attempt + 1,
		})
	}
	return "", fmt.Errorf("%w: could not allocate a unique payment reference", ErrConflict)
}

func sumAmounts(payments []models.Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return total
}

func hasPending(payments []models.Payment) bool {
	for _, p := range payments {
		if p.Status == models.PaymentStatusPending {
			return true
		}
	}
	return false
}

func resolvedResult(reference string, payments []models.Payment) *VerifyResult {
	status := payments[0].Status
	return &VerifyResult{
		PaymentReference: reference,
		Status:           status,
		TotalAmount:      sumAmounts(payments),
		Payments:         payments,
		Success:          status == models.PaymentStatusCompleted || status == models.PaymentStatusRefunded,
		AlreadyProcessed: true,
	}
}

func (s *paymentService) Verify(ctx context.Context, reference, gatewayName, gatewayReference string) (*VerifyResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, invalidInput("payment reference is required", nil)
	}

	existing, err := s.store.Payments().FindByReference(ctx, reference)
	if err != nil {
		return nil, storeErr("failed to query payments", err)
	}
	if len(existing) == 0 {
		return nil, fmt.Errorf("%w: payment reference %s", ErrNotFound, reference)
	}
	if gatewayName == "" {
		gatewayName = existing[0].Gateway
	}
	if gatewayName != existing[0].Gateway {
		return nil, invalidInput(fmt.Sprintf("payment %s was not made through %s", reference, gatewayName), nil)
	}
	if !hasPending(existing) {
		s.log.Info("Payment reference already resolved", map[string]interface{}{
			"reference": reference,
			"status":    existing[0].Status,
		})
		return resolvedResult(reference, existing), nil
	}

	gw, err := s.gateway(gatewayName)
	if err != nil {
		return nil, err
	}
	outcome, err := gw.Verify(ctx, reference)
	if err != nil {
		s.log.Error("Gateway verification failed", err, map[string]interface{}{
			"reference": reference,
			"gateway":   gatewayName,
		})
		return nil, gatewayErr(err)
	}

	if outcome.Status == gateway.StatusPending {
		s.log.Info("Payment still pending at gateway", map[string]interface{}{
			"reference": reference,
			"gateway":   gatewayName,
		})
		return &VerifyResult{
			PaymentReference: reference,
			Status:           models.PaymentStatusPending,
			TotalAmount:      sumAmounts(existing),
			Payments:         existing,
		}, nil
	}

	success := outcome.Status == gateway.StatusSuccess
	expected := sumAmounts(existing)
	if success && !outcome.Amount.IsZero() && !outcome.Amount.Equal(expected) {
		s.log.Warn("Gateway amount does not match payment total, treating as failed", map[string]interface{}{
			"reference": reference,
			"gateway":   gatewayName,
			"expected":  expected.String(),
			"reported":  outcome.Amount.String(),
		})
		success = false
	}

	providerRef := outcome.ProviderTransactionID
	if providerRef == "" {
		providerRef = gatewayReference
	}

	now := s.now().UTC()
	var (
		result  *VerifyResult
		tickets []plateTickets
		skipped []int64
	)
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		tickets, skipped = nil, nil
		pending, err := tx.Payments().FindPendingByReferenceForUpdate(ctx, reference)
		if err != nil {
			return storeErr("failed to lock payments", err)
		}
		if len(pending) == 0 {
			// A concurrent verify resolved the reference first.
			resolved, err := tx.Payments().FindByReference(ctx, reference)
			if err != nil {
				return storeErr("failed to query payments", err)
			}
			result = resolvedResult(reference, resolved)
			return nil
		}

		status := models.PaymentStatusFailed
		if success {
			status = models.PaymentStatusCompleted
		}

		for i := range pending {
			p := &pending[i]
			p.Status = status
			p.GatewayResponse = outcome.Raw
			if providerRef != "" {
				ref := providerRef
				p.GatewayReference = &ref
			}
			if success {
				p.PaymentDate = &now
			}
			if err := tx.Payments().Update(ctx, p); err != nil {
				return storeErr("failed to update payment", err)
			}

			if !success {
				continue
			}
			v, err := tx.Violations().FindByIDForUpdate(ctx, p.ViolationID)
			if err != nil {
				return storeErr("failed to lock violation", err)
			}
			if v == nil {
				return fmt.Errorf("%w: violation %d for payment %d", ErrNotFound, p.ViolationID, p.ID)
			}
			if !v.Status.IsPayable() {
				// Contested or otherwise moved on since checkout; the money is
				// recorded on the payment and the status is left to the reviewer.
				v.Notes = appendNote(v.Notes, now, fmt.Sprintf(
					"payment %s completed while violation was %s; status unchanged", reference, v.Status))
				if err := tx.Violations().Update(ctx, v); err != nil {
					return storeErr("failed to annotate violation", err)
				}
				skipped = append(skipped, v.ID)
			} else {
				v.Status = models.ViolationStatusPaid
				v.PaidDate = &now
				if err := tx.Violations().Update(ctx, v); err != nil {
					return storeErr("failed to mark violation paid", err)
				}
			}
			tickets = addTicket(tickets, v)
		}

		result = &VerifyResult{
			PaymentReference: reference,
			Status:           status,
			TotalAmount:      sumAmounts(pending),
			Payments:         pending,
			Success:          success,
		}
		return nil
	})
	if err != nil {
		s.log.Error("Failed to apply payment verification", err, map[string]interface{}{
			"reference": reference,
		})
		return nil, txErr("failed to verify payment", err)
	}
	if result.AlreadyProcessed {
		return result, nil
	}

	s.recorder.PaymentResolved(gatewayName, string(result.Status))
	s.log.Info("Payment verified", map[string]interface{}{
		"reference": reference,
		"gateway":   gatewayName,
		"status":    result.Status,
		"payments":  len(result.Payments),
	})

	if len(skipped) > 0 {
		s.log.Warn("Payment completed for violations no longer payable", map[string]interface{}{
			"reference":     reference,
			"violation_ids": skipped,
		})
	}

	if result.Success {
		// One event per plate, so each lands on its vehicle's partition.
		for _, pt := range tickets {
			amount := pt.amount(result.Payments)
			publish(ctx, s.publisher, s.log, events.Event{
				Type:             events.PaymentConfirmed,
				OccurredAt:       now,
				PlateNumber:      pt.plate,
				TicketNumbers:    pt.tickets,
				PaymentReference: reference,
				Amount:           &amount,
				Recipient:        payerRecipient(result.Payments[0].Payer),
			})
		}
	}
	return result, nil
}

// plateTickets groups the tickets settled by one checkout under a plate.
type plateTickets struct {
	plate        string
	tickets      []string
	violationIDs map[int64]bool
}

func addTicket(groups []plateTickets, v *models.Violation) []plateTickets {
	for i := range groups {
		if groups[i].plate == v.PlateNumber {
			groups[i].tickets = append(groups[i].tickets, v.TicketNumber)
			groups[i].violationIDs[v.ID] = true
			return groups
		}
	}
	return append(groups, plateTickets{
		plate:        v.PlateNumber,
		tickets:      []string{v.TicketNumber},
		violationIDs: map[int64]bool{v.ID: true},
	})
}

// amount sums the payments whose violation carries one of the group's tickets.
func (pt plateTickets) amount(payments []models.Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		if pt.violationIDs[p.ViolationID] {
			total = total.Add(p.Amount)
		}
	}
	return total
}

func payerRecipient(p models.Payer) events.Recipient {
	return events.Recipient{Name: p.Name, Email: p.Email, Phone: p.Phone}
}

func (s *paymentService) HandleWebhook(ctx context.Context, gatewayName, signature string, payload []byte) error {
	gw, err := s.gateway(gatewayName)
	if err != nil {
		return err
	}

	if !gw.VerifyWebhookSignature(payload, signature) {
		s.recorder.SignatureFailure(gatewayName)
		s.log.Security("Webhook signature mismatch", map[string]interface{}{
			"gateway":       gatewayName,
			"payload_bytes": len(payload),
		})
		return fmt.Errorf("%w: %s", ErrSignatureInvalid, gatewayName)
	}

	reference, err := gw.ExtractReference(payload)
	if err != nil {
		s.log.Warn("Dropping webhook without a usable reference", map[string]interface{}{
			"gateway": gatewayName,
			"error":   err.Error(),
		})
		return nil
	}

	_, err = s.Verify(ctx, reference, gatewayName, "")
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidInput) {
		s.log.Warn("Dropping webhook for unknown reference", map[string]interface{}{
			"gateway":   gatewayName,
			"reference": reference,
			"error":     err.Error(),
		})
		return nil
	}
	return err
}

func (s *paymentService) Refund(ctx context.Context, paymentID int64, amount decimal.Decimal, reason string, actorID int64) (*models.Payment, error) {
	reason = strings.TrimSpace(reason)
	if !amount.IsPositive() {
		return nil, invalidInput("refund amount must be positive", nil)
	}
	if reason == "" {
		return nil, invalidInput("refund reason is required", nil)
	}
	if actorID <= 0 {
		return nil, invalidInput("refund must be attributed to an actor", nil)
	}

	now := s.now().UTC()
	var (
		payment *models.Payment
		full    bool
		plate   string
	)
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		p, err := tx.Payments().FindByIDForUpdate(ctx, paymentID)
		if err != nil {
			return storeErr("failed to lock payment", err)
		}
		if p == nil {
			return fmt.Errorf("%w: payment %d", ErrNotFound, paymentID)
		}
		if p.Status != models.PaymentStatusCompleted {
			return fmt.Errorf("%w: cannot refund a payment in status %s", ErrIllegalStateTransition, p.Status)
		}
		if amount.GreaterThan(p.Amount) {
			return invalidInput("refund amount exceeds the payment amount", map[string]interface{}{
				"paymentAmount": p.Amount.String(),
				"refundAmount":  amount.String(),
			})
		}

		gw, err := s.gateway(p.Gateway)
		if err != nil {
			return err
		}
		providerRef := p.PaymentReference
		if p.GatewayReference != nil && *p.GatewayReference != "" {
			providerRef = *p.GatewayReference
		}
		refunded, err := gw.Refund(ctx, providerRef, amount)
		if err != nil {
			if errors.Is(err, gateway.ErrRefundUnsupported) {
				return invalidInput(err.Error(), map[string]interface{}{"gateway": p.Gateway})
			}
			return gatewayErr(err)
		}

		p.Status = models.PaymentStatusRefunded
		p.RefundedAmount = amount
		p.RefundReason = &reason
		p.RefundDate = &now
		p.RefundedBy = &actorID
		if len(refunded.Raw) > 0 {
			p.GatewayResponse = refunded.Raw
		}
		if err := tx.Payments().Update(ctx, p); err != nil {
			return storeErr("failed to update payment", err)
		}

		full = amount.Equal(p.Amount)
		v, err := tx.Violations().FindByIDForUpdate(ctx, p.ViolationID)
		if err != nil {
			return storeErr("failed to lock violation", err)
		}
		if v != nil {
			plate = v.PlateNumber
			if full {
				v.Status = models.ViolationStatusPending
				v.PaidDate = nil
				v.Notes = appendNote(v.Notes, now, fmt.Sprintf("reopened by full refund of payment %s by %s", p.PaymentReference, actorLabel(actorID)))
				if err := tx.Violations().Update(ctx, v); err != nil {
					return storeErr("failed to reopen violation", err)
				}
			}
		}

		payment = p
		return nil
	})
	if err != nil {
		if !isServiceErr(err) || errors.Is(err, ErrGateway) {
			s.log.Error("Failed to refund payment", err, map[string]interface{}{"payment_id": paymentID})
		}
		return nil, txErr("failed to refund payment", err)
	}

	kind := "partial"
	if full {
		kind = "full"
	}
	s.recorder.RefundProcessed(payment.Gateway, kind)
	s.log.Info("Payment refunded", map[string]interface{}{
		"payment_id": paymentID,
		"reference":  payment.PaymentReference,
		"amount":     amount.String(),
		"kind":       kind,
		"actor_id":   actorID,
	})

	refundedAmount := payment.RefundedAmount
	publish(ctx, s.publisher, s.log, events.Event{
		Type:             events.PaymentRefunded,
		OccurredAt:       now,
		PlateNumber:      plate,
		PaymentReference: payment.PaymentReference,
		Amount:           &refundedAmount,
		Recipient:        payerRecipient(payment.Payer),
	})
	return payment, nil
}

func (s *paymentService) Statistics(ctx context.Context, filter repository.StatsFilter) (*StatisticsReport, error) {
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, invalidInput("from must not be after to", nil)
	}

	report := &StatisticsReport{TotalAmount: decimal.Zero, CompletedAmount: decimal.Zero}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		report.ByStatus, err = s.store.Payments().Aggregate(gctx, filter, repository.GroupByStatus)
		return err
	})
	g.Go(func() error {
		var err error
		report.ByGateway, err = s.store.Payments().Aggregate(gctx, filter, repository.GroupByGateway)
		return err
	})
	g.Go(func() error {
		var err error
		report.ByDay, err = s.store.Payments().Aggregate(gctx, filter, repository.GroupByDay)
		return err
	})
	if err := g.Wait(); err != nil {
		s.log.Error("Failed to aggregate payment statistics", err, nil)
		return nil, storeErr("failed to aggregate payments", err)
	}

	for _, t := range report.ByStatus {
		report.TotalCount += t.Count
		report.TotalAmount = report.TotalAmount.Add(t.Amount)
		if t.Key == string(models.PaymentStatusCompleted) {
			report.CompletedAmount = t.Amount
		}
	}
	return report, nil
}

func (s *paymentService) GetByReference(ctx context.Context, reference string) ([]models.Payment, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, invalidInput("payment reference is required", nil)
	}
	payments, err := s.store.Payments().FindByReference(ctx, reference)
	if err != nil {
		return nil, storeErr("failed to query payments", err)
	}
	if len(payments) == 0 {
		return nil, fmt.Errorf("%w: payment reference %s", ErrNotFound, reference)
	}
	return payments, nil
}
