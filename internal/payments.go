package internal

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"redsys/entity"
	"redsys/services"
)

// Hosted payment page endpoints.
const (
	paymentPageLive = "https://sis.redsys.es/sis/realizarPago"
	paymentPageTest = "https://sis-t.redsys.es:25443/sis/realizarPago"
)

// Payments reconciles payment attempts against processor notifications.
// It uses fine-grained locking per order reference so notifications for
// different orders are processed in parallel while two callbacks for the
// same reference can never both observe the draft state.
type Payments struct {
	database services.Database
	origins  services.OriginResolver
	logger   services.LogHandler
	locks    sync.Map // map[string]*sync.Mutex per order reference
}

func NewPayments() *Payments {
	return &Payments{}
}

func (p *Payments) SetDatabase(database services.Database) {
	p.database = database
}

func (p *Payments) SetOriginResolver(origins services.OriginResolver) {
	p.origins = origins
}

func (p *Payments) SetLogger(logger services.LogHandler) {
	p.logger = logger
}

// lockReference acquires the mutex for one order reference.
func (p *Payments) lockReference(reference string) *sync.Mutex {
	value, _ := p.locks.LoadOrStore(reference, &sync.Mutex{})
	mutex := value.(*sync.Mutex)
	mutex.Lock()
	return mutex
}

// unlockReference releases the mutex and removes it from the map to prevent
// unbounded growth.
func (p *Payments) unlockReference(reference string, mutex *sync.Mutex) {
	mutex.Unlock()
	p.locks.Delete(reference)
}

// StartAttempt opens a new draft transaction. With an origin, the amount is
// derived from the record (total minus already paid) and any previous drafts
// for that origin are superseded; without one, the caller must supply the
// amount directly.
func (p *Payments) StartAttempt(ctx context.Context, request services.StartRequest) (*entity.Transaction, error) {
	if p.database == nil {
		return nil, fmt.Errorf("database not set")
	}
	gateway := request.Gateway
	if gateway == nil {
		return nil, services.ErrGatewayNotFound
	}

	var amount entity.Amount
	currency := request.DefaultCurrency

	if request.Origin != "" {
		kind, id, ok := strings.Cut(request.Origin, ",")
		if !ok || kind == "" || id == "" {
			return nil, fmt.Errorf("%w: %q", services.ErrInvalidOrigin, request.Origin)
		}
		if p.origins == nil {
			return nil, fmt.Errorf("%w: no origin resolver", services.ErrInvalidOrigin)
		}
		origin, err := p.origins.ResolveOrigin(ctx, kind, id)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", services.ErrInvalidOrigin, err)
		}

		// only one live attempt per origin; closing stale drafts is
		// best-effort bookkeeping, a dangling draft moves no money
		cancelled, err := p.database.CancelDraftTransactions(ctx, request.Origin)
		if err != nil {
			p.logger.Error("cancel stale drafts", err)
		} else if cancelled > 0 {
			p.logger.Info(fmt.Sprintf("superseded %d draft(s) for origin %s", cancelled, request.Origin))
		}

		total, ok := origin.TotalAmount()
		if !ok {
			return nil, services.ErrAmountUnavailable
		}
		amount = entity.NewAmount(total.Sub(origin.GatewayAmount()))
		if c := origin.Currency(); c != "" {
			currency = c
		}
	} else {
		if request.Amount == "" {
			return nil, services.ErrMissingAmount
		}
		value, err := decimal.NewFromString(request.Amount)
		if err != nil || !value.IsPositive() {
			return nil, fmt.Errorf("%w: %q", services.ErrInvalidAmount, request.Amount)
		}
		amount = entity.NewAmount(value)
	}

	// the processor rejects reused order references, every attempt gets a fresh one
	reference, err := p.database.NextReference(ctx, gateway.Sequence)
	if err != nil {
		return nil, fmt.Errorf("next reference: %w", err)
	}

	transaction := &entity.Transaction{
		Id:               GenerateRequestID(),
		Description:      request.Description,
		Origin:           request.Origin,
		Gateway:          gateway.MerchantCode,
		ReferenceGateway: reference,
		Party:            request.Party,
		Amount:           amount,
		Currency:         currency,
		State:            entity.StateDraft,
		TimeCreated:      time.Now(),
	}
	if err := p.database.SaveTransaction(ctx, transaction); err != nil {
		return nil, fmt.Errorf("save transaction: %w", err)
	}

	p.logger.Info(fmt.Sprintf("attempt %s opened, amount %s", reference, amount.String()))
	return transaction, nil
}

// BuildRequest assembles the signed payload for the hosted payment page.
func (p *Payments) BuildRequest(transaction *entity.Transaction, gateway *entity.GatewayConfig, urls services.CallbackUrls) (*entity.PaymentRequest, error) {
	parameters := entity.MerchantParameters{
		Amount:             transaction.Amount.MinorUnits(),
		Currency:           gateway.Currency,
		Order:              transaction.ReferenceGateway,
		ProductDescription: transaction.Description,
		Titular:            gateway.MerchantName,
		MerchantCode:       gateway.MerchantCode,
		MerchantUrl:        urls.Notify,
		UrlOk:              urls.Confirm,
		UrlKo:              urls.Cancel,
		MerchantName:       gateway.MerchantName,
		Terminal:           gateway.Terminal,
		TransactionType:    gateway.TransactionType,
	}

	encoded, err := EncodeParameters(&parameters)
	if err != nil {
		return nil, fmt.Errorf("encode parameters: %v", err)
	}

	encryptor := NewEncryptor(gateway.SecretKey, encoded, transaction.ReferenceGateway)
	signature, err := encryptor.CreateSignature()
	if err != nil {
		return nil, fmt.Errorf("create signature: %v", err)
	}

	return &entity.PaymentRequest{
		Parameters:       encoded,
		Signature:        signature,
		SignatureVersion: entity.SignatureVersion,
	}, nil
}

// PaymentPageUrl returns the processor's hosted payment page.
func PaymentPageUrl(sandbox bool) string {
	if sandbox {
		return paymentPageTest
	}
	return paymentPageLive
}

// ReconcileNotification verifies one processor callback and settles the
// matching transaction. The notification is recorded regardless of signature
// validity; an invalid signature cancels the attempt but is still
// acknowledged, since the processor retries unacknowledged callbacks.
func (p *Payments) ReconcileNotification(ctx context.Context, signature, parameters string, gateway *entity.GatewayConfig) (*services.Reconciliation, error) {
	if p.database == nil {
		return nil, fmt.Errorf("database not set")
	}
	if gateway == nil {
		return nil, services.ErrGatewayNotFound
	}

	// decode failures abort before touching persistence
	params, err := DecodeParameters(parameters)
	if err != nil {
		return nil, err
	}
	reference := params[entity.ParamOrder]
	if reference == "" {
		return nil, fmt.Errorf("%w: missing %s", services.ErrMalformedPayload, entity.ParamOrder)
	}
	authorisationCode := params[entity.ParamAuthorisationCode]
	rawAmount := params[entity.ParamAmount]
	if rawAmount == "" {
		rawAmount = "0"
	}
	responseCode := params[entity.ParamResponse]

	amount, err := entity.AmountFromMinorUnits(rawAmount)
	if err != nil {
		return nil, fmt.Errorf("%w: amount %q", services.ErrMalformedPayload, rawAmount)
	}

	valid := VerifySignature(signature, parameters, gateway.SecretKey)
	if !valid {
		p.logger.Warn(fmt.Sprintf("invalid signature for reference %s", reference))
	}

	dump := paramsDump(params)

	mutex := p.lockReference(reference)
	defer p.unlockReference(reference, mutex)

	transaction, err := p.database.GetDraftByReference(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("search transaction: %w", err)
	}

	if transaction == nil {
		closed, err := p.database.GetTransactionByReference(ctx, reference)
		if err != nil {
			return nil, fmt.Errorf("search transaction: %w", err)
		}
		if closed != nil {
			// duplicate delivery against a settled attempt: log it and
			// report the recorded outcome, the row itself stays untouched
			closed.AppendLog(dump)
			if err := p.database.SaveTransaction(ctx, closed); err != nil {
				return nil, fmt.Errorf("save transaction: %w", err)
			}
			p.logger.Info(fmt.Sprintf("duplicate notification for %s reference %s", closed.State, reference))
			return &services.Reconciliation{
				Status:       recordedStatus(closed, valid),
				ResponseCode: responseCode,
				Transaction:  closed,
			}, nil
		}
		// notification for a reference with no local draft: record it
		// anyway so manually initiated or early callbacks leave an audit row
		transaction = &entity.Transaction{
			Id:               GenerateRequestID(),
			Description:      reference,
			Gateway:          gateway.MerchantCode,
			ReferenceGateway: reference,
			Currency:         params[entity.ParamCurrency],
			State:            entity.StateDraft,
			TimeCreated:      time.Now(),
		}
		p.logger.Warn(fmt.Sprintf("no draft for reference %s, recording notification", reference))
	}

	transaction.AuthorisationCode = authorisationCode
	transaction.Amount = amount
	transaction.AppendLog(dump)

	outcome := &services.Reconciliation{
		ResponseCode: responseCode,
		Transaction:  transaction,
	}
	switch {
	case !valid:
		transaction.State = entity.StateCancelled
		outcome.Status = services.StatusRejectedSignature
	case responseAuthorised(responseCode):
		transaction.State = entity.StateConfirmed
		outcome.Status = services.StatusConfirmed
	default:
		transaction.State = entity.StateCancelled
		outcome.Status = services.StatusDeclined
	}
	transaction.TimeClosed = time.Now()

	if err := p.database.SaveTransaction(ctx, transaction); err != nil {
		return nil, fmt.Errorf("save transaction: %w", err)
	}

	p.logger.Info(fmt.Sprintf("reference %s settled: %s (response %s)", reference, outcome.Status, responseCode))
	return outcome, nil
}

// recordedStatus maps an already settled transaction to the outcome its
// original notification produced. An invalid signature on the duplicate is
// still reported as rejected, never as success.
func recordedStatus(transaction *entity.Transaction, valid bool) services.ReconcileStatus {
	if !valid {
		return services.StatusRejectedSignature
	}
	if transaction.State == entity.StateConfirmed {
		return services.StatusConfirmed
	}
	return services.StatusDeclined
}

// responseAuthorised: processor codes 0000-0099 report an authorised payment.
func responseAuthorised(code string) bool {
	value, err := strconv.Atoi(strings.TrimSpace(code))
	if err != nil {
		return false
	}
	return value >= 0 && value < 100
}

// paramsDump renders decoded parameters as sorted "key: value" lines for the
// transaction log.
func paramsDump(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, fmt.Sprintf("%s: %s", key, params[key]))
	}
	return strings.Join(lines, "\n")
}
