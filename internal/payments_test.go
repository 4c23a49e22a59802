package internal_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"redsys/entity"
	"redsys/internal"
	"redsys/services"
)

type nopLogger struct{}

func (nopLogger) Debug(string)        {}
func (nopLogger) Info(string)         {}
func (nopLogger) Warn(string)         {}
func (nopLogger) Error(string, error) {}

// fakeDatabase is an in-memory services.Database. It hands out copies so a
// transaction only changes in the store through SaveTransaction.
type fakeDatabase struct {
	mu           sync.Mutex
	transactions []*entity.Transaction
	sequence     int64
	failSave     bool
}

func (f *fakeDatabase) NextReference(_ context.Context, _ string) (string, error) {
	return fmt.Sprintf("%012d", atomic.AddInt64(&f.sequence, 1)), nil
}

func (f *fakeDatabase) WriteLogMessage(services.Data) error { return nil }

func (f *fakeDatabase) SaveTransaction(_ context.Context, transaction *entity.Transaction) error {
	if f.failSave {
		return errors.New("store unavailable")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := *transaction
	for i, existing := range f.transactions {
		if existing.Id == transaction.Id {
			f.transactions[i] = &stored
			return nil
		}
	}
	f.transactions = append(f.transactions, &stored)
	return nil
}

func (f *fakeDatabase) GetDraftByReference(_ context.Context, reference string) (*entity.Transaction, error) {
	return f.find(func(t *entity.Transaction) bool {
		return t.ReferenceGateway == reference && t.State == entity.StateDraft
	})
}

func (f *fakeDatabase) GetTransactionByReference(_ context.Context, reference string) (*entity.Transaction, error) {
	return f.find(func(t *entity.Transaction) bool {
		return t.ReferenceGateway == reference
	})
}

func (f *fakeDatabase) find(match func(*entity.Transaction) bool) (*entity.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.transactions) - 1; i >= 0; i-- {
		if match(f.transactions[i]) {
			found := *f.transactions[i]
			return &found, nil
		}
	}
	return nil, nil
}

func (f *fakeDatabase) CancelDraftTransactions(_ context.Context, origin string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var cancelled int64
	for _, transaction := range f.transactions {
		if transaction.Origin == origin && transaction.State == entity.StateDraft {
			transaction.State = entity.StateCancelled
			cancelled++
		}
	}
	return cancelled, nil
}

// stored returns the store's current row for a reference, any state.
func (f *fakeDatabase) stored(reference string) *entity.Transaction {
	transaction, _ := f.GetTransactionByReference(context.Background(), reference)
	return transaction
}

type fakeOrigin struct {
	total    string
	paid     string
	currency string
}

func (o fakeOrigin) TotalAmount() (decimal.Decimal, bool) {
	if o.total == "" {
		return decimal.Zero, false
	}
	return decimal.RequireFromString(o.total), true
}

func (o fakeOrigin) GatewayAmount() decimal.Decimal {
	if o.paid == "" {
		return decimal.Zero
	}
	return decimal.RequireFromString(o.paid)
}

func (o fakeOrigin) Currency() string { return o.currency }

type fakeResolver struct {
	origins map[string]services.Origin
}

func (r fakeResolver) ResolveOrigin(_ context.Context, kind, id string) (services.Origin, error) {
	origin, ok := r.origins[kind+","+id]
	if !ok {
		return nil, fmt.Errorf("no record %s,%s", kind, id)
	}
	return origin, nil
}

func testGateway() *entity.GatewayConfig {
	return &entity.GatewayConfig{
		MerchantCode:    "999008881",
		SecretKey:       testSecret,
		Sandbox:         true,
		Currency:        "978",
		Terminal:        "001",
		TransactionType: "0",
		MerchantName:    "Test Shop",
		Sequence:        "redsys",
	}
}

func newTestPayments(database *fakeDatabase, origins services.OriginResolver) *internal.Payments {
	payments := internal.NewPayments()
	payments.SetLogger(nopLogger{})
	payments.SetDatabase(database)
	if origins != nil {
		payments.SetOriginResolver(origins)
	}
	return payments
}

func Test_StartAttempt_DirectAmount(t *testing.T) {
	assertions := assert.New(t)
	database := &fakeDatabase{}
	payments := newTestPayments(database, nil)

	transaction, err := payments.StartAttempt(context.Background(), services.StartRequest{
		Description:     "invoice 77",
		Amount:          "25.50",
		Gateway:         testGateway(),
		DefaultCurrency: "978",
	})
	assertions.NoError(err)
	assertions.Equal(entity.StateDraft, transaction.State)
	assertions.Equal("000000000001", transaction.ReferenceGateway)
	assertions.Equal("978", transaction.Currency)
	assertions.True(transaction.Amount.Equal(decimal.RequireFromString("25.50")))
	assertions.NotNil(database.stored(transaction.ReferenceGateway))
}

func Test_StartAttempt_AmountErrors(t *testing.T) {
	assertions := assert.New(t)
	payments := newTestPayments(&fakeDatabase{}, nil)
	gateway := testGateway()

	_, err := payments.StartAttempt(context.Background(), services.StartRequest{Gateway: gateway})
	assertions.ErrorIs(err, services.ErrMissingAmount)

	for _, amount := range []string{"abc", "-5", "0"} {
		_, err = payments.StartAttempt(context.Background(), services.StartRequest{Gateway: gateway, Amount: amount})
		assertions.ErrorIs(err, services.ErrInvalidAmount, "amount %q", amount)
	}
}

func Test_StartAttempt_AmountDerivation(t *testing.T) {
	assertions := assert.New(t)
	database := &fakeDatabase{}
	resolver := fakeResolver{origins: map[string]services.Origin{
		"sale.order,15": fakeOrigin{total: "100.00", paid: "30.00"},
	}}
	payments := newTestPayments(database, resolver)

	transaction, err := payments.StartAttempt(context.Background(), services.StartRequest{
		Origin:          "sale.order,15",
		Description:     "order 15",
		Gateway:         testGateway(),
		DefaultCurrency: "978",
	})
	assertions.NoError(err)
	assertions.True(transaction.Amount.Equal(decimal.RequireFromString("70.00")),
		"amount is total minus already paid, got %s", transaction.Amount)
	assertions.Equal("978", transaction.Currency, "merchant default when the origin has no currency")
}

func Test_StartAttempt_CurrencyFromOrigin(t *testing.T) {
	assertions := assert.New(t)
	resolver := fakeResolver{origins: map[string]services.Origin{
		"sale.order,8": fakeOrigin{total: "10.00", currency: "840"},
	}}
	payments := newTestPayments(&fakeDatabase{}, resolver)

	transaction, err := payments.StartAttempt(context.Background(), services.StartRequest{
		Origin:          "sale.order,8",
		Gateway:         testGateway(),
		DefaultCurrency: "978",
	})
	assertions.NoError(err)
	assertions.Equal("840", transaction.Currency)
}

func Test_StartAttempt_OriginErrors(t *testing.T) {
	assertions := assert.New(t)
	resolver := fakeResolver{origins: map[string]services.Origin{
		"sale.order,9": fakeOrigin{},
	}}
	payments := newTestPayments(&fakeDatabase{}, resolver)
	gateway := testGateway()

	_, err := payments.StartAttempt(context.Background(), services.StartRequest{Origin: "garbage", Gateway: gateway})
	assertions.ErrorIs(err, services.ErrInvalidOrigin)

	_, err = payments.StartAttempt(context.Background(), services.StartRequest{Origin: "sale.order,404", Gateway: gateway})
	assertions.ErrorIs(err, services.ErrInvalidOrigin)

	// record exists but cannot report a total amount
	_, err = payments.StartAttempt(context.Background(), services.StartRequest{Origin: "sale.order,9", Gateway: gateway})
	assertions.ErrorIs(err, services.ErrAmountUnavailable)
}

func Test_StartAttempt_Supersession(t *testing.T) {
	assertions := assert.New(t)
	database := &fakeDatabase{}
	resolver := fakeResolver{origins: map[string]services.Origin{
		"sale.order,3": fakeOrigin{total: "50.00"},
	}}
	payments := newTestPayments(database, resolver)
	gateway := testGateway()

	first, err := payments.StartAttempt(context.Background(), services.StartRequest{
		Origin: "sale.order,3", Gateway: gateway, DefaultCurrency: "978",
	})
	assertions.NoError(err)

	// a confirmed transaction for the same origin must stay untouched
	confirmed := &entity.Transaction{
		Id:               "settled",
		Origin:           "sale.order,3",
		ReferenceGateway: "000000009999",
		State:            entity.StateConfirmed,
	}
	assertions.NoError(database.SaveTransaction(context.Background(), confirmed))

	second, err := payments.StartAttempt(context.Background(), services.StartRequest{
		Origin: "sale.order,3", Gateway: gateway, DefaultCurrency: "978",
	})
	assertions.NoError(err)
	assertions.NotEqual(first.ReferenceGateway, second.ReferenceGateway)

	assertions.Equal(entity.StateCancelled, database.stored(first.ReferenceGateway).State,
		"previous draft is superseded")
	assertions.Equal(entity.StateConfirmed, database.stored("000000009999").State,
		"terminal rows are not superseded")
	assertions.Equal(entity.StateDraft, database.stored(second.ReferenceGateway).State)
}

func Test_StartAttempt_ReferenceUniqueness(t *testing.T) {
	assertions := assert.New(t)
	database := &fakeDatabase{}
	payments := newTestPayments(database, nil)
	gateway := testGateway()

	references := make(chan string, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			transaction, err := payments.StartAttempt(context.Background(), services.StartRequest{
				Amount: "1.00", Gateway: gateway, DefaultCurrency: "978",
			})
			assertions.NoError(err)
			references <- transaction.ReferenceGateway
		}()
	}
	wg.Wait()
	close(references)

	seen := map[string]bool{}
	for reference := range references {
		assertions.False(seen[reference], "reference %s issued twice", reference)
		seen[reference] = true
	}
}

// notification builds a signed (or deliberately mis-signed) callback payload.
func notification(t *testing.T, order, response, amount string, valid bool) (signature, encoded string) {
	t.Helper()
	values := map[string]any{
		entity.ParamOrder:             order,
		entity.ParamResponse:          response,
		entity.ParamAmount:            amount,
		entity.ParamAuthorisationCode: "123456",
	}
	if valid {
		return signedParams(t, order, values)
	}
	// sign with a key derived for a different order: structurally sound, cryptographically wrong
	signature, _ = signedParams(t, "999999999999", map[string]any{entity.ParamOrder: "999999999999"})
	_, encoded = signedParams(t, order, values)
	return signature, encoded
}

func startDraft(t *testing.T, payments *internal.Payments, amount string) *entity.Transaction {
	t.Helper()
	transaction, err := payments.StartAttempt(context.Background(), services.StartRequest{
		Description: "test draft", Amount: amount, Gateway: testGateway(), DefaultCurrency: "978",
	})
	assert.NoError(t, err)
	return transaction
}

func Test_Reconcile_Confirmed(t *testing.T) {
	assertions := assert.New(t)
	database := &fakeDatabase{}
	payments := newTestPayments(database, nil)
	gateway := testGateway()

	draft := startDraft(t, payments, "70.00")
	signature, encoded := notification(t, draft.ReferenceGateway, "0000", "7000", true)

	outcome, err := payments.ReconcileNotification(context.Background(), signature, encoded, gateway)
	assertions.NoError(err)
	assertions.Equal(services.StatusConfirmed, outcome.Status)
	assertions.Equal("0000", outcome.ResponseCode, "acknowledgement echoes the processor code")

	stored := database.stored(draft.ReferenceGateway)
	assertions.Equal(entity.StateConfirmed, stored.State)
	assertions.Equal("123456", stored.AuthorisationCode)
	assertions.True(stored.Amount.Equal(decimal.RequireFromString("70.00")),
		"notification amount converts back from minor units, got %s", stored.Amount)
	assertions.Contains(stored.Log, "Ds_Response: 0000")
}

func Test_Reconcile_Declined(t *testing.T) {
	assertions := assert.New(t)
	database := &fakeDatabase{}
	payments := newTestPayments(database, nil)

	draft := startDraft(t, payments, "10.00")
	signature, encoded := notification(t, draft.ReferenceGateway, "0101", "1000", true)

	outcome, err := payments.ReconcileNotification(context.Background(), signature, encoded, testGateway())
	assertions.NoError(err)
	assertions.Equal(services.StatusDeclined, outcome.Status)
	assertions.Equal("0101", outcome.ResponseCode)
	assertions.Equal(entity.StateCancelled, database.stored(draft.ReferenceGateway).State)
}

func Test_Reconcile_ResponseThreshold(t *testing.T) {
	assertions := assert.New(t)
	// 0000-0099 confirm, anything else cancels
	for response, expected := range map[string]services.ReconcileStatus{
		"0000": services.StatusConfirmed,
		"0099": services.StatusConfirmed,
		"0100": services.StatusDeclined,
		"0101": services.StatusDeclined,
		"9915": services.StatusDeclined,
	} {
		database := &fakeDatabase{}
		payments := newTestPayments(database, nil)
		draft := startDraft(t, payments, "5.00")
		signature, encoded := notification(t, draft.ReferenceGateway, response, "500", true)

		outcome, err := payments.ReconcileNotification(context.Background(), signature, encoded, testGateway())
		assertions.NoError(err)
		assertions.Equal(expected, outcome.Status, "response %s", response)
	}
}

func Test_Reconcile_RejectedSignature(t *testing.T) {
	assertions := assert.New(t)
	database := &fakeDatabase{}
	payments := newTestPayments(database, nil)

	draft := startDraft(t, payments, "99.99")
	// response 9999 would cancel anyway; a success code with a bad signature
	// is the case that must never confirm
	signature, encoded := notification(t, draft.ReferenceGateway, "0000", "9999", false)

	outcome, err := payments.ReconcileNotification(context.Background(), signature, encoded, testGateway())
	assertions.NoError(err)
	assertions.Equal(services.StatusRejectedSignature, outcome.Status)
	assertions.Equal("0000", outcome.ResponseCode, "rejected callbacks are still acknowledged")

	stored := database.stored(draft.ReferenceGateway)
	assertions.Equal(entity.StateCancelled, stored.State)
	assertions.NotEmpty(stored.Log, "rejected notifications are logged for audit")
}

func Test_Reconcile_Idempotent(t *testing.T) {
	assertions := assert.New(t)
	database := &fakeDatabase{}
	payments := newTestPayments(database, nil)

	draft := startDraft(t, payments, "70.00")
	signature, encoded := notification(t, draft.ReferenceGateway, "0000", "7000", true)

	first, err := payments.ReconcileNotification(context.Background(), signature, encoded, testGateway())
	assertions.NoError(err)
	assertions.Equal(services.StatusConfirmed, first.Status)

	second, err := payments.ReconcileNotification(context.Background(), signature, encoded, testGateway())
	assertions.NoError(err)
	assertions.Equal(services.StatusConfirmed, second.Status, "duplicate returns the recorded outcome")
	assertions.Equal("0000", second.ResponseCode)

	stored := database.stored(draft.ReferenceGateway)
	assertions.Equal(entity.StateConfirmed, stored.State)
	assertions.Equal(1, len(database.transactions), "no extra rows from the duplicate")
	assertions.Contains(stored.Log, "---", "duplicate delivery is appended to the log")
}

func Test_Reconcile_UnknownReference(t *testing.T) {
	assertions := assert.New(t)
	database := &fakeDatabase{}
	payments := newTestPayments(database, nil)

	signature, encoded := notification(t, "000000000500", "0000", "2500", true)

	outcome, err := payments.ReconcileNotification(context.Background(), signature, encoded, testGateway())
	assertions.NoError(err)
	assertions.Equal(services.StatusConfirmed, outcome.Status)

	stored := database.stored("000000000500")
	assertions.NotNil(stored, "a notification without a local draft still leaves an audit row")
	assertions.Equal(entity.StateConfirmed, stored.State)
	assertions.True(stored.Amount.Equal(decimal.RequireFromString("25.00")))
}

func Test_Reconcile_MalformedPayload(t *testing.T) {
	assertions := assert.New(t)
	database := &fakeDatabase{}
	payments := newTestPayments(database, nil)

	_, err := payments.ReconcileNotification(context.Background(), "AAAA", "%%% not base64 %%%", testGateway())
	assertions.ErrorIs(err, services.ErrMalformedPayload)
	assertions.Empty(database.transactions, "decode failures abort before persistence")

	// decodable envelope without an order reference
	noOrder, err := internal.EncodeParameters(map[string]any{entity.ParamResponse: "0000"})
	assertions.NoError(err)
	_, err = payments.ReconcileNotification(context.Background(), "AAAA", noOrder, testGateway())
	assertions.ErrorIs(err, services.ErrMalformedPayload)
	assertions.Empty(database.transactions)
}

func Test_Reconcile_PersistenceFailure(t *testing.T) {
	assertions := assert.New(t)
	database := &fakeDatabase{}
	payments := newTestPayments(database, nil)

	draft := startDraft(t, payments, "10.00")
	signature, encoded := notification(t, draft.ReferenceGateway, "0000", "1000", true)

	database.failSave = true
	_, err := payments.ReconcileNotification(context.Background(), signature, encoded, testGateway())
	assertions.Error(err)
	assertions.Equal(entity.StateDraft, database.stored(draft.ReferenceGateway).State,
		"the stored row is untouched when the write fails")
}
