package internal

import (
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"

	"redsys/config"
	"redsys/entity"
	"redsys/services"
)

const (
	paymentForm    = "/payments"
	paymentNotify  = "/payments/notify"
	paymentConfirm = "/payments/confirm"
	paymentCancel  = "/payments/cancel"
)

// redirectTemplate posts the signed payload to the hosted payment page as
// soon as the customer's browser renders it.
var redirectTemplate = template.Must(template.New("redirect").Parse(`<!DOCTYPE html>
<html>
<head><title>Redirecting to payment</title></head>
<body onload="document.forms[0].submit()">
<form action="{{.Action}}" method="POST">
<input type="hidden" name="Ds_MerchantParameters" value="{{.Request.Parameters}}"/>
<input type="hidden" name="Ds_Signature" value="{{.Request.Signature}}"/>
<input type="hidden" name="Ds_SignatureVersion" value="{{.Request.SignatureVersion}}"/>
<noscript><input type="submit" value="Continue to payment"/></noscript>
</form>
</body>
</html>
`))

var confirmTemplate = template.Must(template.New("confirm").Parse(`<!DOCTYPE html>
<html>
<head><title>Payment received</title></head>
<body><h1>Thank you</h1><p>Your payment has been received.</p></body>
</html>
`))

var cancelTemplate = template.Must(template.New("cancel").Parse(`<!DOCTYPE html>
<html>
<head><title>Payment cancelled</title></head>
<body><h1>Payment cancelled</h1><p>Your payment was not completed.</p></body>
</html>
`))

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	payments   services.Payments
	logger     services.LogHandler
}

func NewServer(conf *config.Config) *Server {

	server := Server{
		conf: conf,
	}

	// register itself as a router for httpServer handler
	router := httprouter.New()
	server.Register(router)
	server.httpServer = &http.Server{
		Handler: router,
	}

	return &server
}

func (s *Server) Register(router *httprouter.Router) {
	router.POST(paymentForm, s.paymentForm)
	router.POST(paymentNotify, s.paymentNotify)
	router.GET(paymentConfirm, s.paymentConfirm)
	router.GET(paymentCancel, s.paymentCancel)
}

func (s *Server) SetPaymentsService(payments services.Payments) {
	s.payments = payments
}

func (s *Server) SetLogger(logger services.LogHandler) {
	s.logger = logger
}

func (s *Server) Start() error {
	if s.conf == nil {
		return fmt.Errorf("configuration not loaded")
	}

	serverAddress := fmt.Sprintf("%s:%s", s.conf.Listen.BindIP, s.conf.Listen.Port)
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}

	if s.conf.Listen.TLS {
		s.logger.Info(fmt.Sprintf("starting https TLS on %s", serverAddress))
		err = s.httpServer.ServeTLS(listener, s.conf.Listen.CertFile, s.conf.Listen.KeyFile)
	} else {
		s.logger.Info(fmt.Sprintf("starting http on %s", serverAddress))
		err = s.httpServer.Serve(listener)
	}

	return err
}

// urlFor builds the absolute callback location handed to the processor.
func (s *Server) urlFor(path string) string {
	return strings.TrimRight(s.conf.Shop.BaseUrl, "/") + path
}

// paymentForm opens a new payment attempt and renders the redirect form for
// the hosted payment page.
func (s *Server) paymentForm(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := WithRequestID(r.Context())
	reqID := GetRequestID(ctx)

	if err := r.ParseForm(); err != nil {
		s.logger.Warn(fmt.Sprintf("[%s] payment form: parse body: %v", reqID, err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	gateway, err := ResolveGateway(s.conf.Shop.PaymentMethods)
	if err != nil {
		s.logger.Warn(fmt.Sprintf("[%s] payment form: %v", reqID, err))
		w.WriteHeader(http.StatusNotFound)
		return
	}

	request := services.StartRequest{
		Origin:          r.PostFormValue("origin"),
		Description:     r.PostFormValue("reference"),
		Party:           r.PostFormValue("party"),
		Amount:          r.PostFormValue("amount"),
		Gateway:         gateway,
		DefaultCurrency: s.conf.Shop.DefaultCurrency,
	}

	transaction, err := s.payments.StartAttempt(ctx, request)
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] start attempt", reqID), err)
		w.WriteHeader(startAttemptStatus(err))
		return
	}

	urls := services.CallbackUrls{
		Notify:  s.urlFor(paymentNotify),
		Confirm: s.urlFor(paymentConfirm),
		Cancel:  s.urlFor(paymentCancel),
	}
	payload, err := s.payments.BuildRequest(transaction, gateway, urls)
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] build request %s", reqID, transaction.ReferenceGateway), err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	s.logger.Info(fmt.Sprintf("[%s] redirecting reference %s to payment page", reqID, transaction.ReferenceGateway))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err = redirectTemplate.Execute(w, struct {
		Action  string
		Request *entity.PaymentRequest
	}{
		Action:  PaymentPageUrl(gateway.Sandbox),
		Request: payload,
	})
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] render redirect form", reqID), err)
	}
}

// startAttemptStatus maps caller input errors to 400; anything else is an
// infrastructure failure.
func startAttemptStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrGatewayNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInvalidOrigin),
		errors.Is(err, services.ErrAmountUnavailable),
		errors.Is(err, services.ErrMissingAmount),
		errors.Is(err, services.ErrInvalidAmount):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// paymentNotify receives the processor's asynchronous notification and
// acknowledges it by echoing the raw response code. Declined and rejected
// notifications are acknowledged too; only malformed payloads and
// infrastructure failures omit the acknowledgement body.
func (s *Server) paymentNotify(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := WithRequestID(r.Context())
	reqID := GetRequestID(ctx)

	if err := r.ParseForm(); err != nil {
		s.logger.Warn(fmt.Sprintf("[%s] notify: parse body: %v", reqID, err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	gateway, err := ResolveGateway(s.conf.Shop.PaymentMethods)
	if err != nil {
		s.logger.Warn(fmt.Sprintf("[%s] notify: %v", reqID, err))
		w.WriteHeader(http.StatusNotFound)
		return
	}

	parameters := r.PostFormValue(entity.FieldMerchantParameters)
	signature := r.PostFormValue(entity.FieldSignature)

	outcome, err := s.payments.ReconcileNotification(ctx, signature, parameters, gateway)
	if err != nil {
		if errors.Is(err, services.ErrMalformedPayload) {
			s.logger.Warn(fmt.Sprintf("[%s] notify: %v", reqID, err))
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.logger.Error(fmt.Sprintf("[%s] notify", reqID), err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	s.logger.Info(fmt.Sprintf("[%s] notify: reference %s %s", reqID, outcome.Transaction.ReferenceGateway, outcome.Status))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write([]byte(outcome.ResponseCode)); err != nil {
		s.logger.Error(fmt.Sprintf("[%s] notify: write acknowledgement", reqID), err)
	}
}

// paymentConfirm and paymentCancel are informational landing pages; the state
// change already happened through the notification endpoint.
func (s *Server) paymentConfirm(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := confirmTemplate.Execute(w, nil); err != nil {
		s.logger.Error("render confirm page", err)
	}
}

func (s *Server) paymentCancel(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := cancelTemplate.Execute(w, nil); err != nil {
		s.logger.Error("render cancel page", err)
	}
}
