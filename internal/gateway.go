package internal

import (
	"redsys/entity"
	"redsys/services"
)

// ResolveGateway scans the merchant's payment methods in their configured
// order and returns the first redsys gateway. The caller must treat
// ErrGatewayNotFound as an unrecoverable request error, not retried.
func ResolveGateway(methods []entity.PaymentMethod) (*entity.GatewayConfig, error) {
	for _, method := range methods {
		if method.Method == entity.MethodRedsys && method.Gateway != nil {
			return method.Gateway, nil
		}
	}
	return nil, services.ErrGatewayNotFound
}
