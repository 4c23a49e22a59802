package internal

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gitee.com/golang-module/dongle"

	"redsys/entity"
	"redsys/services"
)

// Encryptor signs a parameter envelope with the key derived for one order.
// The processor binds every signature to a single order reference: the
// merchant secret never signs anything directly, it only derives per-order
// keys, so a captured signature cannot be replayed against another order.
type Encryptor struct {
	secret     string // merchant secret encoded with Base64
	parameters string // encoded parameter envelope to sign
	order      string // order reference keying the derivation
}

func NewEncryptor(secret string, parameters string, order string) *Encryptor {
	return &Encryptor{
		secret:     secret,
		parameters: parameters,
		order:      order,
	}
}

// CreateSignature derives the per-order key and returns the Base64 encoded
// HMAC-SHA256 of the parameter envelope under that key.
func (e *Encryptor) CreateSignature() (string, error) {

	key, err := base64.StdEncoding.DecodeString(e.secret)
	if err != nil {
		return "", fmt.Errorf("decode secret: %v", err)
	}

	derived, err := e.deriveKey(e.order, key)
	if err != nil {
		return "", fmt.Errorf("derive key: %v", err)
	}

	hash := e.mac256(e.parameters, derived)
	return base64.StdEncoding.EncodeToString(hash), nil
}

// deriveKey encrypts the order reference with 3DES-CBC under the merchant
// key. Zero IV and zero padding are the processor's scheme.
func (e *Encryptor) deriveKey(order string, key []byte) ([]byte, error) {
	if order == "" {
		return nil, errors.New("order cannot be empty")
	}

	cipher := dongle.NewCipher()
	cipher.SetMode(dongle.CBC)
	cipher.SetPadding(dongle.Zero)
	cipher.SetKey(key)
	cipher.SetIV(make([]byte, 8))

	encrypted := dongle.Encrypt.FromString(order).By3Des(cipher)
	if encrypted.Error != nil {
		return nil, encrypted.Error
	}
	return encrypted.ToRawBytes(), nil
}

func (e *Encryptor) mac256(message string, key []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return mac.Sum(nil)
}

// EncodeParameters marshals a parameter set to JSON and encodes it with
// standard Base64, producing the envelope value the signature covers.
func EncodeParameters(parameters any) (string, error) {
	parametersJson, err := json.Marshal(parameters)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(parametersJson), nil
}

// DecodeParameters decodes a parameter envelope into a string map. Numeric
// values coerce to their decimal string form. Any structural problem is
// reported as ErrMalformedPayload.
func DecodeParameters(encoded string) (map[string]string, error) {
	raw, err := decodeBase64(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: decode parameters: %v", services.ErrMalformedPayload, err)
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var values map[string]any
	if err := decoder.Decode(&values); err != nil {
		return nil, fmt.Errorf("%w: parse parameters: %v", services.ErrMalformedPayload, err)
	}

	parameters := make(map[string]string, len(values))
	for key, value := range values {
		switch v := value.(type) {
		case string:
			parameters[key] = v
		case json.Number:
			parameters[key] = v.String()
		case nil:
			parameters[key] = ""
		default:
			parameters[key] = fmt.Sprint(v)
		}
	}
	return parameters, nil
}

// VerifySignature checks a notification signature against the envelope it
// claims to cover. The expected signature is derived independently, keyed by
// the Ds_Order value embedded in the decoded parameters, and compared in
// constant time. Every structural mismatch yields false, never an error.
func VerifySignature(signature string, parameters string, secret string) bool {
	decoded, err := DecodeParameters(parameters)
	if err != nil {
		return false
	}
	order := decoded[entity.ParamOrder]
	if order == "" {
		return false
	}

	expected, err := NewEncryptor(secret, parameters, order).CreateSignature()
	if err != nil {
		return false
	}
	expectedMac, err := base64.StdEncoding.DecodeString(expected)
	if err != nil {
		return false
	}
	// the processor posts the response signature URL-safe encoded
	suppliedMac, err := decodeBase64(signature)
	if err != nil {
		return false
	}

	return hmac.Equal(expectedMac, suppliedMac)
}

// decodeBase64 accepts both standard and URL-safe alphabets, with or without
// padding.
func decodeBase64(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, errors.New("empty value")
	}
	normalized := strings.ReplaceAll(strings.ReplaceAll(encoded, "-", "+"), "_", "/")
	if m := len(normalized) % 4; m != 0 {
		normalized += strings.Repeat("=", 4-m)
	}
	return base64.StdEncoding.DecodeString(normalized)
}
