package entity

// SignatureVersion is the only signature scheme this service produces or
// accepts: HMAC-SHA256 keyed per order reference.
const SignatureVersion = "HMAC_SHA256_V1"

// Form field names of the processor's parameter envelope, used both in the
// outbound redirect form and in the inbound notification body.
const (
	FieldMerchantParameters = "Ds_MerchantParameters"
	FieldSignature          = "Ds_Signature"
	FieldSignatureVersion   = "Ds_SignatureVersion"
)

// Keys of the decoded notification parameters.
const (
	ParamOrder             = "Ds_Order"
	ParamAuthorisationCode = "Ds_AuthorisationCode"
	ParamAmount            = "Ds_Amount"
	ParamResponse          = "Ds_Response"
	ParamCurrency          = "Ds_Currency"
)

// PaymentRequest is the signed envelope posted to the processor's hosted
// payment page.
type PaymentRequest struct {
	Parameters       string `json:"Ds_MerchantParameters"`
	Signature        string `json:"Ds_Signature"`
	SignatureVersion string `json:"Ds_SignatureVersion"`
}
