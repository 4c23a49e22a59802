package entity

// MethodRedsys is the payment method tag this service handles. Other tags in
// the merchant's payment method list belong to other integrations.
const MethodRedsys = "redsys"

// GatewayConfig holds processor credentials and behaviour parameters for one
// merchant payment method. It is resolved from configuration per request and
// never mutated.
type GatewayConfig struct {
	// Merchant code assigned by Redsys (FUC)
	MerchantCode string `yaml:"merchant_code" json:"merchant_code"`
	// Merchant secret, Base64 encoded, used to derive per-order signing keys
	SecretKey string `yaml:"secret_key" json:"-"`
	// Sandbox selects the test payment page instead of the live one
	Sandbox bool `yaml:"sandbox" json:"sandbox"`
	// Currency as a numeric ISO 4217 code (978 = EUR)
	Currency string `yaml:"currency" json:"currency"`
	// Terminal number assigned by Redsys
	Terminal string `yaml:"terminal" json:"terminal"`
	// Transaction type: "0" = Authorization
	TransactionType string `yaml:"transaction_type" json:"transaction_type"`
	MerchantName    string `yaml:"merchant_name" json:"merchant_name"`
	// Sequence names the counter that issues order references for this gateway
	Sequence string `yaml:"sequence" json:"sequence"`
}

// PaymentMethod is one entry of the merchant's ordered payment method list.
type PaymentMethod struct {
	Method  string         `yaml:"method" json:"method"`
	Gateway *GatewayConfig `yaml:"gateway" json:"gateway"`
}
