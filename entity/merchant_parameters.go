package entity

// MerchantParameters is the field set of an outbound hosted-payment request.
// The struct is JSON-marshalled, Base64-encoded and signed with the key
// derived from the order reference before being posted to the payment page.
type MerchantParameters struct {
	// Amount in the currency's minor unit (e.g. "1000" = 10.00 EUR)
	Amount string `json:"DS_MERCHANT_AMOUNT"`
	// Currency code (978 = EUR)
	Currency string `json:"DS_MERCHANT_CURRENCY"`
	// Order reference - must be unique across the system per attempt
	Order              string `json:"DS_MERCHANT_ORDER"`
	ProductDescription string `json:"DS_MERCHANT_PRODUCTDESCRIPTION"`
	// Titular is the merchant holder name shown on the payment page
	Titular      string `json:"DS_MERCHANT_TITULAR"`
	MerchantCode string `json:"DS_MERCHANT_MERCHANTCODE"`
	// MerchantUrl receives the asynchronous payment notification
	MerchantUrl string `json:"DS_MERCHANT_MERCHANTURL"`
	// UrlOk and UrlKo are the customer-facing landing pages
	UrlOk        string `json:"DS_MERCHANT_URLOK"`
	UrlKo        string `json:"DS_MERCHANT_URLKO"`
	MerchantName string `json:"DS_MERCHANT_MERCHANTNAME"`
	// Terminal number assigned by Redsys
	Terminal string `json:"DS_MERCHANT_TERMINAL"`
	// Transaction type: "0" = Authorization
	TransactionType string `json:"DS_MERCHANT_TRANSACTIONTYPE"`
}
