package orders

// createOrderRequest is the optional POST /orders body. An empty body checks
// out with blank addresses and a pending payment status.
type createOrderRequest struct {
	ShippingAddress string `json:"shipping_address" validate:"max=2000"`
	BillingAddress  string `json:"billing_address" validate:"max=2000"`
	PaymentStatus   string `json:"payment_status" validate:"omitempty,max=20"`
}
