package enums

// OrderStatus is the fulfilment state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
)

var orderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPaid,
	OrderStatusCancelled,
	OrderStatusShipped,
	OrderStatusDelivered,
}

func (s OrderStatus) String() string { return string(s) }

func (s OrderStatus) IsValid() bool {
	_, err := ParseOrderStatus(string(s))
	return err == nil
}

// ParseOrderStatus is case sensitive: "PAID" is rejected.
func ParseOrderStatus(value string) (OrderStatus, error) {
	return parse("order status", value, orderStatuses)
}

// Values kept in orders.payment_status. The column is free-form text; these
// are the values the checkout and webhook paths write.
const (
	OrderPaymentPending = "pending"
	OrderPaymentPaid    = "paid"
	OrderPaymentFailed  = "failed"
)
