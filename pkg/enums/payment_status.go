package enums

// PaymentStatus is the state of one gateway payment attempt. PENDING moves
// to SUCCESS or FAILED exactly once.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

var paymentStatuses = []PaymentStatus{PaymentStatusPending, PaymentStatusSuccess, PaymentStatusFailed}

func (p PaymentStatus) String() string { return string(p) }

func (p PaymentStatus) IsValid() bool {
	_, err := ParsePaymentStatus(string(p))
	return err == nil
}

// IsTerminal reports whether the attempt has settled.
func (p PaymentStatus) IsTerminal() bool {
	return p == PaymentStatusSuccess || p == PaymentStatusFailed
}

// ParsePaymentStatus is case sensitive.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	return parse("payment status", value, paymentStatuses)
}
