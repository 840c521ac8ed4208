package enums

type AuditAction string

const (
	AuditActionCreate          AuditAction = "CREATE"
	AuditActionUpdate          AuditAction = "UPDATE"
	AuditActionDelete          AuditAction = "DELETE"
	AuditActionStatusChange    AuditAction = "STATUS_CHANGE"
	AuditActionPaymentVerify   AuditAction = "PAYMENT_VERIFY"
	AuditActionPaymentInitiate AuditAction = "PAYMENT_INITIATE"
)

var auditActions = []AuditAction{
	AuditActionCreate,
	AuditActionUpdate,
	AuditActionDelete,
	AuditActionStatusChange,
	AuditActionPaymentVerify,
	AuditActionPaymentInitiate,
}

func (a AuditAction) String() string { return string(a) }

func (a AuditAction) IsValid() bool {
	_, err := ParseAuditAction(string(a))
	return err == nil
}

func ParseAuditAction(value string) (AuditAction, error) {
	return parse("audit action", value, auditActions)
}
