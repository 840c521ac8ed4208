package enums

import "testing"

func TestParseOrderStatus(t *testing.T) {
	for _, raw := range []string{"pending", "paid", "cancelled", "shipped", "delivered"} {
		status, err := ParseOrderStatus(raw)
		if err != nil {
			t.Fatalf("ParseOrderStatus(%q) returned error: %v", raw, err)
		}
		if status.String() != raw {
			t.Fatalf("expected %q, got %q", raw, status)
		}
	}
	if _, err := ParseOrderStatus("refunded"); err == nil {
		t.Fatal("expected error for unknown status")
	}
	if OrderStatus("PAID").IsValid() {
		t.Fatal("order statuses are case sensitive")
	}
}

func TestPaymentStatusTerminal(t *testing.T) {
	if PaymentStatusPending.IsTerminal() {
		t.Fatal("PENDING must not be terminal")
	}
	if !PaymentStatusSuccess.IsTerminal() || !PaymentStatusFailed.IsTerminal() {
		t.Fatal("SUCCESS and FAILED must be terminal")
	}
	if _, err := ParsePaymentStatus("pending"); err == nil {
		t.Fatal("payment statuses are upper case")
	}
}

func TestOutboxEnums(t *testing.T) {
	if !EventPaymentSucceeded.IsValid() || OutboxEventType("order_paid").IsValid() {
		t.Fatal("unexpected event type validity")
	}
	if _, err := ParseOutboxAggregateType("payment"); err != nil {
		t.Fatalf("expected payment aggregate, got %v", err)
	}
	if !OutboxDLQReasonNonRetryable.IsValid() || OutboxDLQErrorReason("other").IsValid() {
		t.Fatal("unexpected dlq reason validity")
	}
}

func TestRolesAndAuditActions(t *testing.T) {
	if _, err := ParseRole("admin"); err != nil {
		t.Fatalf("expected admin role: %v", err)
	}
	if Role("vendor").IsValid() {
		t.Fatal("vendor is not a storefront role")
	}
	if _, err := ParseAuditAction("PAYMENT_VERIFY"); err != nil {
		t.Fatalf("expected PAYMENT_VERIFY: %v", err)
	}
}

func TestParseErrorNamesTheKind(t *testing.T) {
	_, err := ParseRole("vendor")
	if err == nil || err.Error() != `invalid role "vendor"` {
		t.Fatalf("unexpected error %v", err)
	}
}
