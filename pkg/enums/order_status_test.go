package enums

import "testing"

func TestOrderStatusCanTransitionTo(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		from    OrderStatus
		to      OrderStatus
		allowed bool
	}{
		{"pending to paid", OrderStatusPendingPayment, OrderStatusPaid, true},
		{"pending to cancelled", OrderStatusPendingPayment, OrderStatusCancelled, true},
		{"pending to shipped", OrderStatusPendingPayment, OrderStatusShipped, false},
		{"paid to shipped", OrderStatusPaid, OrderStatusShipped, true},
		{"paid to cancelled", OrderStatusPaid, OrderStatusCancelled, true},
		{"paid to delivered", OrderStatusPaid, OrderStatusDelivered, false},
		{"shipped to delivered", OrderStatusShipped, OrderStatusDelivered, true},
		{"shipped to cancelled", OrderStatusShipped, OrderStatusCancelled, false},
		{"delivered is terminal", OrderStatusDelivered, OrderStatusShipped, false},
		{"cancelled is terminal", OrderStatusCancelled, OrderStatusPendingPayment, false},
		{"self transition", OrderStatusPaid, OrderStatusPaid, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
				t.Fatalf("CanTransitionTo(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.allowed)
			}
		})
	}
}

func TestOrderStatusIsTerminal(t *testing.T) {
	t.Parallel()

	for _, status := range validOrderStatuses {
		terminal := status == OrderStatusDelivered || status == OrderStatusCancelled
		if got := status.IsTerminal(); got != terminal {
			t.Fatalf("IsTerminal(%s) = %v, want %v", status, got, terminal)
		}
	}
	if OrderStatus("BOGUS").IsTerminal() {
		t.Fatal("unknown status must not report terminal")
	}
}

func TestParseOrderStatus(t *testing.T) {
	t.Parallel()

	status, err := ParseOrderStatus("PENDING_PAYMENT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != OrderStatusPendingPayment {
		t.Fatalf("got %s", status)
	}

	if _, err := ParseOrderStatus("pending_payment"); err == nil {
		t.Fatal("expected error for lowercase input")
	}
}
