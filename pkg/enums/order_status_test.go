package enums

import "testing"

func TestOrderStatusTransitionGraph(t *testing.T) {
	cases := []struct {
		from  OrderStatus
		to    OrderStatus
		legal bool
	}{
		{OrderStatusPending, OrderStatusPaid, true},
		{OrderStatusPending, OrderStatusFailed, true},
		{OrderStatusPending, OrderStatusRefunded, false},
		{OrderStatusPaid, OrderStatusRefunded, true},
		{OrderStatusPaid, OrderStatusFailed, false},
		{OrderStatusPaid, OrderStatusPending, false},
		{OrderStatusFailed, OrderStatusPaid, false},
		{OrderStatusRefunded, OrderStatusPaid, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.legal {
			t.Errorf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.legal)
		}
	}
}

func TestOrderStatusTerminalStates(t *testing.T) {
	for status, terminal := range map[OrderStatus]bool{
		OrderStatusPending:  false,
		OrderStatusPaid:     false,
		OrderStatusFailed:   true,
		OrderStatusRefunded: true,
	} {
		if got := status.IsTerminal(); got != terminal {
			t.Errorf("%s terminal = %v, want %v", status, got, terminal)
		}
	}
}

func TestParseOrderStatus(t *testing.T) {
	status, err := ParseOrderStatus("paid")
	if err != nil {
		t.Fatalf("parse paid: %v", err)
	}
	if status != OrderStatusPaid {
		t.Fatalf("parsed %q, want %q", status, OrderStatusPaid)
	}
	if _, err := ParseOrderStatus("shipped"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}
