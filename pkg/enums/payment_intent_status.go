package enums

import "fmt"

// PaymentIntentStatus mirrors the gateway-side state of a bid's hold.
type PaymentIntentStatus string

const (
	PaymentIntentStatusRequiresCapture PaymentIntentStatus = "requires_capture"
	PaymentIntentStatusCaptured        PaymentIntentStatus = "captured"
	PaymentIntentStatusCancelled       PaymentIntentStatus = "cancelled"
	PaymentIntentStatusFailed          PaymentIntentStatus = "failed"
)

var validPaymentIntentStatuses = []PaymentIntentStatus{
	PaymentIntentStatusRequiresCapture,
	PaymentIntentStatusCaptured,
	PaymentIntentStatusCancelled,
	PaymentIntentStatusFailed,
}

// String implements fmt.Stringer.
func (p PaymentIntentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentIntentStatus.
func (p PaymentIntentStatus) IsValid() bool {
	for _, candidate := range validPaymentIntentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsLive reports whether the hold still reserves funds on the bidder's card.
func (p PaymentIntentStatus) IsLive() bool {
	return p == PaymentIntentStatusRequiresCapture || p == PaymentIntentStatusCaptured
}

// ParsePaymentIntentStatus converts raw input into a PaymentIntentStatus.
func ParsePaymentIntentStatus(value string) (PaymentIntentStatus, error) {
	for _, candidate := range validPaymentIntentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment intent status %q", value)
}
