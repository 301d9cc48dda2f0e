package enums

import "fmt"

// NotificationKind labels outbound buyer/winner messages.
type NotificationKind string

const (
	NotificationKindAuctionWon    NotificationKind = "auction_won"
	NotificationKindOutbid        NotificationKind = "outbid"
	NotificationKindPurchaseOK    NotificationKind = "purchase_confirmed"
	NotificationKindRefundIssued  NotificationKind = "refund_issued"
	NotificationKindPayoutPending NotificationKind = "payout_pending"
)

var validNotificationKinds = []NotificationKind{
	NotificationKindAuctionWon,
	NotificationKindOutbid,
	NotificationKindPurchaseOK,
	NotificationKindRefundIssued,
	NotificationKindPayoutPending,
}

// String implements fmt.Stringer.
func (n NotificationKind) String() string {
	return string(n)
}

// IsValid reports whether the value is a known NotificationKind.
func (n NotificationKind) IsValid() bool {
	for _, candidate := range validNotificationKinds {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationKind converts raw input into a NotificationKind.
func ParseNotificationKind(value string) (NotificationKind, error) {
	for _, candidate := range validNotificationKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification kind %q", value)
}
