package enums

import "fmt"

// BidStatus tracks where a bid sits in the ranking and capture flow.
type BidStatus string

const (
	BidStatusPending   BidStatus = "pending"
	BidStatusWinning   BidStatus = "winning"
	BidStatusOutbid    BidStatus = "outbid"
	BidStatusCancelled BidStatus = "cancelled"
	BidStatusCaptured  BidStatus = "captured"
	BidStatusFailed    BidStatus = "failed"
)

var validBidStatuses = []BidStatus{
	BidStatusPending,
	BidStatusWinning,
	BidStatusOutbid,
	BidStatusCancelled,
	BidStatusCaptured,
	BidStatusFailed,
}

// String implements fmt.Stringer.
func (b BidStatus) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BidStatus.
func (b BidStatus) IsValid() bool {
	for _, candidate := range validBidStatuses {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseBidStatus converts raw input into a BidStatus.
func ParseBidStatus(value string) (BidStatus, error) {
	for _, candidate := range validBidStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid bid status %q", value)
}
