package domain

import "time"

// RedemptionCode is a single-use code entitling one batch of RequestedQuantity subjects.
type RedemptionCode struct {
	Code              string
	RequestedQuantity int
	Used              bool
	CreatorID         string
	CreatedAt         time.Time
}
