package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ViolationStatus is the lifecycle state of a single violation.
type ViolationStatus string

const (
	ViolationStatusPending       ViolationStatus = "pending"
	ViolationStatusPaid          ViolationStatus = "paid"
	ViolationStatusPartiallyPaid ViolationStatus = "partially_paid"
	ViolationStatusContested     ViolationStatus = "contested"
	ViolationStatusDismissed     ViolationStatus = "dismissed"
	ViolationStatusCourtPending  ViolationStatus = "court_pending"
)

// IsValidViolationStatus reports whether s is a known violation status.
func IsValidViolationStatus(s ViolationStatus) bool {
	switch s {
	case ViolationStatusPending, ViolationStatusPaid, ViolationStatusPartiallyPaid,
		ViolationStatusContested, ViolationStatusDismissed, ViolationStatusCourtPending:
		return true
	}
	return false
}

// IsPayable reports whether a payment may be initiated against a violation in status s.
func (s ViolationStatus) IsPayable() bool {
	return s == ViolationStatusPending || s == ViolationStatusPartiallyPaid
}

// ViolationType is a catalog entry describing an infraction.
// Fine and points are snapshotted onto each Violation at creation time.
type ViolationType struct {
	CreatedAt          time.Time       `json:"createdAt"`
	Description        *string         `json:"description,omitempty"`
	Code               string          `json:"code"`
	Name               string          `json:"name"`
	Category           string          `json:"category"`
	FineAmount         decimal.Decimal `json:"fineAmount"`
	ID                 int64           `json:"id"`
	Points             int             `json:"points"`
	SuspensionEligible bool            `json:"suspensionEligible"`
	Active             bool            `json:"active"`
}

// Location is where a violation was recorded.
type Location struct {
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Address   string   `json:"address,omitempty"`
	State     string   `json:"state,omitempty"`
	LGA       string   `json:"lga,omitempty"`
}

// Violation is one infraction instance against a plate.
type Violation struct {
	ViolationDate   time.Time       `json:"violationDate"`
	DueDate         time.Time       `json:"dueDate"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	VehicleID       *int64          `json:"vehicleId,omitempty"`
	PaidDate        *time.Time      `json:"paidDate,omitempty"`
	ContestDate     *time.Time      `json:"contestDate,omitempty"`
	ContestReason   *string         `json:"contestReason,omitempty"`
	Location        Location        `json:"location"`
	Evidence        Evidence        `json:"evidence"`
	Conditions      Conditions      `json:"conditions"`
	TicketNumber    string          `json:"ticketNumber"`
	PlateNumber     string          `json:"plateNumber"`
	Status          ViolationStatus `json:"status"`
	Notes           string          `json:"notes,omitempty"`
	FineAmount      decimal.Decimal `json:"fineAmount"`
	ID              int64           `json:"id"`
	OfficerID       int64           `json:"officerId"`
	ViolationTypeID int64           `json:"violationTypeId"`
	Points          int             `json:"points"`
	IsOverturned    bool            `json:"isOverturned"`
}
