package models

import (
	"time"
)

// VehicleStatus is the licensing state of a vehicle owner record.
type VehicleStatus string

const (
	VehicleStatusActive    VehicleStatus = "active"
	VehicleStatusSuspended VehicleStatus = "suspended"
	VehicleStatusExpired   VehicleStatus = "expired"
	VehicleStatusRevoked   VehicleStatus = "revoked"
)

// SuspensionThreshold is the accumulated point total at which an active
// vehicle owner is suspended.
const SuspensionThreshold = 12

// PlaceholderOwnerName is used for owner records auto-created when a
// violation is recorded against a plate the registry has never seen.
const PlaceholderOwnerName = "Unknown Owner"

// Vehicle represents a vehicle owner record keyed by its normalized plate number.
// Nullable columns use pointers to distinguish between empty values and NULL.
type Vehicle struct {
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
	LicenseNumber *string       `json:"licenseNumber,omitempty"`
	LicenseClass  *string       `json:"licenseClass,omitempty"`
	OwnerPhone    *string       `json:"ownerPhone,omitempty"`
	OwnerEmail    *string       `json:"ownerEmail,omitempty"`
	OwnerAddress  *string       `json:"ownerAddress,omitempty"`
	VehicleMake   *string       `json:"vehicleMake,omitempty"`
	VehicleModel  *string       `json:"vehicleModel,omitempty"`
	VehicleColor  *string       `json:"vehicleColor,omitempty"`
	PlateNumber   string        `json:"plateNumber"`
	OwnerName     string        `json:"ownerName"`
	Status        VehicleStatus `json:"status"`
	ID            int64         `json:"id"`
	CurrentPoints int           `json:"currentPoints"`
	IsPlaceholder bool          `json:"isPlaceholder"`
}

// IsValidVehicleStatus reports whether s is a known vehicle status.
func IsValidVehicleStatus(s VehicleStatus) bool {
	switch s {
	case VehicleStatusActive, VehicleStatusSuspended, VehicleStatusExpired, VehicleStatusRevoked:
		return true
	}
	return false
}
