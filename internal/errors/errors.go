// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID string
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %s not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id string) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ErrDeviceNotFound is returned for lookups of unknown device ids.
type ErrDeviceNotFound struct {
	DeviceID string
}

func (e *ErrDeviceNotFound) Error() string {
	return fmt.Sprintf("device with ID %s not found", e.DeviceID)
}

func NewDeviceNotFound(id string) error {
	return &ErrDeviceNotFound{DeviceID: id}
}

// ValidationError marks malformed caller input. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// SchedulingError marks an unschedulable request, e.g. a fire time in the
// past or a reschedule of a campaign that already completed.
type SchedulingError struct {
	Reason string
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("scheduling error: %s", e.Reason)
}

func NewScheduling(reason string) error {
	return &SchedulingError{Reason: reason}
}

// IsNotFound reports whether err is a campaign or device not-found error.
func IsNotFound(err error) bool {
	var c *ErrCampaignNotFound
	var d *ErrDeviceNotFound
	return errors.As(err, &c) || errors.As(err, &d)
}

// IsValidation reports whether err is a caller-input validation failure.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsScheduling reports whether err is a scheduling rejection.
func IsScheduling(err error) bool {
	var s *SchedulingError
	return errors.As(err, &s)
}
