// Package messaging describes the outbound notification gateway.
package messaging

import (
	"context"
	"errors"
	"fmt"
)

// Destination selects the gateway endpoint.
type Destination string

const (
	DestinationPatient      Destination = "patient"
	DestinationProfessional Destination = "professional" // Medical professionals of the patient
)

// Message is the gateway request body.
type Message struct {
	IdentityKey        string `json:"identity_management_key"`
	Body               string `json:"message_body"`
	MessageID          string `json:"message_unique_identifier"`
	SenderID           string `json:"sender_unique_identifier"`
	ReceiverDeviceType string `json:"receiver_device_type"`
}

// Gateway delivers a message once and returns the gateway response code.
type Gateway interface {
	Send(ctx context.Context, msg Message, dest Destination) (int, error)
}

// Gateway response codes.
const (
	CodeAccepted            = 200
	CodeGeneralError        = 1000
	CodeUnknownPatient      = 1007
	CodeQueueNotFound       = 1048
	CodeChannelRoleMismatch = 1060
)

var (
	ErrGeneral             = errors.New("gateway returned general error")
	ErrUnknownPatient      = errors.New("gateway does not know the patient")
	ErrChannelRoleMismatch = errors.New("receiver device type does not match the user role")
	ErrQueueNotFound       = errors.New("notification queue key not found")
	ErrUnexpectedCode      = errors.New("unexpected gateway response code")
)

// Interpret maps a gateway response code to nil or one of the gateway errors.
// The channel/role mismatch code is only meaningful for patient deliveries.
func Interpret(code int, dest Destination) error {
	switch {
	case code == CodeAccepted:
		return nil
	case code == CodeGeneralError:
		return ErrGeneral
	case code == CodeUnknownPatient:
		return ErrUnknownPatient
	case code == CodeChannelRoleMismatch && dest == DestinationPatient:
		return ErrChannelRoleMismatch
	case code == CodeQueueNotFound:
		return ErrQueueNotFound
	default:
		return fmt.Errorf("%w: %d", ErrUnexpectedCode, code)
	}
}
