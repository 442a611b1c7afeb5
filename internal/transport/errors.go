package transport

import (
	"errors"
	"fmt"
)

// DeliveryKind classifies a failed delivery attempt. Only InvalidMarkup and
// Transient are retried by the dispatcher's degrade ladder; NotFound and Other
// abort the attempt until the next tick.
type DeliveryKind string

const (
	DeliveryNotFound      DeliveryKind = "not_found"
	DeliveryInvalidMarkup DeliveryKind = "invalid_markup"
	DeliveryTransient     DeliveryKind = "transient"
	DeliveryOther         DeliveryKind = "other"
)

type DeliveryError struct {
	Kind DeliveryKind
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failed (%s): %v", e.Kind, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// DeliveryKindOf extracts the classification from err, defaulting to Other.
func DeliveryKindOf(err error) DeliveryKind {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Kind
	}
	return DeliveryOther
}
