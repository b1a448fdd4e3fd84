package applet

import "fmt"

// Status tags an Outcome.
type Status int

const (
	StatusFailed Status = iota
	StatusSuccess
	StatusLocked
	StatusWrongPin
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusLocked:
		return "card_locked"
	case StatusWrongPin:
		return "wrong_pin"
	default:
		return "failed"
	}
}

// Outcome is the result of a PIN-touching or write operation.
// RemainingTries is only meaningful for StatusWrongPin. Err is set for
// StatusFailed.
//
// For ChangePin, StatusWrongPin means the old PIN was rejected.
// Operations that cannot lock or count tries (unblock) only produce
// StatusSuccess or StatusFailed.
type Outcome struct {
	Status         Status
	RemainingTries int
	Err            error
}

func Succeeded() Outcome { return Outcome{Status: StatusSuccess} }

func Locked() Outcome { return Outcome{Status: StatusLocked} }

func WrongPin(remaining int) Outcome {
	return Outcome{Status: StatusWrongPin, RemainingTries: remaining}
}

func Failure(err error) Outcome {
	return Outcome{Status: StatusFailed, Err: err}
}

// OK reports StatusSuccess.
func (o Outcome) OK() bool { return o.Status == StatusSuccess }

// AsError converts the outcome to the error taxonomy: nil, ErrLocked,
// *WrongSecretError or the failure cause.
func (o Outcome) AsError() error {
	switch o.Status {
	case StatusSuccess:
		return nil
	case StatusLocked:
		return ErrLocked
	case StatusWrongPin:
		return &WrongSecretError{Remaining: o.RemainingTries}
	default:
		if o.Err == nil {
			return fmt.Errorf("applet: operation failed")
		}
		return o.Err
	}
}

func (o Outcome) String() string {
	switch o.Status {
	case StatusWrongPin:
		return fmt.Sprintf("wrong_pin(%d)", o.RemainingTries)
	case StatusFailed:
		if o.Err != nil {
			return fmt.Sprintf("failed(%v)", o.Err)
		}
	}
	return o.Status.String()
}
