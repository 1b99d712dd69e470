package handler

import (
	"errors"
	"fmt"

	"github.com/t77yq/autocontrol/internal/model"
)

// ErrNoEndpoint is returned when no action endpoint URL is configured
var ErrNoEndpoint = errors.New("action endpoint not configured")

// TransportError is returned when the endpoint could not be reached or
// replied with something other than JSON
type TransportError struct {
	Action model.Action
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("action %s: %v", e.Action, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ApplicationError is returned when the endpoint replied with success=false
type ApplicationError struct {
	Action  model.Action
	Message string
}

func (e *ApplicationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("action %s reported failure", e.Action)
	}
	return e.Message
}
