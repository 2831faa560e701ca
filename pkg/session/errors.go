package session

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrCycleInFlight is returned when a submission is attempted while a
// response cycle is still streaming on this chat. Other chats are not
// affected.
var ErrCycleInFlight = errors.New("a response cycle is already in flight")

// ModelsUnavailableError is the precondition failure raised before any
// network call when requested span models are missing from the catalog.
type ModelsUnavailableError struct {
	Missing []string
}

func (e *ModelsUnavailableError) Error() string {
	return fmt.Sprintf("the model %s does not exist", strings.Join(e.Missing, " "))
}
