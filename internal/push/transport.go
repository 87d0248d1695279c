package push

import (
	"context"
	"errors"
	"fmt"

	"schoolnotify/pkg/util"
)

// Message is one push notification addressed to a device token.
type Message struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
}

// Transport delivers a message to the mobile push service and returns the
// provider message id. Failures should be *SendError so the code can be
// recorded.
type Transport interface {
	Name() string
	Send(ctx context.Context, msg Message) (string, error)
}

var ErrInvalidToken = errors.New("push token is empty")

// Codes that describe one message or its device token rather than the
// transport itself.
const (
	CodeInvalidToken    = "invalid_token"
	CodeUnregistered    = "unregistered"
	CodeInvalidArgument = "invalid_argument"
)

var messageCodes = map[string]struct{}{
	CodeInvalidToken:    {},
	CodeUnregistered:    {},
	CodeInvalidArgument: {},
}

// SendError is a transport failure with a provider or transport error code.
type SendError struct {
	Code string
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("push send failed (%s): %v", e.Code, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// IsMessageError reports whether err is specific to the message it was
// returned for, so other recipients are unaffected by it.
func IsMessageError(err error) bool {
	var se *SendError
	if !errors.As(err, &se) {
		return false
	}
	_, ok := messageCodes[se.Code]
	return ok
}

// ErrorCode returns the SendError code, or the classified error kind.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var se *SendError
	if errors.As(err, &se) && se.Code != "" {
		return se.Code
	}
	return util.ClassifyError(err)
}
