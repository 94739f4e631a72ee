package coordinator

import (
	"time"

	"github.com/mcoot/worldrelay/internal/model"
)

// event is anything the coordinator loop processes
type event any

type connectEvent struct {
	conn Conn
}

type disconnectEvent struct {
	id model.ConnID
}

type messageEvent struct {
	id  model.ConnID
	msg model.Message
}

// asyncResultEvent wraps the result of off-loop work started by goAsync
type asyncResultEvent struct {
	ev event
}

// loginHashedEvent carries the hash for a first login of an unknown username
type loginHashedEvent struct {
	id       model.ConnID
	username string
	password string
	hash     string
	err      error
}

// loginVerifiedEvent carries the password check for an existing identity
type loginVerifiedEvent struct {
	id       model.ConnID
	username string
	ok       bool
	err      error
}

type pendingTimeoutEvent struct {
	id    model.ConnID
	code  model.WorldCode
	since time.Time
}

type statusEvent struct {
	reply chan Status
}
