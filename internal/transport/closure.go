package transport

import (
	"errors"

	"github.com/gorilla/websocket"
)

// Closure classifies why a connection ended.
type Closure int

const (
	ClosureNormal Closure = iota
	ClosureAbnormal
)

func (c Closure) String() string {
	if c == ClosureNormal {
		return "normal"
	}
	return "abnormal"
}

// ClassifyClosure maps a read/write error to a closure class using websocket
// close codes. 1000 (normal) and 1001 (going away) are ordinary client
// disconnects; everything else, including non-close errors, is abnormal.
func ClassifyClosure(err error) Closure {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway:
			return ClosureNormal
		}
	}
	return ClosureAbnormal
}
