package transport

import (
	"errors"
	"testing"

	"github.com/gorilla/websocket"
)

func TestClassifyClosure(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Closure
	}{
		{"normal closure", &websocket.CloseError{Code: websocket.CloseNormalClosure}, ClosureNormal},
		{"going away", &websocket.CloseError{Code: websocket.CloseGoingAway}, ClosureNormal},
		{"abnormal closure", &websocket.CloseError{Code: websocket.CloseAbnormalClosure}, ClosureAbnormal},
		{"protocol error", &websocket.CloseError{Code: websocket.CloseProtocolError}, ClosureAbnormal},
		{"plain error", errors.New("connection reset by peer"), ClosureAbnormal},
		{"wrapped close error", wrap(&websocket.CloseError{Code: websocket.CloseGoingAway}), ClosureNormal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyClosure(tc.err); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func wrap(err error) error {
	return errors.Join(errors.New("read failed"), err)
}
