package errors

import (
	"context"
	goerrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type statusErr struct{ code int }

func (e *statusErr) Error() string       { return fmt.Sprintf("status %d", e.code) }
func (e *statusErr) HTTPStatusCode() int { return e.code }

type namedErr struct{}

func (namedErr) Error() string      { return "named" }
func (namedErr) ErrorClass() string { return "missing_credential" }

type plainErr struct{}

func (*plainErr) Error() string { return "plain" }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "self named", err: fmt.Errorf("wrap: %w", namedErr{}), want: "missing_credential"},
		{name: "429", err: fmt.Errorf("call: %w", &statusErr{code: 429}), want: ClassProviderRateLimit},
		{name: "503", err: &statusErr{code: 503}, want: ClassProviderServer},
		{name: "400", err: &statusErr{code: 400}, want: ClassProviderClient},
		{name: "canceled", err: fmt.Errorf("x: %w", context.Canceled), want: ClassCanceled},
		{name: "deadline", err: context.DeadlineExceeded, want: ClassTimeout},
		{name: "type name", err: fmt.Errorf("outer: %w", &plainErr{}), want: "errors_plainerr"},
		{name: "errors.New", err: goerrors.New("boom"), want: "errors_errorstring"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
