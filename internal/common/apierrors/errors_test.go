package apierrors

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestHttpStatusFromError(t *testing.T) {
	tests := map[string]struct {
		err  error
		want int
	}{
		"ErrAlreadyExists":                {&ErrAlreadyExists{}, http.StatusConflict},
		"ErrNotFound":                     {&ErrNotFound{}, http.StatusNotFound},
		"ErrInvalidArgument":              {&ErrInvalidArgument{}, http.StatusBadRequest},
		"pkg.Error => ErrAlreadyExists":   {errors.WithMessage(&ErrAlreadyExists{}, "foo"), http.StatusConflict},
		"pkg.Error => ErrNotFound":        {errors.WithMessage(&ErrNotFound{}, "foo"), http.StatusNotFound},
		"pkg.Error => ErrInvalidArgument": {errors.WithStack(&ErrInvalidArgument{}), http.StatusBadRequest},
		"pkg.Error":                       {errors.New("foo"), http.StatusInternalServerError},
		"nil":                             {nil, http.StatusOK},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, HttpStatusFromError(tc.err))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, `resource "abc" of type "job" does not exist`, (&ErrNotFound{Type: "job", Value: "abc"}).Error())
	assert.Equal(t, `resource "abc" does not exist; gone`, (&ErrNotFound{Value: "abc", Message: "gone"}).Error())
	assert.Equal(t, `resource "abc" of type "job" already exists`, (&ErrAlreadyExists{Type: "job", Value: "abc"}).Error())
	assert.Equal(t, `value "2" is invalid for field "failureProbability"; must be <= 1`,
		(&ErrInvalidArgument{Name: "failureProbability", Value: "2", Message: "must be <= 1"}).Error())
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(errors.WithStack(&ErrNotFound{Type: "job"})))
	assert.False(t, IsNotFound(errors.New("foo")))
	assert.False(t, IsNotFound(nil))
}
