package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs_MatchesByCode(t *testing.T) {
	reworded := ErrInvalidStateTransition.WithMessage("Cannot cancel order in current status")
	wrapped := fmt.Errorf("cancel order: %w", reworded)

	assert.ErrorIs(t, wrapped, ErrInvalidStateTransition)
	assert.NotErrorIs(t, wrapped, ErrCouponExpired)
	assert.Equal(t, "Cannot cancel order in current status", reworded.Error())
}

func TestWrap_KeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := ErrGateway.Wrap(cause)

	assert.ErrorIs(t, err, ErrGateway)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "dial tcp: timeout")
}

func TestHTTPStatus(t *testing.T) {
	cases := map[error]int{
		ErrEmptyCart:                         http.StatusBadRequest,
		Validation("missing_field", "x"):     http.StatusBadRequest,
		ErrForbidden:                         http.StatusForbidden,
		ErrOrderNotFound:                     http.StatusNotFound,
		ErrCouponExpired:                     http.StatusConflict,
		ErrSignature:                         http.StatusBadRequest,
		fmt.Errorf("refund: %w", ErrGateway): http.StatusBadGateway,
		errors.New("boom"):                   http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, HTTPStatus(err), err.Error())
	}
}
