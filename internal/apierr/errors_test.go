package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindStatusAndLabel(t *testing.T) {
	cases := []struct {
		kind   Kind
		status int
		label  string
	}{
		{Validation, http.StatusBadRequest, "Validation Error"},
		{NotFound, http.StatusNotFound, "Resource Not Found"},
		{Conflict, http.StatusConflict, "User Already Exists"},
		{Forbidden, http.StatusForbidden, "Access Denied"},
		{Unauthorized, http.StatusUnauthorized, "Unauthorized"},
		{TooManyRequests, http.StatusTooManyRequests, "Too Many Requests"},
		{Internal, http.StatusInternalServerError, "Server Error"},
	}

	for _, tc := range cases {
		t.Run(tc.label, func(t *testing.T) {
			assert.Equal(t, tc.status, tc.kind.Status())
			assert.Equal(t, tc.label, tc.kind.Label())
		})
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, NotFound, KindOf(NotFoundf("User not found with id: %d", 7)))
	assert.Equal(t, Conflict, KindOf(fmt.Errorf("create: %w", Conflictf("Username already exists: %s", "Bret"))))
	assert.Equal(t, Internal, KindOf(errors.New("boom")))
	assert.Equal(t, Internal, KindOf(nil))
}

func TestMessages(t *testing.T) {
	err := ValidationErr("email: must be a well-formed email address", "username: must not be blank")
	assert.Equal(t, []string{
		"email: must be a well-formed email address",
		"username: must not be blank",
	}, Messages(err))

	assert.Equal(t, []string{"User not found with id: 7"}, Messages(NotFoundf("User not found with id: %d", 7)))
	assert.Equal(t, []string{"connection refused"}, Messages(errors.New("connection refused")))
	assert.Empty(t, Messages(nil))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("duplicate key")
	err := Wrap(Conflict, cause, "Email already exists: a@b.c")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Email already exists: a@b.c", err.Error())
	assert.Equal(t, Conflict, KindOf(err))
}
