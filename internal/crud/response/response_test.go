package response

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		resp     Response
		ok       bool
		wantErr  string
		canceled bool
	}{
		{name: "success", resp: Success(42), ok: true},
		{name: "payload-less success", resp: Success(nil), ok: true},
		{name: "canceled", resp: Canceled(), wantErr: "request canceled", canceled: true},
		{
			name:    "one error",
			resp:    Fail(Error{Code: "failed_to_find", Message: "no user"}),
			wantErr: "failed_to_find: no user",
		},
		{
			name:    "several errors",
			resp:    Fail(Error{Code: "a", Message: "x"}, Error{Message: "y"}),
			wantErr: "2 errors: a: x; y",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.resp.OK())
			err := tt.resp.Err()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
			assert.Equal(t, tt.canceled, errors.Is(err, ErrCanceled))
		})
	}
}

func TestErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("disk full")
	resp := Fail(Error{Code: "request_failed", Message: "write failed", Cause: cause})

	assert.True(t, resp.HasCode("request_failed"))
	assert.False(t, resp.HasCode("hook_failed"))
	assert.ErrorIs(t, resp.Err(), cause)
}

func TestAs(t *testing.T) {
	page := Page[string]{Items: []string{"a"}, PageNumber: 1, PageSize: 10, PageCount: 1, TotalItemCount: 1}

	got, ok := As[Page[string]](Success(page))
	require.True(t, ok)
	assert.Equal(t, page, got)

	_, ok = As[int](Success("not an int"))
	assert.False(t, ok)

	_, ok = As[int](Success(nil))
	assert.False(t, ok)

	n, ok := As[int](Response{Result: 1, Errors: []Error{{Message: "x"}}})
	assert.False(t, ok)
	assert.Zero(t, n)
}
