package errno

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecode(t *testing.T) {
	code, msg := Decode(nil)
	assert.Equal(t, 0, code)
	assert.Equal(t, "Success", msg)

	wrapped := fmt.Errorf("popup: %w", ErrRequestNotFound)
	code, msg = Decode(wrapped)
	assert.Equal(t, ErrRequestNotFound.Code, code)
	assert.Equal(t, ErrRequestNotFound.Message, msg)

	code, _ = Decode(errors.New("boom"))
	assert.Equal(t, InternalServerError.Code, code)
}

func TestIsComparesCode(t *testing.T) {
	custom := ErrUserRejectedTx.WithMessage("denied %s", "by user")
	assert.Equal(t, "denied by user", custom.Error())
	assert.True(t, errors.Is(custom, ErrUserRejected))
	assert.False(t, errors.Is(custom, ErrInternalRPC))
}
