package validator

import (
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type action struct {
	ID       string `json:"id" binding:"required,requestid"`
	WindowID int    `json:"windowId" binding:"min=0"`
}

func TestValidateAction(t *testing.T) {
	Init()

	require.NoError(t, binding.Validator.ValidateStruct(&action{ID: "b6f1c2"}))

	err := binding.Validator.ValidateStruct(&action{})
	require.Error(t, err)
	assert.Contains(t, GetErrorMsg(err), "id 不能为空")

	err = binding.Validator.ValidateStruct(&action{ID: "a b"})
	require.Error(t, err)
	assert.Contains(t, GetErrorMsg(err), "不是合法的请求 ID")

	err = binding.Validator.ValidateStruct(&action{ID: "x", WindowID: -1})
	require.Error(t, err)
	assert.Contains(t, GetErrorMsg(err), "windowId 不能小于 0")
}
