package validator

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var once sync.Once

// Init 把 gin 的校验器字段名改为 json 名, 并注册自定义规则
func Init() {
	once.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		_ = v.RegisterValidation("requestid", validateRequestID)
	})
}

// validateRequestID 请求 ID 由 relay 生成, 不含空白且不超过 128 字符
func validateRequestID(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" || len(s) > 128 {
		return false
	}
	return strings.IndexFunc(s, unicode.IsSpace) < 0
}

// GetErrorMsg translates validation errors into user-friendly messages
func GetErrorMsg(err error) string {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		var errMsgs []string
		for _, e := range validationErrors {
			field := e.Field()
			param := e.Param()

			switch e.Tag() {
			case "required":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 不能为空", field))
			case "requestid":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 不是合法的请求 ID", field))
			case "min":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 不能小于 %s", field, param))
			case "max":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 不能超过 %s", field, param))
			default:
				errMsgs = append(errMsgs, fmt.Sprintf("%s 校验失败 (%s)", field, e.Tag()))
			}
		}
		return strings.Join(errMsgs, "; ")
	}
	return "请求参数错误"
}
