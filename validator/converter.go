// Package validator 将 ozzo-validation 的字段错误统一转换为 LayeredError
package validator

import (
	"errors"

	"github.com/KOMKZ/go-yogan-throttle/errcode"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Validatable 可校验接口
type Validatable interface {
	Validate() error
}

// ValidateRequest 通用校验函数，失败时返回 errcode.ErrValidation
func ValidateRequest(req Validatable) error {
	return ValidateAs(errcode.ErrValidation, req)
}

// ValidateAs 校验并使用指定的错误码包装失败结果
// 配置类校验通常传入模块自己的 invalid-config 错误码
func ValidateAs(base *errcode.LayeredError, req Validatable) error {
	err := req.Validate()
	if err == nil {
		return nil
	}

	var validationErrs validation.Errors
	if errors.As(err, &validationErrs) {
		return convert(base, validationErrs)
	}

	// 非字段错误（如 validation.InternalError）原样包装
	return base.Wrap(err)
}

// ConvertValidationError 将 ozzo-validation 错误转换为 LayeredError
func ConvertValidationError(validationErrs validation.Errors) error {
	return convert(errcode.ErrValidation, validationErrs)
}

func convert(base *errcode.LayeredError, validationErrs validation.Errors) error {
	fields := make(map[string]string, len(validationErrs))
	for field, fieldErr := range validationErrs {
		if fieldErr != nil {
			fields[field] = fieldErr.Error()
		}
	}
	return base.WithData("fields", fields).Wrap(validationErrs)
}
