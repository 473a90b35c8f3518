package httpx

import (
	"github.com/KOMKZ/go-yogan-throttle/errcode"
	"github.com/KOMKZ/go-yogan-throttle/validator"
	"github.com/gin-gonic/gin"
)

// HandlerFunc 泛型 Handler 函数签名
// Req: 请求类型（支持 form/json/uri tag）
type HandlerFunc[Req any, Resp any] func(c *gin.Context, req *Req) (*Resp, error)

// Wrap 包装 Handler：解析、校验、响应
func Wrap[Req any, Resp any](handler HandlerFunc[Req, Resp]) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req Req
		if err := Parse(c, &req); err != nil {
			HandleError(c, errcode.ErrValidation.Wrap(err))
			return
		}

		if validatableReq, ok := any(&req).(validator.Validatable); ok {
			if err := validator.ValidateRequest(validatableReq); err != nil {
				HandleError(c, err) // 1010 + 字段详情
				return
			}
		}

		resp, err := handler(c, &req)
		if err != nil {
			HandleError(c, err)
			return
		}

		OkJson(c, resp)
	}
}
