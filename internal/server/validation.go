package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"camgateway/internal/generated"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/gin-gonic/gin"
)

// openAPIValidator はOpenAPI定義に従ってリクエストを検証するミドルウェアを返す
//
// 定義にないパス (/ws など) は検証せずに通す。
func openAPIValidator(swagger *openapi3.T) (gin.HandlerFunc, error) {
	// ホスト名に関係なくルートを照合する
	swagger.Servers = nil

	router, err := gorillamux.NewRouter(swagger)
	if err != nil {
		return nil, fmt.Errorf("OpenAPIルーターの作成に失敗: %w", err)
	}

	return func(c *gin.Context) {
		route, pathParams, err := router.FindRoute(c.Request)
		if err != nil {
			if errors.Is(err, routers.ErrPathNotFound) {
				c.Next()
				return
			}
			if errors.Is(err, routers.ErrMethodNotAllowed) {
				abortWithError(c, http.StatusMethodNotAllowed, "method_not_allowed", err.Error())
				return
			}
			abortWithError(c, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    c.Request,
			PathParams: pathParams,
			Route:      route,
		}
		if err := openapi3filter.ValidateRequest(c.Request.Context(), input); err != nil {
			abortWithError(c, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		c.Next()
	}, nil
}

// abortWithError はエラー応答を返して処理を中断する
func abortWithError(c *gin.Context, code int, kind, message string) {
	c.AbortWithStatusJSON(code, generated.ErrorResponse{
		Error:     kind,
		Message:   message,
		Timestamp: time.Now(),
	})
}
