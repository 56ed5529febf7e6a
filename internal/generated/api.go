// Package generated は openapi.yaml に対応するモデルとginのルーティングを提供する
//
// oapi-codegen の gin-server 出力と同じ構成 (ServerInterface, ServerInterfaceWrapper,
// RegisterHandlers) をとる。openapi.yaml を変更したらこのファイルも合わせて更新する。
package generated

import (
	"fmt"
	"net/http"
	"time"

	"camgateway/internal/msgs"

	"github.com/gin-gonic/gin"
	"github.com/oapi-codegen/runtime"
)

// Defines values for HealthResponseStatus.
const (
	Healthy HealthResponseStatus = "healthy"
)

// Defines values for StatusResponseStatus.
const (
	Running StatusResponseStatus = "running"
	Stopped StatusResponseStatus = "stopped"
)

// Defines values for Field.
const (
	ALL              Field = "ALL"
	CAMERASETTINGS   Field = "CAMERA_SETTINGS"
	IMAGESETTINGS    Field = "IMAGE_SETTINGS"
	SAMPLINGSETTINGS Field = "SAMPLING_SETTINGS"
)

// CameraConfig defines model for CameraConfig.
type CameraConfig = msgs.CameraConfig

// CameraInfo defines model for CameraInfo.
type CameraInfo struct {
	Device      string    `json:"device"`
	Id          string    `json:"id"`
	Kind        string    `json:"kind"`
	Name        *string   `json:"name,omitempty"`
	Resolutions *[]string `json:"resolutions,omitempty"`
	Serial      *string   `json:"serial,omitempty"`
}

// ErrorResponse defines model for ErrorResponse.
type ErrorResponse struct {
	Details   *string   `json:"details,omitempty"`
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Field defines model for Field.
type Field string

// HealthResponse defines model for HealthResponse.
type HealthResponse struct {
	Status    HealthResponseStatus `json:"status"`
	Timestamp time.Time            `json:"timestamp"`
}

// HealthResponseStatus defines model for HealthResponse.Status.
type HealthResponseStatus string

// LoopStats defines model for LoopStats.
type LoopStats struct {
	Capturing     bool       `json:"capturing"`
	EmptyGrabs    int64      `json:"empty_grabs"`
	Frames        int64      `json:"frames"`
	LastCapture   *time.Time `json:"last_capture,omitempty"`
	PublishErrors int64      `json:"publish_errors"`
	Requests      int64      `json:"requests"`
}

// StatusResponse defines model for StatusResponse.
type StatusResponse struct {
	Camera    CameraInfo           `json:"camera"`
	Stats     LoopStats            `json:"stats"`
	Status    StatusResponseStatus `json:"status"`
	Timestamp time.Time            `json:"timestamp"`
}

// StatusResponseStatus defines model for StatusResponse.Status.
type StatusResponseStatus string

// GetConfigParams defines parameters for GetConfig.
type GetConfigParams struct {
	Fields *[]Field `form:"fields,omitempty" json:"fields,omitempty"`
}

// SetConfigJSONRequestBody defines body for SetConfig for application/json ContentType.
type SetConfigJSONRequestBody = CameraConfig

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// ヘルスチェック
	// (GET /health)
	HealthCheck(c *gin.Context)
	// カメラとループの状態
	// (GET /api/status)
	GetStatus(c *gin.Context)
	// カメラ設定の取得
	// (GET /api/config)
	GetConfig(c *gin.Context, params GetConfigParams)
	// カメラ設定の適用
	// (PUT /api/config)
	SetConfig(c *gin.Context)
	// 最新フレーム
	// (GET /api/frame)
	GetFrame(c *gin.Context)
	// MJPEGストリーム
	// (GET /api/stream)
	GetStream(c *gin.Context)
	// キャプチャ時刻のServer-Sent Events
	// (GET /api/events)
	GetEvents(c *gin.Context)
}

// ServerInterfaceWrapper converts contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler            ServerInterface
	HandlerMiddlewares []MiddlewareFunc
	ErrorHandler       func(*gin.Context, error, int)
}

type MiddlewareFunc func(c *gin.Context)

func (siw *ServerInterfaceWrapper) run(c *gin.Context, next func()) {
	for _, middleware := range siw.HandlerMiddlewares {
		middleware(c)
		if c.IsAborted() {
			return
		}
	}
	next()
}

// HealthCheck operation middleware
func (siw *ServerInterfaceWrapper) HealthCheck(c *gin.Context) {
	siw.run(c, func() { siw.Handler.HealthCheck(c) })
}

// GetStatus operation middleware
func (siw *ServerInterfaceWrapper) GetStatus(c *gin.Context) {
	siw.run(c, func() { siw.Handler.GetStatus(c) })
}

// GetConfig operation middleware
func (siw *ServerInterfaceWrapper) GetConfig(c *gin.Context) {
	var err error

	// Parameter object where we will unmarshal all parameters from the context
	var params GetConfigParams

	// ------------- Optional query parameter "fields" -------------

	err = runtime.BindQueryParameter("form", true, false, "fields", c.Request.URL.Query(), &params.Fields)
	if err != nil {
		siw.ErrorHandler(c, fmt.Errorf("Invalid format for parameter fields: %w", err), http.StatusBadRequest)
		return
	}

	siw.run(c, func() { siw.Handler.GetConfig(c, params) })
}

// SetConfig operation middleware
func (siw *ServerInterfaceWrapper) SetConfig(c *gin.Context) {
	siw.run(c, func() { siw.Handler.SetConfig(c) })
}

// GetFrame operation middleware
func (siw *ServerInterfaceWrapper) GetFrame(c *gin.Context) {
	siw.run(c, func() { siw.Handler.GetFrame(c) })
}

// GetStream operation middleware
func (siw *ServerInterfaceWrapper) GetStream(c *gin.Context) {
	siw.run(c, func() { siw.Handler.GetStream(c) })
}

// GetEvents operation middleware
func (siw *ServerInterfaceWrapper) GetEvents(c *gin.Context) {
	siw.run(c, func() { siw.Handler.GetEvents(c) })
}

// GinServerOptions provides options for the Gin server.
type GinServerOptions struct {
	BaseURL      string
	Middlewares  []MiddlewareFunc
	ErrorHandler func(*gin.Context, error, int)
}

// RegisterHandlers creates http.Handler with routing matching OpenAPI spec.
func RegisterHandlers(router gin.IRouter, si ServerInterface) {
	RegisterHandlersWithOptions(router, si, GinServerOptions{})
}

// RegisterHandlersWithOptions creates http.Handler with additional options
func RegisterHandlersWithOptions(router gin.IRouter, si ServerInterface, options GinServerOptions) {
	errorHandler := options.ErrorHandler
	if errorHandler == nil {
		errorHandler = func(c *gin.Context, err error, statusCode int) {
			c.JSON(statusCode, gin.H{"msg": err.Error()})
		}
	}

	wrapper := ServerInterfaceWrapper{
		Handler:            si,
		HandlerMiddlewares: options.Middlewares,
		ErrorHandler:       errorHandler,
	}

	router.GET(options.BaseURL+"/health", wrapper.HealthCheck)
	router.GET(options.BaseURL+"/api/status", wrapper.GetStatus)
	router.GET(options.BaseURL+"/api/config", wrapper.GetConfig)
	router.PUT(options.BaseURL+"/api/config", wrapper.SetConfig)
	router.GET(options.BaseURL+"/api/frame", wrapper.GetFrame)
	router.GET(options.BaseURL+"/api/stream", wrapper.GetStream)
	router.GET(options.BaseURL+"/api/events", wrapper.GetEvents)
}
