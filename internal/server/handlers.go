package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"camgateway/internal/camera"
	"camgateway/internal/client"
	"camgateway/internal/gateway"
	"camgateway/internal/generated"
	"camgateway/internal/msgs"
	"camgateway/internal/status"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
)

// ConfigClient はゲートウェイの設定RPCを呼び出す
type ConfigClient interface {
	SetConfigMessage(ctx context.Context, cfg *msgs.CameraConfig) error
	GetConfigMessage(ctx context.Context, sel msgs.FieldSelector) (*msgs.CameraConfig, error)
}

// StatsSource はループの統計情報を提供する
type StatsSource interface {
	ID() string
	Stats() gateway.Stats
}

// GatewayHandler は生成されたServerInterfaceを実装する
type GatewayHandler struct {
	device  camera.DeviceInfo
	stats   StatsSource
	configs ConfigClient
	frames  *FrameHub
}

var _ generated.ServerInterface = (*GatewayHandler)(nil)

// HealthCheck はヘルスチェックエンドポイントの実装
func (h *GatewayHandler) HealthCheck(c *gin.Context) {
	response := generated.HealthResponse{
		Status:    generated.Healthy,
		Timestamp: time.Now(),
	}

	c.JSON(http.StatusOK, response)
}

// GetStatus はカメラとループの状態取得エンドポイントの実装
func (h *GatewayHandler) GetStatus(c *gin.Context) {
	s := h.stats.Stats()

	info := generated.CameraInfo{
		Id:     h.stats.ID(),
		Kind:   string(h.device.Kind),
		Device: h.device.Device,
	}
	if h.device.Name != "" {
		info.Name = stringPtr(h.device.Name)
	}
	if h.device.Serial != "" {
		info.Serial = stringPtr(h.device.Serial)
	}
	if len(h.device.Resolutions) > 0 {
		res := make([]string, 0, len(h.device.Resolutions))
		for _, r := range h.device.Resolutions {
			res = append(res, r.String())
		}
		info.Resolutions = &res
	}

	stats := generated.LoopStats{
		Capturing:     s.Capturing,
		Frames:        int64(s.Frames),
		EmptyGrabs:    int64(s.EmptyGrabs),
		Requests:      int64(s.Requests),
		PublishErrors: int64(s.PublishErrors),
	}
	if !s.LastCapture.IsZero() {
		stats.LastCapture = &s.LastCapture
	}

	response := generated.StatusResponse{
		Status:    generated.Running,
		Camera:    info,
		Stats:     stats,
		Timestamp: time.Now(),
	}
	if !s.Capturing {
		response.Status = generated.Stopped
	}

	c.JSON(http.StatusOK, response)
}

// GetConfig はカメラ設定取得エンドポイントの実装。fields を省略すると ALL を返す
func (h *GatewayHandler) GetConfig(c *gin.Context, params generated.GetConfigParams) {
	sel := msgs.FieldSelector{Fields: []string{string(generated.ALL)}}
	if params.Fields != nil && len(*params.Fields) > 0 {
		sel.Fields = sel.Fields[:0]
		for _, f := range *params.Fields {
			sel.Fields = append(sel.Fields, string(f))
		}
	}

	cfg, err := h.configs.GetConfigMessage(c.Request.Context(), sel)
	if err != nil {
		respondStatus(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// SetConfig はカメラ設定適用エンドポイントの実装
func (h *GatewayHandler) SetConfig(c *gin.Context) {
	data, err := c.GetRawData()
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	var body generated.SetConfigJSONRequestBody
	if err := json.Unmarshal(data, &body); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if err := h.configs.SetConfigMessage(c.Request.Context(), &body); err != nil {
		respondStatus(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetFrame は最新フレーム取得エンドポイントの実装
func (h *GatewayHandler) GetFrame(c *gin.Context) {
	f, ok := h.frames.Latest()
	if !ok {
		abortWithError(c, http.StatusNotFound, status.NotFound.String(), "まだフレームがありません")
		return
	}

	c.Header("X-Capture-Timestamp", f.Timestamp.UTC().Format(time.RFC3339Nano))
	if f.Resolution != "" {
		c.Header("X-Resolution", f.Resolution)
	}
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, mimetype.Detect(f.Data).String(), f.Data)
}

// GetStream はMJPEGストリーミングエンドポイントの実装
func (h *GatewayHandler) GetStream(c *gin.Context) {
	// レスポンスヘッダーを設定
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")
	c.Status(http.StatusOK)

	frames, unsubscribe := h.frames.Subscribe()
	defer unsubscribe()

	// クライアント切断を検知するためのコンテキスト
	clientGone := c.Request.Context().Done()
	writer := c.Writer

	// ストリーミングループ
	for {
		select {
		case <-clientGone:
			return

		case f := <-frames:
			// MJPEGフレームを書き込み
			header := fmt.Sprintf("--frame\r\nContent-Type: %s\r\nContent-Length: %d\r\nX-Capture-Timestamp: %s\r\n\r\n",
				f.ContentType, len(f.Data), f.Timestamp.UTC().Format(time.RFC3339Nano))
			if _, err := writer.Write([]byte(header)); err != nil {
				return
			}
			if _, err := writer.Write(f.Data); err != nil {
				return
			}
			if _, err := writer.Write([]byte("\r\n")); err != nil {
				return
			}

			// バッファをフラッシュ
			writer.Flush()
		}
	}
}

// captureEvent はSSEで送るキャプチャ時刻
type captureEvent struct {
	FrameID     string    `json:"frame_id"`
	Timestamp   time.Time `json:"timestamp"`
	ContentType string    `json:"content_type"`
	Resolution  string    `json:"resolution"`
	Size        int       `json:"size"`
}

// GetEvents はキャプチャ時刻のServer-Sent Eventsエンドポイントの実装
func (h *GatewayHandler) GetEvents(c *gin.Context) {
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	frames, unsubscribe := h.frames.Subscribe()
	defer unsubscribe()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return
		case f := <-frames:
			data, err := json.Marshal(captureEvent{
				FrameID:     f.ID,
				Timestamp:   f.Timestamp,
				ContentType: f.ContentType,
				Resolution:  f.Resolution,
				Size:        len(f.Data),
			})
			if err != nil {
				return
			}
			c.Render(-1, sse.Event{
				Id:    f.ID,
				Event: "capture",
				Data:  string(data),
			})
			c.Writer.Flush()
		}
	}
}

// respondStatus はRPCのステータスをHTTPのエラー応答に変換する
func respondStatus(c *gin.Context, err error) {
	code := status.CodeOf(err)
	abortWithError(c, status.HTTPStatus(code), code.String(), status.WhyOf(err))
}

// stringPtr は文字列のポインタを返すヘルパー関数
func stringPtr(s string) *string {
	return &s
}

var _ ConfigClient = (*client.Client)(nil)
