package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"camgateway/internal/camera"
	"camgateway/internal/client"
	"camgateway/internal/config"
	"camgateway/internal/generated"

	"github.com/gin-gonic/gin"
)

// Deps はサーバーが利用するゲートウェイ側の部品
type Deps struct {
	Device  camera.DeviceInfo   // 公開するカメラの情報
	Gateway StatsSource         // ループの統計情報
	Client  ConfigClient        // 設定RPCのクライアント
	Frames  <-chan client.Frame // Watch で受け取るフレーム。nil なら配信しない
	Broker  http.Handler        // /ws で公開するWebSocketブローカー。nil なら公開しない
}

// Server は管理用HTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	httpServer *http.Server
	engine     *gin.Engine
	hub        *FrameHub
	frames     <-chan client.Frame
}

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.Gateway == nil || deps.Client == nil {
		return nil, errors.New("ゲートウェイとクライアントは必須です")
	}

	swagger, err := generated.GetSwagger()
	if err != nil {
		return nil, err
	}
	validator, err := openAPIValidator(swagger)
	if err != nil {
		return nil, err
	}

	hub := NewFrameHub()
	handler := &GatewayHandler{
		device:  deps.Device,
		stats:   deps.Gateway,
		configs: deps.Client,
		frames:  hub,
	}

	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery(), validator)
	generated.RegisterHandlersWithOptions(engine, handler, generated.GinServerOptions{
		ErrorHandler: func(c *gin.Context, err error, code int) {
			abortWithError(c, code, "invalid_request", err.Error())
		},
	})
	if deps.Broker != nil {
		engine.GET("/ws", gin.WrapH(deps.Broker))
	}

	return &Server{
		config: cfg,
		engine: engine,
		hub:    hub,
		frames: deps.Frames,
		httpServer: &http.Server{
			Addr:         cfg.ServerAddress(),
			Handler:      engine,
			ReadTimeout:  cfg.Server.ReadTimeout.Std(),
			WriteTimeout: cfg.Server.WriteTimeout.Std(),
		},
	}, nil
}

// Handler はルーティング済みのハンドラを返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Hub はフレームの配信先を返す
func (s *Server) Hub() *FrameHub {
	return s.hub
}

// Start はサーバーを起動し、ctx が終了したらシャットダウンする
func (s *Server) Start(ctx context.Context) error {
	if s.frames != nil {
		go s.hub.Run(ctx, s.frames)
	}

	// シャットダウン用のチャンネル
	shutdownCh := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		log.Printf("[server] HTTPサーバーを起動しています: %s", s.config.ServerAddress())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			shutdownCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Println("[server] コンテキストがキャンセルされました")
	case err := <-shutdownCh:
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
func (s *Server) Shutdown() error {
	log.Println("[server] サーバーをシャットダウンしています...")

	// 5秒のタイムアウトを設定
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	log.Println("[server] サーバーが正常にシャットダウンされました")
	return nil
}
