// Package app はゲートウェイの各部品を組み立てて起動する
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"camgateway/internal/camera"
	"camgateway/internal/client"
	"camgateway/internal/config"
	"camgateway/internal/gateway"
	"camgateway/internal/server"
	"camgateway/internal/tracing"
	"camgateway/internal/transport"
)

// App はゲートウェイのプロセス全体を表す
type App struct {
	config   *config.Config
	bus      *transport.Bus
	dialer   *transport.Dialer
	registry *camera.Registry
}

// New は設定からAppを作成する
func New(cfg *config.Config) (*App, error) {
	codec, err := transport.CodecByName(cfg.Gateway.Codec)
	if err != nil {
		return nil, err
	}

	bus := transport.NewBus(cfg.Gateway.QueueLen)
	registry := camera.NewDefaultRegistry()
	if camera.DriverKind(cfg.Camera.Driver) == camera.DriverMock {
		registry.Register(camera.DriverMock, camera.NewMockDiscovery("mock0"), func() camera.CameraDriver {
			return camera.NewMockDriver()
		})
	}

	return &App{
		config:   cfg,
		bus:      bus,
		dialer:   &transport.Dialer{Bus: bus, Codec: codec, QueueLen: cfg.Gateway.QueueLen},
		registry: registry,
	}, nil
}

// Registry はドライバの登録先を返す
func (a *App) Registry() *camera.Registry {
	return a.registry
}

// Bus はプロセス内バスを返す
func (a *App) Bus() *transport.Bus {
	return a.bus
}

// Start はシグナルを受け取るまでゲートウェイを実行する
func (a *App) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			log.Printf("[app] シグナルを受信しました: %v", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return a.Run(ctx)
}

// Run は ctx が終了するまでゲートウェイと管理用サーバーを実行する
func (a *App) Run(ctx context.Context) error {
	cfg := a.config

	tracer, err := tracing.New(cfg.ServiceName(), cfg.Tracing.ZipkinHost, cfg.Tracing.ZipkinPort)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			log.Printf("[app] トレーサーの停止に失敗: %v", err)
		}
	}()

	info, driver, err := a.openCamera(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := driver.Close(); err != nil {
			log.Printf("[app] カメラのクローズに失敗: %v", err)
		}
	}()

	initial, err := cfg.InitialCameraConfig()
	if err != nil {
		return fmt.Errorf("初期設定が不正です: %w", err)
	}

	ch, err := a.dialer.Dial(ctx, cfg.Gateway.BrokerURI)
	if err != nil {
		return fmt.Errorf("ブローカーへの接続に失敗: %w", err)
	}
	defer ch.Close()

	g := gateway.New(cfg.Gateway.ID, driver, ch, tracer)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := g.Run(ctx, initial); err != nil {
			errCh <- fmt.Errorf("ゲートウェイの実行に失敗: %w", err)
		}
	}()

	if cfg.Server.Enabled {
		srv, closeServer, err := a.newServer(ctx, info, g, tracer)
		if err != nil {
			cancel()
			wg.Wait()
			return err
		}
		defer closeServer()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Start(ctx); err != nil {
				errCh <- err
			}
		}()
	}

	log.Printf("[app] ゲートウェイ %s を起動しました (%s %s)", cfg.Gateway.ID, info.Kind, info.Device)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}
	cancel()
	wg.Wait()

	log.Printf("[app] ゲートウェイ %s を停止しました", cfg.Gateway.ID)
	return runErr
}

// openCamera は設定に一致するカメラを検出して接続する
func (a *App) openCamera(ctx context.Context) (camera.DeviceInfo, camera.CameraDriver, error) {
	cfg := a.config

	infos, err := a.registry.FindCameras(ctx, camera.DriverKind(cfg.Camera.Driver))
	if err != nil {
		return camera.DeviceInfo{}, nil, err
	}
	info, ok := camera.Match(infos, cfg.Selector())
	if !ok {
		return camera.DeviceInfo{}, nil, errors.New("一致するカメラが見つかりません")
	}

	driver, err := a.registry.Open(ctx, info)
	if err != nil {
		return camera.DeviceInfo{}, nil, err
	}

	if d, ok := driver.(interface{ SetGrabTimeout(time.Duration) }); ok && cfg.Camera.GrabTimeout > 0 {
		d.SetGrabTimeout(cfg.Camera.GrabTimeout.Std())
	}
	if tuner, ok := driver.(camera.StreamTuner); ok {
		tune(tuner, cfg.Camera)
	} else if cfg.Camera.PacketDelay > 0 || cfg.Camera.PacketSize > 0 || cfg.Camera.ReverseX || cfg.Camera.ReverseY {
		log.Printf("[app] %s ドライバは伝送・向きの調整に対応していません", info.Kind)
	}
	return info, driver, nil
}

// tune は伝送・向きの調整を適用する。失敗はログに残して続行する
func tune(t camera.StreamTuner, cfg config.CameraConfig) {
	apply := func(name string, err error) {
		if err != nil {
			log.Printf("[app] %s の適用に失敗: %v", name, err)
		}
	}
	if cfg.PacketDelay > 0 {
		apply("PacketDelay", t.SetPacketDelay(cfg.PacketDelay))
	}
	if cfg.PacketSize > 0 {
		apply("PacketSize", t.SetPacketSize(cfg.PacketSize))
	}
	if cfg.ReverseX {
		apply("ReverseX", t.ReverseX(true))
	}
	if cfg.ReverseY {
		apply("ReverseY", t.ReverseY(true))
	}
}

// newServer はゲートウェイとは別のチャネルを使う管理用サーバーを作成する
func (a *App) newServer(ctx context.Context, info camera.DeviceInfo, g *gateway.Gateway, tracer *tracing.Tracer) (*server.Server, func(), error) {
	cfg := a.config

	rpcCh, err := a.dialer.Dial(ctx, cfg.Gateway.BrokerURI)
	if err != nil {
		return nil, nil, fmt.Errorf("ブローカーへの接続に失敗: %w", err)
	}
	watchCh, err := a.dialer.Dial(ctx, cfg.Gateway.BrokerURI)
	if err != nil {
		rpcCh.Close()
		return nil, nil, fmt.Errorf("ブローカーへの接続に失敗: %w", err)
	}
	closeAll := func() {
		rpcCh.Close()
		watchCh.Close()
	}

	frames, err := client.Watch(ctx, watchCh, cfg.Gateway.ID)
	if err != nil {
		closeAll()
		return nil, nil, err
	}

	deps := server.Deps{
		Device:  info,
		Gateway: g,
		Client: client.New(rpcCh, cfg.Gateway.ID,
			client.WithCodec(a.dialer.Codec),
			client.WithRequestOptions(tracer.RequestOption())),
		Frames: frames,
	}
	if cfg.Server.Broker {
		deps.Broker = transport.NewBroker(a.bus)
	}

	srv, err := server.New(cfg, deps)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return srv, closeAll, nil
}
