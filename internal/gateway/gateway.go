package gateway

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"camgateway/internal/camera"
	"camgateway/internal/msgs"
	"camgateway/internal/tracing"
	"camgateway/internal/transport"
)

// メタデータのキー
const (
	MetaResolution = "resolution"
	MetaFrameID    = "frame_id"
)

// Topics はカメラ1台分のトピック
type Topics struct {
	Frame     string
	Timestamp string
	SetConfig string
	GetConfig string
}

// TopicsFor はIDに対応するトピックを返す
func TopicsFor(id string) Topics {
	prefix := "CameraGateway." + id + "."
	return Topics{
		Frame:     prefix + "Frame",
		Timestamp: prefix + "Timestamp",
		SetConfig: prefix + "SetConfig",
		GetConfig: prefix + "GetConfig",
	}
}

// Stats はループの統計情報
type Stats struct {
	Frames        uint64
	EmptyGrabs    uint64
	Requests      uint64
	PublishErrors uint64
	Capturing     bool
	LastCapture   time.Time
}

// Gateway はカメラのキャプチャと発行を行い、設定RPCを提供する
//
// ドライバは Run を実行するゴルーチンだけが操作する。
// 統計情報は他のゴルーチンから読み出せる。
type Gateway struct {
	id         string
	driver     camera.CameraDriver
	ch         transport.Channel
	tracer     *tracing.Tracer
	topics     Topics
	reconciler *Reconciler
	provider   *transport.ServiceProvider

	frames        atomic.Uint64
	emptyGrabs    atomic.Uint64
	requests      atomic.Uint64
	publishErrors atomic.Uint64
	capturing     atomic.Bool
	lastCapture   atomic.Int64

	// キャプチャが止まったときの再開間隔
	restartInterval time.Duration
	lastRestart     time.Time
}

const (
	// RestartInterval はキャプチャ再開を試みる最短の間隔
	RestartInterval = time.Second

	// idleWait はキャプチャ停止中にRPCを待つ時間
	idleWait = 100 * time.Millisecond
)

// New は Gateway を作成する。tracer が nil なら何も記録しない
func New(id string, driver camera.CameraDriver, ch transport.Channel, tracer *tracing.Tracer) *Gateway {
	if tracer == nil {
		tracer = tracing.Noop()
	}
	g := &Gateway{
		id:         id,
		driver:     driver,
		ch:         ch,
		tracer:     tracer,
		topics:     TopicsFor(id),
		reconciler: NewReconciler(driver),

		restartInterval: RestartInterval,
	}
	g.provider = transport.NewServiceProvider(ch, transport.LogInterceptor, tracer.Interceptor())
	return g
}

// ID はカメラのIDを返す
func (g *Gateway) ID() string {
	return g.id
}

// Topics はトピックを返す
func (g *Gateway) Topics() Topics {
	return g.topics
}

// Stats は統計情報を返す
func (g *Gateway) Stats() Stats {
	s := Stats{
		Frames:        g.frames.Load(),
		EmptyGrabs:    g.emptyGrabs.Load(),
		Requests:      g.requests.Load(),
		PublishErrors: g.publishErrors.Load(),
		Capturing:     g.capturing.Load(),
	}
	if ns := g.lastCapture.Load(); ns != 0 {
		s.LastCapture = time.Unix(0, ns)
	}
	return s
}

// registerEndpoints は設定RPCを登録する
func (g *Gateway) registerEndpoints() error {
	err := transport.Delegate(g.provider, g.topics.SetConfig,
		func(ctx context.Context, req *msgs.CameraConfig, _ *msgs.Empty) error {
			cfg, err := req.Domain()
			if err != nil {
				return err
			}
			return g.reconciler.Apply(cfg)
		})
	if err != nil {
		return err
	}

	return transport.Delegate(g.provider, g.topics.GetConfig,
		func(ctx context.Context, req *msgs.FieldSelector, rep *msgs.CameraConfig) error {
			sel, err := req.Domain()
			if err != nil {
				return err
			}
			cfg, err := g.reconciler.Read(sel)
			if err != nil {
				return err
			}
			*rep = *msgs.NewCameraConfig(cfg)
			return nil
		})
}

// Run は初期設定を適用してキャプチャを開始し、ctx が終了するまでループする
//
// 初期設定の失敗はログに残して続行する。キャプチャを開始できなければエラーを返す。
func (g *Gateway) Run(ctx context.Context, initial *camera.Config) error {
	if err := g.registerEndpoints(); err != nil {
		return fmt.Errorf("エンドポイントの登録に失敗しました: %w", err)
	}

	if initial != nil {
		if err := g.reconciler.Apply(*initial); err != nil {
			log.Printf("[gateway] 初期設定の適用に失敗しました: %v", err)
		}
	}

	if err := g.driver.StartCapture(); err != nil {
		return fmt.Errorf("キャプチャを開始できません: %w", err)
	}
	g.capturing.Store(true)
	log.Printf("[gateway] %s のキャプチャを開始しました", g.id)

	defer func() {
		if err := g.driver.StopCapture(); err != nil {
			log.Printf("[gateway] キャプチャの停止に失敗しました: %v", err)
		}
		g.capturing.Store(false)
		log.Printf("[gateway] %s のキャプチャを停止しました", g.id)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		g.Step(ctx)
	}
}

// Step はループを1回分実行する。フレームを発行し、届いているRPCを1件だけ処理する
//
// キャプチャが止まっている間はフレームを取得せず、一定間隔で再開を試みながら
// RPCを待つ。
func (g *Gateway) Step(ctx context.Context) {
	if !g.driver.IsCapturing() {
		g.restartCapture()
	}
	if g.driver.IsCapturing() {
		g.publishFrame(ctx)
		g.serveOne(ctx)
	} else {
		g.waitOne(ctx)
	}
	g.capturing.Store(g.driver.IsCapturing())
}

// restartCapture は前回の試行から restartInterval 経過していればキャプチャを再開する
func (g *Gateway) restartCapture() {
	if !g.lastRestart.IsZero() && time.Since(g.lastRestart) < g.restartInterval {
		return
	}
	g.lastRestart = time.Now()
	if err := g.driver.StartCapture(); err != nil {
		log.Printf("[gateway] キャプチャの再開に失敗しました: %v", err)
		return
	}
	log.Printf("[gateway] %s のキャプチャを再開しました", g.id)
}

func (g *Gateway) publishFrame(ctx context.Context) {
	img := g.driver.GrabImage()
	if img.Empty() {
		g.emptyGrabs.Add(1)
		return
	}
	captured := g.driver.LastTimestamp()

	// フレームとタイムスタンプは必ず組で発行する
	body, err := msgs.MarshalTimestamp(captured)
	if err != nil {
		g.publishErrors.Add(1)
		log.Printf("[gateway] タイムスタンプを符号化できません: %v", err)
		return
	}

	spanCtx, span := g.tracer.StartFrameSpan(ctx, captured)
	frame := transport.NewMessage(g.topics.Frame, camera.ContentType(img.Format), img.Data)
	frame.Metadata = map[string]string{MetaResolution: img.Resolution.String()}
	g.tracer.Inject(spanCtx, frame)
	g.publish(frame)
	span.End()

	ts := transport.NewMessage(g.topics.Timestamp, msgs.TimestampContentType, body)
	ts.Metadata = map[string]string{MetaFrameID: frame.ID}
	g.publish(ts)

	g.frames.Add(1)
	g.lastCapture.Store(captured.UnixNano())
}

func (g *Gateway) publish(msg *transport.Message) {
	if err := g.ch.Publish(msg); err != nil {
		g.publishErrors.Add(1)
		log.Printf("[gateway] %s の発行に失敗しました: %v", msg.Topic, err)
	}
}

func (g *Gateway) serveOne(ctx context.Context) {
	msg, ok := g.ch.TryConsume()
	if !ok {
		return
	}
	g.serve(ctx, msg)
}

// waitOne は idleWait の間RPCを待ち、届けば1件処理する
func (g *Gateway) waitOne(ctx context.Context) {
	waitCtx, cancel := context.WithTimeout(ctx, idleWait)
	defer cancel()
	msg, err := g.ch.Consume(waitCtx)
	if err != nil {
		// チャネルが閉じている場合も待ってから戻る
		<-waitCtx.Done()
		return
	}
	g.serve(ctx, msg)
}

func (g *Gateway) serve(ctx context.Context, msg *transport.Message) {
	g.requests.Add(1)
	if !g.provider.Serve(ctx, msg) {
		log.Printf("[gateway] 未登録のトピックを無視しました: %s", msg.Topic)
	}
}
