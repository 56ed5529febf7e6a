package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"camgateway/internal/camera"
	"camgateway/internal/client"
	"camgateway/internal/config"
	"camgateway/internal/gateway"
	"camgateway/internal/generated"
	"camgateway/internal/transport"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestServer はモックドライバのゲートウェイとサーバーを用意する
func newTestServer(t *testing.T) (*Server, *camera.MockDriver) {
	t.Helper()

	bus := transport.NewBus(16)
	driver := camera.NewMockDriver()
	driver.SetPacing(false)

	gwCh := bus.NewChannel()
	g := gateway.New("cam0", driver, gwCh, nil)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := g.Run(ctx, nil); err != nil {
			t.Errorf("ゲートウェイの実行に失敗しました: %v", err)
		}
	}()

	clientCh := bus.NewChannel()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
		gwCh.Close()
		clientCh.Close()
	})

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0

	srv, err := New(cfg, Deps{
		Device:  camera.DeviceInfo{Kind: camera.DriverMock, Device: "mock0", Name: "テストカメラ"},
		Gateway: g,
		Client:  client.New(clientCh, "cam0", client.WithTimeout(2*time.Second)),
		Broker:  transport.NewBroker(bus),
	})
	if err != nil {
		t.Fatalf("サーバーの作成に失敗しました: %v", err)
	}
	return srv, driver
}

func doRequest(srv *Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

// TestServerStartAndShutdown はサーバーの起動とシャットダウンをテストする
func TestServerStartAndShutdown(t *testing.T) {
	srv, _ := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	// サーバーが起動するまで少し待つ
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("サーバーの起動/停止でエラーが発生しました: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("サーバーの停止がタイムアウトしました")
	}
}

// TestServerEndpoints はJSONエンドポイントをテストする
func TestServerEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name         string
		method       string
		target       string
		body         string
		expectedCode int
		contains     string
	}{
		{"ヘルスチェック", http.MethodGet, "/health", "", http.StatusOK, `"healthy"`},
		{"状態", http.MethodGet, "/api/status", "", http.StatusOK, `"id":"cam0"`},
		{"設定取得", http.MethodGet, "/api/config", "", http.StatusOK, `"image"`},
		{"設定の一部取得", http.MethodGet, "/api/config?fields=SAMPLING_SETTINGS", "", http.StatusOK, `"sampling"`},
		{"不明なフィールド", http.MethodGet, "/api/config?fields=BOGUS", "", http.StatusBadRequest, `"invalid_request"`},
		{"許可されないメソッド", http.MethodPost, "/health", "", http.StatusMethodNotAllowed, `"method_not_allowed"`},
		{"範囲外の圧縮率", http.MethodPut, "/api/config", `{"image":{"format":{"format":"JPEG","compression":2}}}`, http.StatusBadRequest, `"invalid_request"`},
		{"未知のプロパティ", http.MethodPut, "/api/config", `{"unknown":1}`, http.StatusBadRequest, `"invalid_request"`},
		{"フレームなし", http.MethodGet, "/api/frame", "", http.StatusNotFound, `"NOT_FOUND"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(srv, tt.method, tt.target, tt.body)
			if w.Code != tt.expectedCode {
				t.Fatalf("期待されるステータス %d, 実際 %d: %s", tt.expectedCode, w.Code, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), tt.contains) {
				t.Errorf("レスポンスに %s が含まれていません: %s", tt.contains, w.Body.String())
			}
		})
	}
}

// TestServerSetConfig は設定の適用と取得をテストする
func TestServerSetConfig(t *testing.T) {
	srv, driver := newTestServer(t)

	w := doRequest(srv, http.MethodPut, "/api/config", `{"sampling":{"period":0.05},"camera":{"gain":{"ratio":0.5}}}`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("期待されるステータス %d, 実際 %d: %s", http.StatusNoContent, w.Code, w.Body.String())
	}
	if driver.Calls("SetGain") != 1 {
		t.Errorf("SetGain の呼び出し回数が不正: %d", driver.Calls("SetGain"))
	}

	w = doRequest(srv, http.MethodGet, "/api/config?fields=SAMPLING_SETTINGS&fields=CAMERA_SETTINGS", "")
	if w.Code != http.StatusOK {
		t.Fatalf("期待されるステータス %d, 実際 %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	var cfg generated.CameraConfig
	if err := json.Unmarshal(w.Body.Bytes(), &cfg); err != nil {
		t.Fatalf("レスポンスの解析に失敗しました: %v", err)
	}
	if cfg.Image != nil {
		t.Errorf("選択していない画像設定が含まれています: %+v", cfg.Image)
	}
	if cfg.Sampling == nil || cfg.Sampling.Period == nil || *cfg.Sampling.Period != 0.05 {
		t.Errorf("サンプリング設定が不正: %+v", cfg.Sampling)
	}
	if cfg.Camera == nil || cfg.Camera.Gain == nil || cfg.Camera.Gain.Ratio != 0.5 {
		t.Errorf("ゲイン設定が不正: %+v", cfg.Camera)
	}
}

// TestServerSetConfigStatus はRPCのステータスがHTTPステータスになることをテストする
func TestServerSetConfigStatus(t *testing.T) {
	srv, driver := newTestServer(t)
	driver.SetUnsupported(camera.ControlIris)
	driver.SetReadOnly(camera.ControlZoom)

	tests := []struct {
		name         string
		body         string
		expectedCode int
	}{
		{"未対応の制御", `{"camera":{"iris":{"ratio":0.5}}}`, http.StatusNotImplemented},
		{"読み取り専用の制御", `{"camera":{"zoom":{"ratio":0.5}}}`, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(srv, http.MethodPut, "/api/config", tt.body)
			if w.Code != tt.expectedCode {
				t.Errorf("期待されるステータス %d, 実際 %d: %s", tt.expectedCode, w.Code, w.Body.String())
			}
		})
	}
}

// TestServerFrame は最新フレームの配信をテストする
func TestServerFrame(t *testing.T) {
	srv, _ := newTestServer(t)

	jpeg := append([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, bytes.Repeat([]byte{0}, 32)...)
	captured := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	srv.Hub().Publish(client.Frame{ID: "f1", ContentType: "image/jpeg", Data: jpeg, Timestamp: captured})

	w := doRequest(srv, http.MethodGet, "/api/frame", "")
	if w.Code != http.StatusOK {
		t.Fatalf("期待されるステータス %d, 実際 %d", http.StatusOK, w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type が不正: %s", ct)
	}
	if ts := w.Header().Get("X-Capture-Timestamp"); ts != captured.Format(time.RFC3339Nano) {
		t.Errorf("X-Capture-Timestamp が不正: %s", ts)
	}
	if !bytes.Equal(w.Body.Bytes(), jpeg) {
		t.Error("フレームのデータが一致しません")
	}
}

// TestServerEvents はSSEでキャプチャ時刻が届くことをテストする
func TestServerEvents(t *testing.T) {
	srv, _ := newTestServer(t)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	if err != nil {
		t.Fatalf("リクエストの作成に失敗しました: %v", err)
	}

	respCh := make(chan *http.Response, 1)
	go func() {
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Errorf("リクエストに失敗しました: %v", err)
			close(respCh)
			return
		}
		respCh <- resp
	}()

	// 購読が登録されるまでフレームを送り続ける
	var resp *http.Response
	for resp == nil {
		srv.Hub().Publish(client.Frame{ID: "f1", ContentType: "image/jpeg", Data: []byte{1}, Timestamp: time.Now()})
		select {
		case r, ok := <-respCh:
			if !ok {
				return
			}
			resp = r
		case <-time.After(20 * time.Millisecond):
		}
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Content-Type が不正: %s", ct)
	}

	go func() {
		for ctx.Err() == nil {
			srv.Hub().Publish(client.Frame{ID: "f2", ContentType: "image/jpeg", Data: []byte{1}, Timestamp: time.Now()})
			time.Sleep(20 * time.Millisecond)
		}
	}()

	buf := make([]byte, 512)
	n, err := resp.Body.Read(buf)
	if err != nil {
		t.Fatalf("イベントの読み込みに失敗しました: %v", err)
	}
	if !strings.Contains(string(buf[:n]), "event:capture") {
		t.Errorf("captureイベントが含まれていません: %q", string(buf[:n]))
	}
}
