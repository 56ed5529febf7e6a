package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"camgateway/internal/camera"
	"camgateway/internal/msgs"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Gateway GatewayConfig `yaml:"gateway" toml:"gateway"`
	Camera  CameraConfig  `yaml:"camera" toml:"camera"`
	Tracing TracingConfig `yaml:"tracing" toml:"tracing"`
	Server  ServerConfig  `yaml:"server" toml:"server"`

	// 起動時に一度だけ適用するカメラ設定
	InitialConfig *msgs.CameraConfig `yaml:"initial_config" toml:"initial_config"`
}

// GatewayConfig はゲートウェイとトランスポートの設定
type GatewayConfig struct {
	ID        string `yaml:"id" toml:"id" validate:"required,excludesall=.+#"` // トピックに使うカメラID
	BrokerURI string `yaml:"broker_uri" toml:"broker_uri" validate:"required"` // inproc:// または ws://
	Codec     string `yaml:"codec" toml:"codec" validate:"oneof=json msgpack"`
	QueueLen  int    `yaml:"queue_len" toml:"queue_len" validate:"gte=1"` // チャネルの受信キュー長
}

// CameraConfig はカメラの選択とドライバの設定
type CameraConfig struct {
	Driver string `yaml:"driver" toml:"driver" validate:"omitempty,oneof=v4l2 x11 mock"` // 空なら全ドライバから検索

	// 使用するカメラの識別情報。全て空なら最初に見つかったカメラを使う
	Device string `yaml:"device" toml:"device"`
	Serial string `yaml:"serial" toml:"serial"`
	Name   string `yaml:"name" toml:"name"`

	GrabTimeout Duration `yaml:"grab_timeout" toml:"grab_timeout" validate:"gte=0"`

	// 伝送・向きの調整
	PacketDelay int  `yaml:"packet_delay" toml:"packet_delay" validate:"gte=0"`
	PacketSize  int  `yaml:"packet_size" toml:"packet_size" validate:"gte=0"`
	ReverseX    bool `yaml:"reverse_x" toml:"reverse_x"`
	ReverseY    bool `yaml:"reverse_y" toml:"reverse_y"`
}

// TracingConfig はトレースの送信先
type TracingConfig struct {
	ZipkinHost string `yaml:"zipkin_host" toml:"zipkin_host"` // 空ならトレースを無効化
	ZipkinPort int    `yaml:"zipkin_port" toml:"zipkin_port" validate:"min=1,max=65535"`
}

// ServerConfig は管理用HTTPサーバーの設定
type ServerConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Host    string `yaml:"host" toml:"host"`                            // リッスンするホスト
	Port    int    `yaml:"port" toml:"port" validate:"min=1,max=65535"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  Duration `yaml:"read_timeout" toml:"read_timeout" validate:"gte=0"`   // 読み込みタイムアウト
	WriteTimeout Duration `yaml:"write_timeout" toml:"write_timeout" validate:"gte=0"` // 書き込みタイムアウト

	// /ws でWebSocketブローカーを公開する
	Broker bool `yaml:"broker" toml:"broker"`
}

// Duration は "3s" のような文字列で書ける時間
type Duration time.Duration

// UnmarshalText は time.ParseDuration の書式を解釈する
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("無効な時間: %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText は time.Duration の書式で文字列化する
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std は time.Duration を返す
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			ID:        "camera",
			BrokerURI: "inproc://",
			Codec:     "json",
			QueueLen:  64,
		},
		Camera: CameraConfig{
			GrabTimeout: Duration(camera.DefaultGrabTimeout),
		},
		Tracing: TracingConfig{
			ZipkinPort: 9411,
		},
		Server: ServerConfig{
			Enabled:      true,
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  Duration(10 * time.Second),
			WriteTimeout: 0, // ストリーミング用にタイムアウト無効化
			Broker:       true,
		},
	}
}

// Load は設定を読み込む
//
// デフォルト値に設定ファイル (path が空でなければ) と環境変数を順に重ねて検証する。
// ファイル形式は拡張子で判定し、.yaml/.yml/.json は YAML、.toml は TOML として読む。
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("設定ファイルを読み込めません: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		err = yaml.Unmarshal(data, c)
	case ".toml":
		err = toml.Unmarshal(data, c)
	default:
		return fmt.Errorf("サポートされていない設定ファイル形式: %s", path)
	}
	if err != nil {
		return fmt.Errorf("設定ファイルを解析できません (%s): %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Gateway.ID = getEnvOrDefault("GATEWAY_ID", c.Gateway.ID)
	c.Gateway.BrokerURI = getEnvOrDefault("BROKER_URI", c.Gateway.BrokerURI)
	c.Camera.Driver = getEnvOrDefault("CAMERA_DRIVER", c.Camera.Driver)
	c.Camera.Device = getEnvOrDefault("CAMERA_DEVICE", c.Camera.Device)
	c.Tracing.ZipkinHost = getEnvOrDefault("ZIPKIN_HOST", c.Tracing.ZipkinHost)
	c.Tracing.ZipkinPort = getEnvAsIntOrDefault("ZIPKIN_PORT", c.Tracing.ZipkinPort)
	c.Server.Host = getEnvOrDefault("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsIntOrDefault("SERVER_PORT", c.Server.Port)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.InitialConfig != nil {
		if _, err := c.InitialCameraConfig(); err != nil {
			return fmt.Errorf("initial_config: %w", err)
		}
	}
	return nil
}

// InitialCameraConfig は起動時に適用するカメラ設定を返す。未設定なら nil
func (c *Config) InitialCameraConfig() (*camera.Config, error) {
	if c.InitialConfig == nil {
		return nil, nil
	}
	cfg, err := c.InitialConfig.Domain()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Selector は使用するカメラの識別情報を返す
func (c *Config) Selector() camera.Selector {
	return camera.Selector{
		Device: c.Camera.Device,
		Serial: c.Camera.Serial,
		Name:   c.Camera.Name,
	}
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ServiceName はトレースで使うサービス名を返す
func (c *Config) ServiceName() string {
	return "CameraGateway." + c.Gateway.ID
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}
