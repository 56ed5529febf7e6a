// Package main はカメラゲートウェイコマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"camgateway/internal/app"
	"camgateway/internal/config"
)

func main() {
	// コマンドラインオプション
	var (
		configPath = flag.String("config", "", "設定ファイル (.yaml/.json/.toml)")
		id         = flag.String("id", "", "カメラID")
		driver     = flag.String("driver", "", "ドライバ (v4l2, x11, mock)")
		device     = flag.String("device", "", "デバイスパスまたはディスプレイ")
		broker     = flag.String("broker", "", "ブローカーURI (inproc://, ws://host/ws)")
		host       = flag.String("host", "", "管理サーバーのホスト (デフォルト: 0.0.0.0)")
		port       = flag.Int("port", 0, "管理サーバーのポート (デフォルト: 8080)")
		noServer   = flag.Bool("no-server", false, "管理サーバーを起動しない")
		help       = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("Camera Gateway")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  gateway [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// 設定を読み込む
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// コマンドラインオプションで設定を上書き
	if *id != "" {
		cfg.Gateway.ID = *id
	}
	if *driver != "" {
		cfg.Camera.Driver = *driver
	}
	if *device != "" {
		cfg.Camera.Device = *device
	}
	if *broker != "" {
		cfg.Gateway.BrokerURI = *broker
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *noServer {
		cfg.Server.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("設定が不正です: %v", err)
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("ゲートウェイの作成に失敗しました: %v", err)
	}

	// ゲートウェイを起動
	if err := a.Start(context.Background()); err != nil {
		log.Fatalf("ゲートウェイの実行に失敗しました: %v", err)
	}
}
