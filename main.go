package main

import (
	"context"
	"log"
	"os"

	"camgateway/internal/app"
	"camgateway/internal/config"
)

func main() {
	// 第1引数があれば設定ファイルとして読み込む
	var path string
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("ゲートウェイの作成に失敗しました: %v", err)
	}

	if err := a.Start(context.Background()); err != nil {
		log.Fatalf("ゲートウェイの実行に失敗しました: %v", err)
	}
}
