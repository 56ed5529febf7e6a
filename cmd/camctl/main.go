// Package main はゲートウェイを操作するコマンドラインクライアントです
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"camgateway/internal/camera"
	"camgateway/internal/client"
	"camgateway/internal/msgs"
	"camgateway/internal/transport"

	"github.com/goccy/go-json"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

func usage() {
	fmt.Println("camctl")
	fmt.Println()
	fmt.Println("使用方法:")
	fmt.Println("  camctl [オプション] get [ALL|IMAGE_SETTINGS|SAMPLING_SETTINGS|CAMERA_SETTINGS ...]")
	fmt.Println("  camctl [オプション] set <設定ファイル>")
	fmt.Println("  camctl [オプション] watch [-n 枚数] [-out ディレクトリ]")
	fmt.Println()
	fmt.Println("オプション:")
	flag.PrintDefaults()
}

func main() {
	var (
		broker  = flag.String("broker", "ws://127.0.0.1:8080/ws", "ブローカーURI")
		id      = flag.String("id", "camera", "カメラID")
		codec   = flag.String("codec", "json", "コーデック (json, msgpack)")
		timeout = flag.Duration("timeout", client.DefaultTimeout, "RPCのタイムアウト")
		output  = flag.String("o", "yaml", "出力形式 (yaml, json)")
	)
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	c, err := transport.CodecByName(*codec)
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	dialer := &transport.Dialer{Codec: c}
	ch, err := dialer.Dial(ctx, *broker)
	if err != nil {
		log.Fatalf("ブローカーへの接続に失敗しました: %v", err)
	}
	defer ch.Close()

	args := flag.Args()
	switch args[0] {
	case "get":
		cl := client.New(ch, *id, client.WithCodec(c), client.WithTimeout(*timeout))
		err = runGet(ctx, cl, args[1:], *output)
	case "set":
		cl := client.New(ch, *id, client.WithCodec(c), client.WithTimeout(*timeout))
		err = runSet(ctx, cl, args[1:])
	case "watch":
		err = runWatch(ctx, ch, *id, args[1:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s に失敗しました: %v", args[0], err)
	}
}

func runGet(ctx context.Context, cl *client.Client, fields []string, output string) error {
	sel := msgs.FieldSelector{Fields: fields}
	if len(sel.Fields) == 0 {
		sel.Fields = []string{camera.FieldAll.String()}
	}

	cfg, err := cl.GetConfigMessage(ctx, sel)
	if err != nil {
		return err
	}

	var out []byte
	switch output {
	case "json":
		out, err = json.MarshalIndent(cfg, "", "  ")
		out = append(out, '\n')
	default:
		out, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(out)
	return err
}

func runSet(ctx context.Context, cl *client.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("設定ファイルを1つ指定してください")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
	}

	var cfg msgs.CameraConfig
	switch strings.ToLower(filepath.Ext(args[0])) {
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	case ".json":
		err = json.Unmarshal(data, &cfg)
	default:
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return fmt.Errorf("設定ファイルの解析に失敗: %w", err)
	}
	return cl.SetConfigMessage(ctx, &cfg)
}

func runWatch(ctx context.Context, ch transport.Channel, id string, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	count := fs.Int("n", 0, "受信する枚数 (0なら無制限)")
	dir := fs.String("out", "", "フレームを保存するディレクトリ")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames, err := client.Watch(ctx, ch, id)
	if err != nil {
		return err
	}

	received := 0
	for f := range frames {
		fmt.Printf("%s %s %s %d bytes %s\n", f.Timestamp.Format(time.RFC3339Nano), f.ID, f.Resolution, len(f.Data), f.ContentType)
		if *dir != "" {
			ext := ".jpg"
			if kind, ok := camera.FormatFromContentType(f.ContentType); ok {
				ext = "." + strings.ToLower(kind.String())
			}
			name := filepath.Join(*dir, f.Timestamp.UTC().Format("20060102T150405.000000000")+ext)
			if err := os.WriteFile(name, f.Data, 0o644); err != nil {
				return fmt.Errorf("フレームの保存に失敗: %w", err)
			}
		}
		received++
		if *count > 0 && received >= *count {
			return nil
		}
	}
	return nil
}
