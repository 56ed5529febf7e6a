// Package server は、ゲートウェイの管理用HTTPサーバーを提供します。
//
// 設定の取得と適用はゲートウェイと同じRPCトピックを経由して行い、
// カメラドライバには直接触れません。ドライバを操作するのはゲートウェイの
// ループだけです。
//
// 責務:
//   - OpenAPI定義 (internal/generated) に沿ったルーティングとリクエスト検証
//   - 最新フレーム、MJPEGストリーム、キャプチャ時刻のSSE配信
//   - /ws でのWebSocketブローカーの公開
//   - グレースフルシャットダウン
package server
