// Package gateway はカメラ1台をトピックとRPCで公開する
//
// # 責務
//
// - Reconciler: 設定の適用 (SetConfig) と読み出し (GetConfig)
// - Gateway: キャプチャと発行のループ、設定RPCの受付
//
// # ループ
//
// 1回の反復で次を順に行う。
//
//  1. フレームを取得する。空のフレームなら何も発行しない
//  2. フレームのスパンを開始し、トレース情報を載せてフレームを発行し、スパンを閉じる
//  3. 同じキャプチャ時刻をタイムスタンプのトピックに発行する
//  4. 受信キューを待たずに確認し、RPCが届いていれば1件だけ処理する
//
// ドライバを操作するのはループのゴルーチンだけで、RPCもこのゴルーチンで処理する。
// 管理用HTTPサーバーからの設定変更もRPCトピック経由で行う。
//
// # トピック
//
//	CameraGateway.<id>.Frame      エンコード済みフレーム
//	CameraGateway.<id>.Timestamp  google.protobuf.Timestamp
//	CameraGateway.<id>.SetConfig  CameraConfig → Empty
//	CameraGateway.<id>.GetConfig  FieldSelector → CameraConfig
package gateway
