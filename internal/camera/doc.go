// Package camera カメラ1台の制御ポートと具体的なドライバを提供する
//
// # 責務
// - カメラ設定のドメインモデル (画像・サンプリング・カメラ制御の3グループ)
// - CameraDriver ポートの定義と、V4L2・X11・モックの各ドライバ実装
// - キャプチャ中に変更できない設定の一時停止と再開 (WhileIdle)
// - カメラデバイスの検出と、起動時のドライバ選択
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - カメラの設定値をデバイスに依存しない形で扱いたい
// - デバイスからフレームを1枚ずつ取得したい
// - テストでハードウェアなしにドライバの振る舞いを再現したい (MockDriver)
//
// # 仕様
// - 各操作はステータス付きエラーを返す (internal/status)
// - 未対応のプロパティは UNIMPLEMENTED、書き込めないプロパティは PERMISSION_DENIED
// - 制御値は 0.0〜1.0 に正規化し、デバイス固有の値域とは OpRange で変換する
// - ドライバはキャプチャループのゴルーチンから単独で使われる前提とする
// - フレーム取得は既定で3秒のタイムアウトを持ち、超えた場合は空のフレームを返す
//
// # 前提要件
//   - v4l-utils: カメラ名の取得とデバイス制御に使用
//     Ubuntu/Debian: sudo apt install v4l-utils
//     Red Hat/Fedora: sudo dnf install v4l-utils
//   - ffmpeg: 画像キャプチャとストリーミングに使用
//     Ubuntu/Debian: sudo apt install ffmpeg
//     Red Hat/Fedora: sudo dnf install ffmpeg
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera
