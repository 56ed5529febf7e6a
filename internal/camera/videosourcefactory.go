package camera

import (
	"context"
	"fmt"
	"log"
)

// DriverCreator はドライバ作成関数の型
type DriverCreator func() CameraDriver

// driverEntry はドライバ種別ごとの検出器と作成関数
type driverEntry struct {
	discovery Discovery
	create    DriverCreator
}

// Registry はドライバ種別を起動時に選択するためのファクトリー
type Registry struct {
	kinds   []DriverKind
	entries map[DriverKind]driverEntry
}

// NewRegistry は空のRegistryを作成する
func NewRegistry() *Registry {
	return &Registry{entries: make(map[DriverKind]driverEntry)}
}

// NewDefaultRegistry は標準のドライバを登録したRegistryを作成する
func NewDefaultRegistry() *Registry {
	r := NewRegistry()

	// USBカメラ
	r.Register(DriverV4L2, NewLinuxDiscovery(), func() CameraDriver { return NewV4L2Driver() })

	// X11画面キャプチャ
	r.Register(DriverX11, ScreenDiscovery{}, func() CameraDriver { return NewScreenDriver() })

	return r
}

// Register はドライバ種別を登録する。登録順が検出順になる
func (r *Registry) Register(kind DriverKind, discovery Discovery, create DriverCreator) {
	if _, exists := r.entries[kind]; !exists {
		r.kinds = append(r.kinds, kind)
	}
	r.entries[kind] = driverEntry{discovery: discovery, create: create}
}

// Kinds は登録済みのドライバ種別を返す
func (r *Registry) Kinds() []DriverKind {
	return append([]DriverKind(nil), r.kinds...)
}

// FindCameras は指定種別のカメラを検出する。kind が空なら全種別を対象とする
func (r *Registry) FindCameras(ctx context.Context, kind DriverKind) ([]DeviceInfo, error) {
	kinds := r.kinds
	if kind != "" {
		if _, ok := r.entries[kind]; !ok {
			return nil, fmt.Errorf("サポートされていないドライバ: %s", kind)
		}
		kinds = []DriverKind{kind}
	}

	var found []DeviceInfo
	for _, k := range kinds {
		infos, err := r.entries[k].discovery.FindCameras(ctx)
		if err != nil {
			log.Printf("[registry] %s のカメラ検出に失敗: %v", k, err)
			continue
		}
		for _, info := range infos {
			info.Kind = k
			found = append(found, info)
		}
	}
	return found, nil
}

// Open はデバイスに対応するドライバを作成して接続する
func (r *Registry) Open(ctx context.Context, info DeviceInfo) (CameraDriver, error) {
	entry, ok := r.entries[info.Kind]
	if !ok {
		return nil, fmt.Errorf("サポートされていないドライバ: %s", info.Kind)
	}

	driver := entry.create()
	if err := driver.Connect(ctx, info); err != nil {
		return nil, fmt.Errorf("カメラ %s への接続に失敗: %w", info.Device, err)
	}
	return driver, nil
}

// Selector は起動時に接続するカメラの識別情報
type Selector struct {
	Device string
	Serial string
	Name   string
}

// Empty は識別情報が指定されていないかを返す
func (s Selector) Empty() bool {
	return s.Device == "" && s.Serial == "" && s.Name == ""
}

// Match は識別情報に一致する最初のカメラを返す。未指定なら先頭を返す
func Match(infos []DeviceInfo, sel Selector) (DeviceInfo, bool) {
	for _, info := range infos {
		if sel.Device != "" && info.Device != sel.Device {
			continue
		}
		if sel.Serial != "" && info.Serial != sel.Serial {
			continue
		}
		if sel.Name != "" && info.Name != sel.Name {
			continue
		}
		return info, true
	}
	return DeviceInfo{}, false
}
