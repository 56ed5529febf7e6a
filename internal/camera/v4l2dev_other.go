//go:build !linux

package camera

import "fmt"

func openControlDevice(path string) (controlDevice, error) {
	return nil, fmt.Errorf("%s: V4L2はLinuxでのみ使えます", path)
}
