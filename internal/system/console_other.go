//go:build !linux

package system

import "errors"

const (
	kdText     = 0x00
	kdGraphics = 0x01
)

func (c *Console) setMode(int) error {
	return errors.New("console graphics mode is only supported on linux")
}
