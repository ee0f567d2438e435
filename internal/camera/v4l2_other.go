//go:build !linux || !cgo

package camera

import "fmt"

// NewV4L2Runtime is only available on Linux.
func NewV4L2Runtime(opts V4L2Options, pose PoseSource) (Runtime, error) {
	return nil, fmt.Errorf("v4l2 cameras are only supported on linux")
}
