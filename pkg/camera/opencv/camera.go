// Package opencv reads booth frames from a local webcam through OpenCV.
package opencv

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
	"k8s.io/klog/v2"
)

// Camera is a webcam. It is not safe for concurrent use; the capture sequencer reads it from one goroutine.
type Camera struct {
	device int
	vc     *gocv.VideoCapture
	mat    gocv.Mat
	frames int
}

// Open opens webcam device, asking for frames of size when it is non-zero.
func Open(device int, size image.Point) (*Camera, error) {
	vc, err := gocv.VideoCaptureDevice(device)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("open camera %d: device not available", device)
	}
	if size.X > 0 && size.Y > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(size.X))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(size.Y))
	}
	klog.Infof("camera %d opened at %.0fx%.0f", device, vc.Get(gocv.VideoCaptureFrameWidth), vc.Get(gocv.VideoCaptureFrameHeight))
	return &Camera{device: device, vc: vc, mat: gocv.NewMat()}, nil
}

// ReadFrame grabs the next frame. A failed grab or conversion returns false.
func (c *Camera) ReadFrame() (image.Image, bool) {
	if ok := c.vc.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, false
	}
	img, err := c.mat.ToImage()
	if err != nil {
		klog.V(1).Infof("camera %d: convert frame: %v", c.device, err)
		return nil, false
	}
	c.frames++
	return img, true
}

// Close releases the device.
func (c *Camera) Close() error {
	klog.Infof("camera %d closed after %d frames", c.device, c.frames)
	return errors.Join(c.mat.Close(), c.vc.Close())
}
