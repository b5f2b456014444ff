// Package models defines core data structures for frames, detections, and memories.
package models

import "time"

// Frame is a single camera frame handed to the detection pipeline.
// Data is treated as read-only by every consumer; both detectors share
// the same buffer without copying.
type Frame struct {
	// Seq is the monotonic sequence number assigned by the supplier.
	Seq uint64 `json:"seq"`
	// Timestamp is when the frame was captured/decoded.
	Timestamp time.Time `json:"timestamp"`
	// Width in pixels.
	Width int `json:"width"`
	// Height in pixels.
	Height int `json:"height"`
	// Data contains the raw frame bytes (BGR24 by default).
	Data []byte `json:"-"`
}

// BoundingBox is a rectangle in pixel coordinates.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Area returns the pixel area of the box.
func (b BoundingBox) Area() int {
	return b.Width * b.Height
}

// Clamp constrains the box to the given frame dimensions.
func (b BoundingBox) Clamp(frameWidth, frameHeight int) BoundingBox {
	if b.X < 0 {
		b.X = 0
	}
	if b.Y < 0 {
		b.Y = 0
	}
	if b.X+b.Width > frameWidth {
		b.Width = frameWidth - b.X
	}
	if b.Y+b.Height > frameHeight {
		b.Height = frameHeight - b.Y
	}
	return b
}

// SpatialCoordinates is an optional 3D position attached to a stored memory.
type SpatialCoordinates struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}
