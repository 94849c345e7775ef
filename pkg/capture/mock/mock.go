// Package mock provides in-memory capture sources for tests.
package mock

import (
	"sync"
	"time"

	"github.com/nholtz/roomwarden/pkg/capture"
)

// Camera is a mock capture.Camera fed by the test via Push.
type Camera struct {
	once   sync.Once
	frames chan capture.Frame
}

// Compile-time interface assertion.
var _ capture.Camera = (*Camera)(nil)

// NewCamera returns a Camera with a buffered frame channel.
func NewCamera() *Camera {
	return &Camera{frames: make(chan capture.Frame, 16)}
}

// Push delivers a frame to the consumer.
func (c *Camera) Push(jpeg []byte) {
	c.frames <- capture.Frame{JPEG: jpeg, Time: time.Now()}
}

// Frames implements capture.Camera.
func (c *Camera) Frames() <-chan capture.Frame { return c.frames }

// Close closes the frame channel. Safe to call more than once.
func (c *Camera) Close() error {
	c.once.Do(func() { close(c.frames) })
	return nil
}

// Microphone is a mock capture.Microphone fed by the test via Push.
type Microphone struct {
	once   sync.Once
	frames chan []byte
}

// Compile-time interface assertion.
var _ capture.Microphone = (*Microphone)(nil)

// NewMicrophone returns a Microphone with a buffered frame channel.
func NewMicrophone() *Microphone {
	return &Microphone{frames: make(chan []byte, 64)}
}

// Push delivers a PCM chunk to the consumer.
func (m *Microphone) Push(pcm []byte) {
	m.frames <- pcm
}

// Frames implements capture.Microphone.
func (m *Microphone) Frames() <-chan []byte { return m.frames }

// Close closes the frame channel. Safe to call more than once.
func (m *Microphone) Close() error {
	m.once.Do(func() { close(m.frames) })
	return nil
}
