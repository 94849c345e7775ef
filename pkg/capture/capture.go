// Package capture defines the device-source interfaces that feed the guard:
// a camera producing JPEG frames for face recognition and a microphone
// producing PCM frames for transcription.
//
// Concrete device backends (V4L2, ALSA, an RTSP camera, ...) live outside
// this repository; the application accepts any implementation of these
// interfaces. A source that fails at startup degrades the corresponding
// worker to inactive — the rest of the guard keeps running.
package capture

import "time"

// Frame is one captured camera frame.
type Frame struct {
	// JPEG is the encoded frame image.
	JPEG []byte

	// Time is when the frame was captured.
	Time time.Time
}

// Camera produces frames for the vision worker.
//
// Implementations own their capture cadence (frame skipping, scaling); the
// vision worker simply consumes whatever arrives.
type Camera interface {
	// Frames returns the stream of captured frames. The channel is closed
	// when the device stops or fails; consumers treat closure as device
	// loss, not as an error to retry.
	Frames() <-chan Frame

	// Close stops capture and releases the device. Safe to call more than
	// once.
	Close() error
}

// Microphone produces raw 16-bit little-endian signed PCM audio frames for
// the transcription worker.
type Microphone interface {
	// Frames returns the stream of PCM chunks. Closed on device stop/loss.
	Frames() <-chan []byte

	// Close stops capture and releases the device. Safe to call more than
	// once.
	Close() error
}
