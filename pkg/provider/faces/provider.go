// Package faces defines the Provider interface for face-recognition
// backends.
//
// A face provider maps a camera frame to the set of faces it contains, each
// tagged with the best-matching enrolled name (or Unknown) and the embedding
// distance of that match. The policy core never consumes raw detections —
// it only acts on names that survive the vision smoother's majority vote —
// so providers are free to be noisy frame to frame.
//
// Implementations must be safe for concurrent use.
package faces

import "context"

// Unknown is the name reported for a face that matches no enrolled identity
// within the recognition threshold.
const Unknown = "Unknown"

// Location is a face bounding box in frame pixel coordinates.
type Location struct {
	Top    int
	Right  int
	Bottom int
	Left   int
}

// Match is one detected face with its best enrolled-identity match.
type Match struct {
	// Location is where the face sits in the frame.
	Location Location

	// Name is the best-matching enrolled name, or [Unknown] when no
	// enrolled embedding is within the recognition threshold.
	Name string

	// Distance is the embedding distance to the best match. Smaller is more
	// similar; values above the recognition threshold report Unknown.
	Distance float64
}

// Provider is the abstraction over any face-recognition backend.
type Provider interface {
	// Detect finds all faces in a JPEG-encoded frame and matches each
	// against the enrolled identities. An empty slice means no face was
	// found; that is not an error.
	Detect(ctx context.Context, frameJPEG []byte) ([]Match, error)

	// Embed computes the face embedding vector for the largest face in a
	// JPEG-encoded frame. Used during enrollment. Returns an error when the
	// frame contains no detectable face.
	Embed(ctx context.Context, frameJPEG []byte) ([]float32, error)
}
