package pipeline

import "errors"

var (
	// ErrProjectNotFound is returned when no snapshot exists for the id.
	ErrProjectNotFound = errors.New("project not found")

	// ErrInvalidIndex is returned for confirmation or regeneration requests
	// naming a segment index the gate does not track.
	ErrInvalidIndex = errors.New("unknown segment index")

	// ErrImagesUnconfirmed rejects video generation or animation before every
	// image has been confirmed.
	ErrImagesUnconfirmed = errors.New("not all images confirmed")

	// ErrVideosUnconfirmed rejects composition before every generated video
	// has been confirmed.
	ErrVideosUnconfirmed = errors.New("not all videos confirmed")

	// ErrInvalidTransition is returned when an operation does not apply to
	// the project's current status.
	ErrInvalidTransition = errors.New("invalid status transition")
)
