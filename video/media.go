package video

import (
	"fmt"
)

// Metadata is the flat probe result for a media file: enough to validate an
// input against limits and to describe an encoded clip.
type Metadata struct {
	Duration  float64 `json:"duration"`
	Width     int64   `json:"width"`
	Height    int64   `json:"height"`
	FPS       float64 `json:"fps"`
	Format    string  `json:"format"`
	Codec     string  `json:"codec"`
	BitRate   int64   `json:"bitrate"`
	SizeBytes int64   `json:"fileSize"`
}

type Orientation string

const (
	OrientationPortrait  Orientation = "portrait"
	OrientationLandscape Orientation = "landscape"
)

// Dimensions returns the output frame size for the orientation.
func (o Orientation) Dimensions() (width, height int64) {
	if o == OrientationLandscape {
		return 1920, 1080
	}
	return 1080, 1920
}

func ParseOrientation(s string) (Orientation, error) {
	switch Orientation(s) {
	case OrientationPortrait, OrientationLandscape:
		return Orientation(s), nil
	case "":
		return OrientationPortrait, nil
	}
	return "", fmt.Errorf("invalid orientation %q", s)
}

// VolumeProfile is the amplitude statistics of a whole asset.
type VolumeProfile struct {
	MeanDB float64
	MaxDB  float64
}

// SilenceRange is one detected silence window, in seconds from asset start.
type SilenceRange struct {
	Start    float64
	End      float64
	Duration float64
}
