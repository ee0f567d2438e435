package config

import (
	"fmt"
	"strings"
)

// StereoAlgorithm selects the block matcher used by stereo reconstruction.
type StereoAlgorithm string

const (
	StereoAlgorithmBM   StereoAlgorithm = "bm"
	StereoAlgorithmSGBM StereoAlgorithm = "sgbm"
)

// StereoFiltering selects the disparity post-filter.
type StereoFiltering string

const (
	StereoFilteringNone   StereoFiltering = "none"
	StereoFilteringWLS    StereoFiltering = "wls"
	StereoFilteringWLSFBS StereoFiltering = "wls_fbs"
)

// Stereo parameter limits.
const (
	MinBlockSize       = 1
	MaxBlockSize       = 35
	MinMaxDisparity    = 16
	MaxMaxDisparity    = 256
	DisparityStep      = 16
	MinDownscaleFactor = 1
	MaxDownscaleFactor = 16
	MaxFrameSkip       = 14
)

// StereoConfig holds the parameters handed to the stereo reconstruction
// stage. The reconstruction itself lives outside this module.
type StereoConfig struct {
	Algorithm       StereoAlgorithm `json:"algorithm"`
	Filtering       StereoFiltering `json:"filtering"`
	BlockSize       int             `json:"block_size"`
	MinDisparity    int             `json:"min_disparity"`
	MaxDisparity    int             `json:"max_disparity"`
	DownscaleFactor int             `json:"downscale_factor"`
	FrameSkip       int             `json:"frame_skip"`
	UseMulticore    bool            `json:"use_multicore"`
	Freeze          bool            `json:"freeze"`
}

// DefaultStereo returns the default stereo parameters.
func DefaultStereo() StereoConfig {
	return StereoConfig{
		Algorithm:       StereoAlgorithmSGBM,
		Filtering:       StereoFilteringWLS,
		BlockSize:       5,
		MinDisparity:    0,
		MaxDisparity:    96,
		DownscaleFactor: 4,
		FrameSkip:       0,
		UseMulticore:    true,
	}
}

// Validate rejects unknown algorithm and filter names. Empty names fall back
// to the defaults.
func (s StereoConfig) Validate() error {
	switch StereoAlgorithm(strings.ToLower(string(s.Algorithm))) {
	case "", StereoAlgorithmBM, StereoAlgorithmSGBM:
	default:
		return fmt.Errorf("unknown stereo algorithm %q", s.Algorithm)
	}
	switch StereoFiltering(strings.ToLower(string(s.Filtering))) {
	case "", StereoFilteringNone, StereoFilteringWLS, StereoFilteringWLSFBS:
	default:
		return fmt.Errorf("unknown stereo filtering %q", s.Filtering)
	}
	return nil
}

// Normalize clamps every parameter into the range the block matcher accepts:
// odd block size in [1,35], even non-negative min disparity, max disparity a
// multiple of 16 that is at least 16 and above min disparity, downscale in
// [1,16] and frame skip in [0,14].
func (s StereoConfig) Normalize() StereoConfig {
	out := s
	def := DefaultStereo()

	out.Algorithm = StereoAlgorithm(strings.ToLower(string(out.Algorithm)))
	if out.Algorithm == "" {
		out.Algorithm = def.Algorithm
	}
	out.Filtering = StereoFiltering(strings.ToLower(string(out.Filtering)))
	if out.Filtering == "" {
		out.Filtering = def.Filtering
	}

	out.BlockSize = clampInt(out.BlockSize, MinBlockSize, MaxBlockSize)
	if out.BlockSize%2 == 0 {
		out.BlockSize++
	}

	if out.MinDisparity < 0 {
		out.MinDisparity = 0
	}
	if out.MinDisparity%2 != 0 {
		out.MinDisparity++
	}
	if out.MinDisparity > MaxMaxDisparity-DisparityStep {
		out.MinDisparity = MaxMaxDisparity - DisparityStep
	}

	out.MaxDisparity = clampInt(out.MaxDisparity, MinMaxDisparity, MaxMaxDisparity)
	out.MaxDisparity -= out.MaxDisparity % DisparityStep
	for out.MaxDisparity <= out.MinDisparity {
		out.MaxDisparity += DisparityStep
	}

	out.DownscaleFactor = clampInt(out.DownscaleFactor, MinDownscaleFactor, MaxDownscaleFactor)
	out.FrameSkip = clampInt(out.FrameSkip, 0, MaxFrameSkip)
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
