// Package config holds the pass-through settings read by the capture loop and
// the projection calculator.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/passthrough/internal/camera"
	"github.com/banshee-data/passthrough/internal/xrmath"
)

// ProjectionMode selects how camera frames are placed in the scene.
type ProjectionMode string

const (
	// ProjectionRoomView2D projects onto a plane at the far distance using
	// the full camera field of view.
	ProjectionRoomView2D ProjectionMode = "room_view_2d"
	// ProjectionCustom2D projects a FieldOfViewScale-sized area.
	ProjectionCustom2D ProjectionMode = "custom_2d"
	// ProjectionStereoReconstruction feeds a depth reconstruction stage. The
	// projection matrices are computed as in ProjectionCustom2D.
	ProjectionStereoReconstruction ProjectionMode = "stereo_reconstruction"
)

// Defaults.
const (
	DefaultProjectionDistanceFar  = 5.0
	DefaultProjectionDistanceNear = 0.1
	DefaultFieldOfViewScale       = 1.0
	DefaultFloorHeightOffset      = 0.0
	DefaultPollInterval           = 100 * time.Microsecond
	DefaultNotReadyBackoff        = 10 * time.Millisecond
	DefaultStatsLogInterval       = 30 * time.Second

	MinProjectionDistanceFar = 0.5
	MaxProjectionDistanceFar = 20.0
	MinFieldOfViewScale      = 0.1
	MaxFieldOfViewScale      = 1.0
	MinFloorHeightOffset     = 0.0
	MaxFloorHeightOffset     = 2.0
)

// maxFileSize bounds config files read by Load.
const maxFileSize = 1 * 1024 * 1024

// Config is the root pass-through configuration. Every field is optional;
// the Get* methods supply defaults for unset values so partial files are
// safe.
type Config struct {
	ProjectionMode         *string  `json:"projection_mode,omitempty"`
	ProjectionDistanceFar  *float64 `json:"projection_distance_far,omitempty"`
	ProjectionDistanceNear *float64 `json:"projection_distance_near,omitempty"`
	FieldOfViewScale       *float64 `json:"field_of_view_scale,omitempty"`

	// FloorHeightOffset raises the floor plane of the 2D modes, for example
	// onto a table top.
	FloorHeightOffset *float64 `json:"floor_height_offset,omitempty"`

	// Camera stream. FrameType is read when the camera is opened.
	FrameType   *string `json:"frame_type,omitempty"`
	FrameLayout *string `json:"frame_layout,omitempty"` // relabels the device packing; eye count must match
	GraphicsAPI *string `json:"graphics_api,omitempty"`

	// Capture loop timing, duration strings like "100us".
	PollInterval     *string `json:"poll_interval,omitempty"`
	NotReadyBackoff  *string `json:"not_ready_backoff,omitempty"`
	StatsLogInterval *string `json:"stats_log_interval,omitempty"`

	Debug *bool `json:"debug,omitempty"`

	Stereo *StereoConfig `json:"stereo,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrBool(v bool) *bool          { return &v }

// Empty returns a Config with every field unset.
func Empty() *Config {
	return &Config{}
}

// Default returns a Config with every field set to its default.
func Default() *Config {
	stereo := DefaultStereo()
	return &Config{
		ProjectionMode:         ptrString(string(ProjectionRoomView2D)),
		ProjectionDistanceFar:  ptrFloat64(DefaultProjectionDistanceFar),
		ProjectionDistanceNear: ptrFloat64(DefaultProjectionDistanceNear),
		FieldOfViewScale:       ptrFloat64(DefaultFieldOfViewScale),
		FloorHeightOffset:      ptrFloat64(DefaultFloorHeightOffset),
		FrameType:              ptrString(camera.FrameTypeDistorted.String()),
		GraphicsAPI:            ptrString(xrmath.GraphicsD3D.String()),
		PollInterval:           ptrString(DefaultPollInterval.String()),
		NotReadyBackoff:        ptrString(DefaultNotReadyBackoff.String()),
		StatsLogInterval:       ptrString(DefaultStatsLogInterval.String()),
		Debug:                  ptrBool(false),
		Stereo:                 &stereo,
	}
}

// Load reads a Config from a JSON file, validates it, and returns it
// normalized.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes, validates and normalizes a JSON config.
func Parse(data []byte) (*Config, error) {
	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg.Normalize(), nil
}

// Validate rejects values that cannot be clamped into range: unknown enum
// names, unparseable durations and non-finite numbers.
func (c *Config) Validate() error {
	if c.ProjectionMode != nil {
		if _, err := ParseProjectionMode(*c.ProjectionMode); err != nil {
			return err
		}
	}
	for name, v := range map[string]*float64{
		"projection_distance_far":  c.ProjectionDistanceFar,
		"projection_distance_near": c.ProjectionDistanceNear,
		"field_of_view_scale":      c.FieldOfViewScale,
		"floor_height_offset":      c.FloorHeightOffset,
	} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return fmt.Errorf("%s must be finite, got %f", name, *v)
		}
	}
	if c.ProjectionDistanceNear != nil && *c.ProjectionDistanceNear <= 0 {
		return fmt.Errorf("projection_distance_near must be positive, got %f", *c.ProjectionDistanceNear)
	}
	if c.FrameType != nil {
		if _, err := camera.ParseFrameType(*c.FrameType); err != nil {
			return err
		}
	}
	if c.FrameLayout != nil && *c.FrameLayout != "" {
		if _, err := camera.ParseFrameLayout(*c.FrameLayout); err != nil {
			return err
		}
	}
	if c.GraphicsAPI != nil {
		if _, err := ParseGraphicsAPI(*c.GraphicsAPI); err != nil {
			return err
		}
	}
	for name, v := range map[string]*string{
		"poll_interval":      c.PollInterval,
		"not_ready_backoff":  c.NotReadyBackoff,
		"stats_log_interval": c.StatsLogInterval,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.Stereo != nil {
		if err := c.Stereo.Validate(); err != nil {
			return fmt.Errorf("stereo: %w", err)
		}
	}
	return nil
}

// Normalize returns a copy of c with every numeric field clamped into its
// legal range. It is the single place where range invariants are enforced.
func (c *Config) Normalize() *Config {
	out := c.Clone()
	if out.ProjectionDistanceFar != nil {
		out.ProjectionDistanceFar = ptrFloat64(clamp(*out.ProjectionDistanceFar, MinProjectionDistanceFar, MaxProjectionDistanceFar))
	}
	if out.ProjectionDistanceNear != nil {
		far := out.GetProjectionDistanceFar()
		if *out.ProjectionDistanceNear >= far {
			out.ProjectionDistanceNear = ptrFloat64(far / 2)
		}
	}
	if out.FieldOfViewScale != nil {
		out.FieldOfViewScale = ptrFloat64(clamp(*out.FieldOfViewScale, MinFieldOfViewScale, MaxFieldOfViewScale))
	}
	if out.FloorHeightOffset != nil {
		out.FloorHeightOffset = ptrFloat64(clamp(*out.FloorHeightOffset, MinFloorHeightOffset, MaxFloorHeightOffset))
	}
	if out.Stereo != nil {
		s := out.Stereo.Normalize()
		out.Stereo = &s
	}
	return out
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	out := *c
	if c.ProjectionMode != nil {
		out.ProjectionMode = ptrString(*c.ProjectionMode)
	}
	if c.ProjectionDistanceFar != nil {
		out.ProjectionDistanceFar = ptrFloat64(*c.ProjectionDistanceFar)
	}
	if c.ProjectionDistanceNear != nil {
		out.ProjectionDistanceNear = ptrFloat64(*c.ProjectionDistanceNear)
	}
	if c.FieldOfViewScale != nil {
		out.FieldOfViewScale = ptrFloat64(*c.FieldOfViewScale)
	}
	if c.FloorHeightOffset != nil {
		out.FloorHeightOffset = ptrFloat64(*c.FloorHeightOffset)
	}
	if c.FrameType != nil {
		out.FrameType = ptrString(*c.FrameType)
	}
	if c.FrameLayout != nil {
		out.FrameLayout = ptrString(*c.FrameLayout)
	}
	if c.GraphicsAPI != nil {
		out.GraphicsAPI = ptrString(*c.GraphicsAPI)
	}
	if c.PollInterval != nil {
		out.PollInterval = ptrString(*c.PollInterval)
	}
	if c.NotReadyBackoff != nil {
		out.NotReadyBackoff = ptrString(*c.NotReadyBackoff)
	}
	if c.StatsLogInterval != nil {
		out.StatsLogInterval = ptrString(*c.StatsLogInterval)
	}
	if c.Debug != nil {
		out.Debug = ptrBool(*c.Debug)
	}
	if c.Stereo != nil {
		s := *c.Stereo
		out.Stereo = &s
	}
	return &out
}

// ParseProjectionMode parses a projection mode name.
func ParseProjectionMode(s string) (ProjectionMode, error) {
	switch m := ProjectionMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ProjectionRoomView2D, ProjectionCustom2D, ProjectionStereoReconstruction:
		return m, nil
	default:
		return "", fmt.Errorf("unknown projection mode %q", s)
	}
}

// ParseGraphicsAPI parses the names produced by xrmath.GraphicsAPI.String.
func ParseGraphicsAPI(s string) (xrmath.GraphicsAPI, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "d3d", "d3d11", "d3d12":
		return xrmath.GraphicsD3D, nil
	case "vulkan":
		return xrmath.GraphicsVulkan, nil
	case "opengl", "gl":
		return xrmath.GraphicsOpenGL, nil
	default:
		return 0, fmt.Errorf("unknown graphics api %q", s)
	}
}

// GetProjectionMode returns the projection mode or the default.
func (c *Config) GetProjectionMode() ProjectionMode {
	if c.ProjectionMode == nil {
		return ProjectionRoomView2D
	}
	m, err := ParseProjectionMode(*c.ProjectionMode)
	if err != nil {
		return ProjectionRoomView2D
	}
	return m
}

// GetProjectionDistanceFar returns the far projection distance in metres.
func (c *Config) GetProjectionDistanceFar() float64 {
	if c.ProjectionDistanceFar == nil {
		return DefaultProjectionDistanceFar
	}
	return clamp(*c.ProjectionDistanceFar, MinProjectionDistanceFar, MaxProjectionDistanceFar)
}

// GetProjectionDistanceNear returns the near projection distance in metres,
// always below the far distance.
func (c *Config) GetProjectionDistanceNear() float64 {
	far := c.GetProjectionDistanceFar()
	near := DefaultProjectionDistanceNear
	if c.ProjectionDistanceNear != nil && *c.ProjectionDistanceNear > 0 {
		near = *c.ProjectionDistanceNear
	}
	if near >= far {
		return far / 2
	}
	return near
}

// GetFieldOfViewScale returns the field of view scale applied in the custom
// projection modes. RoomView2D always uses 1.
func (c *Config) GetFieldOfViewScale() float64 {
	if c.GetProjectionMode() == ProjectionRoomView2D {
		return 1
	}
	if c.FieldOfViewScale == nil {
		return DefaultFieldOfViewScale
	}
	return clamp(*c.FieldOfViewScale, MinFieldOfViewScale, MaxFieldOfViewScale)
}

// GetFloorHeightOffset returns the floor plane offset in metres. It only
// applies to the 2D modes and is 0 in ProjectionStereoReconstruction.
func (c *Config) GetFloorHeightOffset() float64 {
	if c.GetProjectionMode() == ProjectionStereoReconstruction || c.FloorHeightOffset == nil {
		return 0
	}
	return clamp(*c.FloorHeightOffset, MinFloorHeightOffset, MaxFloorHeightOffset)
}

// GetFrameType returns the camera stream type or the default.
func (c *Config) GetFrameType() camera.FrameType {
	if c.FrameType == nil {
		return camera.FrameTypeDistorted
	}
	t, err := camera.ParseFrameType(*c.FrameType)
	if err != nil {
		return camera.FrameTypeDistorted
	}
	return t
}

// GetFrameLayout returns the layout override, if one is set.
func (c *Config) GetFrameLayout() (camera.FrameLayout, bool) {
	if c.FrameLayout == nil || *c.FrameLayout == "" {
		return 0, false
	}
	l, err := camera.ParseFrameLayout(*c.FrameLayout)
	if err != nil {
		return 0, false
	}
	return l, true
}

// GetGraphicsAPI returns the host renderer's clip-space convention.
func (c *Config) GetGraphicsAPI() xrmath.GraphicsAPI {
	if c.GraphicsAPI == nil {
		return xrmath.GraphicsD3D
	}
	api, err := ParseGraphicsAPI(*c.GraphicsAPI)
	if err != nil {
		return xrmath.GraphicsD3D
	}
	return api
}

// GetPollInterval returns the device poll interval.
func (c *Config) GetPollInterval() time.Duration {
	return parseDurationOr(c.PollInterval, DefaultPollInterval)
}

// GetNotReadyBackoff returns the sleep used while the camera is not streaming.
func (c *Config) GetNotReadyBackoff() time.Duration {
	return parseDurationOr(c.NotReadyBackoff, DefaultNotReadyBackoff)
}

// GetStatsLogInterval returns the interval between capture stats log lines.
func (c *Config) GetStatsLogInterval() time.Duration {
	return parseDurationOr(c.StatsLogInterval, DefaultStatsLogInterval)
}

// GetDebug reports whether debug logging is enabled.
func (c *Config) GetDebug() bool {
	if c.Debug == nil {
		return false
	}
	return *c.Debug
}

// GetStereo returns the normalized stereo parameters or the defaults.
func (c *Config) GetStereo() StereoConfig {
	if c.Stereo == nil {
		return DefaultStereo()
	}
	return c.Stereo.Normalize()
}

func parseDurationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
