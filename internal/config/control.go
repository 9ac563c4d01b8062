// Package config holds the control service configuration. Every field is a
// pointer so a partial file or environment overlay leaves unset keys nil, and
// the Get* accessors supply the documented default for anything missing.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/banshee-data/limbcontrol/internal/limb"
)

// EnvPrefix is the prefix for environment overrides, e.g. LIMB_DT=0.01.
const EnvPrefix = "LIMB_"

const maxFileSize = 1 * 1024 * 1024

// ControlConfig is the root configuration for the control loop and its
// signal processing chain.
type ControlConfig struct {
	// Loop
	Dt             *float64 `koanf:"dt" json:"dt,omitempty"` // seconds
	VoteBufferSize *int     `koanf:"vote_buffer_size" json:"vote_buffer_size,omitempty"`
	StatusRateHz   *float64 `koanf:"status_rate_hz" json:"status_rate_hz,omitempty"`

	// Signal and features
	SampleRate    *float64 `koanf:"sample_rate" json:"sample_rate,omitempty"`
	WindowSamples *int     `koanf:"window_samples" json:"window_samples,omitempty"`
	ChannelShift  *int     `koanf:"channel_shift" json:"channel_shift,omitempty"`
	ZCThreshold   *float64 `koanf:"zc_threshold" json:"zc_threshold,omitempty"`
	SSCThreshold  *float64 `koanf:"ssc_threshold" json:"ssc_threshold,omitempty"`
	WAMPThreshold *float64 `koanf:"wamp_threshold" json:"wamp_threshold,omitempty"`
	Features      []string `koanf:"features" json:"features,omitempty"`

	// Classes and kinematics
	MotionNames []string             `koanf:"motion_names" json:"motion_names,omitempty"`
	JointLimits map[string][]float64 `koanf:"joint_limits" json:"joint_limits,omitempty"` // degrees, [lower, upper]
	ROCFile     *string              `koanf:"roc_file" json:"roc_file,omitempty"`

	// Scenario behaviour
	GraspSwitchThreshold *float64 `koanf:"grasp_switch_threshold" json:"grasp_switch_threshold,omitempty"`
	PrecisionGain        *float64 `koanf:"precision_gain" json:"precision_gain,omitempty"`
	GainFloor            *float64 `koanf:"gain_floor" json:"gain_floor,omitempty"`
}

// DefaultFeatures is the feature set used when none is configured.
var DefaultFeatures = []string{"MAV", "CurveLength", "ZeroCrossing", "SlopeSignChange"}

// DefaultMotionNames is the default class catalog. Index 0 is the rest class.
var DefaultMotionNames = []string{
	"No Movement",
	"Elbow Flexion",
	"Elbow Extension",
	"Wrist Rotate In",
	"Wrist Rotate Out",
	"Wrist Flex In",
	"Wrist Extend Out",
	"Hand Open",
	"Spherical Grasp",
	"Tip Grasp",
	"Three Finger Pinch Grasp",
	"Lateral Grasp",
	"Cylindrical Grasp",
	"Point Grasp",
}

// Default joint limits in degrees, applied to any joint not listed.
const (
	DefaultLowerLimitDeg = 0.0
	DefaultUpperLimitDeg = 30.0
)

// EmptyControlConfig returns a ControlConfig with all fields unset.
func EmptyControlConfig() *ControlConfig {
	return &ControlConfig{}
}

// Load builds a ControlConfig by layering, lowest precedence first:
//  1. built-in defaults (the Get* accessors)
//  2. the YAML or JSON file at path, if path is non-empty
//  3. LIMB_* environment variables
func Load(path string) (*ControlConfig, error) {
	k := koanf.New(".")

	if path != "" {
		cleanPath := filepath.Clean(path)
		switch ext := strings.ToLower(filepath.Ext(cleanPath)); ext {
		case ".yaml", ".yml", ".json":
		default:
			return nil, fmt.Errorf("config file must have .yaml, .yml or .json extension, got %q", ext)
		}
		info, err := os.Stat(cleanPath)
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if info.Size() > maxFileSize {
			return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
		}
		// JSON is valid YAML, so one parser covers both formats.
		if err := k.Load(file.Provider(cleanPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg := EmptyControlConfig()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that set values are usable. Unset values are always valid.
func (c *ControlConfig) Validate() error {
	if c.Dt != nil && (*c.Dt <= 0 || *c.Dt > 1) {
		return fmt.Errorf("dt must be in (0, 1] seconds, got %f", *c.Dt)
	}
	if c.VoteBufferSize != nil && *c.VoteBufferSize < 1 {
		return fmt.Errorf("vote_buffer_size must be positive, got %d", *c.VoteBufferSize)
	}
	if c.StatusRateHz != nil && *c.StatusRateHz <= 0 {
		return fmt.Errorf("status_rate_hz must be positive, got %f", *c.StatusRateHz)
	}
	if c.SampleRate != nil && *c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %f", *c.SampleRate)
	}
	if c.WindowSamples != nil && *c.WindowSamples < 1 {
		return fmt.Errorf("window_samples must be positive, got %d", *c.WindowSamples)
	}
	for name, v := range map[string]*float64{
		"zc_threshold":   c.ZCThreshold,
		"ssc_threshold":  c.SSCThreshold,
		"wamp_threshold": c.WAMPThreshold,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", name, *v)
		}
	}
	if c.MotionNames != nil && len(c.MotionNames) < 2 {
		return fmt.Errorf("motion_names needs at least two classes, got %d", len(c.MotionNames))
	}
	for name, lim := range c.JointLimits {
		if _, err := limb.ParseJoint(name); err != nil {
			return fmt.Errorf("joint_limits: %w", err)
		}
		if len(lim) != 2 {
			return fmt.Errorf("joint_limits[%s] must be [lower, upper], got %v", name, lim)
		}
		if lim[0] > lim[1] {
			return fmt.Errorf("joint_limits[%s] lower %f exceeds upper %f", name, lim[0], lim[1])
		}
	}
	if c.GraspSwitchThreshold != nil && (*c.GraspSwitchThreshold < 0 || *c.GraspSwitchThreshold > 1) {
		return fmt.Errorf("grasp_switch_threshold must be between 0 and 1, got %f", *c.GraspSwitchThreshold)
	}
	if c.PrecisionGain != nil && *c.PrecisionGain <= 0 {
		return fmt.Errorf("precision_gain must be positive, got %f", *c.PrecisionGain)
	}
	if c.GainFloor != nil && *c.GainFloor <= 0 {
		return fmt.Errorf("gain_floor must be positive, got %f", *c.GainFloor)
	}
	return nil
}

// GetDt returns the loop period in seconds.
func (c *ControlConfig) GetDt() float64 {
	if c.Dt == nil {
		return 0.02
	}
	return *c.Dt
}

// GetTickInterval returns the loop period as a duration.
func (c *ControlConfig) GetTickInterval() time.Duration {
	return time.Duration(math.Round(c.GetDt() * float64(time.Second)))
}

// GetVoteBufferSize returns the decision smoothing buffer capacity.
func (c *ControlConfig) GetVoteBufferSize() int {
	if c.VoteBufferSize == nil {
		return 25
	}
	return *c.VoteBufferSize
}

func (c *ControlConfig) GetStatusRateHz() float64 {
	if c.StatusRateHz == nil {
		return 10
	}
	return *c.StatusRateHz
}

// GetSampleRate returns the EMG sample rate in Hz.
func (c *ControlConfig) GetSampleRate() float64 {
	if c.SampleRate == nil {
		return 200
	}
	return *c.SampleRate
}

func (c *ControlConfig) GetWindowSamples() int {
	if c.WindowSamples == nil {
		return 50
	}
	return *c.WindowSamples
}

func (c *ControlConfig) GetChannelShift() int {
	if c.ChannelShift == nil {
		return 0
	}
	return *c.ChannelShift
}

func (c *ControlConfig) GetZCThreshold() float64 {
	if c.ZCThreshold == nil {
		return 0.05
	}
	return *c.ZCThreshold
}

func (c *ControlConfig) GetSSCThreshold() float64 {
	if c.SSCThreshold == nil {
		return 0.05
	}
	return *c.SSCThreshold
}

func (c *ControlConfig) GetWAMPThreshold() float64 {
	if c.WAMPThreshold == nil {
		return 0.05
	}
	return *c.WAMPThreshold
}

// GetFeatures returns the configured feature names in attachment order.
func (c *ControlConfig) GetFeatures() []string {
	if len(c.Features) == 0 {
		return append([]string(nil), DefaultFeatures...)
	}
	return append([]string(nil), c.Features...)
}

// GetMotionNames returns the class catalog.
func (c *ControlConfig) GetMotionNames() []string {
	if len(c.MotionNames) == 0 {
		return append([]string(nil), DefaultMotionNames...)
	}
	return append([]string(nil), c.MotionNames...)
}

// GetJointLimits returns per-joint [lower, upper] limits in radians, indexed
// by limb.Joint.
func (c *ControlConfig) GetJointLimits() (lower, upper [limb.NumJoints]float64) {
	for i := range lower {
		lower[i] = limb.DegToRad(DefaultLowerLimitDeg)
		upper[i] = limb.DegToRad(DefaultUpperLimitDeg)
	}
	for name, lim := range c.JointLimits {
		j, err := limb.ParseJoint(name)
		if err != nil || len(lim) != 2 {
			continue
		}
		lower[j] = limb.DegToRad(lim[0])
		upper[j] = limb.DegToRad(lim[1])
	}
	return lower, upper
}

// GetROCFile returns the ROC table path, empty when no tables are used.
func (c *ControlConfig) GetROCFile() string {
	if c.ROCFile == nil {
		return ""
	}
	return *c.ROCFile
}

// GetGraspSwitchThreshold returns the grasp position below which the active
// grasp may change.
func (c *ControlConfig) GetGraspSwitchThreshold() float64 {
	if c.GraspSwitchThreshold == nil {
		return 0.2
	}
	return *c.GraspSwitchThreshold
}

func (c *ControlConfig) GetPrecisionGain() float64 {
	if c.PrecisionGain == nil {
		return 0.25
	}
	return *c.PrecisionGain
}

func (c *ControlConfig) GetGainFloor() float64 {
	if c.GainFloor == nil {
		return 0.1
	}
	return *c.GainFloor
}
