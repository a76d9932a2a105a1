// Package settings implements layered TTS settings resolution.
//
// Three layers exist: built-in defaults, per-guild overrides, and per-user
// overrides within a guild. Resolution is key-by-key: a user override wins
// for the keys it sets, a guild override for the keys the user leaves unset,
// and the default for everything else. Overrides persist across restarts via
// a write-through Store.
package settings

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Sentinel errors callers match with errors.Is.
var (
	// ErrUnknownSetting is returned when a key is not a recognised setting.
	ErrUnknownSetting = errors.New("settings: unknown setting")

	// ErrTypeMismatch is returned when a value cannot be parsed as the
	// setting's type.
	ErrTypeMismatch = errors.New("settings: type mismatch")

	// ErrOutOfRange is returned when a parsed value falls outside the
	// setting's valid range.
	ErrOutOfRange = errors.New("settings: value out of range")
)

// Kind is the value type of a setting.
type Kind int

const (
	KindString Kind = iota
	KindFloat
	KindInt
	KindBool
)

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Setting keys.
const (
	KeyVoice          = "voice"
	KeySpeed          = "speed"
	KeyPitch          = "pitch"
	KeyVolume         = "volume"
	KeyLanguage       = "language"
	KeyAutoJoin       = "autoJoin"
	KeyReadUsernames  = "readUsernames"
	KeyIgnoreBots     = "ignoreBots"
	KeyMaxLength      = "maxLength"
	KeyTimeoutSeconds = "timeoutSeconds"
)

// Meta describes one setting: its type, default, valid range and purpose.
type Meta struct {
	Key     string
	Kind    Kind
	Default any

	// Min and Max bound numeric settings (inclusive). Ignored for strings
	// and bools.
	Min float64
	Max float64

	// Description is shown by the settings info command.
	Description string
}

// metadata is the full catalogue of supported settings.
var metadata = map[string]Meta{
	KeyVoice: {
		Key: KeyVoice, Kind: KindString, Default: "af_bella",
		Description: "Voice used for synthesis.",
	},
	KeySpeed: {
		Key: KeySpeed, Kind: KindFloat, Default: 1.0, Min: 0.5, Max: 2.0,
		Description: "Speaking rate multiplier (0.5-2.0).",
	},
	KeyPitch: {
		Key: KeyPitch, Kind: KindFloat, Default: 1.0, Min: 0.0, Max: 2.0,
		Description: "Voice pitch multiplier (0.0-2.0).",
	},
	KeyVolume: {
		Key: KeyVolume, Kind: KindFloat, Default: 1.0, Min: 0.0, Max: 2.0,
		Description: "Playback volume multiplier (0.0-2.0).",
	},
	KeyLanguage: {
		Key: KeyLanguage, Kind: KindString, Default: "en-us",
		Description: "Language code passed to the synthesiser.",
	},
	KeyAutoJoin: {
		Key: KeyAutoJoin, Kind: KindBool, Default: false,
		Description: "Join the author's voice channel automatically when a message arrives.",
	},
	KeyReadUsernames: {
		Key: KeyReadUsernames, Kind: KindBool, Default: true,
		Description: "Announce users joining the bot's voice channel.",
	},
	KeyIgnoreBots: {
		Key: KeyIgnoreBots, Kind: KindBool, Default: true,
		Description: "Skip messages authored by other bots.",
	},
	KeyMaxLength: {
		Key: KeyMaxLength, Kind: KindInt, Default: 500, Min: 1, Max: 2000,
		Description: "Maximum message length read aloud; longer messages are rejected.",
	},
	KeyTimeoutSeconds: {
		Key: KeyTimeoutSeconds, Kind: KindInt, Default: 300, Min: 0, Max: 3600,
		Description: "Seconds of inactivity before the bot leaves the voice channel (0 disables).",
	},
}

// Keys returns all setting keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Lookup returns the metadata for key.
func Lookup(key string) (Meta, error) {
	m, ok := metadata[key]
	if !ok {
		return Meta{}, fmt.Errorf("%w: %q", ErrUnknownSetting, key)
	}
	return m, nil
}

// Parse converts raw into the typed value for key, validating type and range.
func Parse(key, raw string) (any, error) {
	m, err := Lookup(key)
	if err != nil {
		return nil, err
	}

	switch m.Kind {
	case KindString:
		if strings.TrimSpace(raw) == "" {
			return nil, fmt.Errorf("%w: %q must not be empty", ErrTypeMismatch, key)
		}
		return raw, nil

	case KindFloat:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q expects a %s, got %q", ErrTypeMismatch, key, m.Kind, raw)
		}
		if v < m.Min || v > m.Max {
			return nil, fmt.Errorf("%w: %q must be in [%g, %g], got %g", ErrOutOfRange, key, m.Min, m.Max, v)
		}
		return v, nil

	case KindInt:
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q expects an %s, got %q", ErrTypeMismatch, key, m.Kind, raw)
		}
		if float64(v) < m.Min || float64(v) > m.Max {
			return nil, fmt.Errorf("%w: %q must be in [%d, %d], got %d", ErrOutOfRange, key, int(m.Min), int(m.Max), v)
		}
		return v, nil

	case KindBool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q expects a %s, got %q", ErrTypeMismatch, key, m.Kind, raw)
		}
		return v, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSetting, key)
	}
}

// Effective is a fully resolved settings snapshot for one (guild, user) pair.
// It is a value type; mutating overrides after resolution never changes an
// already-taken snapshot.
type Effective struct {
	Voice          string
	Speed          float64
	Pitch          float64
	Volume         float64
	Language       string
	AutoJoin       bool
	ReadUsernames  bool
	IgnoreBots     bool
	MaxLength      int
	TimeoutSeconds int
}

// defaults returns the built-in Effective settings.
func defaults() Effective {
	return Effective{
		Voice:          metadata[KeyVoice].Default.(string),
		Speed:          metadata[KeySpeed].Default.(float64),
		Pitch:          metadata[KeyPitch].Default.(float64),
		Volume:         metadata[KeyVolume].Default.(float64),
		Language:       metadata[KeyLanguage].Default.(string),
		AutoJoin:       metadata[KeyAutoJoin].Default.(bool),
		ReadUsernames:  metadata[KeyReadUsernames].Default.(bool),
		IgnoreBots:     metadata[KeyIgnoreBots].Default.(bool),
		MaxLength:      metadata[KeyMaxLength].Default.(int),
		TimeoutSeconds: metadata[KeyTimeoutSeconds].Default.(int),
	}
}

// apply copies the overrides present in layer onto e.
func (e *Effective) apply(layer map[string]any) {
	for key, val := range layer {
		switch key {
		case KeyVoice:
			if v, ok := val.(string); ok {
				e.Voice = v
			}
		case KeySpeed:
			if v, ok := toFloat(val); ok {
				e.Speed = v
			}
		case KeyPitch:
			if v, ok := toFloat(val); ok {
				e.Pitch = v
			}
		case KeyVolume:
			if v, ok := toFloat(val); ok {
				e.Volume = v
			}
		case KeyLanguage:
			if v, ok := val.(string); ok {
				e.Language = v
			}
		case KeyAutoJoin:
			if v, ok := val.(bool); ok {
				e.AutoJoin = v
			}
		case KeyReadUsernames:
			if v, ok := val.(bool); ok {
				e.ReadUsernames = v
			}
		case KeyIgnoreBots:
			if v, ok := val.(bool); ok {
				e.IgnoreBots = v
			}
		case KeyMaxLength:
			if v, ok := toInt(val); ok {
				e.MaxLength = v
			}
		case KeyTimeoutSeconds:
			if v, ok := toInt(val); ok {
				e.TimeoutSeconds = v
			}
		}
	}
}

// toFloat normalises numeric values that may arrive as int after a YAML
// round trip.
func toFloat(val any) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// toInt normalises numeric values that may arrive as float64.
func toInt(val any) (int, bool) {
	switch v := val.(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
