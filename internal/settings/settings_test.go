package settings_test

import (
	"errors"
	"sort"
	"testing"

	"github.com/Viker/Kokoro-TTS-Discord-Bot/internal/settings"
)

func TestParse_ValidValues(t *testing.T) {
	t.Parallel()
	tests := []struct {
		key  string
		raw  string
		want any
	}{
		{settings.KeyVoice, "af_sky", "af_sky"},
		{settings.KeySpeed, "1.5", 1.5},
		{settings.KeySpeed, "0.5", 0.5},
		{settings.KeySpeed, "2.0", 2.0},
		{settings.KeyPitch, "0", 0.0},
		{settings.KeyVolume, "2", 2.0},
		{settings.KeyLanguage, "de", "de"},
		{settings.KeyAutoJoin, "true", true},
		{settings.KeyReadUsernames, "false", false},
		{settings.KeyMaxLength, "2000", 2000},
		{settings.KeyTimeoutSeconds, "0", 0},
		{settings.KeyTimeoutSeconds, "3600", 3600},
	}
	for _, tt := range tests {
		got, err := settings.Parse(tt.key, tt.raw)
		if err != nil {
			t.Errorf("Parse(%q, %q): unexpected error: %v", tt.key, tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q, %q) = %v (%T), want %v (%T)", tt.key, tt.raw, got, got, tt.want, tt.want)
		}
	}
}

func TestParse_OutOfRange(t *testing.T) {
	t.Parallel()
	tests := []struct {
		key string
		raw string
	}{
		{settings.KeySpeed, "0.4"},
		{settings.KeySpeed, "2.1"},
		{settings.KeyPitch, "-0.1"},
		{settings.KeyVolume, "2.5"},
		{settings.KeyMaxLength, "0"},
		{settings.KeyMaxLength, "2001"},
		{settings.KeyTimeoutSeconds, "-1"},
		{settings.KeyTimeoutSeconds, "3601"},
	}
	for _, tt := range tests {
		_, err := settings.Parse(tt.key, tt.raw)
		if !errors.Is(err, settings.ErrOutOfRange) {
			t.Errorf("Parse(%q, %q): want ErrOutOfRange, got %v", tt.key, tt.raw, err)
		}
	}
}

func TestParse_TypeMismatch(t *testing.T) {
	t.Parallel()
	tests := []struct {
		key string
		raw string
	}{
		{settings.KeySpeed, "fast"},
		{settings.KeyMaxLength, "1.5"},
		{settings.KeyAutoJoin, "maybe"},
		{settings.KeyVoice, "  "},
	}
	for _, tt := range tests {
		_, err := settings.Parse(tt.key, tt.raw)
		if !errors.Is(err, settings.ErrTypeMismatch) {
			t.Errorf("Parse(%q, %q): want ErrTypeMismatch, got %v", tt.key, tt.raw, err)
		}
	}
}

func TestParse_UnknownKey(t *testing.T) {
	t.Parallel()
	_, err := settings.Parse("loudness", "1")
	if !errors.Is(err, settings.ErrUnknownSetting) {
		t.Errorf("want ErrUnknownSetting, got %v", err)
	}
}

func TestKeys_SortedAndComplete(t *testing.T) {
	t.Parallel()
	keys := settings.Keys()
	if len(keys) != 10 {
		t.Fatalf("expected 10 settings, got %d: %v", len(keys), keys)
	}
	if !sort.StringsAreSorted(keys) {
		t.Errorf("keys are not sorted: %v", keys)
	}
	for _, key := range keys {
		if _, err := settings.Lookup(key); err != nil {
			t.Errorf("Lookup(%q): %v", key, err)
		}
	}
}

func TestLookup_Metadata(t *testing.T) {
	t.Parallel()
	meta, err := settings.Lookup(settings.KeySpeed)
	if err != nil {
		t.Fatal(err)
	}
	if meta.Kind != settings.KindFloat {
		t.Errorf("speed kind = %v, want float", meta.Kind)
	}
	if meta.Default != 1.0 {
		t.Errorf("speed default = %v, want 1.0", meta.Default)
	}
	if meta.Min != 0.5 || meta.Max != 2.0 {
		t.Errorf("speed range = [%g, %g], want [0.5, 2.0]", meta.Min, meta.Max)
	}
}
