package settings_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/Viker/Kokoro-TTS-Discord-Bot/internal/settings"
)

func newManager(t *testing.T) *settings.Manager {
	t.Helper()
	m, err := settings.NewManager(&settings.MemoryStore{})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestResolve_Defaults(t *testing.T) {
	t.Parallel()
	m := newManager(t)

	eff := m.Resolve("g1", "u1")
	if eff.Voice != "af_bella" {
		t.Errorf("default voice = %q, want af_bella", eff.Voice)
	}
	if eff.Speed != 1.0 || eff.Pitch != 1.0 || eff.Volume != 1.0 {
		t.Errorf("default multipliers = %g/%g/%g, want 1.0 each", eff.Speed, eff.Pitch, eff.Volume)
	}
	if eff.AutoJoin {
		t.Error("autoJoin should default to false")
	}
	if !eff.ReadUsernames || !eff.IgnoreBots {
		t.Error("readUsernames and ignoreBots should default to true")
	}
	if eff.MaxLength != 500 || eff.TimeoutSeconds != 300 {
		t.Errorf("maxLength/timeoutSeconds = %d/%d, want 500/300", eff.MaxLength, eff.TimeoutSeconds)
	}
}

func TestResolve_Precedence(t *testing.T) {
	t.Parallel()
	m := newManager(t)

	// Guild overrides voice and speed; user overrides only speed.
	if err := m.SetGuild("g1", settings.KeyVoice, "af_sky"); err != nil {
		t.Fatal(err)
	}
	if err := m.SetGuild("g1", settings.KeySpeed, "1.5"); err != nil {
		t.Fatal(err)
	}
	if err := m.SetUser("g1", "u1", settings.KeySpeed, "0.8"); err != nil {
		t.Fatal(err)
	}

	eff := m.Resolve("g1", "u1")
	if eff.Speed != 0.8 {
		t.Errorf("user speed should win: got %g, want 0.8", eff.Speed)
	}
	if eff.Voice != "af_sky" {
		t.Errorf("guild voice should apply for unset user key: got %q", eff.Voice)
	}
	if eff.Pitch != 1.0 {
		t.Errorf("unset key should fall to default: got %g", eff.Pitch)
	}

	// A different user sees only the guild layer.
	other := m.Resolve("g1", "u2")
	if other.Speed != 1.5 {
		t.Errorf("other user speed = %g, want guild 1.5", other.Speed)
	}

	// A different guild sees pure defaults.
	elsewhere := m.Resolve("g2", "u1")
	if elsewhere.Voice != "af_bella" || elsewhere.Speed != 1.0 {
		t.Errorf("other guild not isolated: %+v", elsewhere)
	}
}

func TestResolve_SnapshotIndependence(t *testing.T) {
	t.Parallel()
	m := newManager(t)

	eff := m.Resolve("g1", "u1")
	if err := m.SetGuild("g1", settings.KeySpeed, "2.0"); err != nil {
		t.Fatal(err)
	}
	if eff.Speed != 1.0 {
		t.Errorf("snapshot mutated by later write: %g", eff.Speed)
	}
}

func TestGet_Sources(t *testing.T) {
	t.Parallel()
	m := newManager(t)

	if err := m.SetGuild("g1", settings.KeySpeed, "1.5"); err != nil {
		t.Fatal(err)
	}
	if err := m.SetUser("g1", "u1", settings.KeySpeed, "0.8"); err != nil {
		t.Fatal(err)
	}

	val, src, err := m.Get("g1", "u1", settings.KeySpeed)
	if err != nil || val != 0.8 || src != settings.SourceUser {
		t.Errorf("Get user layer = (%v, %v, %v), want (0.8, user, nil)", val, src, err)
	}

	val, src, err = m.Get("g1", "u2", settings.KeySpeed)
	if err != nil || val != 1.5 || src != settings.SourceGuild {
		t.Errorf("Get guild layer = (%v, %v, %v), want (1.5, guild, nil)", val, src, err)
	}

	val, src, err = m.Get("g1", "u1", settings.KeyPitch)
	if err != nil || val != 1.0 || src != settings.SourceDefault {
		t.Errorf("Get default layer = (%v, %v, %v), want (1.0, default, nil)", val, src, err)
	}

	if _, _, err := m.Get("g1", "u1", "bogus"); !errors.Is(err, settings.ErrUnknownSetting) {
		t.Errorf("unknown key: want ErrUnknownSetting, got %v", err)
	}
}

func TestSetGuild_RejectsInvalid(t *testing.T) {
	t.Parallel()
	m := newManager(t)

	if err := m.SetGuild("g1", settings.KeySpeed, "3.0"); !errors.Is(err, settings.ErrOutOfRange) {
		t.Errorf("want ErrOutOfRange, got %v", err)
	}
	// The invalid write must not leave a partial override behind.
	if eff := m.Resolve("g1", ""); eff.Speed != 1.0 {
		t.Errorf("rejected write changed state: speed = %g", eff.Speed)
	}
}

func TestResetUser(t *testing.T) {
	t.Parallel()
	m := newManager(t)

	if err := m.SetGuild("g1", settings.KeySpeed, "1.5"); err != nil {
		t.Fatal(err)
	}
	if err := m.SetUser("g1", "u1", settings.KeySpeed, "0.8"); err != nil {
		t.Fatal(err)
	}
	if err := m.ResetUser("g1", "u1"); err != nil {
		t.Fatal(err)
	}

	if eff := m.Resolve("g1", "u1"); eff.Speed != 1.5 {
		t.Errorf("after reset speed = %g, want guild 1.5", eff.Speed)
	}

	// Resetting a user with no overrides is a no-op.
	if err := m.ResetUser("g1", "u2"); err != nil {
		t.Errorf("reset of absent user: %v", err)
	}
	if err := m.ResetUser("g9", "u1"); err != nil {
		t.Errorf("reset in absent guild: %v", err)
	}
}

func TestResetUser_PrunesEmptyGuildBucket(t *testing.T) {
	t.Parallel()
	store := &settings.MemoryStore{}
	m, err := settings.NewManager(store)
	if err != nil {
		t.Fatal(err)
	}

	// The only override in g1 belongs to u1: resetting the user must drop
	// the whole guild bucket from the persisted document.
	if err := m.SetUser("g1", "u1", settings.KeySpeed, "0.8"); err != nil {
		t.Fatal(err)
	}
	if err := m.ResetUser("g1", "u1"); err != nil {
		t.Fatal(err)
	}

	doc, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := doc.Guilds["g1"]; ok {
		t.Error("empty guild bucket persisted after user reset")
	}

	// With a guild override present, the bucket stays.
	if err := m.SetGuild("g2", settings.KeyVoice, "af_sky"); err != nil {
		t.Fatal(err)
	}
	if err := m.SetUser("g2", "u1", settings.KeySpeed, "0.8"); err != nil {
		t.Fatal(err)
	}
	if err := m.ResetUser("g2", "u1"); err != nil {
		t.Fatal(err)
	}
	doc, err = store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := doc.Guilds["g2"]; !ok {
		t.Error("guild bucket with overrides was pruned")
	}
}

func TestNewManager_SurvivesLoadFailure(t *testing.T) {
	t.Parallel()
	store := &settings.MemoryStore{LoadErr: errors.New("settings: parse settings.yaml: bad document")}

	m, err := settings.NewManager(store)
	if err != nil {
		t.Fatalf("load failure must not prevent startup: %v", err)
	}
	if eff := m.Resolve("g1", "u1"); eff.Voice != "af_bella" {
		t.Errorf("defaults not in effect after load failure: %+v", eff)
	}

	// The manager stays writable; the next save rebuilds the document.
	store.LoadErr = nil
	if err := m.SetGuild("g1", settings.KeySpeed, "1.5"); err != nil {
		t.Fatal(err)
	}
	if eff := m.Resolve("g1", ""); eff.Speed != 1.5 {
		t.Errorf("write after recovered load failed: %g", eff.Speed)
	}
}

func TestPersistenceFailure_KeepsInMemoryChange(t *testing.T) {
	t.Parallel()
	store := &settings.MemoryStore{SaveErr: errors.New("disk full")}
	m, err := settings.NewManager(store)
	if err != nil {
		t.Fatal(err)
	}

	err = m.SetGuild("g1", settings.KeySpeed, "1.5")
	if err == nil {
		t.Fatal("expected persistence error")
	}
	if eff := m.Resolve("g1", ""); eff.Speed != 1.5 {
		t.Errorf("in-memory change lost on persistence failure: %g", eff.Speed)
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "settings.yaml")

	store := settings.NewFileStore(path)
	m, err := settings.NewManager(store)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.SetGuild("g1", settings.KeyVoice, "af_sky"); err != nil {
		t.Fatal(err)
	}
	if err := m.SetUser("g1", "u1", settings.KeyVolume, "0.5"); err != nil {
		t.Fatal(err)
	}

	// A fresh manager over the same file sees the persisted overrides.
	m2, err := settings.NewManager(settings.NewFileStore(path))
	if err != nil {
		t.Fatal(err)
	}
	eff := m2.Resolve("g1", "u1")
	if eff.Voice != "af_sky" || eff.Volume != 0.5 {
		t.Errorf("reload = voice %q volume %g, want af_sky / 0.5", eff.Voice, eff.Volume)
	}
}

func TestFileStore_MissingFileIsEmpty(t *testing.T) {
	t.Parallel()
	store := settings.NewFileStore(filepath.Join(t.TempDir(), "absent.yaml"))
	doc, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Guilds) != 0 {
		t.Errorf("missing file should load empty, got %d guilds", len(doc.Guilds))
	}
}

func TestNewManager_DropsInvalidPersistedValues(t *testing.T) {
	t.Parallel()
	store := &settings.MemoryStore{}
	if err := store.Save(&settings.Document{
		Guilds: map[string]*settings.GuildDocument{
			"g1": {
				Overrides: map[string]any{
					settings.KeySpeed: 9.0,      // out of range
					"loudness":        1.0,      // unknown key
					settings.KeyVoice: "af_sky", // valid
				},
			},
		},
	}); err != nil {
		t.Fatal(err)
	}

	m, err := settings.NewManager(store)
	if err != nil {
		t.Fatal(err)
	}
	eff := m.Resolve("g1", "")
	if eff.Speed != 1.0 {
		t.Errorf("out-of-range persisted value survived: %g", eff.Speed)
	}
	if eff.Voice != "af_sky" {
		t.Errorf("valid persisted value dropped: %q", eff.Voice)
	}
}
