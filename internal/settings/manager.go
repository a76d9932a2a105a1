package settings

import (
	"fmt"
	"log/slog"
	"sync"
)

// Source identifies the layer an effective value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceGuild   Source = "guild"
	SourceUser    Source = "user"
)

// Manager owns the override layers and resolves effective settings.
//
// All reads and writes go through the Manager; the Store only ever sees a
// snapshot of the full document. Writes are write-through: the in-memory
// state is updated first, then persisted. A persistence failure leaves the
// in-memory change in place and is surfaced to the caller.
//
// Manager is safe for concurrent use.
type Manager struct {
	mu    sync.RWMutex
	store Store

	// guilds[guildID].Overrides / .Users[userID] hold only explicitly-set
	// keys, already validated and typed.
	guilds map[string]*GuildDocument
}

// NewManager creates a Manager backed by store and loads any persisted state.
// A load failure (unreadable or corrupt document) is logged and the Manager
// starts on defaults; the bot keeps running rather than refusing to start.
func NewManager(store Store) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("settings: nil store")
	}

	doc, err := store.Load()
	if err != nil {
		slog.Warn("settings: load failed, starting with defaults", "error", err)
		doc = &Document{Guilds: map[string]*GuildDocument{}}
	}

	guilds := make(map[string]*GuildDocument, len(doc.Guilds))
	for guildID, gd := range doc.Guilds {
		if gd == nil {
			continue
		}
		guilds[guildID] = normalizeGuild(gd)
	}

	return &Manager{store: store, guilds: guilds}, nil
}

// Resolve returns the effective settings for userID in guildID, merging
// defaults, guild overrides and user overrides key-by-key. The result is an
// independent snapshot.
func (m *Manager) Resolve(guildID, userID string) Effective {
	m.mu.RLock()
	defer m.mu.RUnlock()

	eff := defaults()
	gd, ok := m.guilds[guildID]
	if !ok {
		return eff
	}
	eff.apply(gd.Overrides)
	if userID != "" {
		eff.apply(gd.Users[userID])
	}
	return eff
}

// Get returns the effective value of key for userID in guildID together with
// the layer it came from.
func (m *Manager) Get(guildID, userID, key string) (any, Source, error) {
	meta, err := Lookup(key)
	if err != nil {
		return nil, "", err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if gd, ok := m.guilds[guildID]; ok {
		if userID != "" {
			if v, ok := gd.Users[userID][key]; ok {
				return v, SourceUser, nil
			}
		}
		if v, ok := gd.Overrides[key]; ok {
			return v, SourceGuild, nil
		}
	}
	return meta.Default, SourceDefault, nil
}

// SetGuild validates raw and stores it as guildID's override for key.
func (m *Manager) SetGuild(guildID, key, raw string) error {
	val, err := Parse(key, raw)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	gd := m.guildLocked(guildID)
	gd.Overrides[key] = val
	return m.persistLocked()
}

// SetUser validates raw and stores it as userID's override for key within
// guildID.
func (m *Manager) SetUser(guildID, userID, key, raw string) error {
	val, err := Parse(key, raw)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	gd := m.guildLocked(guildID)
	if gd.Users[userID] == nil {
		gd.Users[userID] = make(map[string]any)
	}
	gd.Users[userID][key] = val
	return m.persistLocked()
}

// ResetUser removes all of userID's overrides in guildID. Resetting a user
// with no overrides is a no-op. A guild document left with no overrides and
// no users is removed entirely so it never persists as an empty bucket.
func (m *Manager) ResetUser(guildID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	gd, ok := m.guilds[guildID]
	if !ok {
		return nil
	}
	if _, ok := gd.Users[userID]; !ok {
		return nil
	}
	delete(gd.Users, userID)
	if len(gd.Users) == 0 && len(gd.Overrides) == 0 {
		delete(m.guilds, guildID)
	}
	return m.persistLocked()
}

// GuildOverrides returns a copy of guildID's explicitly-set overrides.
func (m *Manager) GuildOverrides(guildID string) map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	gd, ok := m.guilds[guildID]
	if !ok {
		return map[string]any{}
	}
	return copyLayer(gd.Overrides)
}

// UserOverrides returns a copy of userID's explicitly-set overrides in
// guildID.
func (m *Manager) UserOverrides(guildID, userID string) map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	gd, ok := m.guilds[guildID]
	if !ok {
		return map[string]any{}
	}
	return copyLayer(gd.Users[userID])
}

// guildLocked returns guildID's document, creating it if needed. Caller
// holds mu.
func (m *Manager) guildLocked(guildID string) *GuildDocument {
	gd, ok := m.guilds[guildID]
	if !ok {
		gd = &GuildDocument{
			Overrides: make(map[string]any),
			Users:     make(map[string]map[string]any),
		}
		m.guilds[guildID] = gd
	}
	return gd
}

// persistLocked writes a snapshot of the full document through the store.
// Caller holds mu.
func (m *Manager) persistLocked() error {
	doc := &Document{Guilds: make(map[string]*GuildDocument, len(m.guilds))}
	for guildID, gd := range m.guilds {
		snap := &GuildDocument{
			Overrides: copyLayer(gd.Overrides),
			Users:     make(map[string]map[string]any, len(gd.Users)),
		}
		for userID, layer := range gd.Users {
			snap.Users[userID] = copyLayer(layer)
		}
		doc.Guilds[guildID] = snap
	}

	if err := m.store.Save(doc); err != nil {
		return fmt.Errorf("settings: persist: %w", err)
	}
	return nil
}

// normalizeGuild drops unknown or invalid persisted values and ensures maps
// are non-nil. Persisted documents may predate a settings catalogue change.
func normalizeGuild(gd *GuildDocument) *GuildDocument {
	out := &GuildDocument{
		Overrides: normalizeLayer(gd.Overrides),
		Users:     make(map[string]map[string]any, len(gd.Users)),
	}
	for userID, layer := range gd.Users {
		norm := normalizeLayer(layer)
		if len(norm) > 0 {
			out.Users[userID] = norm
		}
	}
	return out
}

// normalizeLayer keeps only known keys whose values survive a parse round
// trip through the setting's type.
func normalizeLayer(layer map[string]any) map[string]any {
	out := make(map[string]any, len(layer))
	for key, val := range layer {
		meta, err := Lookup(key)
		if err != nil {
			continue
		}
		switch meta.Kind {
		case KindString:
			if v, ok := val.(string); ok && v != "" {
				out[key] = v
			}
		case KindFloat:
			if v, ok := toFloat(val); ok && v >= meta.Min && v <= meta.Max {
				out[key] = v
			}
		case KindInt:
			if v, ok := toInt(val); ok && float64(v) >= meta.Min && float64(v) <= meta.Max {
				out[key] = v
			}
		case KindBool:
			if v, ok := val.(bool); ok {
				out[key] = v
			}
		}
	}
	return out
}

// copyLayer returns a shallow copy of layer. Values are scalars.
func copyLayer(layer map[string]any) map[string]any {
	out := make(map[string]any, len(layer))
	for k, v := range layer {
		out[k] = v
	}
	return out
}
