package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"dubbing-service/domain/artifact"
)

// Errors for config management
var (
	ErrVoiceNotFound   = errors.New("voice not found")
	ErrDuplicateKey    = errors.New("key already exists")
	ErrInvalidLanguage = errors.New("invalid language code")
	ErrOriginNotFound  = errors.New("cors origin not found")
	ErrDuplicateOrigin = errors.New("cors origin already configured")
)

// ConfigManager provides CRUD operations for config entries
type ConfigManager struct {
	config     *Config
	configPath string
}

// NewConfigManager creates a new config manager
func NewConfigManager(cfg *Config, configPath string) *ConfigManager {
	return &ConfigManager{
		config:     cfg,
		configPath: configPath,
	}
}

// Voice pins a synthesis voice to a language
type Voice struct {
	Language string
	Name     string
}

// --- Voice CRUD ---

// AddVoice pins a voice name for a language code
func (m *ConfigManager) AddVoice(language, name string) error {
	language = strings.TrimSpace(language)
	name = strings.TrimSpace(name)

	if !artifact.ValidLanguage(language) {
		return fmt.Errorf("%w: %q", ErrInvalidLanguage, language)
	}
	if name == "" {
		return fmt.Errorf("voice name is required")
	}

	if m.config.Synthesis.Voices == nil {
		m.config.Synthesis.Voices = make(map[string]string)
	}
	if _, exists := m.config.Synthesis.Voices[language]; exists {
		return fmt.Errorf("%w: voice for %q", ErrDuplicateKey, language)
	}

	m.config.Synthesis.Voices[language] = name
	return Save(m.config, m.configPath)
}

// UpdateVoice replaces the voice for an already configured language
func (m *ConfigManager) UpdateVoice(language, name string) error {
	language = strings.TrimSpace(language)
	name = strings.TrimSpace(name)

	if _, exists := m.config.Synthesis.Voices[language]; !exists {
		return fmt.Errorf("%w: %q", ErrVoiceNotFound, language)
	}
	if name == "" {
		return fmt.Errorf("voice name is required")
	}

	m.config.Synthesis.Voices[language] = name
	return Save(m.config, m.configPath)
}

// RemoveVoice removes a pinned voice
func (m *ConfigManager) RemoveVoice(language string) error {
	language = strings.TrimSpace(language)
	if _, exists := m.config.Synthesis.Voices[language]; !exists {
		return fmt.Errorf("%w: %q", ErrVoiceNotFound, language)
	}

	delete(m.config.Synthesis.Voices, language)
	return Save(m.config, m.configPath)
}

// ListVoices returns all pinned voices sorted by language
func (m *ConfigManager) ListVoices() []Voice {
	result := make([]Voice, 0, len(m.config.Synthesis.Voices))
	for lang, name := range m.config.Synthesis.Voices {
		result = append(result, Voice{Language: lang, Name: name})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Language < result[j].Language
	})
	return result
}

// --- CORS origin CRUD ---

// AddOrigin allows a browser origin
func (m *ConfigManager) AddOrigin(origin string) error {
	origin = strings.TrimRight(strings.TrimSpace(origin), "/")
	if origin == "" {
		return fmt.Errorf("origin is required")
	}
	for _, o := range m.config.Server.CORSOrigins {
		if o == origin {
			return fmt.Errorf("%w: %q", ErrDuplicateOrigin, origin)
		}
	}

	m.config.Server.CORSOrigins = append(m.config.Server.CORSOrigins, origin)
	return Save(m.config, m.configPath)
}

// RemoveOrigin disallows a browser origin
func (m *ConfigManager) RemoveOrigin(origin string) error {
	origin = strings.TrimRight(strings.TrimSpace(origin), "/")
	for i, o := range m.config.Server.CORSOrigins {
		if o == origin {
			m.config.Server.CORSOrigins = append(m.config.Server.CORSOrigins[:i], m.config.Server.CORSOrigins[i+1:]...)
			return Save(m.config, m.configPath)
		}
	}
	return fmt.Errorf("%w: %q", ErrOriginNotFound, origin)
}

// ListOrigins returns the allowed browser origins
func (m *ConfigManager) ListOrigins() []string {
	return append([]string(nil), m.config.Server.CORSOrigins...)
}
