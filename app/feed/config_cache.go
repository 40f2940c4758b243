package feed

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	sourcesFileName = "sources.yml"
	topicsDirName   = "topics"

	defaultSourceTimeout = 30
	defaultSourceKind    = "rss"
)

type sourcesFile struct {
	Sources map[string]*SourceConfig `yaml:"sources"`
}

// ConfigCache holds the source catalogue and the topic definitions read from
// the config directory:
//
//	<dir>/sources.yml
//	<dir>/topics/<topic>.yml
type ConfigCache struct {
	configDir string
	sources   map[string]*SourceConfig
	topics    map[string]*TopicConfig
	mu        sync.RWMutex
}

func NewConfigCache(configDir string) *ConfigCache {
	return &ConfigCache{
		configDir: configDir,
		sources:   make(map[string]*SourceConfig),
		topics:    make(map[string]*TopicConfig),
	}
}

func (cc *ConfigCache) Run() error {
	if _, err := os.Stat(cc.configDir); os.IsNotExist(err) {
		return nil
	}

	if err := cc.LoadSources(); err != nil {
		return err
	}

	files, err := filepath.Glob(filepath.Join(cc.configDir, topicsDirName, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		topicName := strings.TrimSuffix(filepath.Base(file), ".yml")

		topic, err := cc.LoadTopic(topicName)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Topic loaded", "topic", topicName, "enabled", topic.IsEnabled(), "sections", len(topic.SectionKeys()))
	}

	return nil
}

func (cc *ConfigCache) LoadSources() error {
	path := filepath.Join(cc.configDir, sourcesFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read file: %w", err)
	}

	var file sourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	for key, source := range file.Sources {
		if source == nil {
			return fmt.Errorf("invalid config %s: source %q is empty", path, key)
		}
		source.Key = key
		applySourceDefaults(source)

		if err := validateSource(source); err != nil {
			return fmt.Errorf("invalid config %s: %w", path, err)
		}
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.sources = file.Sources
	if cc.sources == nil {
		cc.sources = make(map[string]*SourceConfig)
	}

	return nil
}

func (cc *ConfigCache) LoadTopic(topicName string) (*TopicConfig, error) {
	path := filepath.Join(cc.configDir, topicsDirName, topicName+".yml")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var topic TopicConfig
	if err := yaml.Unmarshal(data, &topic); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	topic.Name = topicName
	if topic.MaxItems == 0 {
		topic.MaxItems = DefaultTopicMaxItems
	}
	if topic.Title == "" {
		topic.Title = topicName
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()

	if err := cc.validateTopic(&topic); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	cc.topics[topic.Name] = &topic

	return &topic, nil
}

func (cc *ConfigCache) GetTopic(name string) (*TopicConfig, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	topic, ok := cc.topics[name]
	if !ok {
		return nil, fmt.Errorf("topic config with name '%s' not found", name)
	}
	return topic, nil
}

func (cc *ConfigCache) GetTopics() map[string]*TopicConfig {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	topicsCopy := make(map[string]*TopicConfig, len(cc.topics))
	for k, v := range cc.topics {
		topicsCopy[k] = v
	}
	return topicsCopy
}

func (cc *ConfigCache) GetEnabledTopics() map[string]*TopicConfig {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	enabled := make(map[string]*TopicConfig)
	for k, v := range cc.topics {
		if v.IsEnabled() {
			enabled[k] = v
		}
	}
	return enabled
}

func (cc *ConfigCache) GetTopicCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.topics)
}

func (cc *ConfigCache) GetSources() map[string]*SourceConfig {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	sourcesCopy := make(map[string]*SourceConfig, len(cc.sources))
	for k, v := range cc.sources {
		sourcesCopy[k] = v
	}
	return sourcesCopy
}

func (cc *ConfigCache) GetSource(name string) (*SourceConfig, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	source, ok := cc.sources[name]
	if !ok {
		return nil, fmt.Errorf("source config with name '%s' not found", name)
	}
	return source, nil
}

// SectionKeys lists the topic's (source, section) pairs in a stable order.
func (t *TopicConfig) SectionKeys() []SectionKey {
	sources := make([]string, 0, len(t.Sources))
	for source := range t.Sources {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	var keys []SectionKey
	for _, source := range sources {
		for _, section := range t.Sources[source] {
			keys = append(keys, SectionKey{Source: source, Section: section})
		}
	}
	return keys
}

func applySourceDefaults(source *SourceConfig) {
	if source.Name == "" {
		source.Name = source.Key
	}
	if source.Kind == "" {
		source.Kind = defaultSourceKind
	}
	if source.Timeout == 0 {
		source.Timeout = defaultSourceTimeout
	}
	for key, section := range source.Sections {
		if section == nil {
			section = &SectionConfig{}
			source.Sections[key] = section
		}
		section.Key = key
		if section.Name == "" {
			section.Name = key
		}
	}
}

func validateSource(source *SourceConfig) error {
	switch source.Kind {
	case "rss", "html":
	default:
		return fmt.Errorf("source %q: unsupported kind %q", source.Key, source.Kind)
	}

	if source.Timeout < 0 {
		return fmt.Errorf("source %q: timeout must be non-negative", source.Key)
	}
	if len(source.Sections) == 0 {
		return fmt.Errorf("source %q: at least one section is required", source.Key)
	}

	for key, section := range source.Sections {
		if section.URL == "" {
			return fmt.Errorf("section %s/%s: url is required", source.Key, key)
		}
		if section.MaxItems < 0 {
			return fmt.Errorf("section %s/%s: max items must be non-negative", source.Key, key)
		}
	}

	return nil
}

// validateTopic must be called with cc.mu held.
func (cc *ConfigCache) validateTopic(topic *TopicConfig) error {
	if topic.MaxItems < 0 {
		return fmt.Errorf("max items must be non-negative")
	}
	if topic.ItemsPerSection < 0 {
		return fmt.Errorf("items per section must be non-negative")
	}
	if len(topic.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}

	for sourceName, sections := range topic.Sources {
		source, ok := cc.sources[sourceName]
		if !ok {
			return fmt.Errorf("unknown source %q", sourceName)
		}
		if len(sections) == 0 {
			return fmt.Errorf("source %q lists no sections", sourceName)
		}
		for _, section := range sections {
			if _, ok := source.Sections[section]; !ok {
				return fmt.Errorf("unknown section %q for source %q", section, sourceName)
			}
		}
	}

	return nil
}
