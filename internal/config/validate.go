package config

import (
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zpreserve/internal/digest"
	"github.com/zzenonn/zpreserve/internal/domain"
	zerrors "github.com/zzenonn/zpreserve/internal/errors"
)

var locationTypes = map[string]bool{"filesystem": true, "s3": true, "gcs": true}

var knownEvents = map[string]bool{
	domain.EventRegister:   true,
	domain.EventPreserve:   true,
	domain.EventDeregister: true,
}

// Validate normalizes the configuration and ensures it is usable. Service periods are parsed
// into ServiceDefinitions.
func (c *Config) Validate() error {
	if err := c.validateLogLevel(); err != nil {
		return err
	}
	if err := c.validateLocations(); err != nil {
		return err
	}
	if err := c.validateServices(); err != nil {
		return err
	}
	if err := c.validateMappings(); err != nil {
		return err
	}
	return c.validateIndex()
}

func (c *Config) validateLogLevel() error {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return zerrors.ConfigurationError("log_level: %v", err)
	}
	return nil
}

func (c *Config) validateLocations() error {
	for name, loc := range c.Locations {
		if strings.TrimSpace(loc.Path) == "" {
			return zerrors.ConfigNotSetError("locations." + name + ".path")
		}
		if strings.TrimSpace(loc.MetadataPath) == "" {
			return zerrors.ConfigNotSetError("locations." + name + ".metadata_path")
		}

		loc.Type = strings.ToLower(strings.TrimSpace(loc.Type))
		if loc.Type == "" {
			loc.Type = inferLocationType(loc.Path)
		}
		if !locationTypes[loc.Type] {
			return zerrors.ConfigurationError("locations.%s.type: unsupported type %q", name, loc.Type)
		}

		digests := make([]string, 0, len(loc.MetadataDigests))
		for _, alg := range loc.MetadataDigests {
			normalized, err := digest.Normalize(alg)
			if err != nil {
				return zerrors.ConfigurationError("locations.%s.metadata_digests: %v", name, err)
			}
			digests = append(digests, normalized)
		}
		loc.MetadataDigests = digests
		c.Locations[name] = loc
	}
	return nil
}

func inferLocationType(path string) string {
	switch {
	case strings.HasPrefix(path, "gs://"):
		return "gcs"
	case strings.HasPrefix(path, "s3://"), strings.HasPrefix(path, "https://"), strings.HasPrefix(path, "http://"):
		return "s3"
	default:
		return "filesystem"
	}
}

func (c *Config) validateServices() error {
	defs := make([]domain.ServiceDefinition, 0, len(c.Services))
	for name, svc := range c.Services {
		def := domain.ServiceDefinition{
			Name:       name,
			WorkScript: svc.WorkScript,
			Properties: svc.Properties,
		}

		if svc.Delay != "" {
			d, err := domain.ParseDuration(svc.Delay)
			if err != nil {
				return zerrors.ConfigurationError("services.%s.delay: %v", name, err)
			}
			def.Delay = d
		}
		if svc.Frequency != "" {
			d, err := domain.ParseDuration(svc.Frequency)
			if err != nil {
				return zerrors.ConfigurationError("services.%s.frequency: %v", name, err)
			}
			def.Frequency = d
		}

		for _, event := range svc.Events {
			event = strings.ToLower(strings.TrimSpace(event))
			if !knownEvents[event] {
				return zerrors.ConfigurationError("services.%s.events: unknown event %q", name, event)
			}
			def.Events = append(def.Events, event)
		}
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	c.ServiceDefinitions = defs
	return nil
}

func (c *Config) validateMappings() error {
	for i, m := range c.ServiceMappings {
		for _, name := range m.Locations {
			if _, ok := c.Locations[name]; !ok {
				return zerrors.ConfigurationError("service_mappings[%d]: undefined location %q", i, name)
			}
		}
		for _, name := range m.Services {
			if _, ok := c.Services[name]; !ok {
				return zerrors.ConfigurationError("service_mappings[%d]: undefined service %q", i, name)
			}
		}
	}
	return nil
}

func (c *Config) validateIndex() error {
	c.Index.Driver = strings.ToLower(strings.TrimSpace(c.Index.Driver))
	switch c.Index.Driver {
	case "", IndexDriverNone:
		c.Index.Driver = IndexDriverNone
	case IndexDriverSQLite:
		if c.Index.Path == "" {
			return zerrors.ConfigNotSetError("index.path")
		}
	case IndexDriverDynamoDB:
		if c.Index.Table == "" {
			return zerrors.ConfigNotSetError("index.table")
		}
	default:
		return zerrors.ConfigurationError("index.driver: unsupported driver %q", c.Index.Driver)
	}
	if c.Index.PageSize < 1 {
		return zerrors.ConfigurationError("index.page_size must be positive, got %d", c.Index.PageSize)
	}
	return nil
}
