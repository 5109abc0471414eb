package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Keys used in the metadata file.
const (
	RegisteredProperty       = "registered"
	DeregisteredProperty     = "deregistered"
	ChecksumsProperty        = "checksums"
	ServiceTimestampProperty = "timestamp"
	ServiceFailureProperty   = "failure-timestamp"
	RunNeededProperty        = "run-needed"
)

// MetadataRecord - preservation state of one registered object
type MetadataRecord struct {
	Registered   time.Time
	Deregistered *time.Time
	Checksums    map[string]string
	Properties   map[string]any
	Services     map[string]*ServiceRecord
}

// ServiceRecord - run history of one preservation service for one object
type ServiceRecord struct {
	Timestamp        *time.Time
	FailureTimestamp *time.Time
	RunNeeded        bool
	Properties       map[string]any
}

// NewMetadataRecord creates a record registered at the given time.
func NewMetadataRecord(registered time.Time) *MetadataRecord {
	return &MetadataRecord{
		Registered: registered.UTC().Truncate(time.Millisecond),
		Checksums:  make(map[string]string),
		Properties: make(map[string]any),
		Services:   make(map[string]*ServiceRecord),
	}
}

func (r *MetadataRecord) IsDeregistered() bool {
	return r.Deregistered != nil
}

// Deregister marks the record deregistered at the given time.
func (r *MetadataRecord) Deregister(at time.Time) {
	t := at.UTC().Truncate(time.Millisecond)
	r.Deregistered = &t
}

// Register resets the registration window. This is the only way a deregistration is cleared.
func (r *MetadataRecord) Register(at time.Time) {
	r.Registered = at.UTC().Truncate(time.Millisecond)
	r.Deregistered = nil
}

// Service returns the record for the named service, or nil if it never ran.
func (r *MetadataRecord) Service(name string) *ServiceRecord {
	if r.Services == nil {
		return nil
	}
	return r.Services[name]
}

// AddService returns the record for the named service, creating it if needed.
func (r *MetadataRecord) AddService(name string) *ServiceRecord {
	if r.Services == nil {
		r.Services = make(map[string]*ServiceRecord)
	}
	if rec, ok := r.Services[name]; ok {
		return rec
	}
	rec := &ServiceRecord{Properties: make(map[string]any)}
	r.Services[name] = rec
	return rec
}

// Checksum looks up a digest by algorithm, case-insensitively.
func (r *MetadataRecord) Checksum(alg string) (string, bool) {
	digest, ok := r.Checksums[strings.ToLower(alg)]
	return digest, ok
}

func (r *MetadataRecord) SetChecksum(alg, digest string) {
	if r.Checksums == nil {
		r.Checksums = make(map[string]string)
	}
	r.Checksums[strings.ToLower(alg)] = digest
}

// RecordSuccess stamps a successful run and clears any pending run-needed flag.
func (s *ServiceRecord) RecordSuccess(at time.Time) {
	t := at.UTC().Truncate(time.Millisecond)
	s.Timestamp = &t
	s.RunNeeded = false
}

func (s *ServiceRecord) RecordFailure(at time.Time) {
	t := at.UTC().Truncate(time.Millisecond)
	s.FailureTimestamp = &t
}

type metadataDocument struct {
	Data     map[string]any            `yaml:"data"`
	Services map[string]map[string]any `yaml:"services"`
}

// MarshalYAML renders the record in the data/services document shape.
func (r *MetadataRecord) MarshalYAML() (any, error) {
	if r.Registered.IsZero() {
		return nil, errors.New("metadata record has no registration timestamp")
	}

	data := make(map[string]any, len(r.Properties)+3)
	for k, v := range r.Properties {
		data[k] = v
	}
	data[RegisteredProperty] = FormatTimestamp(r.Registered)
	if r.Deregistered != nil {
		data[DeregisteredProperty] = FormatTimestamp(*r.Deregistered)
	}
	if len(r.Checksums) > 0 {
		checksums := make(map[string]string, len(r.Checksums))
		for alg, digest := range r.Checksums {
			checksums[strings.ToLower(alg)] = digest
		}
		data[ChecksumsProperty] = checksums
	}

	services := make(map[string]map[string]any, len(r.Services))
	for name, rec := range r.Services {
		entry := make(map[string]any, len(rec.Properties)+3)
		for k, v := range rec.Properties {
			entry[k] = v
		}
		if rec.Timestamp != nil {
			entry[ServiceTimestampProperty] = FormatTimestamp(*rec.Timestamp)
		}
		if rec.FailureTimestamp != nil {
			entry[ServiceFailureProperty] = FormatTimestamp(*rec.FailureTimestamp)
		}
		if rec.RunNeeded {
			entry[RunNeededProperty] = true
		}
		services[name] = entry
	}

	return metadataDocument{Data: data, Services: services}, nil
}

// UnmarshalYAML reads the data/services document shape.
func (r *MetadataRecord) UnmarshalYAML(value *yaml.Node) error {
	var doc metadataDocument
	if err := value.Decode(&doc); err != nil {
		return err
	}

	rec := MetadataRecord{
		Checksums:  make(map[string]string),
		Properties: make(map[string]any),
		Services:   make(map[string]*ServiceRecord),
	}

	for key, v := range doc.Data {
		switch key {
		case RegisteredProperty:
			t, err := timestampValue(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			rec.Registered = t
		case DeregisteredProperty:
			if v == nil {
				continue
			}
			t, err := timestampValue(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			rec.Deregistered = &t
		case ChecksumsProperty:
			checksums, ok := v.(map[string]any)
			if !ok && v != nil {
				return fmt.Errorf("checksums must be a mapping")
			}
			for alg, digest := range checksums {
				rec.SetChecksum(alg, fmt.Sprint(digest))
			}
		default:
			rec.Properties[key] = v
		}
	}
	if rec.Registered.IsZero() {
		return errors.New("metadata record has no registration timestamp")
	}

	for name, entry := range doc.Services {
		svc := &ServiceRecord{Properties: make(map[string]any)}
		for key, v := range entry {
			switch key {
			case ServiceTimestampProperty, ServiceFailureProperty:
				if v == nil {
					continue
				}
				t, err := timestampValue(v)
				if err != nil {
					return fmt.Errorf("service %s %s: %w", name, key, err)
				}
				if key == ServiceTimestampProperty {
					svc.Timestamp = &t
				} else {
					svc.FailureTimestamp = &t
				}
			case RunNeededProperty:
				needed, ok := v.(bool)
				if !ok {
					return fmt.Errorf("service %s %s must be a boolean", name, key)
				}
				svc.RunNeeded = needed
			default:
				svc.Properties[key] = v
			}
		}
		rec.Services[name] = svc
	}

	*r = rec
	return nil
}
