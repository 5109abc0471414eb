package service

import (
	"time"

	"github.com/zzenonn/zpreserve/internal/domain"
)

// NextRunTime computes when def must next run for the object described by md. The second
// result is false when the service is never due again.
//
// A service that has never run is due at registration, postponed by its delay. Once it has
// run, it is due one frequency after the last success, or never when no frequency is set.
// A pending run-needed flag makes the service due from registration onward.
func NextRunTime(def domain.ServiceDefinition, md *domain.MetadataRecord) (time.Time, bool) {
	if md == nil || md.IsDeregistered() {
		return time.Time{}, false
	}

	svc := md.Service(def.Name)
	if svc != nil && svc.RunNeeded {
		return md.Registered, true
	}
	if svc == nil || svc.Timestamp == nil {
		return md.Registered.Add(def.Delay), true
	}
	if def.Frequency <= 0 {
		return time.Time{}, false
	}
	return svc.Timestamp.Add(def.Frequency), true
}

// ServiceDue reports whether def must run at now.
func ServiceDue(def domain.ServiceDefinition, md *domain.MetadataRecord, now time.Time) bool {
	next, ok := NextRunTime(def, md)
	if !ok {
		return false
	}
	return !next.After(now)
}
