package metrics

import (
	"sync"
	"time"
)

// HealthStatus is the payload served by the health and readiness
// endpoints. Status is "healthy"/"unhealthy" for liveness and
// "ready"/"not_ready" for readiness.
type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
	StartTime  time.Time         `json:"-"`
}

// Readiness gates on these; a coordinator that cannot reach its store
// or has not bound its listener must not receive traffic.
var criticalComponents = []string{"store", "api"}

type componentState struct {
	healthy bool
	message string
	updated time.Time
}

type healthTracker struct {
	mu         sync.RWMutex
	components map[string]componentState
	startTime  time.Time
	version    string
}

var tracker = &healthTracker{
	components: make(map[string]componentState),
	startTime:  time.Now(),
}

// SetVersion records the build version reported in health responses.
func SetVersion(version string) {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	tracker.version = version
}

// RegisterComponent records the current health of a named component.
// Registering an existing name overwrites its state.
func RegisterComponent(name string, healthy bool, message string) {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	tracker.components[name] = componentState{
		healthy: healthy,
		message: message,
		updated: time.Now(),
	}
}

// UpdateComponent is an alias for RegisterComponent kept for call-site
// readability: Register at startup, Update on state changes.
func UpdateComponent(name string, healthy bool, message string) {
	RegisterComponent(name, healthy, message)
}

// GetHealth reports liveness: unhealthy if any registered component
// is unhealthy, healthy otherwise (including with zero components).
func GetHealth() HealthStatus {
	tracker.mu.RLock()
	defer tracker.mu.RUnlock()

	status := "healthy"
	components := make(map[string]string)
	for name, comp := range tracker.components {
		if comp.healthy {
			components[name] = "healthy"
			continue
		}
		status = "unhealthy"
		components[name] = "unhealthy: " + comp.message
	}
	return tracker.status(status, "", components)
}

// GetReadiness reports whether the critical components are all
// registered and healthy. Missing components count as not ready so a
// node is never routable before initialization finishes.
func GetReadiness() HealthStatus {
	tracker.mu.RLock()
	defer tracker.mu.RUnlock()

	status := "ready"
	message := ""
	components := make(map[string]string)
	for _, name := range criticalComponents {
		comp, ok := tracker.components[name]
		switch {
		case !ok:
			status = "not_ready"
			message = "waiting for " + name + " initialization"
			components[name] = "not registered"
		case !comp.healthy:
			status = "not_ready"
			message = "waiting for " + name
			components[name] = "not ready: " + comp.message
		default:
			components[name] = "ready"
		}
	}
	return tracker.status(status, message, components)
}

// status assembles a response; callers hold at least a read lock.
func (t *healthTracker) status(status, message string, components map[string]string) HealthStatus {
	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Message:    message,
		Version:    t.version,
		Uptime:     time.Since(t.startTime).String(),
		StartTime:  t.startTime,
	}
}
