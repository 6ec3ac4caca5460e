// Package responder holds the responder-side state the codec itself
// stays free of: the registry of services this host answers for, the
// conflict tiebreak, and response construction.
package responder

import (
	"fmt"
	"sync"
)

// Service is one registered service instance as the registry stores it.
type Service struct {
	InstanceName string
	ServiceType  string
	Port         int
	TXT          map[string]string
}

// Registry is the thread-safe set of services this responder is
// authoritative for, keyed by instance name. Reads dominate (every
// inbound query consults it), so it uses an RWMutex.
type Registry struct {
	mu       sync.RWMutex
	services map[string]*Service
}

func NewRegistry() *Registry {
	return &Registry{
		services: make(map[string]*Service),
	}
}

// Register adds a service, rejecting duplicates by instance name.
func (r *Registry) Register(service *Service) error {
	if service == nil {
		return fmt.Errorf("cannot register nil service")
	}
	if service.InstanceName == "" {
		return fmt.Errorf("service InstanceName cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.services[service.InstanceName]; exists {
		return fmt.Errorf("service with InstanceName %q already registered", service.InstanceName)
	}
	r.services[service.InstanceName] = service
	return nil
}

// Get looks a service up by instance name.
func (r *Registry) Get(instanceName string) (*Service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	service, exists := r.services[instanceName]
	return service, exists
}

// Remove deletes a service, erroring if it was never registered.
func (r *Registry) Remove(instanceName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.services[instanceName]; !exists {
		return fmt.Errorf("service with InstanceName %q not found", instanceName)
	}
	delete(r.services, instanceName)
	return nil
}

// List returns the instance names of every registered service.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	return names
}

// ListServiceTypes returns the distinct service types registered — the
// answer set for an RFC 6763 §9 "_services._dns-sd._udp.local"
// enumeration query, which asks for types, not instances.
func (r *Registry) ListServiceTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	types := make([]string, 0, len(r.services))
	for _, service := range r.services {
		if !seen[service.ServiceType] {
			seen[service.ServiceType] = true
			types = append(types, service.ServiceType)
		}
	}
	return types
}
