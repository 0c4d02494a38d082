// Package machine provides the machine registry: the set of remote hosts
// that may be running agent sessions reachable over SSH.
//
// The registry is loaded from a YAML file (machines.yaml) listing one entry
// per machine. Lookups are by machine name, the part after "@" in a
// "session@machine" identifier.
package machine

import (
	"errors"
	"fmt"
	"os"
	"strings"

	yaml "go.yaml.in/yaml/v2"
)

// ErrNotFound is returned by Lookup when a machine name is not in the registry.
var ErrNotFound = errors.New("machine not found in registry")

// Machine describes one SSH-reachable host.
type Machine struct {
	// Name is the registry key (e.g., "buildbox").
	Name string `yaml:"name"`

	// Host is the hostname or IP to connect to.
	Host string `yaml:"host"`

	// User is the SSH login user. Empty means the current user.
	User string `yaml:"user,omitempty"`

	// Port is the SSH port. Zero means the SSH default (22).
	Port int `yaml:"port,omitempty"`
}

// SSHTarget renders the user@host argument for ssh.
func (m *Machine) SSHTarget() string {
	if m.User == "" {
		return m.Host
	}
	return m.User + "@" + m.Host
}

// registryFile is the on-disk YAML structure.
type registryFile struct {
	Machines []Machine `yaml:"machines"`
}

// Registry maps machine names to their connection details.
type Registry struct {
	machines map[string]Machine
}

// Load reads a registry from a YAML file. A missing file yields an empty
// registry rather than an error: a purely local setup has no machines file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Registry{machines: map[string]Machine{}}, nil
		}
		return nil, fmt.Errorf("reading machines file: %w", err)
	}
	return Parse(data)
}

// Parse builds a registry from YAML bytes.
func Parse(data []byte) (*Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing machines file: %w", err)
	}

	machines := make(map[string]Machine, len(file.Machines))
	for _, m := range file.Machines {
		name := strings.TrimSpace(m.Name)
		if name == "" {
			return nil, fmt.Errorf("machine entry missing name (host: %q)", m.Host)
		}
		if strings.TrimSpace(m.Host) == "" {
			return nil, fmt.Errorf("machine %q missing host", name)
		}
		if _, dup := machines[name]; dup {
			return nil, fmt.Errorf("duplicate machine name %q", name)
		}
		m.Name = name
		machines[name] = m
	}
	return &Registry{machines: machines}, nil
}

// Lookup returns the machine with the given name, or ErrNotFound.
func (r *Registry) Lookup(name string) (*Machine, error) {
	m, ok := r.machines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return &m, nil
}

// Names returns all registered machine names. Order is not defined.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.machines))
	for name := range r.machines {
		names = append(names, name)
	}
	return names
}
