// Package scenario loads a declarative network topology from a YAML
// file and applies it to a network.Scheduler, standing in for the
// original simulator's hardcoded startup test.
package scenario

import (
	"fmt"
	"net/netip"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hakeris1010/ODMRP-Sim/network"
)

// NodeSpec describes one node entry in a topology file.
type NodeSpec struct {
	IP                  string   `yaml:"ip"`
	MulticastSource     string   `yaml:"multicastSource,omitempty"`
	MulticastGroups     []string `yaml:"multicastGroups,omitempty"`
	LegacySingleNextHop bool     `yaml:"legacySingleNextHop,omitempty"`
}

// Edge is a symmetric neighbor link between two node IPs.
type Edge [2]string

// Topology is the parsed form of a scenario file: a node list and a
// set of neighbor edges to connect once every node exists.
type Topology struct {
	Nodes []NodeSpec `yaml:"nodes"`
	Edges []Edge     `yaml:"edges"`
}

// Load reads and parses a topology file at path.
func Load(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading topology %s: %w", path, err)
	}

	var t Topology
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing topology %s: %w", path, err)
	}
	return &t, nil
}

// Apply creates every node in t and connects every edge, against s. It
// fails fast on the first error, leaving whatever was already applied
// in place.
func (t *Topology) Apply(s *network.Scheduler) error {
	for _, spec := range t.Nodes {
		ip, err := netip.ParseAddr(spec.IP)
		if err != nil {
			return fmt.Errorf("node %q: %w", spec.IP, err)
		}

		ns := network.NodeSpec{IP: ip, LegacySingleNextHop: spec.LegacySingleNextHop}

		if spec.MulticastSource != "" {
			src, err := netip.ParseAddr(spec.MulticastSource)
			if err != nil {
				return fmt.Errorf("node %q multicastSource %q: %w", spec.IP, spec.MulticastSource, err)
			}
			ns.MulticastSource = src
		}

		for _, g := range spec.MulticastGroups {
			group, err := netip.ParseAddr(g)
			if err != nil {
				return fmt.Errorf("node %q multicastGroup %q: %w", spec.IP, g, err)
			}
			ns.MulticastGroups = append(ns.MulticastGroups, group)
		}

		if _, err := s.AddNode(ns); err != nil {
			return fmt.Errorf("adding node %q: %w", spec.IP, err)
		}
	}

	for _, edge := range t.Edges {
		a, err := netip.ParseAddr(edge[0])
		if err != nil {
			return fmt.Errorf("edge endpoint %q: %w", edge[0], err)
		}
		b, err := netip.ParseAddr(edge[1])
		if err != nil {
			return fmt.Errorf("edge endpoint %q: %w", edge[1], err)
		}
		if err := s.Connect(a, b); err != nil {
			return fmt.Errorf("connecting %q-%q: %w", edge[0], edge[1], err)
		}
	}

	return nil
}
