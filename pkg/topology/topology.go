// Package topology describes the backend storage cluster the host fronts.
//
// The topology is loaded once from configuration before assembly and passed
// to the Router and StorageService factories, which use it to locate backend
// nodes. The host itself never interprets node contents.
package topology

import (
	"fmt"
	"strings"
)

// Node is one addressable member of the backend cluster.
type Node struct {
	// Name is the logical node name, unique within the cluster.
	Name string `mapstructure:"name" yaml:"name"`

	// Address is the host:port or URL the node is reachable at.
	Address string `mapstructure:"address" yaml:"address"`
}

// Config is the topology section of the host configuration.
type Config struct {
	// Cluster is the logical cluster name, used for logging only.
	Cluster string `mapstructure:"cluster" yaml:"cluster"`

	// Nodes lists the backend nodes. May be empty for backends that need
	// no addressing (for example the in-memory router).
	Nodes []Node `mapstructure:"nodes" yaml:"nodes"`
}

// Topology is the immutable, validated view of the backend cluster.
type Topology struct {
	cluster string
	nodes   []Node
	byName  map[string]Node
}

// New validates cfg and builds a Topology. Node names must be unique and
// every listed node must carry an address.
func New(cfg Config) (*Topology, error) {
	byName := make(map[string]Node, len(cfg.Nodes))
	for i, n := range cfg.Nodes {
		if strings.TrimSpace(n.Name) == "" {
			return nil, fmt.Errorf("topology: node #%d has no name", i+1)
		}
		if strings.TrimSpace(n.Address) == "" {
			return nil, fmt.Errorf("topology: node %q has no address", n.Name)
		}
		if _, dup := byName[n.Name]; dup {
			return nil, fmt.Errorf("topology: duplicate node name %q", n.Name)
		}
		byName[n.Name] = n
	}

	nodes := make([]Node, len(cfg.Nodes))
	copy(nodes, cfg.Nodes)

	return &Topology{
		cluster: cfg.Cluster,
		nodes:   nodes,
		byName:  byName,
	}, nil
}

// Cluster returns the logical cluster name.
func (t *Topology) Cluster() string {
	return t.cluster
}

// Nodes returns a copy of the node list in configuration order.
func (t *Topology) Nodes() []Node {
	nodes := make([]Node, len(t.nodes))
	copy(nodes, t.nodes)
	return nodes
}

// Node looks up a node by name.
func (t *Topology) Node(name string) (Node, bool) {
	n, ok := t.byName[name]
	return n, ok
}

// First returns the first configured node, or false when the topology is
// empty. Routers that take a single entry point use this as their default.
func (t *Topology) First() (Node, bool) {
	if len(t.nodes) == 0 {
		return Node{}, false
	}
	return t.nodes[0], true
}

// Size returns the number of nodes.
func (t *Topology) Size() int {
	return len(t.nodes)
}
