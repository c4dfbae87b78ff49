package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	topo, err := New(Config{
		Cluster: "local",
		Nodes: []Node{
			{Name: "node1", Address: "127.0.0.1:9000"},
			{Name: "node2", Address: "127.0.0.1:9001"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "local", topo.Cluster())
	assert.Equal(t, 2, topo.Size())

	first, ok := topo.First()
	require.True(t, ok)
	assert.Equal(t, "node1", first.Name)

	n, ok := topo.Node("node2")
	require.True(t, ok)
	assert.Equal(t, "127.0.0.1:9001", n.Address)

	_, ok = topo.Node("missing")
	assert.False(t, ok)
}

func TestNewEmptyIsValid(t *testing.T) {
	topo, err := New(Config{Cluster: "local"})
	require.NoError(t, err)
	assert.Equal(t, 0, topo.Size())
	_, ok := topo.First()
	assert.False(t, ok)
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name  string
		nodes []Node
	}{
		{"missing name", []Node{{Address: "127.0.0.1:9000"}}},
		{"missing address", []Node{{Name: "node1"}}},
		{"duplicate name", []Node{
			{Name: "node1", Address: "127.0.0.1:9000"},
			{Name: "node1", Address: "127.0.0.1:9001"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Config{Nodes: tt.nodes})
			assert.Error(t, err)
		})
	}
}

func TestNodesReturnsCopy(t *testing.T) {
	topo, err := New(Config{Nodes: []Node{{Name: "node1", Address: "a"}}})
	require.NoError(t, err)

	nodes := topo.Nodes()
	nodes[0].Name = "mutated"

	fresh := topo.Nodes()
	assert.Equal(t, "node1", fresh[0].Name)
}
