package mesh_test

import (
	"testing"

	"github.com/relaysix/sshx/internal/mesh"
	"github.com/stretchr/testify/assert"
)

func TestRegisterAndOwner(t *testing.T) {
	m := mesh.NewRegistry()

	_, ok := m.Owner("abc123")
	assert.False(t, ok)

	m.Register("abc123", "replica-1")
	replica, ok := m.Owner("abc123")
	assert.True(t, ok)
	assert.Equal(t, "replica-1", replica)
}

func TestRegisterOverwritesOwner(t *testing.T) {
	m := mesh.NewRegistry()

	m.Register("abc123", "replica-1")
	m.Register("abc123", "replica-2")

	replica, ok := m.Owner("abc123")
	assert.True(t, ok)
	assert.Equal(t, "replica-2", replica)
}

func TestDeregister(t *testing.T) {
	m := mesh.NewRegistry()

	m.Register("abc123", "replica-1")
	m.Deregister("abc123")

	_, ok := m.Owner("abc123")
	assert.False(t, ok)
}
