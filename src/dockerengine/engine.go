package dockerengine

import "context"

// Container is the engine-side handle for one gateway container.
type Container struct {
	ID    string
	Name  string
	Image string
	State string
}

const StateRunning = "running"

// Running reports whether the engine considers the container up.
func (c *Container) Running() bool {
	return c != nil && c.State == StateRunning
}

// CreateOptions describes a container to launch.
type CreateOptions struct {
	Name    string
	Image   string
	Env     map[string]string
	Network string
	// Volumes maps a named volume to its mount path inside the container.
	Volumes map[string]string
}

// Engine is the capability surface over the container engine that the
// gateway lifecycle manager needs. The concrete implementation talks to the
// Docker Engine API; tests substitute a fake.
type Engine interface {
	// Create launches a new container and returns its handle.
	Create(ctx context.Context, opts CreateOptions) (*Container, error)

	// Get inspects a container by name. Returns (nil, nil) when no such
	// container exists.
	Get(ctx context.Context, name string) (*Container, error)

	// Restart restarts a stopped or wedged container.
	Restart(ctx context.Context, id string) error

	// Remove deletes a container, killing it first when force is set.
	Remove(ctx context.Context, id string, force bool) error

	// ConnectNetwork attaches a container to a network under the given
	// aliases.
	ConnectNetwork(ctx context.Context, network, id string, aliases []string) error

	// ListByImage returns every container (running or not) created from the
	// given image.
	ListByImage(ctx context.Context, image string) ([]Container, error)
}
