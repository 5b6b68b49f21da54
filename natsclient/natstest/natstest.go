// Package natstest starts a throwaway NATS server in a container for
// integration tests.
package natstest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	natscontainer "github.com/testcontainers/testcontainers-go/modules/nats"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/c360/mavcot/natsclient"
)

// Image is the server image used by Start.
const Image = "nats:2.10-alpine"

// Server is a running NATS container.
type Server struct {
	URL       string
	container *natscontainer.NATSContainer
}

// Start runs a NATS container and terminates it when t finishes.
// It skips the test in -short mode.
func Start(t *testing.T) *Server {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping NATS container in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	c, err := natscontainer.Run(ctx, Image,
		testcontainers.WithWaitStrategy(wait.ForLog("Server is ready")),
	)
	require.NoError(t, err, "start NATS container")
	t.Cleanup(func() {
		if err := c.Terminate(context.Background()); err != nil {
			t.Logf("terminate NATS container: %v", err)
		}
	})

	url, err := c.ConnectionString(ctx)
	require.NoError(t, err)

	return &Server{URL: url, container: c}
}

// Client returns a connected client that is closed when t finishes.
func (s *Server) Client(t *testing.T, opts ...natsclient.ClientOption) *natsclient.Client {
	t.Helper()

	c, err := natsclient.NewClient(s.URL, opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Close(ctx)
	})
	return c
}
