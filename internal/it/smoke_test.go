package it

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pollux/internal/cell"
)

func startCluster(t *testing.T) (*Cluster, context.Context) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	binaryPath := "./pollux"
	if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
		t.Skip("Binary not found, skipping integration test. Build with: go build -o internal/it/pollux ./cmd/pollux")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	cluster, err := NewCluster(binaryPath)
	require.NoError(t, err)
	t.Cleanup(cluster.Stop)

	require.NoError(t, cluster.StartCluster(ctx), "Failed to start cluster")
	return cluster, ctx
}

func TestSmoke_ClusterConverges(t *testing.T) {
	cluster, ctx := startCluster(t)
	names := []string{"n1", "n2", "n3"}

	require.Eventually(t, func() bool {
		for _, viewer := range names {
			for _, subject := range names {
				status, err := cluster.StatusOf(ctx, cluster.GetNode(viewer), cluster.GetNode(subject).ID)
				if err != nil || status != cell.Active {
					return false
				}
			}
		}
		return true
	}, 20*time.Second, 250*time.Millisecond)
}

func TestSmoke_GracefulStopIsGone(t *testing.T) {
	cluster, ctx := startCluster(t)
	leaving := cluster.GetNode("n3").ID

	require.NoError(t, cluster.StopNode("n3"))

	require.Eventually(t, func() bool {
		for _, name := range []string{"n1", "n2"} {
			status, err := cluster.StatusOf(ctx, cluster.GetNode(name), leaving)
			if err != nil || status != cell.Gone {
				return false
			}
		}
		return true
	}, 10*time.Second, 250*time.Millisecond)
}

func TestSmoke_KilledNodeIsSuspected(t *testing.T) {
	cluster, ctx := startCluster(t)
	n1 := cluster.GetNode("n1")
	killed := cluster.GetNode("n2").ID

	require.Eventually(t, func() bool {
		status, err := cluster.StatusOf(ctx, n1, killed)
		return err == nil && status == cell.Active
	}, 20*time.Second, 250*time.Millisecond)

	require.NoError(t, cluster.KillNode("n2"))

	// Default suspect timeout is 3s, gone timeout 10s
	require.Eventually(t, func() bool {
		status, err := cluster.StatusOf(ctx, n1, killed)
		return err == nil && (status == cell.Inactive || status == cell.Gone)
	}, 15*time.Second, 250*time.Millisecond)

	status, err := cluster.StatusOf(ctx, n1, killed)
	require.NoError(t, err)
	assert.NotEqual(t, cell.Active, status)
}
