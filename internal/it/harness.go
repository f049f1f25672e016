package it

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"pollux/internal/cell"
	"pollux/internal/identity"
	"pollux/internal/transport"
)

// Cluster represents a test cluster of pollux processes
type Cluster struct {
	nodes      []*Node
	logDir     string
	binaryPath string
	client     *transport.Client
	mu         sync.Mutex
}

// Node represents a single cell process in the test cluster
type Node struct {
	Name     string
	ID       identity.ID
	Endpoint netip.AddrPort
	cmd      *exec.Cmd
	logFile  *os.File
}

// NewCluster creates a new test cluster harness
func NewCluster(binaryPath string) (*Cluster, error) {
	logDir := filepath.Join(".local", "it-logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return &Cluster{
		nodes:      make([]*Node, 0),
		logDir:     logDir,
		binaryPath: binaryPath,
		client:     transport.NewClient(identity.New()),
	}, nil
}

// StartNode starts a single cell that joins through seeds
func (c *Cluster) StartNode(ctx context.Context, name string, port int, seeds []netip.AddrPort) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := identity.New()
	endpoint := netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), uint16(port))

	seedStrs := make([]string, 0, len(seeds))
	for _, s := range seeds {
		seedStrs = append(seedStrs, s.String())
	}

	logPath := filepath.Join(c.logDir, fmt.Sprintf("%s.log", name))
	logFile, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	args := []string{
		"start",
		"--id", id.String(),
		"--endpoint", endpoint.String(),
		"--log-level", "debug",
	}
	if len(seedStrs) > 0 {
		args = append(args, "--seeds", strings.Join(seedStrs, ","))
	}

	// Not bound to ctx so StopNode can deliver SIGTERM
	cmd := exec.Command(c.binaryPath, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return fmt.Errorf("failed to start node %s: %w", name, err)
	}

	node := &Node{
		Name:     name,
		ID:       id,
		Endpoint: endpoint,
		cmd:      cmd,
		logFile:  logFile,
	}
	c.nodes = append(c.nodes, node)

	// Wait for node to be ready
	if err := c.waitForReady(ctx, node, 10*time.Second); err != nil {
		node.kill()
		return fmt.Errorf("node %s failed to become ready: %w", name, err)
	}

	return nil
}

// waitForReady polls the node until it reports itself Active
func (c *Cluster) waitForReady(ctx context.Context, node *Node, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if time.Now().After(deadline) {
				return fmt.Errorf("timeout waiting for node %s to be ready", node.Name)
			}

			members, err := c.Members(ctx, node)
			if err != nil {
				continue
			}
			for _, m := range members {
				if m.ID == node.ID && m.Status == cell.Active {
					return nil
				}
			}
		}
	}
}

// Members fetches the membership table of node
func (c *Cluster) Members(ctx context.Context, node *Node) ([]cell.Metadata, error) {
	callCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.client.Sync(callCtx, node.Endpoint, nil)
}

// StatusOf returns node's view of the cell id
func (c *Cluster) StatusOf(ctx context.Context, node *Node, id identity.ID) (cell.Status, error) {
	members, err := c.Members(ctx, node)
	if err != nil {
		return cell.Unknown, err
	}
	for _, m := range members {
		if m.ID == id {
			return m.Status, nil
		}
	}
	return cell.Unknown, nil
}

// Stop stops all nodes in the cluster
func (c *Cluster) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, node := range c.nodes {
		node.kill()
	}
	c.nodes = nil
	c.client.Close()
}

// StartCluster starts a 3-cell cluster where n2 and n3 join through n1
func (c *Cluster) StartCluster(ctx context.Context) error {
	if c.binaryPath == "" {
		c.binaryPath = "./pollux"
	}
	if _, err := os.Stat(c.binaryPath); os.IsNotExist(err) {
		return fmt.Errorf("binary not found at %s, build it first with 'go build -o pollux ./cmd/pollux'", c.binaryPath)
	}

	basePort := 47946
	seed := netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), uint16(basePort))

	for i := 1; i <= 3; i++ {
		name := fmt.Sprintf("n%d", i)
		var seeds []netip.AddrPort
		if i > 1 {
			seeds = []netip.AddrPort{seed}
		}

		if err := c.StartNode(ctx, name, basePort+i-1, seeds); err != nil {
			c.Stop()
			return fmt.Errorf("failed to start node %s: %w", name, err)
		}
	}

	return nil
}

// GetNode returns a node by name
func (c *Cluster) GetNode(name string) *Node {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, n := range c.nodes {
		if n.Name == name {
			return n
		}
	}
	return nil
}

// KillNode kills a node without letting it leave
func (c *Cluster) KillNode(name string) error {
	node := c.GetNode(name)
	if node == nil {
		return fmt.Errorf("node %s not found", name)
	}
	node.kill()
	return nil
}

// StopNode asks a node to shut down gracefully, which announces its departure
func (c *Cluster) StopNode(name string) error {
	node := c.GetNode(name)
	if node == nil {
		return fmt.Errorf("node %s not found", name)
	}
	if err := node.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to signal node %s: %w", name, err)
	}
	if err := node.cmd.Wait(); err != nil {
		return fmt.Errorf("node %s exited with error: %w", name, err)
	}
	node.logFile.Close()
	return nil
}

func (n *Node) kill() {
	if n.cmd != nil && n.cmd.Process != nil && n.cmd.ProcessState == nil {
		n.cmd.Process.Kill()
		n.cmd.Wait()
	}
	if n.logFile != nil {
		n.logFile.Close()
	}
}
