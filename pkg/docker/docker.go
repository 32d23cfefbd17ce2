package docker

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/sirupsen/logrus"
)

// ManagedByLabel marks containers created by chbench.
const ManagedByLabel = "chbench.managed-by"

// Pull policies.
const (
	PullAlways       = "always"
	PullIfNotPresent = "if-not-present"
	PullNever        = "never"
)

// Manager runs short-lived engine containers.
type Manager interface {
	Start(ctx context.Context) error
	Stop() error

	// PullImage pulls imageName according to policy.
	PullImage(ctx context.Context, imageName string, policy string) error
	// GetImageDigest returns the "sha256:..." digest of a local image.
	GetImageDigest(ctx context.Context, imageName string) (string, error)

	// RunContainer creates and starts a container from spec, waits for it
	// to exit and copies its demultiplexed output to stdout and stderr.
	// The container is always removed. It returns the exit code.
	RunContainer(ctx context.Context, spec *ContainerSpec, stdout, stderr io.Writer) (int64, error)

	// ListContainers returns every container carrying ManagedByLabel,
	// including stopped ones left behind by an interrupted run.
	ListContainers(ctx context.Context) ([]ContainerInfo, error)
	// RemoveContainer force-removes a container.
	RemoveContainer(ctx context.Context, containerID string) error
}

// ContainerInfo describes a managed container.
type ContainerInfo struct {
	ID     string
	Name   string
	Image  string
	State  string
	Labels map[string]string
}

// ResourceLimits defines container resource constraints.
type ResourceLimits struct {
	CpusetCpus  string // Comma-separated CPU IDs (e.g., "0,1,2")
	MemoryBytes int64
}

// ContainerSpec defines container configuration.
type ContainerSpec struct {
	Name           string
	Image          string
	Entrypoint     []string
	Command        []string
	Env            map[string]string
	Mounts         []Mount
	Labels         map[string]string
	ResourceLimits *ResourceLimits
}

// Mount defines a bind mount.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// NewManager creates a new Docker manager.
func NewManager(log logrus.FieldLogger) (Manager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}

	return &manager{
		log:    log.WithField("component", "docker"),
		client: cli,
	}, nil
}

type manager struct {
	log    logrus.FieldLogger
	client *client.Client
}

// Ensure interface compliance.
var _ Manager = (*manager)(nil)

// Start checks connectivity to the Docker daemon.
func (m *manager) Start(ctx context.Context) error {
	if _, err := m.client.Ping(ctx); err != nil {
		return fmt.Errorf("connecting to docker daemon: %w", err)
	}

	m.log.Debug("Connected to Docker daemon")

	return nil
}

// Stop closes the Docker client.
func (m *manager) Stop() error {
	if err := m.client.Close(); err != nil {
		return fmt.Errorf("closing docker client: %w", err)
	}

	return nil
}

func (m *manager) RunContainer(
	ctx context.Context,
	spec *ContainerSpec,
	stdout, stderr io.Writer,
) (int64, error) {
	containerID, err := m.createContainer(ctx, spec)
	if err != nil {
		return 0, err
	}

	defer func() {
		if rmErr := m.removeContainer(context.Background(), containerID); rmErr != nil {
			m.log.WithError(rmErr).Warn("Failed to remove container")
		}
	}()

	if err := m.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return 0, fmt.Errorf("starting container %s: %w", shortID(containerID), err)
	}

	statusCh, errCh := m.client.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)

	var code int64

	select {
	case err := <-errCh:
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}

		return 0, fmt.Errorf("waiting for container: %w", err)
	case status := <-statusCh:
		code = status.StatusCode
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	reader, err := m.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return code, fmt.Errorf("getting container logs: %w", err)
	}
	defer func() { _ = reader.Close() }()

	if _, err := stdcopy.StdCopy(stdout, stderr, reader); err != nil && err != io.EOF {
		return code, fmt.Errorf("copying logs: %w", err)
	}

	return code, nil
}

func (m *manager) createContainer(ctx context.Context, spec *ContainerSpec) (string, error) {
	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	mounts := make([]mount.Mount, 0, len(spec.Mounts))

	for _, mnt := range spec.Mounts {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   mnt.Source,
			Target:   mnt.Target,
			ReadOnly: mnt.ReadOnly,
		})
	}

	labels := map[string]string{ManagedByLabel: "chbench"}
	for k, v := range spec.Labels {
		labels[k] = v
	}

	containerCfg := &container.Config{
		Image:      spec.Image,
		Env:        env,
		Labels:     labels,
		Entrypoint: spec.Entrypoint,
		Cmd:        spec.Command,
	}

	hostCfg := &container.HostConfig{
		Mounts:      mounts,
		NetworkMode: "none",
	}

	if spec.ResourceLimits != nil {
		hostCfg.CpusetCpus = spec.ResourceLimits.CpusetCpus
		hostCfg.Memory = spec.ResourceLimits.MemoryBytes
	}

	resp, err := m.client.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("creating container: %w", err)
	}

	m.log.WithField("id", shortID(resp.ID)).Debug("Created container")

	return resp.ID, nil
}

func (m *manager) ListContainers(ctx context.Context) ([]ContainerInfo, error) {
	containers, err := m.client.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", ManagedByLabel+"=chbench")),
	})
	if err != nil {
		return nil, fmt.Errorf("listing containers: %w", err)
	}

	result := make([]ContainerInfo, 0, len(containers))

	for _, c := range containers {
		var name string
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}

		result = append(result, ContainerInfo{
			ID:     c.ID,
			Name:   name,
			Image:  c.Image,
			State:  string(c.State),
			Labels: c.Labels,
		})
	}

	return result, nil
}

func (m *manager) RemoveContainer(ctx context.Context, containerID string) error {
	return m.removeContainer(ctx, containerID)
}

func (m *manager) removeContainer(ctx context.Context, containerID string) error {
	if err := m.client.ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	}); err != nil {
		return fmt.Errorf("removing container %s: %w", shortID(containerID), err)
	}

	return nil
}

// PullImage pulls a Docker image.
func (m *manager) PullImage(ctx context.Context, imageName string, policy string) error {
	log := m.log.WithField("image", imageName)

	if policy == PullNever {
		log.Debug("Skipping image pull (policy: never)")

		return nil
	}

	if policy == PullIfNotPresent {
		images, err := m.client.ImageList(ctx, image.ListOptions{
			Filters: filters.NewArgs(filters.Arg("reference", imageName)),
		})
		if err != nil {
			return fmt.Errorf("listing images: %w", err)
		}

		if len(images) > 0 {
			log.Debug("Image already exists (policy: if-not-present)")

			return nil
		}
	}

	log.Info("Pulling image")

	reader, err := m.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pulling image %s: %w", imageName, err)
	}
	defer func() { _ = reader.Close() }()

	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("reading pull response: %w", err)
	}

	log.Info("Image pulled successfully")

	return nil
}

// GetImageDigest returns the SHA256 digest of an image.
func (m *manager) GetImageDigest(ctx context.Context, imageName string) (string, error) {
	inspect, _, err := m.client.ImageInspectWithRaw(ctx, imageName)
	if err != nil {
		return "", fmt.Errorf("inspecting image: %w", err)
	}

	if len(inspect.RepoDigests) > 0 {
		digest := inspect.RepoDigests[0]
		if idx := strings.Index(digest, "sha256:"); idx != -1 {
			return digest[idx:], nil
		}

		return digest, nil
	}

	return inspect.ID, nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}

	return id
}
