// Package docker launches services as containers through a local Docker
// daemon, delegating process lifetime to the engine instead of holding child
// processes of our own.
package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/stackwatch/warden/internal/launcher"
)

const serviceLabel = "com.stackwatch.warden.service"

type launcherImpl struct {
	client     *client.Client
	clientOnce sync.Once
	clientErr  error
}

// New returns a Docker backed launcher implementation.
func New() launcher.Launcher {
	return &launcherImpl{}
}

func (l *launcherImpl) getClient() (*client.Client, error) {
	l.clientOnce.Do(func() {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			l.clientErr = err
			return
		}
		l.client = cli
	})
	return l.client, l.clientErr
}

func (l *launcherImpl) Start(ctx context.Context, spec launcher.StartSpec) (launcher.Handle, error) {
	if spec.Image == "" {
		return nil, errors.New("docker launcher requires an image")
	}
	cli, err := l.getClient()
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	if err := ensureImage(ctx, cli, spec.Image); err != nil {
		return nil, err
	}

	containerCfg, hostCfg, err := buildConfigs(spec)
	if err != nil {
		return nil, err
	}

	createResp, err := cli.ContainerCreate(ctx, containerCfg, hostCfg, &network.NetworkingConfig{}, nil, "")
	if err != nil {
		return nil, fmt.Errorf("container create: %w", err)
	}
	containerID := createResp.ID

	if err := cli.ContainerStart(ctx, containerID, types.ContainerStartOptions{}); err != nil {
		return nil, fmt.Errorf("container start: %w", err)
	}

	h := &handle{cli: cli, id: containerID}
	h.resolvePID(ctx)
	return h, nil
}

func (l *launcherImpl) Attach(ctx context.Context, spec launcher.StartSpec, ref string) (launcher.Handle, error) {
	if ref == "" {
		return nil, errors.New("docker launcher requires a container id to attach")
	}
	cli, err := l.getClient()
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	h := &handle{cli: cli, id: ref}
	h.resolvePID(ctx)
	return h, nil
}

func ensureImage(ctx context.Context, cli *client.Client, imageName string) error {
	_, _, err := cli.ImageInspectWithRaw(ctx, imageName)
	if err == nil {
		return nil
	}
	if !client.IsErrNotFound(err) {
		return fmt.Errorf("inspect image: %w", err)
	}
	reader, err := cli.ImagePull(ctx, imageName, types.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("pull image: %w", err)
	}
	defer reader.Close()
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("pull image: %w", err)
	}
	return nil
}

func buildConfigs(spec launcher.StartSpec) (*container.Config, *container.HostConfig, error) {
	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(env)

	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for _, portSpec := range spec.Ports {
		mappings, err := nat.ParsePortSpec(portSpec)
		if err != nil {
			return nil, nil, fmt.Errorf("parse port %q: %w", portSpec, err)
		}
		for _, mapping := range mappings {
			exposed[mapping.Port] = struct{}{}
			bindings[mapping.Port] = append(bindings[mapping.Port], mapping.Binding)
		}
	}

	var cmdSlice []string
	if len(spec.Command) > 0 {
		cmdSlice = append([]string(nil), spec.Command...)
	}

	config := &container.Config{
		Image:        spec.Image,
		Env:          env,
		Cmd:          strslice.StrSlice(cmdSlice),
		WorkingDir:   spec.Workdir,
		ExposedPorts: exposed,
		Labels:       map[string]string{serviceLabel: spec.Name},
	}
	host := &container.HostConfig{
		PortBindings: bindings,
		// The supervisor cycles containers on restart; auto-removal keeps
		// exited ones from piling up.
		AutoRemove: true,
	}
	return config, host, nil
}

type handle struct {
	cli *client.Client
	id  string
	pid int
}

func (h *handle) resolvePID(ctx context.Context) {
	inspect, err := h.cli.ContainerInspect(ctx, h.id)
	if err != nil || inspect.State == nil {
		return
	}
	h.pid = inspect.State.Pid
}

func (h *handle) Ref() string {
	return h.id
}

func (h *handle) PID() int {
	return h.pid
}

func (h *handle) Alive(ctx context.Context) bool {
	inspect, err := h.cli.ContainerInspect(ctx, h.id)
	if err != nil || inspect.State == nil {
		return false
	}
	return inspect.State.Running
}

func (h *handle) Stop(ctx context.Context, grace time.Duration) error {
	opts := container.StopOptions{}
	if grace > 0 {
		seconds := int(grace / time.Second)
		if seconds < 1 {
			seconds = 1
		}
		opts.Timeout = &seconds
	}
	err := h.cli.ContainerStop(ctx, h.id, opts)
	if err == nil || client.IsErrNotFound(err) {
		return nil
	}
	killErr := h.cli.ContainerKill(ctx, h.id, "SIGKILL")
	if killErr != nil && !client.IsErrNotFound(killErr) {
		return fmt.Errorf("container stop: %v; kill: %w", err, killErr)
	}
	return nil
}

func (h *handle) Kill(ctx context.Context) error {
	err := h.cli.ContainerKill(ctx, h.id, "SIGKILL")
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("container kill: %w", err)
	}
	return nil
}
