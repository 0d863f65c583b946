package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/sakif/codeshare/internal/executor"
)

// Executor implements executor.Executor with pre-warmed Docker containers.
type Executor struct {
	cli    *client.Client
	config Config
	logger *slog.Logger
	pool   *Pool
}

var _ executor.Executor = (*Executor)(nil)

// New connects to the Docker daemon, makes sure the image exists locally
// and starts the container pool.
func New(cfg Config, logger *slog.Logger) (*Executor, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker: create client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := ensureImage(ctx, cli, cfg.Image, logger); err != nil {
		cli.Close()
		return nil, err
	}

	exec := &Executor{
		cli:    cli,
		config: cfg,
		logger: logger,
	}

	exec.pool = NewPool(cli, cfg, logger)
	exec.pool.Start()

	return exec, nil
}

// ensureImage pulls the image only when it is not present; locally built
// formatter images have no registry to pull from.
func ensureImage(ctx context.Context, cli *client.Client, ref string, logger *slog.Logger) error {
	if _, err := cli.ImageInspect(ctx, ref); err == nil {
		return nil
	}

	logger.Info("pulling formatter image", slog.String("image", ref))
	reader, err := cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("docker: pull %s: %w", ref, err)
	}
	defer reader.Close()
	// the pull only finishes once the progress stream is drained
	_, _ = io.Copy(io.Discard, reader)
	logger.Info("formatter image is ready", slog.String("image", ref))
	return nil
}

// Close shuts down the pool and the docker client.
func (e *Executor) Close() error {
	e.pool.Stop()
	return e.cli.Close()
}

// Execute runs req.Cmd inside a pooled container, feeding req.Stdin.
// Each container serves exactly one request and is then removed.
func (e *Executor) Execute(ctx context.Context, req executor.Request) (*executor.Result, error) {
	if len(req.Cmd) == 0 {
		return nil, fmt.Errorf("docker: empty command")
	}
	start := time.Now()

	containerID, err := e.pool.GetContainer(ctx)
	if err != nil {
		return nil, fmt.Errorf("docker: acquire container: %w", err)
	}

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := e.cli.ContainerRemove(cleanupCtx, containerID, container.RemoveOptions{Force: true})
		if err != nil {
			e.logger.Error("failed to remove container", slog.String("id", containerID), slog.String("error", err.Error()))
		}
	}()

	execCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	execResp, err := e.cli.ContainerExecCreate(execCtx, containerID, container.ExecOptions{
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          req.Cmd,
	})
	if err != nil {
		return nil, fmt.Errorf("docker: create exec: %w", err)
	}

	attachResp, err := e.cli.ContainerExecAttach(execCtx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, fmt.Errorf("docker: attach exec: %w", err)
	}
	defer attachResp.Close()

	var stdout, stderr bytes.Buffer
	done := make(chan struct{})
	go func() {
		_, _ = stdcopy.StdCopy(&stdout, &stderr, attachResp.Reader)
		close(done)
	}()

	if _, err := io.Copy(attachResp.Conn, bytes.NewReader([]byte(req.Stdin))); err != nil {
		return nil, fmt.Errorf("docker: write stdin: %w", err)
	}
	// half-close so the tool sees EOF on stdin
	if err := attachResp.CloseWrite(); err != nil {
		return nil, fmt.Errorf("docker: close stdin: %w", err)
	}

	var exitCode int
	select {
	case <-done:
		exitCode, err = exitStatus(e.cli.ContainerExecInspect(ctx, execResp.ID))
		if err != nil {
			return nil, err
		}
	case <-execCtx.Done():
		// Closing the stream ends StdCopy; the buffers are only safe to
		// touch once it has returned.
		attachResp.Close()
		<-done
		exitCode = executor.ExitTimeout
		stderr.WriteString("\nexecution timed out\n")
	}

	return &executor.Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
		Duration: time.Since(start),
	}, nil
}

// exitStatus turns an exec inspection into an exit code. An exec whose
// status cannot be read is a failure, never a clean exit with empty output.
func exitStatus(resp container.ExecInspect, err error) (int, error) {
	if err != nil {
		return 0, fmt.Errorf("docker: inspect exec: %w", err)
	}
	if resp.Running {
		return 0, errors.New("docker: exec still running after its output closed")
	}
	return resp.ExitCode, nil
}
