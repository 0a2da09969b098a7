package mediainfo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/observability"
)

type Config struct {
	// Binary is the pivid_server executable, looked up in $PATH.
	Binary    string
	MediaRoot string
	Port      int
	// StartTimeout bounds how long Start waits for the server to answer.
	StartTimeout time.Duration
}

func (cfg *Config) setDefaults() {
	if cfg.Binary == "" {
		cfg.Binary = "pivid_server"
	}
	if cfg.Port == 0 {
		cfg.Port = 31415
	}
	if cfg.StartTimeout == 0 {
		cfg.StartTimeout = 10 * time.Second
	}
}

// Server is a running pivid_server subprocess.
type Server struct {
	*Client
	cmd    *exec.Cmd
	exited chan struct{}
	err    error
}

// Start launches the server and waits until it answers requests.
func Start(ctx context.Context, cfg Config) (*Server, error) {
	cfg.setDefaults()
	if cfg.MediaRoot == "" {
		return nil, errors.New("no media root")
	}

	cmd := exec.Command(cfg.Binary,
		"--media_root", cfg.MediaRoot,
		"--port", fmt.Sprint(cfg.Port))
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", cfg.Binary, err)
	}
	logger.Debugf(ctx, "%s started, pid %d", cfg.Binary, cmd.Process.Pid)

	s := &Server{
		Client: NewClient(fmt.Sprintf("http://localhost:%d", cfg.Port)),
		cmd:    cmd,
		exited: make(chan struct{}),
	}
	observability.Go(ctx, func(ctx context.Context) {
		defer close(s.exited)
		s.err = cmd.Wait()
		logger.Debugf(ctx, "%s exited: %v", cfg.Binary, s.err)
	})

	if err := s.waitReady(ctx, cfg.StartTimeout); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Server) waitReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		_, err := s.SendRequest(ctx, "media/")
		if err == nil {
			return nil
		}
		select {
		case <-s.exited:
			return fmt.Errorf("server exited during startup: %v", s.err)
		case <-ctx.Done():
			return fmt.Errorf("server not ready: %w (last error: %v)", ctx.Err(), err)
		case <-tick.C:
		}
	}
}

// Close terminates the server and waits for it to exit.
func (s *Server) Close() error {
	select {
	case <-s.exited:
		return nil
	default:
	}
	if err := s.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return err
	}
	select {
	case <-s.exited:
	case <-time.After(5 * time.Second):
		s.cmd.Process.Kill()
		<-s.exited
	}
	return nil
}
