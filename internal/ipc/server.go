package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"log/slog"

	"showrunner/internal/api"
	"showrunner/internal/daemon"
	"showrunner/internal/logging"
	"showrunner/internal/logs"
	"showrunner/internal/session"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logging.NewComponentLogger(logger, "ipc"), ctx: ctx}
	if err := rpcServer.RegisterName("Showrunner", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually or rerun showrunner stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger
}

func (s *service) Ping(_ PingRequest, resp *PingResponse) error {
	resp.Message = "pong"
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.SessionDBPath = status.SessionDBPath
	resp.LockPath = status.LockFilePath
	resp.ActiveSessions = status.ActiveSessions
	resp.SessionStats = make(map[string]int, len(status.SessionStats))
	for k, v := range status.SessionStats {
		resp.SessionStats[string(k)] = v
	}
	if len(status.Dependencies) > 0 {
		resp.Dependencies = make([]api.DependencyStatus, 0, len(status.Dependencies))
		for _, dep := range status.Dependencies {
			resp.Dependencies = append(resp.Dependencies, api.DependencyStatus{
				Name:        dep.Name,
				Command:     dep.Command,
				Description: dep.Description,
				Optional:    dep.Optional,
				Available:   dep.Available,
				Detail:      dep.Detail,
			})
		}
	}
	return nil
}

func (s *service) RunSession(req RunSessionRequest, resp *RunSessionResponse) error {
	s.log().Debug("run session requested",
		logging.String("input", req.Input),
		logging.String("workspace", req.Workspace),
		logging.Int("stage_count", len(req.SelectedStages)))
	id, err := s.daemon.RunSession(s.ctx, req.Input, req.Workspace, req.SelectedStages)
	if err != nil {
		return err
	}
	resp.SessionID = id
	s.log().Info("session submitted via IPC",
		logging.String(logging.FieldSessionID, id),
		logging.String(logging.FieldEventType, "session_submitted"))
	return nil
}

func (s *service) GetSession(req GetSessionRequest, resp *GetSessionResponse) error {
	sess, err := s.daemon.GetSession(s.ctx, req.SessionID)
	if err != nil {
		return err
	}
	resp.Session = api.FromSession(sess)
	return nil
}

func (s *service) ListSessions(req ListSessionsRequest, resp *ListSessionsResponse) error {
	statuses := make([]session.Status, 0, len(req.Statuses))
	for _, value := range req.Statuses {
		parsed, ok := session.ParseStatus(value)
		if !ok {
			continue
		}
		statuses = append(statuses, parsed)
	}
	sessions, err := s.daemon.ListSessions(s.ctx, statuses)
	if err != nil {
		return err
	}
	resp.Sessions = api.FromSessions(sessions)
	return nil
}

func (s *service) StopSession(req StopSessionRequest, resp *StopSessionResponse) error {
	if err := s.daemon.StopSession(s.ctx, req.SessionID); err != nil {
		return err
	}
	resp.Stopped = true
	s.log().Info("session stop requested via IPC",
		logging.String(logging.FieldSessionID, req.SessionID),
		logging.String(logging.FieldEventType, "session_stop_requested"))
	return nil
}

func (s *service) StopDaemon(_ StopDaemonRequest, resp *StopDaemonResponse) error {
	s.log().Info("daemon stop requested via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	s.daemon.RequestShutdown()
	resp.Stopped = true
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath := s.daemon.LogPath()
	if logPath == "" {
		resp.Offset = 0
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	options := logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
	}
	ctx := s.ctx
	if req.Follow && wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, logPath, options)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			resp.Offset = result.Offset
			return nil
		}
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}
