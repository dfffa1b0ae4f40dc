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

	"log/slog"

	"convoy/internal/daemon"
	"convoy/internal/logging"
	"convoy/internal/queue"
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
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Convoy", srv); err != nil {
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
			logging.String(logging.FieldErrorHint, "remove the socket file manually or rerun convoy daemon stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	return logging.NewComponentLogger(s.logger, "ipc")
}

func (s *service) Enqueue(req EnqueueRequest, resp *EnqueueResponse) error {
	cfg := queue.MigrationConfig{
		Branch:     req.Branch,
		CloneDepth: req.Depth,
		TokenEnv:   req.TokenEnv,
	}
	item, err := s.daemon.Enqueue(s.ctx, req.RepoURL, req.RepoName, cfg, req.Priority)
	if err != nil {
		return err
	}
	resp.Item = FromQueueItem(item)
	return nil
}

func (s *service) Remove(req RemoveRequest, resp *RemoveResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid queue item id %d", req.ID)
	}
	removed, err := s.daemon.RemoveItem(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Removed = removed
	return nil
}

func (s *service) Cancel(req CancelRequest, resp *CancelResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid queue item id %d", req.ID)
	}
	cancelled, err := s.daemon.CancelItem(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Cancelled = cancelled
	return nil
}

func (s *service) CancelAll(_ CancelAllRequest, resp *CancelAllResponse) error {
	count, err := s.daemon.CancelAllPending(s.ctx)
	if err != nil {
		return err
	}
	resp.Cancelled = count
	return nil
}

func (s *service) Reorder(req ReorderRequest, resp *ReorderResponse) error {
	if len(req.IDs) == 0 {
		return errors.New("reorder requires at least one id")
	}
	if err := s.daemon.Reorder(s.ctx, req.IDs); err != nil {
		return err
	}
	resp.Reordered = true
	return nil
}

func (s *service) Process(req ProcessRequest, resp *ProcessResponse) error {
	s.log().Debug("batch processing requested")
	_, alreadyRunning, err := s.daemon.Process(req.MaxItems)
	if err != nil {
		return err
	}
	resp.Started = !alreadyRunning
	resp.AlreadyRunning = alreadyRunning
	return nil
}

func (s *service) Pause(_ PauseRequest, resp *PauseResponse) error {
	s.daemon.PauseDispatch()
	resp.Paused = true
	s.log().Info("dispatch paused via IPC",
		logging.String(logging.FieldEventType, "dispatch_paused"))
	return nil
}

func (s *service) Resume(_ ResumeRequest, resp *ResumeResponse) error {
	s.daemon.ResumeDispatch()
	resp.Resumed = true
	s.log().Info("dispatch resumed via IPC",
		logging.String(logging.FieldEventType, "dispatch_resumed"))
	return nil
}

func (s *service) SetConcurrency(req SetConcurrencyRequest, resp *SetConcurrencyResponse) error {
	if err := s.daemon.SetMaxConcurrency(req.Limit); err != nil {
		return err
	}
	resp.Limit = req.Limit
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.Paused = status.Paused
	resp.BatchActive = status.BatchActive
	resp.MaxConcurrency = status.MaxConcurrency
	resp.InFlight = status.InFlight
	resp.QueueDBPath = status.QueueDBPath
	resp.LockPath = status.LockFilePath
	resp.PID = status.PID
	resp.QueueStats = make(map[string]int, len(status.QueueStats))
	for k, v := range status.QueueStats {
		resp.QueueStats[string(k)] = v
	}
	resp.LastProcessedAt = status.LastProcessedAt
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.log().Info("daemon stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) QueueList(req QueueListRequest, resp *QueueListResponse) error {
	statuses := make([]queue.Status, 0, len(req.Statuses))
	for _, status := range req.Statuses {
		parsed, ok := queue.ParseStatus(status)
		if !ok {
			continue
		}
		statuses = append(statuses, parsed)
	}
	items, err := s.daemon.ListQueue(s.ctx, statuses)
	if err != nil {
		return err
	}
	resp.Items = make([]QueueItem, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		resp.Items = append(resp.Items, FromQueueItem(item))
	}
	return nil
}

func (s *service) QueueDescribe(req QueueDescribeRequest, resp *QueueDescribeResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid queue item id %d", req.ID)
	}
	item, err := s.daemon.GetQueueItem(s.ctx, req.ID)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("queue item %d not found", req.ID)
	}
	resp.Item = FromQueueItem(item)
	return nil
}

func (s *service) QueueRetry(req QueueRetryRequest, resp *QueueRetryResponse) error {
	s.log().Debug("queue retry requested", logging.Int("item_count", len(req.IDs)))
	updated, err := s.daemon.RetryFailed(s.ctx, req.IDs)
	if err != nil {
		return err
	}
	resp.Updated = updated
	return nil
}

func (s *service) QueueClear(_ QueueClearRequest, resp *QueueClearResponse) error {
	removed, err := s.daemon.ClearQueue(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.log().Info("queue cleared",
		logging.String(logging.FieldEventType, "queue_clear"),
		logging.Int64("removed_count", removed))
	return nil
}

func (s *service) QueueClearCompleted(_ QueueClearCompletedRequest, resp *QueueClearCompletedResponse) error {
	removed, err := s.daemon.ClearCompleted(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	return nil
}

func (s *service) QueueClearFailed(_ QueueClearFailedRequest, resp *QueueClearFailedResponse) error {
	removed, err := s.daemon.ClearFailed(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	return nil
}

func (s *service) QueueHealth(_ QueueHealthRequest, resp *QueueHealthResponse) error {
	health, err := s.daemon.QueueHealth(s.ctx)
	if err != nil {
		return err
	}
	resp.Total = health.Total
	resp.Pending = health.Pending
	resp.Processing = health.Processing
	resp.Completed = health.Completed
	resp.Failed = health.Failed
	resp.Cancelled = health.Cancelled
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
