package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"pixelpath/internal/daemon"
	"pixelpath/internal/ingest"
	"pixelpath/internal/ledger"
	"pixelpath/internal/logging"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer configures the IPC server at the given socket path. stop is
// invoked when a client requests shutdown; it may be nil.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, stop func(), logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx, stop: stop}
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
		conns:     make(map[net.Conn]struct{}),
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
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"),
				)
				continue
			}
			s.track(conn, true)
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				defer s.track(c, false)
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

// Close stops the server, disconnects clients, and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"),
		)
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
	stop   func()
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	*resp = statusResponse(s.daemon.Status(s.ctx))
	return nil
}

func (s *service) Scan(req ScanRequest, resp *ScanResponse) error {
	if req.DryRun {
		candidates, err := s.daemon.Preview(s.ctx)
		if err != nil {
			return err
		}
		resp.Candidates = make([]Candidate, 0, len(candidates))
		for _, c := range candidates {
			resp.Candidates = append(resp.Candidates, Candidate{
				Path:      c.Identity.Path,
				MediaType: string(c.Media),
				Age:       c.Age,
			})
		}
		return nil
	}
	if err := s.daemon.ScanNow(); err != nil {
		return err
	}
	resp.Triggered = true
	return nil
}

func (s *service) History(req HistoryRequest, resp *HistoryResponse) error {
	entries, err := s.daemon.History(s.ctx, ledger.Filter{
		Outcome: req.Outcome,
		Path:    req.Path,
		Limit:   req.Limit,
	})
	if err != nil {
		return err
	}
	resp.Entries = entries
	return nil
}

func (s *service) Forget(req ForgetRequest, resp *ForgetResponse) error {
	result, err := s.daemon.Forget(s.ctx, req.Path)
	if err != nil {
		return err
	}
	*resp = ForgetResponse{Path: result.Path, Tracker: result.Tracker, Ledger: result.Ledger}
	return nil
}

func (s *service) RetryFailed(_ RetryRequest, resp *RetryResponse) error {
	released, err := s.daemon.RetryFailed()
	if err != nil {
		return err
	}
	resp.Released = released
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, err := s.daemon.TestNotification(s.ctx)
	if err != nil {
		resp.Message = err.Error()
		return err
	}
	resp.Sent = sent
	if !sent {
		resp.Message = "Notifications disabled (set notifications.ntfy_topic)"
	}
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Info("shutdown requested over IPC",
		logging.Event("ipc_stop_requested"),
	)
	if s.stop != nil {
		s.stop()
	}
	resp.Stopped = true
	return nil
}

func statusResponse(st daemon.Status) StatusResponse {
	snap := st.Ingest
	resp := StatusResponse{
		Running:       st.Running,
		PID:           os.Getpid(),
		StartedAt:     snap.Started,
		WatchDir:      st.WatchDir,
		WatchMode:     st.WatchMode,
		DeviceTrigger: st.DeviceTrigger,
		RetrySchedule: st.RetrySchedule,
		LedgerPath:    st.LedgerPath,
		LockPath:      st.LockFilePath,
		Workers:       snap.Workers,
		QueueDepth:    snap.QueueDepth,
		InFlight:      snap.InFlight,
		Claimed:       snap.Claimed,
		Done:          snap.Done,
		Processed:     snap.Processed,
		Failed:        snap.Failed,
		Outcomes:      make(map[string]int, len(snap.Outcomes)),
		Ledger:        st.Ledger,
		ScanCycles:    snap.ScanCycles,
		LastScan: ScanSummary{
			StartedAt:   snap.LastScan.Started,
			DurationMS:  snap.LastScan.Duration.Milliseconds(),
			Listed:      snap.LastScan.Listed,
			Enqueued:    snap.LastScan.Enqueued,
			TooYoung:    snap.LastScan.TooYoung,
			Known:       snap.LastScan.Known,
			Unsupported: snap.LastScan.Unsupported,
			StatErrors:  snap.LastScan.StatErrors,
		},
		LastError: snap.LastError,
		LastItem:  lastItem(snap.LastItem),
	}
	for outcome, n := range snap.Outcomes {
		resp.Outcomes[string(outcome)] = n
	}
	return resp
}

func lastItem(c *ingest.Completion) *LastItem {
	if c == nil {
		return nil
	}
	item := &LastItem{
		Path:        c.Item.Path(),
		MediaType:   string(c.Item.Media),
		Outcome:     string(c.Outcome),
		Destination: c.Result.Destination,
		FinishedAt:  c.Finished,
	}
	if c.Err != nil {
		item.Error = c.Err.Error()
	}
	return item
}
