package control

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"

	"github.com/massdroid-cli/massd/interruption"
	"github.com/massdroid-cli/massd/log"
	"github.com/massdroid-cli/massd/player"
	"github.com/samber/mo"
)

// Handler applies decoded commands. Implemented by the daemon.
type Handler interface {
	Select(id string, local mo.Option[bool]) error
	User(action player.Action) error
	Focus(interruption.Focus)
	Call(interruption.CallState)
	Status() any
}

type Server struct {
	path    string
	handler Handler
	logger  *log.Entry

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

func NewServer(path string, handler Handler) *Server {
	return &Server{
		path:    path,
		handler: handler,
		logger:  log.For("control").WithField("socket", path),
	}
}

// Serve listens until ctx is cancelled. A stale socket file left by a crashed daemon is removed first.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "unix", s.path)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if err := os.Chmod(s.path, 0o600); err != nil {
		s.logger.WithError(err).Warn("could not restrict socket permissions")
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = listener.Close() })
	defer stop()

	s.logger.Info("listening")
	for {
		conn, err := listener.Accept()
		if err != nil {
			s.wg.Wait()
			_ = os.Remove(s.path)
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

// Close stops accepting connections.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	encoder := json.NewEncoder(conn)
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var req Request
		resp := Response{Error: success}

		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			resp.Error = fmt.Sprintf("invalid request: %s", err)
		} else {
			resp.RequestID = req.RequestID
			data, err := s.dispatch(req.Command)
			if err != nil {
				resp.Error = err.Error()
			}
			resp.Data = data
		}

		if err := encoder.Encode(resp); err != nil {
			s.logger.WithError(err).Debug("write response")
			return
		}
	}
}

func (s *Server) dispatch(command []string) (any, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrUnknownCommand)
	}

	name, args := command[0], command[1:]
	s.logger.WithFields(log.Fields{"command": name, "args": args}).Info("request")

	switch name {
	case CommandStatus:
		return s.handler.Status(), nil
	case CommandSelect:
		return nil, s.selectEndpoint(args)
	case CommandPlay:
		return nil, s.handler.User(player.ActionPlay)
	case CommandPause:
		return nil, s.handler.User(player.ActionPause)
	case CommandStop:
		return nil, s.handler.User(player.ActionStop)
	case CommandFocus:
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: focus takes one of %v", ErrBadArguments, interruption.FocusNames())
		}
		focus, err := interruption.ParseFocus(args[0])
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrBadArguments, err)
		}
		s.handler.Focus(focus)
		return nil, nil
	case CommandCall:
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: call takes one of %v", ErrBadArguments, interruption.CallStateNames())
		}
		state, err := interruption.ParseCallState(args[0])
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrBadArguments, err)
		}
		s.handler.Call(state)
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
}

func (s *Server) selectEndpoint(args []string) error {
	if len(args) == 0 || len(args) > 2 || args[0] == "" {
		return fmt.Errorf("%w: select <endpoint> [is_local]", ErrBadArguments)
	}

	local := mo.None[bool]()
	if len(args) == 2 {
		b, err := strconv.ParseBool(args[1])
		if err != nil {
			return fmt.Errorf("%w: is_local must be true or false", ErrBadArguments)
		}
		local = mo.Some(b)
	}

	return s.handler.Select(args[0], local)
}
