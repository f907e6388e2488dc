package control

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
)

const clientTimeout = 5 * time.Second

// ErrDaemonNotRunning is returned when nothing listens on the control socket.
var ErrDaemonNotRunning = errors.New("daemon is not running")

// Call sends one command to the daemon at socketPath and returns the raw data of the reply.
func Call(ctx context.Context, socketPath string, command ...string) (json.RawMessage, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrUnknownCommand)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDaemonNotRunning, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(clientTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}

	id := uuid.NewString()
	payload, err := json.Marshal(Request{Command: command, RequestID: id})
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	if _, err := conn.Write(append(payload, '\n')); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var resp struct {
			Data      json.RawMessage `json:"data"`
			Error     string          `json:"error"`
			RequestID string          `json:"request_id"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		if resp.RequestID != "" && resp.RequestID != id {
			continue
		}
		if resp.Error != success {
			return nil, remoteError(resp.Error)
		}
		return resp.Data, nil
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return nil, fmt.Errorf("read: connection closed")
}

// remoteError restores the sentinel a daemon-side failure was built from.
func remoteError(msg string) error {
	for _, sentinel := range []error{ErrUnknownCommand, ErrBadArguments} {
		if rest, ok := strings.CutPrefix(msg, sentinel.Error()); ok {
			return fmt.Errorf("%w%s", sentinel, rest)
		}
	}
	return errors.New(msg)
}
