// Package notify publishes pipeline lifecycle events to a local unix socket
// listener and to in-process hubs such as the websocket feed.
package notify

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/bytedance/sonic"

	"github.com/moyoez/splitsend-go/tool"
	"github.com/moyoez/splitsend-go/types"
)

const (
	// MaxPayloadSize bounds one framed notification.
	MaxPayloadSize = 32 * 1024
	maxReplySize   = 4096
)

var (
	DefaultSocketTimeout = 3 * time.Second
	useNotify            = true
)

// SetUseNotify switches socket delivery on or off process-wide.
func SetUseNotify(use bool) {
	useNotify = use
}

type socketReply struct {
	Error string `json:"error"`
}

// SendNotification writes one frame to the listener on socketPath: a 4 byte
// little-endian length, then the JSON payload. The listener may answer with
// {"error": "..."}, which is returned as an error.
func SendNotification(ctx context.Context, notification *types.Notification, socketPath string) error {
	if !useNotify || notification == nil {
		return nil
	}
	if socketPath == "" {
		return errors.New("no socket path configured")
	}
	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		return fmt.Errorf("unix socket not found: %s", socketPath)
	}

	frame, err := encodeFrame(notification)
	if err != nil {
		return err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultSocketTimeout)
		defer cancel()
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %v", socketPath, err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			tool.DefaultLogger.Errorf("Failed to close notify socket: %v", err)
		}
	}()
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			tool.DefaultLogger.Errorf("Failed to set notify socket deadline: %v", err)
		}
	}

	if _, err := conn.Write(frame); err != nil {
		return fmt.Errorf("failed to write notification: %v", err)
	}
	if err := readReply(conn); err != nil {
		return err
	}
	tool.DefaultLogger.Debugf("[Notify] Sent %s (%d bytes)", notification.Type, len(frame)-4)
	return nil
}

func encodeFrame(notification *types.Notification) ([]byte, error) {
	payload, err := sonic.Marshal(notification)
	if err != nil {
		return nil, fmt.Errorf("failed to encode notification: %v", err)
	}
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("notification payload too large: %d bytes (max %d)", len(payload), MaxPayloadSize)
	}
	frame := binary.LittleEndian.AppendUint32(make([]byte, 0, 4+len(payload)), uint32(len(payload)))
	return append(frame, payload...), nil
}

// readReply accepts silence, a closed connection or any JSON without an
// error field. A listener that keeps the connection open without answering
// runs into the deadline, which counts as silence.
func readReply(r io.Reader) error {
	buf := make([]byte, maxReplySize)
	n, err := r.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("failed to read reply: %v", err)
	}
	if n == 0 {
		return nil
	}
	var reply socketReply
	if err := sonic.Unmarshal(buf[:n], &reply); err != nil {
		tool.DefaultLogger.Debugf("[Notify] Unparsed reply: %s", buf[:n])
		return nil
	}
	if reply.Error != "" {
		return fmt.Errorf("listener returned error: %s", reply.Error)
	}
	return nil
}
