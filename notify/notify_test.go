package notify

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moyoez/splitsend-go/types"
)

// listen starts a unix socket listener that decodes one framed notification
// per connection and answers with reply.
func listen(t *testing.T, reply string) (string, <-chan types.Notification) {
	t.Helper()
	dir, err := os.MkdirTemp("", "ntf")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	path := filepath.Join(dir, "n.sock")

	l, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	got := make(chan types.Notification, 8)
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			var size uint32
			if err := binary.Read(conn, binary.LittleEndian, &size); err == nil {
				buf := make([]byte, size)
				if _, err := io.ReadFull(conn, buf); err == nil {
					var n types.Notification
					if sonic.Unmarshal(buf, &n) == nil {
						got <- n
					}
				}
			}
			_, _ = conn.Write([]byte(reply))
			_ = conn.Close()
		}
	}()
	return path, got
}

func TestSendNotificationFramesPayload(t *testing.T) {
	path, got := listen(t, `{"ok":true}`)

	err := SendNotification(context.Background(), &types.Notification{Type: types.NotifyTypePipelineStarted, Title: "Pipeline Started"}, path)
	require.NoError(t, err)

	n := <-got
	assert.Equal(t, types.NotifyTypePipelineStarted, n.Type)
	assert.Equal(t, "Pipeline Started", n.Title)
}

func TestSendNotificationServerError(t *testing.T) {
	path, _ := listen(t, `{"error":"no listener for pipeline_failed"}`)

	err := SendNotification(context.Background(), &types.Notification{Type: types.NotifyTypePipelineFailed}, path)
	assert.ErrorContains(t, err, "no listener")
}

func TestSendNotificationSilentListener(t *testing.T) {
	dir, err := os.MkdirTemp("", "ntf")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	path := filepath.Join(dir, "n.sock")

	l, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	got := make(chan uint32, 1)
	hold := make(chan struct{})
	t.Cleanup(func() { close(hold) })
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var size uint32
		if err := binary.Read(conn, binary.LittleEndian, &size); err == nil {
			_, _ = io.CopyN(io.Discard, conn, int64(size))
			got <- size
		}
		<-hold
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err = SendNotification(ctx, &types.Notification{Type: types.NotifyTypePipelineStarted}, path)
	require.NoError(t, err)
	assert.NotZero(t, <-got)
}

func TestReadReplyDeadlineIsSilence(t *testing.T) {
	assert.NoError(t, readReply(errReader{os.ErrDeadlineExceeded}))
	assert.ErrorContains(t, readReply(errReader{errors.New("connection reset")}), "failed to read reply")
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

func TestSendNotificationMissingSocket(t *testing.T) {
	err := SendNotification(context.Background(), &types.Notification{}, filepath.Join(t.TempDir(), "absent.sock"))
	assert.ErrorContains(t, err, "not found")
}

func TestSendNotificationDisabled(t *testing.T) {
	SetUseNotify(false)
	t.Cleanup(func() { SetUseNotify(true) })

	err := SendNotification(context.Background(), &types.Notification{}, filepath.Join(t.TempDir(), "absent.sock"))
	assert.NoError(t, err)
}

func TestEncodeFrameRejectsOversizedPayload(t *testing.T) {
	big := make([]byte, MaxPayloadSize)
	for i := range big {
		big[i] = 'a'
	}
	_, err := encodeFrame(&types.Notification{Title: string(big)})
	assert.ErrorContains(t, err, "too large")
}

type recordingHub struct {
	mu  sync.Mutex
	got []*types.Notification
}

func (h *recordingHub) Broadcast(n *types.Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.got = append(h.got, n)
}

func TestNotifierFanOut(t *testing.T) {
	path, got := listen(t, `{}`)
	hub := &recordingHub{}
	n := New(types.NotifyConfig{SocketPath: path})
	n.AddHub(hub)

	job := types.Job{RequestID: "r1", ActorID: 7, URL: "https://example.com/v"}
	n.PipelineStarted(job)
	n.PipelineProgress(types.ProgressEvent{RequestID: "r1", Stage: types.StageUploading, Sent: 5, Total: 10})
	n.PipelineFailed(job, errors.New("boom"))
	n.Wait()

	require.Len(t, hub.got, 3)
	assert.Equal(t, types.NotifyTypePipelineProgress, hub.got[1].Type)
	assert.Equal(t, "boom", hub.got[2].Data["error"])

	assert.Len(t, got, 2, "progress ticks stay off the socket")
}

func TestNilNotifier(t *testing.T) {
	var n *Notifier
	assert.NotPanics(t, func() {
		n.PipelineCompleted(types.Job{}, &types.JobResult{})
		n.Wait()
	})
}
