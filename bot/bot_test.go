package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moyoez/splitsend-go/admission"
	"github.com/moyoez/splitsend-go/fetch"
	"github.com/moyoez/splitsend-go/pipeline"
	"github.com/moyoez/splitsend-go/progress"
	"github.com/moyoez/splitsend-go/share"
	"github.com/moyoez/splitsend-go/types"
)

const testToken = "123:secret"

type apiCall struct {
	method string
	params map[string]any
}

// fakeAPI records Bot API calls and answers them like Telegram would.
type fakeAPI struct {
	mu      sync.Mutex
	calls   []apiCall
	nextID  int64
	updates [][]types.Update
	// replies overrides the body for a method.
	replies map[string][]string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := path.Base(r.URL.Path)
	body, _ := io.ReadAll(r.Body)
	params := map[string]any{}
	_ = sonic.Unmarshal(body, &params)

	f.mu.Lock()
	f.calls = append(f.calls, apiCall{method: method, params: params})
	var reply string
	if queued := f.replies[method]; len(queued) > 0 {
		reply, f.replies[method] = queued[0], queued[1:]
	}
	var batch []types.Update
	if method == "getUpdates" && len(f.updates) > 0 {
		batch, f.updates = f.updates[0], f.updates[1:]
	}
	f.nextID++
	id := f.nextID
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case reply != "":
		_, _ = w.Write([]byte(reply))
	case method == "sendMessage":
		_, _ = fmt.Fprintf(w, `{"ok":true,"result":{"message_id":%d,"chat":{"id":%v,"type":"private"},"date":0}}`, 1000+id, params["chat_id"])
	case method == "getUpdates":
		if batch == nil {
			time.Sleep(10 * time.Millisecond)
		}
		data, _ := sonic.Marshal(types.APIResponse[[]types.Update]{OK: true, Result: batch})
		_, _ = w.Write(data)
	default:
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	}
}

func (f *fakeAPI) byMethod(method string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeAPI) texts(method string) []string {
	var out []string
	for _, c := range f.byMethod(method) {
		s, _ := c.params["text"].(string)
		out = append(out, s)
	}
	return out
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	c, err := NewClient(types.TelegramConfig{Token: testToken, BaseURL: srv.URL, PollTimeout: time.Second})
	require.NoError(t, err)
	c.minRetryWait = time.Millisecond
	return c
}

type fakeExtractor struct {
	info  *types.MediaInfo
	err   error
	calls int
}

func (e *fakeExtractor) Extract(ctx context.Context, url string) (*types.MediaInfo, error) {
	e.calls++
	return e.info, e.err
}

type fakeRunner struct {
	adm    *admission.Controller
	mu     sync.Mutex
	jobs   []types.Job
	result *types.JobResult
	err    error

	cancelled []int64
}

func (r *fakeRunner) Admission() *admission.Controller { return r.adm }

func (r *fakeRunner) CancelActor(actorID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = append(r.cancelled, actorID)
	return len(r.jobs)
}

func (r *fakeRunner) Run(ctx context.Context, job types.Job, status progress.StatusSink) (*types.JobResult, error) {
	r.mu.Lock()
	r.jobs = append(r.jobs, job)
	r.mu.Unlock()
	_ = status.Update(ctx, "Downloading: 50.0%")
	if r.err != nil {
		_ = status.Update(ctx, pipeline.UserMessage(r.err))
	}
	return r.result, r.err
}

func sampleInfo() *types.MediaInfo {
	return &types.MediaInfo{
		Title:    "Clip",
		Duration: 12.5,
		Formats: []types.MediaFormat{
			{FormatID: "137", Resolution: "1920x1080", Height: 1080, Ext: "mp4", FilesizeStr: "80.00 MB"},
			{FormatID: "hls_720", Resolution: "1280x720", Height: 720, Ext: "mp4", FilesizeStr: "Unknown"},
		},
	}
}

func textMessage(actor int64, text string) types.Update {
	return types.Update{Message: &types.Message{
		MessageID: 10,
		From:      &types.User{ID: actor, FirstName: "u"},
		Chat:      types.Chat{ID: actor, Type: "private"},
		Text:      text,
	}}
}

func callback(actor int64, data string) types.Update {
	return types.Update{CallbackQuery: &types.CallbackQuery{
		ID:      "cb1",
		From:    types.User{ID: actor, Username: "alice"},
		Message: &types.Message{MessageID: 55, Chat: types.Chat{ID: actor}},
		Data:    data,
	}}
}

func TestStartCommand(t *testing.T) {
	api := &fakeAPI{}
	h := NewHandler(newTestClient(t, api), &fakeExtractor{}, &fakeRunner{adm: admission.New(1)}, nil)

	h.Handle(context.Background(), textMessage(1, "/start@splitsend_bot"))
	h.Handle(context.Background(), textMessage(1, "/help"))

	sends := api.byMethod("sendMessage")
	require.Len(t, sends, 1)
	assert.Equal(t, WelcomeMessage, sends[0].params["text"])
	assert.EqualValues(t, 10, sends[0].params["reply_to_message_id"])
}

func TestCancelCommand(t *testing.T) {
	api := &fakeAPI{}
	pending := share.NewPendingStore(time.Hour)
	runner := &fakeRunner{adm: admission.New(1)}
	h := NewHandler(newTestClient(t, api), &fakeExtractor{}, runner, pending)

	h.Handle(context.Background(), textMessage(3, "/cancel"))
	pending.Put(&types.PendingRequest{RequestID: "p1", ActorID: 3})
	h.Handle(context.Background(), textMessage(3, "/cancel"))

	assert.Equal(t, []string{NothingToCancel, CancellingMessage}, api.texts("sendMessage"))
	assert.Equal(t, []int64{3, 3}, runner.cancelled)
	assert.Zero(t, pending.Len())
}

func TestURLShowsFormatPicker(t *testing.T) {
	api := &fakeAPI{}
	pending := share.NewPendingStore(time.Hour)
	ext := &fakeExtractor{info: sampleInfo()}
	h := NewHandler(newTestClient(t, api), ext, &fakeRunner{adm: admission.New(1)}, pending)

	h.Handle(context.Background(), textMessage(7, " https://example.com/watch?v=1 "))

	assert.Equal(t, []string{AnalyzingMessage}, api.texts("sendMessage"))
	edits := api.byMethod("editMessageText")
	require.Len(t, edits, 1)
	assert.Equal(t, "Title: Clip\nDuration: 12.5s\nSelect Quality:", edits[0].params["text"])

	markup := edits[0].params["reply_markup"].(map[string]any)
	rows := markup["inline_keyboard"].([]any)
	require.Len(t, rows, 3)
	first := rows[0].([]any)[0].(map[string]any)
	assert.Equal(t, "1920x1080 (mp4) - 80.00 MB", first["text"])
	data := first["callback_data"].(string)
	id, formatID, ok := ParseDownloadData(data)
	require.True(t, ok)
	assert.Equal(t, "137", formatID)

	req, ok := pending.Get(id)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/watch?v=1", req.URL)
	assert.Equal(t, int64(7), req.ActorID)
	last := rows[2].([]any)[0].(map[string]any)
	assert.Equal(t, "cancel_"+id, last["callback_data"])
}

func TestURLErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"auth", fmt.Errorf("%w: Sign in to confirm your age", types.ErrAuthRequired), fetch.AuthRequiredMessage},
		{"unavailable", fmt.Errorf("%w: ERROR: [generic] /usr/lib/yt-dlp: Unsupported URL", types.ErrSourceUnavailable), "Task failed: the video could not be downloaded."},
		{"other", errors.New("exec: \"yt-dlp\": executable file not found in $PATH"), "Task failed: internal error."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := &fakeAPI{}
			pending := share.NewPendingStore(time.Hour)
			h := NewHandler(newTestClient(t, api), &fakeExtractor{err: tc.err}, &fakeRunner{adm: admission.New(1)}, pending)

			h.Handle(context.Background(), textMessage(3, "https://example.com/x"))

			assert.Equal(t, []string{tc.want}, api.texts("editMessageText"))
			assert.NotContains(t, api.texts("editMessageText")[0], "yt-dlp")
			assert.Equal(t, 0, pending.Len())
		})
	}
}

func TestURLWhileBusy(t *testing.T) {
	api := &fakeAPI{}
	adm := admission.New(1)
	ext := &fakeExtractor{info: sampleInfo()}
	h := NewHandler(newTestClient(t, api), ext, &fakeRunner{adm: adm}, nil)

	held, release := make(chan struct{}), make(chan struct{})
	go func() {
		_ = adm.WithActorExclusive(context.Background(), 4, func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	h.Handle(context.Background(), textMessage(4, "https://example.com/x"))
	close(release)

	assert.Equal(t, []string{pipeline.BusyMessage}, api.texts("sendMessage"))
	assert.Zero(t, ext.calls)
}

func TestCallbackRunsPipeline(t *testing.T) {
	api := &fakeAPI{}
	pending := share.NewPendingStore(time.Hour)
	runner := &fakeRunner{
		adm:    admission.New(1),
		result: &types.JobResult{RequestID: "req1", MergeInstructions: "To merge these parts:"},
	}
	h := NewHandler(newTestClient(t, api), &fakeExtractor{}, runner, pending)
	pending.Put(&types.PendingRequest{RequestID: "req1", ActorID: 9, ChatID: 9, URL: "https://example.com/v", Info: *sampleInfo()})

	h.Handle(context.Background(), callback(9, "dl_req1_hls_720"))
	h.Wait()

	require.Len(t, runner.jobs, 1)
	job := runner.jobs[0]
	assert.Equal(t, "req1", job.RequestID)
	assert.Equal(t, "hls_720", job.FormatID)
	assert.Equal(t, "9", job.Destination)
	assert.Equal(t, "Clip", job.Title)
	assert.Equal(t, "alice", job.Username)

	assert.Len(t, api.byMethod("answerCallbackQuery"), 1)
	assert.Equal(t, []string{QueuedMessage, "Downloading: 50.0%", AllSentMessage}, api.texts("editMessageText"))
	sends := api.byMethod("sendMessage")
	require.Len(t, sends, 1)
	assert.Equal(t, "To merge these parts:", sends[0].params["text"])
	assert.Equal(t, "Markdown", sends[0].params["parse_mode"])

	_, ok := pending.Get("req1")
	assert.False(t, ok, "a picked request cannot start twice")
}

func TestCallbackFailedPipelineKeepsFailureText(t *testing.T) {
	api := &fakeAPI{}
	pending := share.NewPendingStore(time.Hour)
	runner := &fakeRunner{adm: admission.New(1), err: fmt.Errorf("%w: disk full", types.ErrSplitIO)}
	h := NewHandler(newTestClient(t, api), &fakeExtractor{}, runner, pending)
	pending.Put(&types.PendingRequest{RequestID: "req2", ActorID: 9, Info: *sampleInfo()})

	h.Handle(context.Background(), callback(9, "dl_req2_137"))
	h.Wait()

	edits := api.texts("editMessageText")
	assert.Equal(t, "Task failed: the video could not be split.", edits[len(edits)-1])
	assert.Empty(t, api.byMethod("sendMessage"))
}

func TestCallbackExpiredOrForeign(t *testing.T) {
	api := &fakeAPI{}
	pending := share.NewPendingStore(time.Hour)
	runner := &fakeRunner{adm: admission.New(1)}
	h := NewHandler(newTestClient(t, api), &fakeExtractor{}, runner, pending)
	pending.Put(&types.PendingRequest{RequestID: "mine", ActorID: 1})

	h.Handle(context.Background(), callback(2, "dl_mine_137"))
	h.Handle(context.Background(), callback(2, "dl_gone_137"))
	h.Wait()

	assert.Equal(t, []string{ExpiredMessage, ExpiredMessage}, api.texts("editMessageText"))
	assert.Empty(t, runner.jobs)
	_, ok := pending.Get("mine")
	assert.True(t, ok, "another user's click leaves the request in place")
}

func TestCancelCallback(t *testing.T) {
	api := &fakeAPI{}
	pending := share.NewPendingStore(time.Hour)
	h := NewHandler(newTestClient(t, api), &fakeExtractor{}, &fakeRunner{adm: admission.New(1)}, pending)
	pending.Put(&types.PendingRequest{RequestID: "a", ActorID: 5})
	pending.Put(&types.PendingRequest{RequestID: "b", ActorID: 5})

	h.Handle(context.Background(), callback(5, "cancel_a"))
	assert.Equal(t, 1, pending.Len())
	h.Handle(context.Background(), callback(5, "cancel"))
	assert.Equal(t, 0, pending.Len())

	assert.Equal(t, []string{pipeline.CancelledMessage, pipeline.CancelledMessage}, api.texts("editMessageText"))
}

func TestParseDownloadData(t *testing.T) {
	id, f, ok := ParseDownloadData("dl_1f0c_hls_720p")
	assert.True(t, ok)
	assert.Equal(t, "1f0c", id)
	assert.Equal(t, "hls_720p", f)

	for _, bad := range []string{"", "dl_", "dl_abc", "dl__137", "cancel", "xx_a_b"} {
		_, _, ok := ParseDownloadData(bad)
		assert.False(t, ok, bad)
	}
}

func TestClientRetriesRateLimit(t *testing.T) {
	api := &fakeAPI{replies: map[string][]string{
		"sendMessage": {`{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 0","parameters":{"retry_after":0}}`},
	}}
	c := newTestClient(t, api)

	msg, err := c.SendMessage(context.Background(), 42, "hi")
	require.NoError(t, err)
	assert.EqualValues(t, 42, msg.Chat.ID)
	assert.Len(t, api.byMethod("sendMessage"), 2)
}

func TestClientAPIError(t *testing.T) {
	api := &fakeAPI{replies: map[string][]string{
		"editMessageText": {
			`{"ok":false,"error_code":400,"description":"Bad Request: message is not modified"}`,
			`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`,
		},
	}}
	c := newTestClient(t, api)

	editor := NewMessageEditor(c, 1, 2)
	assert.NoError(t, editor.Update(context.Background(), "same"))
	assert.Equal(t, "same", editor.Text())

	err := c.EditMessageText(context.Background(), 1, 2, "x")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.Code)
	assert.False(t, IsNotModified(err))
}

func TestClientRedactsToken(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c, err := NewClient(types.TelegramConfig{Token: testToken, BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.SendMessage(context.Background(), 1, "x")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret")
	assert.Contains(t, err.Error(), "<redacted>")
}

func TestPollerDispatchesAndAdvancesOffset(t *testing.T) {
	api := &fakeAPI{updates: [][]types.Update{{
		{UpdateID: 100, Message: textMessage(1, "/start").Message},
		{UpdateID: 101, Message: textMessage(2, "/start").Message},
	}}}
	c := newTestClient(t, api)
	h := NewHandler(c, &fakeExtractor{}, &fakeRunner{adm: admission.New(1)}, nil)
	p := NewPoller(c, h, 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(api.byMethod("sendMessage")) == 2 && len(api.byMethod("getUpdates")) >= 2
	}, 3*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	polls := api.byMethod("getUpdates")
	assert.EqualValues(t, 0, polls[0].params["offset"])
	assert.EqualValues(t, 102, polls[1].params["offset"])
	for _, s := range api.texts("sendMessage") {
		assert.True(t, strings.HasPrefix(s, "Welcome"))
	}
}
