package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/moyoez/splitsend-go/admission"
	"github.com/moyoez/splitsend-go/fetch"
	"github.com/moyoez/splitsend-go/pipeline"
	"github.com/moyoez/splitsend-go/progress"
	"github.com/moyoez/splitsend-go/share"
	"github.com/moyoez/splitsend-go/tool"
	"github.com/moyoez/splitsend-go/types"
)

const (
	WelcomeMessage = "Welcome to the High-Performance Video Splitter Bot!\n" +
		"Send me any video URL, and I will download and split it for you."
	AnalyzingMessage    = "Analyzing URL..."
	QueuedMessage       = "Queued for download..."
	ExpiredMessage      = "Session expired or invalid. Please send the URL again."
	BusyCallbackMessage = "You already have a task in progress."
	AllSentMessage      = "All parts sent!"
	CancellingMessage   = "Cancelling your task..."
	NothingToCancel     = "Nothing to cancel."

	downloadPrefix = "dl_"
	cancelData     = "cancel"
	// maxCallbackData is the Bot API limit for callback_data.
	maxCallbackData = 64
)

type Extractor interface {
	Extract(ctx context.Context, url string) (*types.MediaInfo, error)
}

// Runner runs pipelines, *pipeline.Orchestrator in production.
type Runner interface {
	Run(ctx context.Context, job types.Job, status progress.StatusSink) (*types.JobResult, error)
	Admission() *admission.Controller
	CancelActor(actorID int64) int
}

type Handler struct {
	client    *Client
	extractor Extractor
	runner    Runner
	pending   *share.PendingStore

	wg sync.WaitGroup
}

func NewHandler(c *Client, e Extractor, r Runner, pending *share.PendingStore) *Handler {
	if pending == nil {
		pending = share.NewPendingStore(share.DefaultTTL)
	}
	return &Handler{client: c, extractor: e, runner: r, pending: pending}
}

// Wait blocks until every pipeline started by a callback has returned.
func (h *Handler) Wait() {
	h.wg.Wait()
}

// Handle dispatches one update. Pipelines it starts keep running after it
// returns, bound to ctx.
func (h *Handler) Handle(ctx context.Context, u types.Update) {
	switch {
	case u.CallbackQuery != nil:
		h.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil && strings.TrimSpace(u.Message.Text) != "":
		h.handleMessage(ctx, u.Message)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *types.Message) {
	text := strings.TrimSpace(msg.Text)
	if cmd, ok := command(text); ok {
		switch cmd {
		case "start":
			h.reply(ctx, msg, WelcomeMessage)
		case "cancel":
			h.cancelAll(ctx, msg)
		}
		return
	}
	h.handleURL(ctx, msg, text)
}

// cancelAll stops the actor's running pipeline and forgets its pending
// format pickers.
func (h *Handler) cancelAll(ctx context.Context, msg *types.Message) {
	actor := actorOf(msg)
	running := h.runner.CancelActor(actor)
	dropped := h.pending.DeleteActor(actor)
	tool.DefaultLogger.Infof("[Bot] /cancel from %d: %d running, %d pending", actor, running, dropped)
	if running == 0 && dropped == 0 {
		h.reply(ctx, msg, NothingToCancel)
		return
	}
	h.reply(ctx, msg, CancellingMessage)
}

func (h *Handler) handleURL(ctx context.Context, msg *types.Message, url string) {
	actor := actorOf(msg)
	adm := h.runner.Admission()
	if adm.IsActorBusy(actor) {
		h.reply(ctx, msg, pipeline.BusyMessage)
		return
	}

	status, err := h.client.SendMessage(ctx, msg.Chat.ID, AnalyzingMessage, ReplyTo(msg.MessageID))
	if err != nil {
		tool.DefaultLogger.Errorf("[Bot] failed to send status message to %d: %v", msg.Chat.ID, err)
		return
	}

	var info *types.MediaInfo
	err = adm.WithActorExclusive(ctx, actor, func(ctx context.Context) error {
		var extractErr error
		info, extractErr = h.extractor.Extract(ctx, url)
		return extractErr
	})
	switch {
	case errors.Is(err, types.ErrAdmissionBusy):
		h.edit(ctx, status, pipeline.BusyMessage)
		return
	case errors.Is(err, types.ErrAuthRequired):
		h.edit(ctx, status, fetch.AuthRequiredMessage)
		return
	case err != nil:
		tool.DefaultLogger.Errorf("[Bot] error handling URL %s: %v", url, err)
		h.edit(ctx, status, pipeline.UserMessage(err))
		return
	}

	req := &types.PendingRequest{
		RequestID: tool.NewRequestID(),
		ActorID:   actor,
		ChatID:    msg.Chat.ID,
		URL:       url,
		Info:      *info,
		CreatedAt: time.Now(),
	}
	h.pending.Put(req)
	h.edit(ctx, status, FormatPickerText(info), WithKeyboard(FormatKeyboard(req)))
}

func (h *Handler) handleCallback(ctx context.Context, q *types.CallbackQuery) {
	if err := h.client.AnswerCallbackQuery(ctx, q.ID, ""); err != nil {
		tool.DefaultLogger.Debugf("[Bot] answerCallbackQuery %s: %v", q.ID, err)
	}
	if q.Message == nil {
		return
	}
	actor := q.From.ID

	if q.Data == cancelData || strings.HasPrefix(q.Data, cancelData+"_") {
		if id, ok := strings.CutPrefix(q.Data, cancelData+"_"); ok {
			h.pending.Delete(id)
		} else {
			h.pending.DeleteActor(actor)
		}
		h.edit(ctx, q.Message, pipeline.CancelledMessage)
		return
	}

	requestID, formatID, ok := ParseDownloadData(q.Data)
	if !ok {
		return
	}
	if h.runner.Admission().IsActorBusy(actor) {
		h.edit(ctx, q.Message, BusyCallbackMessage)
		return
	}
	req, ok := h.pending.Take(requestID)
	if ok && req.ActorID != actor {
		h.pending.Put(req)
		ok = false
	}
	if !ok {
		tool.DefaultLogger.Warnf("[Bot] session expired for user %d", actor)
		h.edit(ctx, q.Message, ExpiredMessage)
		return
	}
	h.edit(ctx, q.Message, QueuedMessage)

	job := types.Job{
		RequestID:   req.RequestID,
		ActorID:     actor,
		Username:    q.From.Username,
		Destination: strconv.FormatInt(q.Message.Chat.ID, 10),
		URL:         req.URL,
		FormatID:    formatID,
		Title:       req.Info.Title,
	}
	chatID, messageID := q.Message.Chat.ID, q.Message.MessageID
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.runJob(ctx, job, chatID, messageID)
	}()
}

// runJob runs the pipeline with the picker message as its status line. The
// failure text is already on that message when Run returns an error.
func (h *Handler) runJob(ctx context.Context, job types.Job, chatID, messageID int64) {
	editor := NewMessageEditor(h.client, chatID, messageID)
	res, err := h.runner.Run(ctx, job, editor)
	if err != nil {
		return
	}
	if err := editor.Update(ctx, AllSentMessage); err != nil {
		tool.DefaultLogger.Debugf("[Bot] %s: %v", job.RequestID, err)
	}
	if res.MergeInstructions == "" {
		return
	}
	if _, err := h.client.SendMessage(ctx, chatID, res.MergeInstructions, WithMarkdown(), ReplyTo(messageID)); err != nil {
		tool.DefaultLogger.Errorf("[Bot] failed to send merge instructions for %s: %v", job.RequestID, err)
	}
}

func (h *Handler) reply(ctx context.Context, msg *types.Message, text string) {
	if _, err := h.client.SendMessage(ctx, msg.Chat.ID, text, ReplyTo(msg.MessageID)); err != nil {
		tool.DefaultLogger.Errorf("[Bot] failed to reply to %d: %v", msg.Chat.ID, err)
	}
}

func (h *Handler) edit(ctx context.Context, msg *types.Message, text string, opts ...MessageOption) {
	err := h.client.EditMessageText(ctx, msg.Chat.ID, msg.MessageID, text, opts...)
	if err != nil && !IsNotModified(err) {
		tool.DefaultLogger.Errorf("[Bot] failed to edit message %d in %d: %v", msg.MessageID, msg.Chat.ID, err)
	}
}

// FormatPickerText is the text above the quality keyboard.
func FormatPickerText(info *types.MediaInfo) string {
	return fmt.Sprintf("Title: %s\nDuration: %ss\nSelect Quality:",
		info.Title, strconv.FormatFloat(info.Duration, 'f', -1, 64))
}

// FormatKeyboard has one button per format, then Cancel.
func FormatKeyboard(req *types.PendingRequest) types.InlineKeyboardMarkup {
	rows := make([][]types.InlineKeyboardButton, 0, len(req.Info.Formats)+1)
	for _, f := range req.Info.Formats {
		data := downloadPrefix + req.RequestID + "_" + f.FormatID
		if len(data) > maxCallbackData {
			tool.DefaultLogger.Warnf("[Bot] skipping format %s: callback data too long", f.FormatID)
			continue
		}
		rows = append(rows, []types.InlineKeyboardButton{{Text: f.Label(), CallbackData: data}})
	}
	rows = append(rows, []types.InlineKeyboardButton{{Text: "Cancel", CallbackData: cancelData + "_" + req.RequestID}})
	return types.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// ParseDownloadData splits "dl_<requestID>_<formatID>". Format ids may
// contain underscores; request ids never do.
func ParseDownloadData(data string) (requestID, formatID string, ok bool) {
	rest, found := strings.CutPrefix(data, downloadPrefix)
	if !found {
		return "", "", false
	}
	requestID, formatID, found = strings.Cut(rest, "_")
	if !found || requestID == "" || formatID == "" {
		return "", "", false
	}
	return requestID, formatID, true
}

// command returns the name of a "/cmd@bot args" message.
func command(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	name := strings.Fields(text)[0][1:]
	name, _, _ = strings.Cut(name, "@")
	return strings.ToLower(name), true
}

func actorOf(msg *types.Message) int64 {
	if msg.From != nil {
		return msg.From.ID
	}
	return msg.Chat.ID
}
