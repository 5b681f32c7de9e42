package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"lifemap/internal/model"
	"lifemap/internal/service"
)

const (
	cbCompletePrefix = "complete:"
	cbDeletePrefix   = "delete:"
	cbConfirmPrefix  = "confirm:"
	cbCancelPrefix   = "cancel:"
)

const (
	btnConfirm     = "✅ Confirm"
	btnCancel      = "↩️ Cancel"
	menuLabelTasks = "📋 Tasks"
	menuLabelFocus = "🎯 Focus"
	menuLabelStats = "📊 Stats"
	menuLabelHelp  = "ℹ️ Help"
)

// summaryChatKey remembers which chat receives the scheduled daily report.
const summaryChatKey = "lifemap-summary-chat"

type confirmationAction int

const (
	actionDelete confirmationAction = iota
	actionRestore
)

type confirmationRequest struct {
	target string
	action confirmationAction
}

// ChatStore persists small values on this device.
type ChatStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Bot is the Telegram front end of the planner.
type Bot struct {
	api           *tgbotapi.BotAPI
	planner       *service.PlannerService
	summary       *service.SummaryService
	store         ChatStore
	loc           *time.Location
	logger        *slog.Logger
	confirmations map[int64]confirmationRequest
	mu            sync.Mutex
}

func New(token string, planner *service.PlannerService, summary *service.SummaryService, store ChatStore, loc *time.Location, logger *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}

	logger.Info("bot authorized", slog.String("account", api.Self.UserName))

	return &Bot{
		api:           api,
		planner:       planner,
		summary:       summary,
		store:         store,
		loc:           loc,
		logger:        logger,
		confirmations: make(map[int64]confirmationRequest),
	}, nil
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.logger.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				b.logger.Error("handle callback", slog.String("error", err.Error()))
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				b.logger.Error("handle message", slog.String("error", err.Error()))
			}
		}
	}

	return ctx.Err()
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if msg.IsCommand() {
		b.logger.Info("command", slog.Int64("from", msg.From.ID), slog.String("command", msg.Command()))
		return b.handleCommand(ctx, msg)
	}

	switch strings.TrimSpace(msg.Text) {
	case menuLabelTasks:
		return b.sendTaskList(msg.Chat.ID)
	case menuLabelFocus:
		return b.sendFocusList(msg.Chat.ID)
	case menuLabelStats:
		return b.handleStats(ctx, msg)
	case menuLabelHelp:
		return b.handleHelp(msg)
	}

	return b.sendText(msg.Chat.ID, "I did not understand that. Try /add to create a task or /help for the command list.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())
	switch msg.Command() {
	case "start", "help":
		return b.handleHelp(msg)
	case "login":
		return b.handleLogin(ctx, msg, args)
	case "tasks":
		return b.sendTaskList(msg.Chat.ID)
	case "add":
		return b.handleAdd(ctx, msg, args)
	case "done":
		return b.handleToggle(ctx, msg.Chat.ID, args, false)
	case "check":
		return b.handleToggle(ctx, msg.Chat.ID, args, true)
	case "focus":
		return b.sendFocusList(msg.Chat.ID)
	case "plan":
		return b.handlePlan(ctx, msg, args)
	case "unplan":
		return b.handleUnplan(ctx, msg, args)
	case "delete":
		return b.askDeleteConfirmation(msg.Chat.ID, msg.From.ID, args)
	case "backup":
		return b.handleBackup(ctx, msg)
	case "backups":
		return b.handleBackups(ctx, msg)
	case "restore":
		return b.askRestoreConfirmation(ctx, msg.Chat.ID, msg.From.ID, args)
	case "stats":
		return b.handleStats(ctx, msg)
	case "today":
		return b.handleToday(ctx, msg)
	case "cancel":
		b.clearConfirmation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "Cancelled.")
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	text := "ℹ️ <b>Life map</b>\n" +
		"• /login &lt;name&gt; — sign in\n" +
		"• /tasks — open tasks with buttons\n" +
		"• /add title;type;priority;areas;due;repeat — new task, e.g. <code>/add Essay;large;high;school;2025-03-20</code>\n" +
		"• /done &lt;id&gt; — complete or reopen a task\n" +
		"• /delete &lt;id&gt; — delete a task\n" +
		"• /focus — today's plan\n" +
		"• /plan &lt;id&gt; · /unplan &lt;id&gt; · /check &lt;id&gt; — manage today's plan\n" +
		"• /backup · /backups · /restore &lt;id&gt; — snapshots\n" +
		"• /stats — completion counts\n" +
		"• /today — daily report, sent here every morning from now on\n" +
		"Ids can be shortened to their first characters."
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleLogin(ctx context.Context, msg *tgbotapi.Message, name string) error {
	if name == "" {
		return b.sendText(msg.Chat.ID, "Tell me who you are: /login &lt;name&gt;")
	}
	if err := b.planner.Login(ctx, name); err != nil {
		return b.sendText(msg.Chat.ID, describeError(err))
	}
	b.logger.Info("login via bot", slog.String("user", name), slog.Int64("from", msg.From.ID))
	return b.sendText(msg.Chat.ID, fmt.Sprintf("👋 Hello, %s! %d tasks loaded.", escape(name), len(b.planner.Tasks())))
}

func (b *Bot) handleAdd(ctx context.Context, msg *tgbotapi.Message, args string) error {
	if args == "" {
		return b.sendText(msg.Chat.ID, "Usage: /add title;type;priority;areas;due;repeat\nAreas: "+escape(b.areaList()))
	}
	draft, err := parseAddArgs(args, b.planner.Areas(), b.loc)
	if err != nil {
		return b.sendText(msg.Chat.ID, "Invalid task: "+escape(err.Error()))
	}
	task, err := b.planner.AddTask(ctx, draft)
	if err != nil {
		if task.ID == "" {
			return b.sendText(msg.Chat.ID, describeError(err))
		}
		b.logger.Warn("task added without detail", slog.String("task", task.ID), slog.String("error", err.Error()))
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("➕ Added «%s» <code>%s</code>", escape(normalizeTitle(task.Title)), shortID(task.ID)))
}

func (b *Bot) areaList() string {
	areas := b.planner.Areas()
	ids := make([]string, len(areas))
	for i, a := range areas {
		ids[i] = string(a.ID)
	}
	return strings.Join(ids, ", ")
}

func (b *Bot) findTask(ref string) (model.Task, error) {
	id, err := resolveID(taskIDs(b.planner.Tasks()), ref)
	if err != nil {
		return model.Task{}, err
	}
	return b.planner.Task(id)
}

func (b *Bot) handleToggle(ctx context.Context, chatID int64, ref string, fromFocus bool) error {
	if ref == "" {
		return b.sendText(chatID, "Which task? Add its id, e.g. /done 3f2a")
	}
	task, err := b.findTask(ref)
	if err != nil {
		return b.sendText(chatID, describeError(err))
	}
	updated, err := b.planner.ToggleTaskComplete(ctx, task.ID, fromFocus)
	if err != nil {
		return b.sendText(chatID, describeError(err))
	}

	title := escape(normalizeTitle(updated.Title))
	var info string
	switch {
	case updated.CompletedAt == nil && updated.LastCompletedAt != nil && task.CompletedAt == nil:
		info = fmt.Sprintf("♻️ «%s» done for this cycle.", title)
	case updated.CompletedAt == nil:
		info = fmt.Sprintf("↩️ «%s» is open again.", title)
	case fromFocus:
		info = fmt.Sprintf("✅ «%s» checked off today's plan.", title)
	default:
		info = fmt.Sprintf("✅ «%s» completed. It moves to the archive in a moment.", title)
	}
	b.logger.Info("task toggled", slog.String("task", task.ID), slog.Bool("focus", fromFocus))
	return b.sendText(chatID, info)
}

func (b *Bot) handlePlan(ctx context.Context, msg *tgbotapi.Message, ref string) error {
	task, err := b.findTask(ref)
	if err != nil {
		return b.sendText(msg.Chat.ID, describeError(err))
	}
	if _, err := b.planner.AddToFocusList(ctx, task.ID); err != nil {
		return b.sendText(msg.Chat.ID, describeError(err))
	}
	return b.sendFocusList(msg.Chat.ID)
}

func (b *Bot) handleUnplan(ctx context.Context, msg *tgbotapi.Message, ref string) error {
	id, err := resolveID(b.planner.FocusList(), ref)
	if err != nil {
		return b.sendText(msg.Chat.ID, describeError(err))
	}
	if _, err := b.planner.RemoveFromFocusList(ctx, id); err != nil {
		return b.sendText(msg.Chat.ID, describeError(err))
	}
	return b.sendFocusList(msg.Chat.ID)
}

func (b *Bot) sendTaskList(chatID int64) error {
	if _, err := b.planner.User(); err != nil {
		return b.sendText(chatID, describeError(err))
	}

	var open []model.Task
	for _, task := range b.planner.Tasks() {
		if task.CompletedAt == nil {
			open = append(open, task)
		}
	}
	if len(open) == 0 {
		return b.sendText(chatID, "No open tasks. Add one with /add.")
	}

	sort.SliceStable(open, func(i, j int) bool {
		a, c := open[i], open[j]
		if (a.DueDate == nil) != (c.DueDate == nil) {
			return a.DueDate != nil
		}
		if a.DueDate != nil && !a.DueDate.Equal(*c.DueDate) {
			return a.DueDate.Before(*c.DueDate)
		}
		return a.CreatedAt.After(c.CreatedAt)
	})

	var builder strings.Builder
	builder.WriteString("📋 <b>Open tasks</b>\n\n")
	var buttons [][]tgbotapi.InlineKeyboardButton
	for _, task := range open {
		builder.WriteString(fmt.Sprintf("<code>%s</code> %s %s", shortID(task.ID), kindIcon(task.Kind), escape(normalizeTitle(task.Title))))
		if task.DueDate != nil {
			builder.WriteString(fmt.Sprintf(" · due %s", task.DueDate.In(b.loc).Format(time.DateOnly)))
		}
		builder.WriteByte('\n')
		buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ "+shortTitle(task.Title, 24), cbCompletePrefix+task.ID),
			tgbotapi.NewInlineKeyboardButtonData("🗑", cbDeletePrefix+task.ID),
		))
	}

	return b.sendWithReplyMarkup(chatID, strings.TrimSpace(builder.String()), tgbotapi.NewInlineKeyboardMarkup(buttons...))
}

func (b *Bot) sendFocusList(chatID int64) error {
	if _, err := b.planner.User(); err != nil {
		return b.sendText(chatID, describeError(err))
	}
	tasks := b.planner.FocusTasks()
	if len(tasks) == 0 {
		return b.sendText(chatID, "🎯 Nothing planned for today. Use /plan &lt;id&gt;.")
	}
	var builder strings.Builder
	builder.WriteString("🎯 <b>Today</b>\n")
	for _, task := range tasks {
		mark := "⬜"
		if task.CompletedAt != nil {
			mark = "✅"
		}
		builder.WriteString(fmt.Sprintf("%s <code>%s</code> %s\n", mark, shortID(task.ID), escape(normalizeTitle(task.Title))))
	}
	return b.sendText(chatID, strings.TrimSpace(builder.String()))
}

func kindIcon(kind model.TaskKind) string {
	switch kind {
	case model.KindRepetitive:
		return "♻️"
	case model.KindLarge:
		return "🏔"
	default:
		return "🟢"
	}
}

func (b *Bot) handleBackup(ctx context.Context, msg *tgbotapi.Message) error {
	snap, err := b.planner.CreateBackup(ctx)
	if err != nil {
		return b.sendText(msg.Chat.ID, describeError(err))
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("💾 Snapshot <code>%s</code> saved with %d tasks.", shortID(snap.ID), len(snap.Tasks)))
}

func (b *Bot) handleBackups(ctx context.Context, msg *tgbotapi.Message) error {
	snaps, err := b.planner.ListBackups(ctx)
	if err != nil {
		return b.sendText(msg.Chat.ID, describeError(err))
	}
	if len(snaps) == 0 {
		return b.sendText(msg.Chat.ID, "No snapshots yet. Create one with /backup.")
	}
	var builder strings.Builder
	builder.WriteString("💾 <b>Snapshots</b>\n")
	for _, s := range snaps {
		builder.WriteString(fmt.Sprintf("<code>%s</code> %s · %s · %d tasks\n",
			shortID(s.ID), s.Timestamp.In(b.loc).Format("2006-01-02 15:04"), s.Type, len(s.Tasks)))
	}
	builder.WriteString("\nRestore with /restore &lt;id&gt;")
	return b.sendText(msg.Chat.ID, builder.String())
}

func (b *Bot) handleStats(ctx context.Context, msg *tgbotapi.Message) error {
	stats, err := b.planner.Stats(ctx)
	if err != nil {
		return b.sendText(msg.Chat.ID, describeError(err))
	}
	text := fmt.Sprintf("📊 <b>Completed</b>\nToday: %d\nThis week: %d\nThis month: %d\nTotal: %d",
		stats.Today, stats.ThisWeek, stats.ThisMonth, stats.Total)
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleToday(ctx context.Context, msg *tgbotapi.Message) error {
	text, err := b.summary.DailySummary(time.Now().In(b.loc))
	if err != nil {
		return b.sendText(msg.Chat.ID, describeError(err))
	}
	if err := b.store.Set(ctx, summaryChatKey, strconv.FormatInt(msg.Chat.ID, 10)); err != nil {
		b.logger.Warn("remember summary chat", slog.String("error", err.Error()))
	}
	return b.sendText(msg.Chat.ID, text)
}

// SendDailySummary sends the daily report to the chat that last asked for /today.
func (b *Bot) SendDailySummary(ctx context.Context) error {
	raw, ok, err := b.store.Get(ctx, summaryChatKey)
	if err != nil || !ok {
		return err
	}
	chatID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("summary chat %q: %w", raw, err)
	}
	text, err := b.summary.DailySummary(time.Now().In(b.loc))
	if err != nil {
		if errors.Is(err, service.ErrNotInitialized) {
			return nil
		}
		return err
	}
	return b.sendText(chatID, text)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.logger.Warn("callback ack", slog.String("error", err.Error()))
	}

	data := cb.Data
	chatID := cb.Message.Chat.ID
	b.logger.Info("callback", slog.Int64("from", cb.From.ID), slog.String("data", data))

	switch {
	case strings.HasPrefix(data, cbCompletePrefix):
		return b.handleToggle(ctx, chatID, strings.TrimPrefix(data, cbCompletePrefix), false)
	case strings.HasPrefix(data, cbDeletePrefix):
		return b.askDeleteConfirmation(chatID, cb.From.ID, strings.TrimPrefix(data, cbDeletePrefix))
	case strings.HasPrefix(data, cbConfirmPrefix):
		req, ok := b.getConfirmation(cb.From.ID)
		if !ok || req.target != strings.TrimPrefix(data, cbConfirmPrefix) {
			return b.sendText(chatID, "That request has expired.")
		}
		b.clearConfirmation(cb.From.ID)
		if req.action == actionRestore {
			return b.restoreSnapshot(ctx, chatID, req.target)
		}
		return b.deleteTask(ctx, chatID, req.target)
	case strings.HasPrefix(data, cbCancelPrefix):
		b.clearConfirmation(cb.From.ID)
		return b.sendText(chatID, "Cancelled.")
	default:
		return nil
	}
}

func (b *Bot) askDeleteConfirmation(chatID, userID int64, ref string) error {
	task, err := b.findTask(ref)
	if err != nil {
		return b.sendText(chatID, describeError(err))
	}
	b.setConfirmation(userID, confirmationRequest{target: task.ID, action: actionDelete})
	text := fmt.Sprintf("Delete «%s» with its subtasks and milestones?", escape(normalizeTitle(task.Title)))
	return b.sendWithReplyMarkup(chatID, text, confirmKeyboard(task.ID))
}

func (b *Bot) askRestoreConfirmation(ctx context.Context, chatID, userID int64, ref string) error {
	snaps, err := b.planner.ListBackups(ctx)
	if err != nil {
		return b.sendText(chatID, describeError(err))
	}
	ids := make([]string, len(snaps))
	for i, s := range snaps {
		ids[i] = s.ID
	}
	id, err := resolveID(ids, ref)
	if err != nil {
		return b.sendText(chatID, describeError(err))
	}
	b.setConfirmation(userID, confirmationRequest{target: id, action: actionRestore})
	text := fmt.Sprintf("Replace all current tasks with snapshot <code>%s</code>? This cannot be undone.", shortID(id))
	return b.sendWithReplyMarkup(chatID, text, confirmKeyboard(id))
}

func (b *Bot) deleteTask(ctx context.Context, chatID int64, id string) error {
	task, err := b.planner.Task(id)
	if err != nil {
		return b.sendText(chatID, describeError(err))
	}
	if err := b.planner.DeleteTask(ctx, id); err != nil {
		return b.sendText(chatID, describeError(err))
	}
	b.logger.Info("task deleted via bot", slog.String("task", id))
	return b.sendText(chatID, fmt.Sprintf("🗑 «%s» deleted.", escape(normalizeTitle(task.Title))))
}

func (b *Bot) restoreSnapshot(ctx context.Context, chatID int64, id string) error {
	state, err := b.planner.RestoreBackup(ctx, id, true)
	if err != nil {
		return b.sendText(chatID, describeError(err))
	}
	b.logger.Info("snapshot restored via bot", slog.String("snapshot", id))
	return b.sendText(chatID, fmt.Sprintf("♻️ Restored %d tasks from %s.",
		len(state.Tasks), state.Snapshot.Timestamp.In(b.loc).Format("2006-01-02 15:04")))
}

func (b *Bot) sendText(chatID int64, text string) error {
	return b.sendWithReplyMarkup(chatID, text, mainMenuKeyboard())
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) getConfirmation(userID int64) (confirmationRequest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	req, ok := b.confirmations[userID]
	return req, ok
}

func (b *Bot) setConfirmation(userID int64, req confirmationRequest) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.confirmations[userID] = req
}

func (b *Bot) clearConfirmation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.confirmations, userID)
}

func confirmKeyboard(target string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(btnConfirm, cbConfirmPrefix+target),
			tgbotapi.NewInlineKeyboardButtonData(btnCancel, cbCancelPrefix+target),
		),
	)
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelTasks),
			tgbotapi.NewKeyboardButton(menuLabelFocus),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelStats),
			tgbotapi.NewKeyboardButton(menuLabelHelp),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}
