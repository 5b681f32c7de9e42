package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"lifemap/internal/model"
	"lifemap/internal/repository"
)

// Gateway is the durable store the planner writes through and listens to.
type Gateway interface {
	SubscribeTasks(ctx context.Context, user string) *repository.Subscription[[]model.Task]
	SubscribeTaskDetails(ctx context.Context, user string) *repository.Subscription[model.DetailMap]
	SubscribeUserSettings(ctx context.Context, user string) *repository.Subscription[model.UserSettings]

	AddTask(ctx context.Context, task model.Task) (string, error)
	UpdateTask(ctx context.Context, id string, patch model.TaskPatch) error
	DeleteTask(ctx context.Context, id string) error

	AddTaskDetail(ctx context.Context, detail model.TaskDetail) error
	UpdateTaskDetail(ctx context.Context, taskID string, patch model.DetailPatch) error
	DeleteTaskDetail(ctx context.Context, taskID string) error

	UpdateFocusList(ctx context.Context, user string, ids []string) error
	InitializeUserSettings(ctx context.Context, user string, now time.Time) error
	ReplaceAll(ctx context.Context, user string, tasks []model.Task, details model.DetailMap, focus []string) error
}

// DeviceStore is the small key-value store local to this installation.
type DeviceStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

const (
	deviceUserKey     = "mindmap-username"
	deviceMidnightKey = "mindmap-last-midnight-cleanup"
	deviceEveningKey  = "mindmap-last-evening-cleanup"
)

// View is the presentation mode the user is looking at.
type View string

const (
	ViewMap        View = "map"
	ViewWhiteboard View = "whiteboard"
	ViewCalendar   View = "calendar"
	ViewDaily      View = "daily"
)

func (v View) Valid() bool {
	switch v {
	case ViewMap, ViewWhiteboard, ViewCalendar, ViewDaily:
		return true
	}
	return false
}

// PlannerConfig holds the tunables of the planning store.
type PlannerConfig struct {
	Areas           []model.Area
	Users           []string
	CompletionDelay time.Duration
}

// session is one user's live subscriptions.
type session struct {
	user     string
	cancel   context.CancelFunc
	tasks    *repository.Subscription[[]model.Task]
	details  *repository.Subscription[model.DetailMap]
	settings *repository.Subscription[model.UserSettings]
	wg       sync.WaitGroup
}

func (s *session) close() {
	s.cancel()
	s.tasks.Close()
	s.details.Close()
	s.settings.Close()
	s.wg.Wait()
}

// pendingDelete is the handle of a scheduled archive-and-delete.
type pendingDelete struct {
	sess  *session
	timer *time.Timer
}

func (pd *pendingDelete) stop() {
	if pd.timer != nil {
		pd.timer.Stop()
	}
}

// PlannerService is the planning state store: it owns the in-memory working set of the
// signed-in user, writes through the gateway and replaces its copies on every push.
type PlannerService struct {
	gateway Gateway
	archive *ArchiveService
	device  DeviceStore
	logger  *slog.Logger
	cfg     PlannerConfig

	// Now and NewID are replaceable in tests.
	Now   func() time.Time
	NewID func() string

	// writeMu orders local mutations with the pushes they cause.
	writeMu sync.Mutex

	mu        sync.RWMutex
	sess      *session
	rnd       *rand.Rand
	tasks     []model.Task
	details   model.DetailMap
	focus     []string
	blocks    []model.TimeBlock
	instances map[string][]time.Time
	view      View
	planning  bool
	pending   map[string]*pendingDelete
	version   uint64
	watchers  map[chan uint64]struct{}
}

func NewPlannerService(gateway Gateway, archive *ArchiveService, device DeviceStore, logger *slog.Logger, cfg PlannerConfig) *PlannerService {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Areas) == 0 {
		cfg.Areas = model.DefaultAreas()
	}
	return &PlannerService{
		gateway:   gateway,
		archive:   archive,
		device:    device,
		logger:    logger,
		cfg:       cfg,
		Now:       time.Now,
		NewID:     uuid.NewString,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		details:   model.DetailMap{},
		instances: map[string][]time.Time{},
		view:      ViewMap,
		pending:   map[string]*pendingDelete{},
		watchers:  map[chan uint64]struct{}{},
	}
}

// Login checks the allow-list, remembers the user on this device and starts a fresh session.
func (p *PlannerService) Login(ctx context.Context, username string) error {
	if !p.allowed(username) {
		return fmt.Errorf("login %q: %w", username, ErrUnknownUser)
	}
	if err := p.device.Set(ctx, deviceUserKey, username); err != nil {
		return fmt.Errorf("remember user: %w", err)
	}
	p.Shutdown()
	return p.Initialize(ctx, username)
}

// CurrentUser returns the username remembered on this device.
func (p *PlannerService) CurrentUser(ctx context.Context) (string, bool, error) {
	return p.device.Get(ctx, deviceUserKey)
}

func (p *PlannerService) allowed(username string) bool {
	for _, u := range p.cfg.Users {
		if u == username {
			return true
		}
	}
	return false
}

// Initialize opens the tasks, details and settings subscriptions for user.
// A second call for the same user is a no-op; a call for another user replaces the session.
// The initial state of every collection is loaded before Initialize returns.
func (p *PlannerService) Initialize(ctx context.Context, user string) error {
	if user == "" {
		return fmt.Errorf("initialize: empty user: %w", ErrValidation)
	}

	p.mu.Lock()
	current := p.sess
	p.mu.Unlock()
	if current != nil {
		if current.user == user {
			p.logger.Debug("planner already initialized", slog.String("user", user))
			return nil
		}
		p.Shutdown()
	}

	if err := p.gateway.InitializeUserSettings(ctx, user, p.Now()); err != nil {
		p.logger.Warn("initialize user settings failed", slog.String("user", user), slog.String("error", err.Error()))
	}

	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sess := &session{
		user:     user,
		cancel:   cancel,
		tasks:    p.gateway.SubscribeTasks(sessCtx, user),
		details:  p.gateway.SubscribeTaskDetails(sessCtx, user),
		settings: p.gateway.SubscribeUserSettings(sessCtx, user),
	}

	p.mu.Lock()
	if p.sess != nil {
		// lost a race against a concurrent Initialize
		p.mu.Unlock()
		sess.close()
		return nil
	}
	p.sess = sess
	p.resetLocked()
	p.applyTasksLocked(<-sess.tasks.C)
	p.applyDetailsLocked(<-sess.details.C)
	p.applySettingsLocked(<-sess.settings.C)
	sess.wg.Add(1)
	p.mu.Unlock()

	go p.listen(sessCtx, sess)
	p.backupInBackground(sess)

	p.logger.Info("planner initialized", slog.String("user", user))
	return nil
}

// Shutdown revokes the current session's subscriptions and pending deletions.
func (p *PlannerService) Shutdown() {
	p.mu.Lock()
	sess := p.sess
	p.sess = nil
	for id, pd := range p.pending {
		pd.stop()
		delete(p.pending, id)
	}
	p.resetLocked()
	p.mu.Unlock()

	if sess == nil {
		return
	}
	sess.close()
	p.notify()
	p.logger.Info("planner session closed", slog.String("user", sess.user))
}

func (p *PlannerService) resetLocked() {
	p.tasks = nil
	p.details = model.DetailMap{}
	p.focus = nil
	p.blocks = nil
	p.instances = map[string][]time.Time{}
}

func (p *PlannerService) listen(ctx context.Context, sess *session) {
	defer sess.wg.Done()
	tasksC, detailsC, settingsC := sess.tasks.C, sess.details.C, sess.settings.C
	for tasksC != nil || detailsC != nil || settingsC != nil {
		select {
		case <-ctx.Done():
			return
		case tasks, ok := <-tasksC:
			if !ok {
				tasksC = nil
				continue
			}
			p.writeMu.Lock()
			tasks = latest(tasksC, tasks)
			applied := p.apply(sess, func() { p.applyTasksLocked(tasks) })
			p.writeMu.Unlock()
			if applied {
				p.backupInBackground(sess)
			}
		case details, ok := <-detailsC:
			if !ok {
				detailsC = nil
				continue
			}
			p.writeMu.Lock()
			details = latest(detailsC, details)
			p.apply(sess, func() { p.applyDetailsLocked(details) })
			p.writeMu.Unlock()
		case settings, ok := <-settingsC:
			if !ok {
				settingsC = nil
				continue
			}
			p.writeMu.Lock()
			settings = latest(settingsC, settings)
			p.apply(sess, func() { p.applySettingsLocked(settings) })
			p.writeMu.Unlock()
		}
	}
}

// latest prefers a newer pending value over v. Callers hold writeMu, so a push caused
// by a local write is always seen before the stale one it replaced.
func latest[T any](c <-chan T, v T) T {
	select {
	case newer, ok := <-c:
		if ok {
			return newer
		}
	default:
	}
	return v
}

// apply runs fn under the lock unless sess has been replaced meanwhile.
func (p *PlannerService) apply(sess *session, fn func()) bool {
	p.mu.Lock()
	if p.sess != sess {
		p.mu.Unlock()
		return false
	}
	fn()
	p.mu.Unlock()
	p.notify()
	return true
}

func (p *PlannerService) applyTasksLocked(tasks []model.Task) {
	p.tasks = tasks
}

func (p *PlannerService) applyDetailsLocked(details model.DetailMap) {
	if details == nil {
		details = model.DetailMap{}
	}
	p.details = details
}

func (p *PlannerService) applySettingsLocked(settings model.UserSettings) {
	p.focus = append([]string{}, settings.FocusList...)
}

func (p *PlannerService) backupInBackground(sess *session) {
	sess.wg.Add(1)
	go func() {
		defer sess.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := p.maybeBackup(ctx, sess); err != nil {
			p.logger.Warn("windowed backup failed", slog.String("user", sess.user), slog.String("error", err.Error()))
		}
	}()
}

func (p *PlannerService) maybeBackup(ctx context.Context, sess *session) (*model.ArchiveSnapshot, error) {
	p.mu.RLock()
	if p.sess != sess {
		p.mu.RUnlock()
		return nil, nil
	}
	tasks, details, focus := cloneTasks(p.tasks), p.details.Clone(), append([]string{}, p.focus...)
	p.mu.RUnlock()
	return p.archive.MaybeCreateWindowedBackup(ctx, sess.user, tasks, details, focus)
}

// Watch delivers a change counter whenever the working set changes. The channel closes with ctx.
func (p *PlannerService) Watch(ctx context.Context) <-chan uint64 {
	ch := make(chan uint64, 1)
	p.mu.Lock()
	p.watchers[ch] = struct{}{}
	p.mu.Unlock()
	go func() {
		<-ctx.Done()
		p.mu.Lock()
		delete(p.watchers, ch)
		close(ch)
		p.mu.Unlock()
	}()
	return ch
}

func (p *PlannerService) notify() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.version++
	for ch := range p.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- p.version
	}
}

// User returns the signed-in user or ErrNotInitialized.
func (p *PlannerService) User() (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.userLocked()
}

func (p *PlannerService) userLocked() (string, error) {
	if p.sess == nil {
		return "", ErrNotInitialized
	}
	return p.sess.user, nil
}

// Tasks returns a copy of the current tasks, newest first.
func (p *PlannerService) Tasks() []model.Task {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return cloneTasks(p.tasks)
}

// Task returns one task by id.
func (p *PlannerService) Task(id string) (model.Task, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.taskLocked(id)
	if !ok {
		return model.Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return t.Clone(), nil
}

func (p *PlannerService) taskLocked(id string) (model.Task, bool) {
	for _, t := range p.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return model.Task{}, false
}

// TaskDetails returns a copy of every task detail, keyed by task id.
func (p *PlannerService) TaskDetails() model.DetailMap {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.details.Clone()
}

func (p *PlannerService) TaskDetail(taskID string) (model.TaskDetail, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	d, ok := p.details[taskID]
	if !ok {
		return model.TaskDetail{}, fmt.Errorf("detail of task %s: %w", taskID, ErrNotFound)
	}
	return d.Clone(), nil
}

// FocusList returns the ids planned for today in order.
func (p *PlannerService) FocusList() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string{}, p.focus...)
}

// FocusTasks resolves the focus list to tasks, skipping ids no longer present.
func (p *PlannerService) FocusTasks() []model.Task {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]model.Task, 0, len(p.focus))
	for _, id := range p.focus {
		if t, ok := p.taskLocked(id); ok {
			out = append(out, t.Clone())
		}
	}
	return out
}

// Areas returns the static map layout.
func (p *PlannerService) Areas() []model.Area {
	return append([]model.Area(nil), p.cfg.Areas...)
}

func (p *PlannerService) View() View {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.view
}

func (p *PlannerService) SetView(v View) error {
	if !v.Valid() {
		return fmt.Errorf("view %q: %w", v, ErrValidation)
	}
	p.mu.Lock()
	p.view = v
	p.mu.Unlock()
	p.notify()
	return nil
}

func (p *PlannerService) DailyPlanningMode() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.planning
}

func (p *PlannerService) SetDailyPlanningMode(on bool) {
	p.mu.Lock()
	p.planning = on
	p.mu.Unlock()
	p.notify()
}

// RecurrenceInstances returns the completion instants recorded for a repetitive task.
func (p *PlannerService) RecurrenceInstances(taskID string) []time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]time.Time(nil), p.instances[taskID]...)
}

// write sends one mutation to the gateway with bounded retries. Failures are logged and returned.
func (p *PlannerService) write(ctx context.Context, op string, fn func(context.Context) error) error {
	if err := retryWrite(ctx, writeAttempts, writeBackoff, fn); err != nil {
		p.logger.Error("write failed", slog.String("op", op), slog.String("error", err.Error()))
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
