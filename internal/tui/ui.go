package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/stackwatch/warden/internal/supervisor"
)

const (
	statusTitle        = "Service"
	eventsTitle        = "Events"
	promptPageName     = "prompt"
	defaultMaxEvents   = 200
	defaultRefresh     = time.Second
	statusProbeTimeout = 5 * time.Second
	restartTimeout     = time.Minute
)

// StatusFunc supplies the current service report for the status panel.
type StatusFunc func(context.Context) supervisor.Report

// RestartFunc cycles the supervised service when the operator requests it.
type RestartFunc func(context.Context) error

// Option configures UI behaviour.
type Option func(*UI)

// WithRestart enables the interactive restart shortcut.
func WithRestart(fn RestartFunc) Option {
	return func(u *UI) {
		u.restart = fn
	}
}

// WithMaxEvents sets the maximum number of lifecycle events retained.
func WithMaxEvents(n int) Option {
	return func(u *UI) {
		if n > 0 {
			u.maxEvents = n
		}
	}
}

// WithRefreshInterval sets how often the status panel is re-polled.
func WithRefreshInterval(d time.Duration) Option {
	return func(u *UI) {
		if d > 0 {
			u.refreshInterval = d
		}
	}
}

// UI coordinates the interactive dashboard backed by tview.
type UI struct {
	app     *tview.Application
	pages   *tview.Pages
	table   *tview.Table
	events  *tview.TextView
	eventCh chan supervisor.Event

	status  StatusFunc
	restart RestartFunc

	refreshInterval time.Duration
	maxEvents       int

	mu            sync.RWMutex
	report        supervisor.Report
	history       []supervisor.Event
	notice        string
	rawEvents     bool
	eventsFocused bool

	cancelMu sync.Mutex
	cancel   context.CancelFunc

	wg        sync.WaitGroup
	stopOnce  sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

// New constructs a UI that renders reports from status and lifecycle events
// delivered to EventSink.
func New(status StatusFunc, opts ...Option) *UI {
	app := tview.NewApplication()

	table := tview.NewTable()
	table.SetBorder(true).SetTitle(statusTitle)

	events := tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	events.SetBorder(true).SetTitle(eventsTitle)
	events.SetChangedFunc(func() {
		app.Draw()
	})

	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(table, 12, 0, true).
		AddItem(events, 0, 1, false)

	pages := tview.NewPages().AddPage("main", flex, true, true)

	ui := &UI{
		app:             app,
		pages:           pages,
		table:           table,
		events:          events,
		eventCh:         make(chan supervisor.Event, 256),
		status:          status,
		refreshInterval: defaultRefresh,
		maxEvents:       defaultMaxEvents,
		done:            make(chan struct{}),
	}

	for _, opt := range opts {
		opt(ui)
	}

	app.SetRoot(pages, true)
	app.SetInputCapture(ui.handleKey)

	ui.mu.Lock()
	ui.refreshTableLocked()
	ui.mu.Unlock()

	return ui
}

// EventSink exposes the channel where supervisor events should be delivered.
func (u *UI) EventSink() chan<- supervisor.Event {
	return u.eventCh
}

// CloseEvents releases the event channel, allowing internal goroutines to exit cleanly.
func (u *UI) CloseEvents() {
	u.closeOnce.Do(func() {
		close(u.eventCh)
	})
}

// Done returns a channel that is closed when the UI stops.
func (u *UI) Done() <-chan struct{} {
	return u.done
}

// Run starts the tview application and processes incoming events until Stop
// is invoked or the provided context is cancelled.
func (u *UI) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	u.cancelMu.Lock()
	u.cancel = cancel
	u.cancelMu.Unlock()

	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		u.consumeEvents(ctx)
	}()

	go func() {
		<-ctx.Done()
		u.Stop()
	}()

	err := u.app.Run()

	u.cancelMu.Lock()
	cancel = u.cancel
	u.cancel = nil
	u.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}

	u.wg.Wait()
	u.Stop()

	return err
}

// Stop terminates the application loop and releases resources.
func (u *UI) Stop() {
	u.stopOnce.Do(func() {
		u.cancelMu.Lock()
		cancel := u.cancel
		u.cancel = nil
		u.cancelMu.Unlock()
		if cancel != nil {
			cancel()
		}
		u.app.Stop()
		close(u.done)
	})
}

func (u *UI) consumeEvents(ctx context.Context) {
	ticker := time.NewTicker(u.refreshInterval)
	defer ticker.Stop()

	u.refreshStatus(ctx)

	draining := false
	ctxDone := ctx.Done()

	for {
		var tick <-chan time.Time
		if !draining {
			tick = ticker.C
		}

		select {
		case <-ctxDone:
			if !draining {
				draining = true
				ticker.Stop()
			}
			ctxDone = nil
		case evt, ok := <-u.eventCh:
			if !ok {
				return
			}
			if draining {
				continue
			}
			u.applyEvent(evt)
		case <-tick:
			u.refreshStatus(ctx)
		}
	}
}

func (u *UI) refreshStatus(ctx context.Context) {
	if u.status == nil {
		return
	}
	probeCtx, cancel := context.WithTimeout(ctx, statusProbeTimeout)
	report := u.status(probeCtx)
	cancel()

	u.mu.Lock()
	u.report = report
	u.mu.Unlock()

	u.queueRefresh(false)
}

func (u *UI) handleKey(event *tcell.EventKey) *tcell.EventKey {
	if u.pages.HasPage(promptPageName) {
		return event
	}
	switch event.Key() {
	case tcell.KeyEnter:
		u.toggleFocus()
		return nil
	case tcell.KeyRune:
		switch event.Rune() {
		case 'q', 'Q':
			go u.Stop()
			return nil
		case 'r', 'R':
			u.showRestartPrompt()
			return nil
		case 'j', 'J':
			u.toggleJSON()
			return nil
		}
	}
	return event
}

func (u *UI) toggleFocus() {
	if u.eventsFocused {
		u.app.SetFocus(u.table)
	} else {
		u.app.SetFocus(u.events)
	}
	u.eventsFocused = !u.eventsFocused
}

func (u *UI) toggleJSON() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.rawEvents = !u.rawEvents
	u.renderEventsLocked()
}

func (u *UI) showRestartPrompt() {
	if u.restart == nil {
		return
	}
	u.mu.RLock()
	service := u.report.Service
	u.mu.RUnlock()

	modal := tview.NewModal().
		SetText(fmt.Sprintf("Restart %s?", service)).
		AddButtons([]string{"Restart", "Cancel"}).
		SetDoneFunc(func(buttonIndex int, buttonLabel string) {
			u.pages.RemovePage(promptPageName)
			u.app.SetFocus(u.table)
			if buttonLabel == "Restart" {
				u.triggerRestart()
			}
		})

	u.pages.RemovePage(promptPageName)
	u.pages.AddPage(promptPageName, modal, true, true)
}

func (u *UI) triggerRestart() {
	restart := u.restart
	if restart == nil {
		return
	}
	u.setNotice("restart requested")
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), restartTimeout)
		defer cancel()
		if err := restart(ctx); err != nil {
			u.setNotice(fmt.Sprintf("restart failed: %v", err))
			return
		}
		u.setNotice("")
	}()
}

func (u *UI) setNotice(notice string) {
	u.mu.Lock()
	u.notice = notice
	u.mu.Unlock()
	u.queueRefresh(false)
}

func (u *UI) applyEvent(evt supervisor.Event) {
	u.recordEvent(evt)
	u.queueRefresh(true)
}

// recordEvent folds a lifecycle event into the retained history and the
// displayed state without touching the draw queue.
func (u *UI) recordEvent(evt supervisor.Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	u.history = append(u.history, evt)
	if len(u.history) > u.maxEvents {
		trim := len(u.history) - u.maxEvents
		u.history = append([]supervisor.Event(nil), u.history[trim:]...)
	}
	// Events move the displayed state between polls so transitions show up
	// immediately instead of on the next refresh tick.
	u.report.State = stateForEvent(evt.Type, u.report.State)
}

func (u *UI) queueRefresh(updateEvents bool) {
	u.app.QueueUpdateDraw(func() {
		u.mu.Lock()
		defer u.mu.Unlock()
		u.refreshTableLocked()
		if updateEvents {
			u.renderEventsLocked()
		}
	})
}

func (u *UI) refreshTableLocked() {
	u.table.Clear()

	r := u.report
	healthy := "No"
	if r.Healthy {
		healthy = "Yes"
	}
	rows := [][2]string{
		{"SERVICE", dash(r.Service)},
		{"STATE", formatState(r.State)},
		{"HEALTHY", healthy},
		{"PID", formatCount(r.PID)},
		{"REF", dash(r.Ref)},
		{"UPTIME", dash(r.Uptime)},
		{"RESTARTS", fmt.Sprintf("%d", r.Restarts)},
		{"LAST ERROR", truncate(dash(r.LastError), 80)},
	}
	if u.notice != "" {
		rows = append(rows, [2]string{"NOTICE", truncate(u.notice, 80)})
	}

	for row, pair := range rows {
		label := tview.NewTableCell(pair[0]).
			SetSelectable(false).
			SetAttributes(tcell.AttrBold)
		u.table.SetCell(row, 0, label)
		u.table.SetCell(row, 1, tview.NewTableCell(pair[1]))
	}

	if r.Service != "" {
		u.table.SetTitle(fmt.Sprintf("%s (%s)", statusTitle, r.Service))
	} else {
		u.table.SetTitle(statusTitle)
	}
}

func (u *UI) renderEventsLocked() {
	u.events.Clear()

	for _, evt := range u.history {
		if u.rawEvents {
			record := eventRecord{
				Timestamp: evt.Timestamp,
				Service:   evt.Service,
				Type:      string(evt.Type),
				Reason:    evt.Reason,
				Attempt:   evt.Attempt,
				Message:   evt.Message,
			}
			if evt.Err != nil {
				record.Error = evt.Err.Error()
			}
			data, err := json.Marshal(record)
			if err != nil {
				fmt.Fprintf(u.events, "{\"error\":\"%v\"}\n", err)
				continue
			}
			fmt.Fprintf(u.events, "%s\n", data)
			continue
		}

		line := formatEventMessage(evt)
		if evt.Attempt > 0 {
			line = fmt.Sprintf("%s attempt=%d", line, evt.Attempt)
		}
		fmt.Fprintf(u.events, "[%s]%s %-11s[-] %s\n",
			eventColor(evt.Type),
			evt.Timestamp.Format("15:04:05"),
			evt.Type,
			tview.Escape(line))
	}
	u.events.ScrollToEnd()
}

type eventRecord struct {
	Timestamp time.Time `json:"ts"`
	Service   string    `json:"service"`
	Type      string    `json:"type"`
	Reason    string    `json:"reason,omitempty"`
	Attempt   int       `json:"attempt,omitempty"`
	Message   string    `json:"msg,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func formatEventMessage(evt supervisor.Event) string {
	text := evt.Message
	if evt.Err != nil {
		if text != "" {
			text = text + ": " + evt.Err.Error()
		} else {
			text = evt.Err.Error()
		}
	}
	if evt.Reason != "" {
		if text != "" {
			text = fmt.Sprintf("%s (%s)", text, evt.Reason)
		} else {
			text = evt.Reason
		}
	}
	return text
}

func stateForEvent(t supervisor.EventType, current supervisor.State) supervisor.State {
	switch t {
	case supervisor.EventTypeStarting, supervisor.EventTypeStarted:
		return supervisor.StateStarting
	case supervisor.EventTypeHealthy:
		return supervisor.StateHealthy
	case supervisor.EventTypeUnhealthy:
		return supervisor.StateUnhealthy
	case supervisor.EventTypeRestarting:
		return supervisor.StateRestarting
	case supervisor.EventTypeStopped:
		return supervisor.StateStopped
	case supervisor.EventTypeFailed:
		return supervisor.StateFailed
	default:
		return current
	}
}

func eventColor(t supervisor.EventType) string {
	switch t {
	case supervisor.EventTypeHealthy:
		return "green"
	case supervisor.EventTypeUnhealthy, supervisor.EventTypeRestarting, supervisor.EventTypeCrashed:
		return "yellow"
	case supervisor.EventTypeFailed:
		return "red"
	default:
		return "white"
	}
}

func formatState(s supervisor.State) string {
	if s == "" {
		return "-"
	}
	return string(s)
}

func formatCount(n int) string {
	if n <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d", n)
}

func dash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit-3] + "..."
}
