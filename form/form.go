// Package form implements the multi-turn dialogue that collects a
// reminder: recipient, date, time and text, with confirmation and
// cancellation from any step.
package form

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jmhodges/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"studybot/db"
)

const (
	defaultIdleTimeout = 15 * time.Minute
	sweepInterval      = time.Minute
)

// DatePromptText is reused by the transport when it redraws the calendar
// on month navigation.
const DatePromptText = "Pick a date on the calendar or type it as DD.MM.YYYY"

const (
	txtAskRecipient     = "Whom should I remind? Send the username"
	txtUserNotFound     = "I don't know this user. Send another username"
	txtAskDate          = DatePromptText
	txtBadDate          = "I couldn't read that date. Pick one on the calendar or type DD.MM.YYYY"
	txtPastDate         = "That date has already passed. Pick a date starting from today"
	txtAskTime          = "At what time? Send it as HH:MM"
	txtBadTime          = "I expect a valid time in the format HH:MM"
	txtAskText          = "Now send me the reminder text"
	txtPastInstant      = "That moment has already passed today. Send a later time as HH:MM"
	txtSaved            = "Done, the reminder is set"
	txtCancelled        = "Okay, I dropped this reminder"
	txtFailedSave       = "I couldn't save the reminder. Press confirm to try again"
	txtDirectoryFailure = "I couldn't check that username right now. Send it again"

	fmtSummary = "Remind @%s on %s at %02d:%02d:\n%s"
)

var errUnknownFormat = errors.New("unknown format")

// Directory resolves usernames to registered users.
type Directory interface {
	UserByUsername(username string) (*db.User, error)
}

// Store receives the completed reminder.
type Store interface {
	AddReminder(username string, remindAt time.Time, text string) (int, error)
}

// Prompter sends the outbound side of the dialogue. PromptCalendar shows a
// month picker, PromptConfirm attaches confirm/cancel controls.
type Prompter interface {
	Prompt(chatID int64, text string) error
	PromptCalendar(chatID int64, text string, year int, month time.Month) error
	PromptConfirm(chatID int64, text string) error
}

// One variant per dialogue step; each carries only the fields collected so
// far.
type state interface{ formState() }

type stateRecipient struct{}

type stateDate struct {
	recipient string
}

type stateTime struct {
	recipient string
	date      time.Time // midnight in the bot's timezone
}

type stateText struct {
	recipient string
	date      time.Time
	hour      int
	minute    int
}

type stateConfirm struct {
	recipient string
	date      time.Time
	hour      int
	minute    int
	text      string
}

func (stateRecipient) formState() {}
func (stateDate) formState()      {}
func (stateTime) formState()      {}
func (stateText) formState()      {}
func (stateConfirm) formState()   {}

type session struct {
	st        state
	updatedAt time.Time
}

// Engine drives one form session per chat. Safe for concurrent use across
// chats.
type Engine struct {
	dir         Directory
	store       Store
	prompter    Prompter
	logger      *zap.SugaredLogger
	loc         *time.Location
	clk         clock.Clock
	idleTimeout time.Duration

	mu       sync.Mutex
	sessions map[int64]*session
}

func NewEngine(dir Directory, store Store, prompter Prompter, loc *time.Location, logger *zap.SugaredLogger) *Engine {
	return &Engine{
		dir:         dir,
		store:       store,
		prompter:    prompter,
		logger:      logger,
		loc:         loc,
		clk:         clock.New(),
		idleTimeout: defaultIdleTimeout,
		sessions:    make(map[int64]*session),
	}
}

// Start opens a fresh session, replacing any abandoned one.
func (e *Engine) Start(chatID int64) {
	e.setState(chatID, stateRecipient{})
	e.prompt(chatID, txtAskRecipient)
}

// Active reports whether the chat is in the middle of the dialogue.
func (e *Engine) Active(chatID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.sessions[chatID]
	return ok
}

// Cancel drops the session from any step. Without a session it is a no-op.
func (e *Engine) Cancel(chatID int64) {
	e.mu.Lock()
	_, ok := e.sessions[chatID]
	delete(e.sessions, chatID)
	e.mu.Unlock()

	if ok {
		e.prompt(chatID, txtCancelled)
	}
}

// HandleText advances the session with a free-text turn. It reports whether
// the turn belonged to an active session; invalid input never advances the
// step and never propagates an error.
func (e *Engine) HandleText(chatID int64, text string) bool {
	st := e.currentState(chatID)
	if st == nil {
		return false
	}

	text = strings.TrimSpace(text)

	switch s := st.(type) {
	case stateRecipient:
		e.acceptRecipient(chatID, text)

	case stateDate:
		date, err := e.parseDate(text)
		switch {
		case err == errUnknownFormat:
			e.prompt(chatID, txtBadDate)
		case err != nil:
			e.prompt(chatID, txtPastDate)
		default:
			e.setState(chatID, stateTime{recipient: s.recipient, date: date})
			e.prompt(chatID, txtAskTime)
		}

	case stateTime:
		hour, minute, err := parseTime(text)
		if err != nil {
			e.prompt(chatID, txtBadTime)
			return true
		}
		e.setState(chatID, stateText{recipient: s.recipient, date: s.date, hour: hour, minute: minute})
		e.prompt(chatID, txtAskText)

	case stateText:
		next := stateConfirm{recipient: s.recipient, date: s.date, hour: s.hour, minute: s.minute, text: text}
		e.setState(chatID, next)
		e.promptSummary(chatID, next)

	case stateConfirm:
		// Waiting for a button press; repeat the summary.
		e.promptSummary(chatID, s)
	}

	return true
}

// SelectDate advances the date step from a calendar-day callback.
func (e *Engine) SelectDate(chatID int64, year int, month time.Month, day int) {
	st := e.currentState(chatID)
	s, ok := st.(stateDate)
	if !ok {
		return
	}

	date := time.Date(year, month, day, 0, 0, 0, 0, e.loc)
	if date.Before(e.today()) {
		e.prompt(chatID, txtPastDate)
		return
	}

	e.setState(chatID, stateTime{recipient: s.recipient, date: date})
	e.prompt(chatID, txtAskTime)
}

// Confirm completes the session: the combined instant is validated against
// now, the reminder is written, the session is cleared. The session is
// taken under the lock before the write, so a concurrent or repeated
// confirm finds no session and no-ops; a failed write puts it back.
func (e *Engine) Confirm(chatID int64) {
	e.mu.Lock()
	sess, ok := e.sessions[chatID]
	if !ok {
		e.mu.Unlock()
		return
	}
	s, ok := sess.st.(stateConfirm)
	if !ok {
		e.mu.Unlock()
		return
	}
	delete(e.sessions, chatID)
	e.mu.Unlock()

	due := time.Date(s.date.Year(), s.date.Month(), s.date.Day(), s.hour, s.minute, 0, 0, e.loc)
	if due.Before(e.clk.Now()) {
		e.setState(chatID, stateTime{recipient: s.recipient, date: s.date})
		e.prompt(chatID, txtPastInstant)
		return
	}

	if _, err := e.store.AddReminder(s.recipient, due, s.text); err != nil {
		e.logger.Errorw("failed saving reminder", "err", err)
		e.setState(chatID, s)
		e.prompt(chatID, txtFailedSave)
		return
	}

	e.prompt(chatID, txtSaved)
}

// Run sweeps abandoned sessions until the context is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.evictIdle()
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) evictIdle() {
	now := e.clk.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	for chatID, s := range e.sessions {
		if now.Sub(s.updatedAt) > e.idleTimeout {
			delete(e.sessions, chatID)
		}
	}
}

func (e *Engine) acceptRecipient(chatID int64, text string) {
	username := strings.TrimPrefix(text, "@")

	u, err := e.dir.UserByUsername(username)
	if err != nil {
		e.logger.Errorw("failed resolving recipient", "err", err)
		e.prompt(chatID, txtDirectoryFailure)
		return
	}
	if u == nil {
		e.prompt(chatID, txtUserNotFound)
		return
	}

	e.setState(chatID, stateDate{recipient: u.Username})

	now := e.clk.Now().In(e.loc)
	if err := e.prompter.PromptCalendar(chatID, txtAskDate, now.Year(), now.Month()); err != nil {
		e.logger.Errorw("failed sending calendar", "err", err)
	}
}

func (e *Engine) promptSummary(chatID int64, s stateConfirm) {
	txt := fmt.Sprintf(fmtSummary, s.recipient, s.date.Format("02.01.2006"), s.hour, s.minute, s.text)
	if err := e.prompter.PromptConfirm(chatID, txt); err != nil {
		e.logger.Errorw("failed sending confirmation", "err", err)
	}
}

func (e *Engine) currentState(chatID int64) state {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[chatID]
	if !ok {
		return nil
	}
	return s.st
}

func (e *Engine) setState(chatID int64, st state) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessions[chatID] = &session{st: st, updatedAt: e.clk.Now()}
}

func (e *Engine) prompt(chatID int64, text string) {
	if err := e.prompter.Prompt(chatID, text); err != nil {
		e.logger.Errorw("failed sending prompt", "err", err)
	}
}

func (e *Engine) today() time.Time {
	now := e.clk.Now().In(e.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, e.loc)
}

var errPastDate = errors.New("date has passed")

// parseDate accepts DD.MM.YYYY and DD-MM-YYYY and rejects dates before
// today in the bot's timezone.
func (e *Engine) parseDate(text string) (time.Time, error) {
	var parsed time.Time
	var err error
	for _, layout := range []string{"02.01.2006", "02-01-2006"} {
		parsed, err = time.ParseInLocation(layout, text, e.loc)
		if err == nil {
			break
		}
	}
	if err != nil {
		return time.Time{}, errUnknownFormat
	}

	if parsed.Before(e.today()) {
		return time.Time{}, errPastDate
	}
	return parsed, nil
}

func parseTime(text string) (int, int, error) {
	parts := strings.Split(text, ":")
	if len(parts) != 2 {
		return 0, 0, errUnknownFormat
	}

	hour, err := validateInt(parts[0], 0, 23)
	if err != nil {
		return 0, 0, err
	}

	minute, err := validateInt(parts[1], 0, 59)
	if err != nil {
		return 0, 0, err
	}

	return hour, minute, nil
}

func validateInt(txt string, min int, max int) (int, error) {
	val, err := strconv.Atoi(txt)
	if err != nil {
		return 0, err
	}

	if val < min || val > max {
		return 0, errors.Errorf("value %d is out of range", val)
	}
	return val, nil
}
