package tgbot

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tg "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"studybot/db"
	"studybot/form"
)

const (
	txtChooseRole       = "Hi! Choose your role:"
	txtMainMenu         = "Main menu"
	txtAdminMenu        = "Admin menu"
	txtChooseDim        = "How do you want to browse the videos?"
	txtChooseEntry      = "Pick an entry"
	txtChooseVideo      = "Pick a video"
	txtNoVideos         = "There are no videos here yet"
	txtNotAllowed       = "This section is for admins only"
	txtUseMenu          = "Use /start to open the menu"
	txtHelp             = "I keep the study video library and deliver reminders. /start opens the menu, /cancel drops whatever you were in the middle of"
	txtUploadPrompt     = "Pick a category for the new video"
	txtAskCategoryName  = "Send me the name of the new category"
	txtSendVideo        = "Now send me the video; the caption becomes its title"
	txtVideoSaved       = "The video is in the library"
	txtUntitledVideo    = "Untitled"
	txtSomethingBroke   = "Something went wrong, try again later"
	txtUnknownCommand   = "I don't know this command. Use /help"
	txtNothingToCancel  = "There's nothing to cancel"

	fmtUserStats = "Users in total: %d\nRegular users: %d\nAdmins: %d\n\nAdmins:\n%s"
)

const (
	btnRoleUser    = "User"
	btnRoleAdmin   = "Administrator"
	btnWatchVideos = "Watch videos"
	btnChangeRole  = "Change role"
	btnAdminMenu   = "Admin menu"
	btnMainMenu    = "Main menu"
	btnUserStats   = "User statistics"
	btnSetReminder = "Set a reminder"
	btnUploadVideo = "Upload a video"
	btnNewCategory = "New category…"
	btnByCategory  = "By category"
	btnBySubject   = "By subject"
	btnByTeacher   = "By teacher"
	btnPrevPage    = "◀️ Back"
	btnNextPage    = "Next ▶️"
	btnPrevVideo   = "⬅️ Previous"
	btnNextVideo   = "Next ➡️"
	btnPickVideo   = "Pick another video"
	btnPrevMonth   = "<"
	btnNextMonth   = ">"
	btnConfirm     = "✅ Confirm"
	btnCancel      = "❌ Cancel"
)

// awaitingCategoryName marks an upload session that still needs a category
// name typed in; positive values are the chosen category ID.
const awaitingCategoryName = -1

// RefSource serves reference-data lists; either the Redis cache or the
// database directly.
type RefSource interface {
	Refs(dim string) ([]db.Ref, error)
}

type TBot struct {
	Bot           *tg.BotAPI
	DB            *db.Database
	Refs          RefSource
	Form          *form.Engine // set right after construction
	Logger        *zap.SugaredLogger
	RetryAttempts int
	RetryDelay    time.Duration

	mu      sync.Mutex
	uploads map[int64]int
}

func NewTBot(token string, d *db.Database, refs RefSource, logger *zap.SugaredLogger) (*TBot, error) {
	b, err := tg.NewBotAPI(token)
	if err != nil {
		logger.Errorw("failed to initialize Telegram Bot", "err", err)
		return nil, err
	}

	b.Debug = false

	logger.Infof("authorized on account %q (%q, %d)", b.Self.FirstName, b.Self.UserName, b.Self.ID)

	return &TBot{
		Bot:           b,
		DB:            d,
		Refs:          refs,
		Logger:        logger,
		RetryAttempts: 3,
		RetryDelay:    1 * time.Second,
		uploads:       make(map[int64]int),
	}, nil
}

func (b *TBot) HandleCommand(msg *tg.Message) {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		u, err := b.DB.UserByChatID(chatID)
		if err != nil {
			b.Logger.Errorw("failed fetching user", "err", err)
			b.SendMessage(chatID, txtSomethingBroke, nil)
			return
		}

		if u == nil {
			b.SendMessage(chatID, txtChooseRole, &keyboardRoles)
			return
		}
		kb := mainMenuKeyboard(u.Role == db.RoleAdmin)
		b.SendMessage(chatID, txtMainMenu, &kb)

	case "help":
		b.SendMessage(chatID, txtHelp, nil)

	case "cancel":
		b.clearUpload(chatID)
		if b.Form.Active(chatID) {
			b.Form.Cancel(chatID)
			return
		}
		b.SendMessage(chatID, txtNothingToCancel, nil)

	default:
		b.SendMessage(chatID, txtUnknownCommand, nil)
	}
}

func (b *TBot) HandleMessage(msg *tg.Message) {
	chatID := msg.Chat.ID

	if msg.Video != nil {
		if categoryID := b.pendingUpload(chatID); categoryID > 0 {
			b.acceptVideo(chatID, categoryID, msg)
			return
		}
	}

	if msg.Text != "" && b.pendingUpload(chatID) == awaitingCategoryName {
		b.acceptCategoryName(chatID, strings.TrimSpace(msg.Text))
		return
	}

	if msg.Text != "" && b.Form.HandleText(chatID, msg.Text) {
		return
	}

	b.SendMessage(chatID, txtUseMenu, nil)
}

func (b *TBot) HandleCallback(cbq *tg.CallbackQuery) {
	// inline-mode callbacks carry no message to anchor a menu to
	if cbq.Message == nil {
		return
	}

	chatID := cbq.Message.Chat.ID
	msgID := cbq.Message.MessageID

	// acknowledge the press so the client stops the spinner
	if _, err := b.Bot.Request(tg.NewCallback(cbq.ID, "")); err != nil {
		b.Logger.Warnw("failed answering callback", "err", err)
	}

	action, err := DecodeAction(cbq.Data)
	if err != nil {
		b.Logger.Warnw("dropping callback", "data", cbq.Data, "err", err)
		return
	}

	switch action.Kind {
	case ActIgnore:

	case ActSelectRole:
		b.selectRole(cbq, action.Role)

	case ActChangeRoleMenu:
		b.ReplaceMessage(chatID, msgID, txtChooseRole, &keyboardRoles)

	case ActMainMenu:
		b.showMainMenu(chatID, msgID)

	case ActAdminMenu:
		if !b.requireAdmin(chatID) {
			return
		}
		kb := adminMenuKeyboard()
		b.ReplaceMessage(chatID, msgID, txtAdminMenu, &kb)

	case ActAdminStats:
		if !b.requireAdmin(chatID) {
			return
		}
		b.sendUserStats(chatID)

	case ActWatchVideo:
		b.ReplaceMessage(chatID, msgID, txtChooseDim, &keyboardDims)

	case ActBrowseDim:
		b.showRefs(chatID, msgID, action.Dim, action.Page)

	case ActVideoList:
		b.showVideoList(chatID, msgID, action.Dim, action.RefID, action.Page)

	case ActShowVideo:
		b.showVideo(chatID, action.Dim, action.RefID, action.Index)

	case ActUploadVideo:
		if !b.requireAdmin(chatID) {
			return
		}
		b.showUploadCategories(chatID, msgID)

	case ActUploadCategory:
		if !b.requireAdmin(chatID) {
			return
		}
		b.setPendingUpload(chatID, action.RefID)
		b.SendMessage(chatID, txtSendVideo, nil)

	case ActNewCategory:
		if !b.requireAdmin(chatID) {
			return
		}
		b.setPendingUpload(chatID, awaitingCategoryName)
		b.SendMessage(chatID, txtAskCategoryName, nil)

	case ActSetReminder:
		if !b.requireAdmin(chatID) {
			return
		}
		b.Form.Start(chatID)

	case ActConfirmReminder:
		b.Form.Confirm(chatID)

	case ActCancelReminder:
		b.Form.Cancel(chatID)

	case ActCalendarDay:
		b.Form.SelectDate(chatID, action.Year, action.Month, action.Day)

	case ActCalendarMonth:
		kb := calendarKeyboard(action.Year, action.Month)
		b.ReplaceMessage(chatID, msgID, form.DatePromptText, &kb)
	}
}

func (b *TBot) selectRole(cbq *tg.CallbackQuery, role string) {
	if role != db.RoleUser && role != db.RoleAdmin {
		b.Logger.Warnw("dropping unknown role", "role", role)
		return
	}

	chatID := cbq.Message.Chat.ID
	err := b.DB.CreateUser(chatID, cbq.From.UserName, cbq.From.FirstName, role)
	if err != nil {
		b.Logger.Errorw("failed saving user", "err", err)
		b.SendMessage(chatID, txtSomethingBroke, nil)
		return
	}

	// the menu is rebuilt after the write, so the fresh role is reflected
	b.showMainMenu(chatID, cbq.Message.MessageID)
}

func (b *TBot) showMainMenu(chatID int64, msgID int) {
	u, err := b.DB.UserByChatID(chatID)
	if err != nil {
		b.Logger.Errorw("failed fetching user", "err", err)
		b.SendMessage(chatID, txtSomethingBroke, nil)
		return
	}

	if u == nil {
		b.ReplaceMessage(chatID, msgID, txtChooseRole, &keyboardRoles)
		return
	}
	kb := mainMenuKeyboard(u.Role == db.RoleAdmin)
	b.ReplaceMessage(chatID, msgID, txtMainMenu, &kb)
}

func (b *TBot) sendUserStats(chatID int64) {
	info, err := b.DB.GetUsersInfo()
	if err != nil {
		b.Logger.Errorw("failed fetching user stats", "err", err)
		b.SendMessage(chatID, txtSomethingBroke, nil)
		return
	}

	var sb strings.Builder
	for _, name := range info.AdminNames {
		sb.WriteString("@" + name + "\n")
	}
	b.SendMessage(chatID, fmt.Sprintf(fmtUserStats, info.Total, info.Users, info.Admins, sb.String()), nil)
}

func (b *TBot) showRefs(chatID int64, msgID int, dim string, page int) {
	refs, err := b.Refs.Refs(dim)
	if err != nil {
		b.Logger.Errorw("failed fetching reference data", "dim", dim, "err", err)
		b.SendMessage(chatID, txtSomethingBroke, nil)
		return
	}

	if len(refs) == 0 {
		b.SendMessage(chatID, txtNoVideos, nil)
		return
	}

	kb := refsKeyboard(dim, refs, page)
	b.ReplaceMessage(chatID, msgID, txtChooseEntry, &kb)
}

func (b *TBot) showVideoList(chatID int64, msgID int, dim string, refID, page int) {
	videos, err := b.DB.Videos(dim, refID)
	if err != nil {
		b.Logger.Errorw("failed fetching videos", "dim", dim, "err", err)
		b.SendMessage(chatID, txtSomethingBroke, nil)
		return
	}

	if len(videos) == 0 {
		b.SendMessage(chatID, txtNoVideos, nil)
		return
	}

	kb := videosKeyboard(dim, refID, videos, page)
	b.ReplaceMessage(chatID, msgID, txtChooseVideo, &kb)
}

func (b *TBot) showVideo(chatID int64, dim string, refID, index int) {
	videos, err := b.DB.Videos(dim, refID)
	if err != nil {
		b.Logger.Errorw("failed fetching videos", "dim", dim, "err", err)
		b.SendMessage(chatID, txtSomethingBroke, nil)
		return
	}

	if len(videos) == 0 {
		b.SendMessage(chatID, txtNoVideos, nil)
		return
	}
	if index < 0 {
		index = 0
	}
	if index >= len(videos) {
		index = len(videos) - 1
	}

	v := videos[index]
	cfg := tg.NewVideo(chatID, tg.FileID(v.FileID))
	cfg.Caption = v.Name
	cfg.ReplyMarkup = underVideoKeyboard(dim, refID, index, len(videos))

	b.retryExecute(func() error {
		_, err := b.Bot.Send(cfg)
		return err
	})
}

func (b *TBot) showUploadCategories(chatID int64, msgID int) {
	categories, err := b.Refs.Refs(db.DimCategory)
	if err != nil {
		b.Logger.Errorw("failed fetching categories", "err", err)
		b.SendMessage(chatID, txtSomethingBroke, nil)
		return
	}

	kb := uploadCategoriesKeyboard(categories)
	b.ReplaceMessage(chatID, msgID, txtUploadPrompt, &kb)
}

func (b *TBot) acceptCategoryName(chatID int64, name string) {
	if name == "" {
		b.SendMessage(chatID, txtAskCategoryName, nil)
		return
	}

	id, err := b.DB.AddRef(db.DimCategory, name)
	if err != nil {
		b.Logger.Errorw("failed creating category", "err", err)
		b.SendMessage(chatID, txtSomethingBroke, nil)
		return
	}

	if inv, ok := b.Refs.(interface{ Invalidate(string) }); ok {
		inv.Invalidate(db.DimCategory)
	}

	b.setPendingUpload(chatID, id)
	b.SendMessage(chatID, txtSendVideo, nil)
}

func (b *TBot) acceptVideo(chatID int64, categoryID int, msg *tg.Message) {
	name := strings.TrimSpace(msg.Caption)
	if name == "" {
		name = txtUntitledVideo
	}

	if err := b.DB.AddVideo(categoryID, msg.Video.FileID, name); err != nil {
		b.Logger.Errorw("failed saving video", "err", err)
		b.SendMessage(chatID, txtSomethingBroke, nil)
		return
	}

	b.clearUpload(chatID)
	b.SendMessage(chatID, txtVideoSaved, nil)
}

// requireAdmin checks the caller's role and reports the refusal itself.
func (b *TBot) requireAdmin(chatID int64) bool {
	u, err := b.DB.UserByChatID(chatID)
	if err != nil {
		b.Logger.Errorw("failed fetching user", "err", err)
		b.SendMessage(chatID, txtSomethingBroke, nil)
		return false
	}

	if u == nil || u.Role != db.RoleAdmin {
		b.SendMessage(chatID, txtNotAllowed, nil)
		return false
	}
	return true
}

func (b *TBot) pendingUpload(chatID int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.uploads[chatID]
}

func (b *TBot) setPendingUpload(chatID int64, categoryID int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploads[chatID] = categoryID
}

func (b *TBot) clearUpload(chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.uploads, chatID)
}

// Prompt, PromptCalendar and PromptConfirm make TBot the form's outbound
// side.
func (b *TBot) Prompt(chatID int64, text string) error {
	return b.SendMessage(chatID, text, nil)
}

func (b *TBot) PromptCalendar(chatID int64, text string, year int, month time.Month) error {
	kb := calendarKeyboard(year, month)
	return b.SendMessage(chatID, text, &kb)
}

func (b *TBot) PromptConfirm(chatID int64, text string) error {
	return b.SendMessage(chatID, text, &keyboardConfirm)
}

// Send makes TBot the scheduler's delivery sink.
func (b *TBot) Send(chatID int64, text string) error {
	return b.SendMessage(chatID, text, nil)
}

func (b *TBot) SendMessage(chatID int64, text string, kb *tg.InlineKeyboardMarkup) error {
	m := tg.NewMessage(chatID, text)
	if kb != nil {
		m.ReplyMarkup = kb
	}

	err := b.retryExecute(func() error {
		_, err := b.Bot.Request(m)
		return err
	})
	if err != nil {
		b.Logger.Errorw("failed sending message", "err", err)
	}
	return err
}

// ReplaceMessage edits a menu in place; when the original message is gone
// it falls back to sending a new one.
func (b *TBot) ReplaceMessage(chatID int64, msgID int, text string, kb *tg.InlineKeyboardMarkup) {
	upd := tg.EditMessageTextConfig{
		BaseEdit: tg.BaseEdit{
			ChatID:      chatID,
			MessageID:   msgID,
			ReplyMarkup: kb,
		},
		Text: text,
	}

	err := b.retryExecute(func() error {
		_, err := b.Bot.Request(upd)
		if err != nil && strings.HasPrefix(err.Error(), "Bad Request: message is not modified") {
			err = nil
		}
		return err
	})
	if err == nil {
		return
	}

	if strings.Contains(err.Error(), "message to edit") {
		b.SendMessage(chatID, text, kb)
		return
	}
	b.Logger.Errorw("failed updating message", "err", err)
}

func (b *TBot) retryExecute(f func() error) error {
	var err error
	for i := 0; i < b.RetryAttempts; i++ {
		if err = f(); err == nil {
			return nil
		}
		time.Sleep(b.RetryDelay)
	}
	return err
}
