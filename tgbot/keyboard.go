package tgbot

import (
	"fmt"
	"time"

	tg "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"studybot/db"
)

const (
	refsPerPage   = 5
	videosPerPage = 2
)

type button struct {
	label string
	data  string
}

func makeKeyboard(rows [][]button) tg.InlineKeyboardMarkup {
	kbRows := make([][]tg.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		line := make([]tg.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			line = append(line, tg.NewInlineKeyboardButtonData(b.label, b.data))
		}
		kbRows = append(kbRows, line)
	}
	return tg.NewInlineKeyboardMarkup(kbRows...)
}

var (
	keyboardConfirm = makeKeyboard([][]button{
		{{btnConfirm, "remind:ok"}, {btnCancel, "remind:no"}},
	})

	keyboardRoles = makeKeyboard([][]button{
		{{btnRoleUser, encodeRole(db.RoleUser)}, {btnRoleAdmin, encodeRole(db.RoleAdmin)}},
	})

	keyboardDims = makeKeyboard([][]button{
		{{btnByCategory, encodeBrowseDim(db.DimCategory, 0)}},
		{{btnBySubject, encodeBrowseDim(db.DimSubject, 0)}},
		{{btnByTeacher, encodeBrowseDim(db.DimTeacher, 0)}},
		{{btnMainMenu, "main"}},
	})
)

func mainMenuKeyboard(isAdmin bool) tg.InlineKeyboardMarkup {
	rows := [][]button{
		{{btnWatchVideos, "watch"}},
		{{btnChangeRole, "chrole"}},
	}
	if isAdmin {
		rows = append(rows, []button{{btnAdminMenu, "admin"}})
	}
	return makeKeyboard(rows)
}

func adminMenuKeyboard() tg.InlineKeyboardMarkup {
	return makeKeyboard([][]button{
		{{btnUserStats, "stats"}},
		{{btnSetReminder, "remind:set"}},
		{{btnUploadVideo, "upload"}},
		{{btnMainMenu, "main"}},
	})
}

// clampPage keeps a page number inside [0, last]; stale or replayed
// callbacks may carry any integer.
func clampPage(page, total, perPage int) int {
	last := (total - 1) / perPage
	if page > last {
		page = last
	}
	if page < 0 {
		page = 0
	}
	return page
}

// refsKeyboard pages through reference entries; each entry opens its video
// list.
func refsKeyboard(dim string, refs []db.Ref, page int) tg.InlineKeyboardMarkup {
	page = clampPage(page, len(refs), refsPerPage)
	start := page * refsPerPage
	end := start + refsPerPage
	if end > len(refs) {
		end = len(refs)
	}

	var rows [][]button
	for _, r := range refs[start:end] {
		rows = append(rows, []button{{r.Name, encodeVideoList(dim, r.ID, 0)}})
	}

	var nav []button
	if page > 0 {
		nav = append(nav, button{btnPrevPage, encodeBrowseDim(dim, page-1)})
	}
	if end < len(refs) {
		nav = append(nav, button{btnNextPage, encodeBrowseDim(dim, page+1)})
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}

	rows = append(rows, []button{{btnMainMenu, "main"}})
	return makeKeyboard(rows)
}

func videosKeyboard(dim string, refID int, videos []db.Video, page int) tg.InlineKeyboardMarkup {
	page = clampPage(page, len(videos), videosPerPage)
	start := page * videosPerPage
	end := start + videosPerPage
	if end > len(videos) {
		end = len(videos)
	}

	var rows [][]button
	for i, v := range videos[start:end] {
		rows = append(rows, []button{{v.Name, encodeShowVideo(dim, refID, start+i)}})
	}

	var nav []button
	if page > 0 {
		nav = append(nav, button{btnPrevPage, encodeVideoList(dim, refID, page-1)})
	}
	if end < len(videos) {
		nav = append(nav, button{btnNextPage, encodeVideoList(dim, refID, page+1)})
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}

	rows = append(rows, []button{{btnMainMenu, "main"}})
	return makeKeyboard(rows)
}

// underVideoKeyboard is attached to a sent video: prev/next within the
// same reference entry plus ways back up.
func underVideoKeyboard(dim string, refID, index, total int) tg.InlineKeyboardMarkup {
	var nav []button
	if index > 0 {
		nav = append(nav, button{btnPrevVideo, encodeShowVideo(dim, refID, index-1)})
	}
	if index < total-1 {
		nav = append(nav, button{btnNextVideo, encodeShowVideo(dim, refID, index+1)})
	}

	var rows [][]button
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	rows = append(rows,
		[]button{{btnPickVideo, encodeVideoList(dim, refID, index/videosPerPage)}},
		[]button{{btnWatchVideos, "watch"}},
		[]button{{btnMainMenu, "main"}},
	)
	return makeKeyboard(rows)
}

func uploadCategoriesKeyboard(categories []db.Ref) tg.InlineKeyboardMarkup {
	var rows [][]button
	for _, c := range categories {
		rows = append(rows, []button{{c.Name, encodeUploadCategory(c.ID)}})
	}
	rows = append(rows,
		[]button{{btnNewCategory, "upnew"}},
		[]button{{btnMainMenu, "main"}},
	)
	return makeKeyboard(rows)
}

var weekdayHeader = []string{"Mo", "Tu", "We", "Th", "Fr", "Sa", "Su"}

// calendarKeyboard builds a month grid. Day cells carry cal:day tokens,
// the nav row moves between months, filler cells are ignored.
func calendarKeyboard(year int, month time.Month) tg.InlineKeyboardMarkup {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	daysInMonth := first.AddDate(0, 1, -1).Day()

	// Monday-based column of the 1st
	offset := (int(first.Weekday()) + 6) % 7

	rows := [][]button{
		{{fmt.Sprintf("%s %d", month, year), "ignore"}},
	}

	header := make([]button, 0, 7)
	for _, wd := range weekdayHeader {
		header = append(header, button{wd, "ignore"})
	}
	rows = append(rows, header)

	week := make([]button, 0, 7)
	for i := 0; i < offset; i++ {
		week = append(week, button{" ", "ignore"})
	}
	for day := 1; day <= daysInMonth; day++ {
		week = append(week, button{fmt.Sprintf("%d", day), encodeCalendarDay(year, month, day)})
		if len(week) == 7 {
			rows = append(rows, week)
			week = make([]button, 0, 7)
		}
	}
	if len(week) > 0 {
		for len(week) < 7 {
			week = append(week, button{" ", "ignore"})
		}
		rows = append(rows, week)
	}

	prev := first.AddDate(0, -1, 0)
	next := first.AddDate(0, 1, 0)
	rows = append(rows, []button{
		{btnPrevMonth, encodeCalendarMonth(prev.Year(), prev.Month())},
		{btnNextMonth, encodeCalendarMonth(next.Year(), next.Month())},
	})

	return makeKeyboard(rows)
}
