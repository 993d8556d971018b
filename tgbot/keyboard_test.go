package tgbot

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studybot/db"
)

func makeRefs(n int) []db.Ref {
	refs := make([]db.Ref, 0, n)
	for i := 1; i <= n; i++ {
		refs = append(refs, db.Ref{ID: i, Name: fmt.Sprintf("entry %d", i)})
	}
	return refs
}

func TestRefsKeyboardFirstPage(t *testing.T) {
	kb := refsKeyboard(db.DimSubject, makeRefs(12), 0)

	// 5 entries + nav row + main menu row
	require.Len(t, kb.InlineKeyboard, 7)

	nav := kb.InlineKeyboard[5]
	require.Len(t, nav, 1)
	assert.Equal(t, btnNextPage, nav[0].Text)
	assert.Equal(t, "dim:subject:1", *nav[0].CallbackData)
}

func TestRefsKeyboardMiddlePage(t *testing.T) {
	kb := refsKeyboard(db.DimSubject, makeRefs(12), 1)

	nav := kb.InlineKeyboard[5]
	require.Len(t, nav, 2)
	assert.Equal(t, "dim:subject:0", *nav[0].CallbackData)
	assert.Equal(t, "dim:subject:2", *nav[1].CallbackData)
}

func TestRefsKeyboardLastPageHasNoNext(t *testing.T) {
	kb := refsKeyboard(db.DimSubject, makeRefs(12), 2)

	// 2 entries + prev-only nav + main menu
	require.Len(t, kb.InlineKeyboard, 4)
	nav := kb.InlineKeyboard[2]
	require.Len(t, nav, 1)
	assert.Equal(t, btnPrevPage, nav[0].Text)
}

func TestRefsKeyboardSinglePageHasNoNav(t *testing.T) {
	kb := refsKeyboard(db.DimSubject, makeRefs(3), 0)
	// 3 entries + main menu, no nav row
	require.Len(t, kb.InlineKeyboard, 4)
}

func TestRefsKeyboardClampsPage(t *testing.T) {
	refs := makeRefs(12)

	// negative and past-the-end pages land on the first and last page
	kb := refsKeyboard(db.DimSubject, refs, -1)
	assert.Equal(t, "entry 1", kb.InlineKeyboard[0][0].Text)

	kb = refsKeyboard(db.DimSubject, refs, 99)
	assert.Equal(t, "entry 11", kb.InlineKeyboard[0][0].Text)

	// a single entry survives any page number
	kb = refsKeyboard(db.DimSubject, makeRefs(1), 7)
	assert.Equal(t, "entry 1", kb.InlineKeyboard[0][0].Text)
}

func TestVideosKeyboardClampsPage(t *testing.T) {
	videos := []db.Video{{ID: 1, Name: "one"}}

	kb := videosKeyboard(db.DimTeacher, 7, videos, 5)
	assert.Equal(t, "one", kb.InlineKeyboard[0][0].Text)

	kb = videosKeyboard(db.DimTeacher, 7, videos, -3)
	assert.Equal(t, "one", kb.InlineKeyboard[0][0].Text)
}

func TestVideosKeyboardPaging(t *testing.T) {
	videos := []db.Video{
		{ID: 1, Name: "one"}, {ID: 2, Name: "two"}, {ID: 3, Name: "three"},
	}

	kb := videosKeyboard(db.DimTeacher, 7, videos, 0)
	require.Len(t, kb.InlineKeyboard, 4) // 2 videos + nav + main menu
	assert.Equal(t, "video:teacher:7:0", *kb.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "vids:teacher:7:1", *kb.InlineKeyboard[2][0].CallbackData)

	kb = videosKeyboard(db.DimTeacher, 7, videos, 1)
	require.Len(t, kb.InlineKeyboard, 3) // 1 video + nav + main menu
	assert.Equal(t, "video:teacher:7:2", *kb.InlineKeyboard[0][0].CallbackData)
}

func TestUnderVideoKeyboard(t *testing.T) {
	kb := underVideoKeyboard(db.DimSubject, 3, 1, 3)

	nav := kb.InlineKeyboard[0]
	require.Len(t, nav, 2)
	assert.Equal(t, "video:subject:3:0", *nav[0].CallbackData)
	assert.Equal(t, "video:subject:3:2", *nav[1].CallbackData)

	// first video has no prev, last has no next
	kb = underVideoKeyboard(db.DimSubject, 3, 0, 3)
	assert.Equal(t, btnNextVideo, kb.InlineKeyboard[0][0].Text)
	kb = underVideoKeyboard(db.DimSubject, 3, 2, 3)
	assert.Equal(t, btnPrevVideo, kb.InlineKeyboard[0][0].Text)
}

func TestCalendarKeyboard(t *testing.T) {
	kb := calendarKeyboard(2030, time.March)

	require.GreaterOrEqual(t, len(kb.InlineKeyboard), 4)
	assert.Equal(t, "March 2030", kb.InlineKeyboard[0][0].Text)

	// March 1st 2030 is a Friday: offset 4 filler cells before it
	firstWeek := kb.InlineKeyboard[2]
	require.Len(t, firstWeek, 7)
	assert.Equal(t, "ignore", *firstWeek[0].CallbackData)
	assert.Equal(t, "1", firstWeek[4].Text)
	assert.Equal(t, "cal:day:2030:3:1", *firstWeek[4].CallbackData)

	nav := kb.InlineKeyboard[len(kb.InlineKeyboard)-1]
	require.Len(t, nav, 2)
	assert.Equal(t, "cal:nav:2030:2", *nav[0].CallbackData)
	assert.Equal(t, "cal:nav:2030:4", *nav[1].CallbackData)

	// every week row spans the full 7 columns
	for _, row := range kb.InlineKeyboard[2 : len(kb.InlineKeyboard)-1] {
		assert.Len(t, row, 7)
	}
}

func TestCalendarKeyboardYearRollover(t *testing.T) {
	kb := calendarKeyboard(2030, time.December)
	nav := kb.InlineKeyboard[len(kb.InlineKeyboard)-1]
	assert.Equal(t, "cal:nav:2030:11", *nav[0].CallbackData)
	assert.Equal(t, "cal:nav:2031:1", *nav[1].CallbackData)
}
