package tgbot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Callback data is decoded once at the boundary into a closed set of
// action kinds; handlers dispatch on Kind exhaustively. Tokens are exact,
// so none of them can shadow another by prefix.
type ActionKind int

const (
	ActIgnore ActionKind = iota
	ActSelectRole
	ActChangeRoleMenu
	ActMainMenu
	ActAdminMenu
	ActAdminStats
	ActWatchVideo
	ActBrowseDim
	ActVideoList
	ActShowVideo
	ActUploadVideo
	ActUploadCategory
	ActNewCategory
	ActSetReminder
	ActConfirmReminder
	ActCancelReminder
	ActCalendarDay
	ActCalendarMonth
)

type Action struct {
	Kind  ActionKind
	Role  string
	Dim   string
	RefID int
	Page  int
	Index int
	Year  int
	Month time.Month
	Day   int
}

var errBadAction = errors.New("malformed callback data")

func encodeRole(role string) string { return "role:" + role }

func encodeBrowseDim(dim string, page int) string {
	return fmt.Sprintf("dim:%s:%d", dim, page)
}

func encodeVideoList(dim string, refID, page int) string {
	return fmt.Sprintf("vids:%s:%d:%d", dim, refID, page)
}

func encodeShowVideo(dim string, refID, index int) string {
	return fmt.Sprintf("video:%s:%d:%d", dim, refID, index)
}

func encodeUploadCategory(id int) string { return fmt.Sprintf("upcat:%d", id) }

func encodeCalendarDay(year int, month time.Month, day int) string {
	return fmt.Sprintf("cal:day:%d:%d:%d", year, int(month), day)
}

func encodeCalendarMonth(year int, month time.Month) string {
	return fmt.Sprintf("cal:nav:%d:%d", year, int(month))
}

// DecodeAction parses raw callback data. Unknown or malformed data is an
// error; the caller logs and drops it.
func DecodeAction(data string) (Action, error) {
	parts := strings.Split(data, ":")

	switch parts[0] {
	case "ignore":
		return Action{Kind: ActIgnore}, nil
	case "chrole":
		return Action{Kind: ActChangeRoleMenu}, nil
	case "main":
		return Action{Kind: ActMainMenu}, nil
	case "admin":
		return Action{Kind: ActAdminMenu}, nil
	case "stats":
		return Action{Kind: ActAdminStats}, nil
	case "watch":
		return Action{Kind: ActWatchVideo}, nil
	case "upload":
		return Action{Kind: ActUploadVideo}, nil
	case "upnew":
		return Action{Kind: ActNewCategory}, nil

	case "role":
		if len(parts) != 2 {
			return Action{}, errBadAction
		}
		return Action{Kind: ActSelectRole, Role: parts[1]}, nil

	case "dim":
		if len(parts) != 3 {
			return Action{}, errBadAction
		}
		page, err := strconv.Atoi(parts[2])
		if err != nil {
			return Action{}, errBadAction
		}
		return Action{Kind: ActBrowseDim, Dim: parts[1], Page: page}, nil

	case "vids":
		a, err := decodeInts(parts, 2)
		if err != nil {
			return Action{}, err
		}
		return Action{Kind: ActVideoList, Dim: parts[1], RefID: a[0], Page: a[1]}, nil

	case "video":
		a, err := decodeInts(parts, 2)
		if err != nil {
			return Action{}, err
		}
		return Action{Kind: ActShowVideo, Dim: parts[1], RefID: a[0], Index: a[1]}, nil

	case "upcat":
		if len(parts) != 2 {
			return Action{}, errBadAction
		}
		id, err := strconv.Atoi(parts[1])
		if err != nil {
			return Action{}, errBadAction
		}
		return Action{Kind: ActUploadCategory, RefID: id}, nil

	case "remind":
		if len(parts) != 2 {
			return Action{}, errBadAction
		}
		switch parts[1] {
		case "set":
			return Action{Kind: ActSetReminder}, nil
		case "ok":
			return Action{Kind: ActConfirmReminder}, nil
		case "no":
			return Action{Kind: ActCancelReminder}, nil
		}
		return Action{}, errBadAction

	case "cal":
		if len(parts) < 2 {
			return Action{}, errBadAction
		}
		switch parts[1] {
		case "day":
			if len(parts) != 5 {
				return Action{}, errBadAction
			}
			year, err1 := strconv.Atoi(parts[2])
			month, err2 := strconv.Atoi(parts[3])
			day, err3 := strconv.Atoi(parts[4])
			if err1 != nil || err2 != nil || err3 != nil || month < 1 || month > 12 {
				return Action{}, errBadAction
			}
			// time.Date would normalize an out-of-range day into the next
			// month, silently shifting the picked date
			last := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, -1).Day()
			if day < 1 || day > last {
				return Action{}, errBadAction
			}
			return Action{Kind: ActCalendarDay, Year: year, Month: time.Month(month), Day: day}, nil
		case "nav":
			if len(parts) != 4 {
				return Action{}, errBadAction
			}
			year, err1 := strconv.Atoi(parts[2])
			month, err2 := strconv.Atoi(parts[3])
			if err1 != nil || err2 != nil || month < 1 || month > 12 {
				return Action{}, errBadAction
			}
			return Action{Kind: ActCalendarMonth, Year: year, Month: time.Month(month)}, nil
		}
		return Action{}, errBadAction
	}

	return Action{}, errBadAction
}

// decodeInts parses parts[from:] as integers, requiring exactly two of
// them after the textual head.
func decodeInts(parts []string, from int) ([2]int, error) {
	var out [2]int
	if len(parts) != from+2 {
		return out, errBadAction
	}
	for i := 0; i < 2; i++ {
		v, err := strconv.Atoi(parts[from+i])
		if err != nil {
			return out, errBadAction
		}
		out[i] = v
	}
	return out, nil
}
