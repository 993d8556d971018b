package tgbot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studybot/db"
)

func TestDecodeAction(t *testing.T) {
	cases := []struct {
		data string
		want Action
	}{
		{"ignore", Action{Kind: ActIgnore}},
		{"main", Action{Kind: ActMainMenu}},
		{"chrole", Action{Kind: ActChangeRoleMenu}},
		{"admin", Action{Kind: ActAdminMenu}},
		{"stats", Action{Kind: ActAdminStats}},
		{"watch", Action{Kind: ActWatchVideo}},
		{"upload", Action{Kind: ActUploadVideo}},
		{"upnew", Action{Kind: ActNewCategory}},
		{"role:admin", Action{Kind: ActSelectRole, Role: "admin"}},
		{"dim:subject:2", Action{Kind: ActBrowseDim, Dim: "subject", Page: 2}},
		{"vids:teacher:7:1", Action{Kind: ActVideoList, Dim: "teacher", RefID: 7, Page: 1}},
		{"video:category:7:3", Action{Kind: ActShowVideo, Dim: "category", RefID: 7, Index: 3}},
		{"upcat:5", Action{Kind: ActUploadCategory, RefID: 5}},
		{"remind:set", Action{Kind: ActSetReminder}},
		{"remind:ok", Action{Kind: ActConfirmReminder}},
		{"remind:no", Action{Kind: ActCancelReminder}},
		{"cal:day:2030:3:14", Action{Kind: ActCalendarDay, Year: 2030, Month: time.March, Day: 14}},
		{"cal:day:2032:2:29", Action{Kind: ActCalendarDay, Year: 2032, Month: time.February, Day: 29}},
		{"cal:nav:2030:4", Action{Kind: ActCalendarMonth, Year: 2030, Month: time.April}},
	}

	for _, c := range cases {
		got, err := DecodeAction(c.data)
		require.NoError(t, err, c.data)
		assert.Equal(t, c.want, got, c.data)
	}
}

func TestDecodeActionRejectsMalformed(t *testing.T) {
	for _, data := range []string{
		"",
		"nonsense",
		"role",
		"role:user:extra",
		"dim:subject",
		"dim:subject:x",
		"vids:teacher:7",
		"video:category:a:b",
		"upcat:none",
		"remind:maybe",
		"cal:day:2030:13:1",
		"cal:day:2030:2:31", // day must not normalize into March
		"cal:day:2030:2:29", // not a leap year
		"cal:day:2030:4:0",
		"cal:nav:2030",
		// the source's prefix-routing bug: these must not match anything
		"change_role_admin",
		"admin_get_users",
	} {
		_, err := DecodeAction(data)
		assert.Error(t, err, "%q must not decode", data)
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	for _, data := range []string{
		encodeRole(db.RoleUser),
		encodeBrowseDim(db.DimSubject, 3),
		encodeVideoList(db.DimTeacher, 12, 0),
		encodeShowVideo(db.DimCategory, 12, 5),
		encodeUploadCategory(9),
		encodeCalendarDay(2031, time.December, 31),
		encodeCalendarMonth(2031, time.January),
	} {
		_, err := DecodeAction(data)
		assert.NoError(t, err, data)
	}
}
