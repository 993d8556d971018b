package db

import (
	"time"

	"github.com/pkg/errors"
)

// AddReminder persists a reminder and returns its store-assigned ID.
func (d *Database) AddReminder(username string, remindAt time.Time, text string) (int, error) {
	var id int
	err := d.Conn.QueryRow(noCtx, `INSERT INTO reminders(username, remind_at, text)
VALUES($1, $2, $3) RETURNING id`, username, remindAt, text).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "failed inserting reminder")
	}
	return id, nil
}

func (d *Database) DeleteReminder(id int) error {
	if _, err := d.Conn.Exec(noCtx, `DELETE FROM reminders WHERE id=$1`, id); err != nil {
		return errors.Wrap(err, "failed deleting reminder")
	}
	return nil
}

// DueReminders returns pending reminders with remind_at at or before now.
func (d *Database) DueReminders(now time.Time) ([]Reminder, error) {
	rows, err := d.Conn.Query(noCtx, `SELECT id, username, remind_at, text, attempts
FROM reminders
WHERE remind_at<=$1 AND state=$2`, now, reminderStatePending)
	if err != nil {
		return nil, errors.Wrap(err, "failed fetching due reminders")
	}
	defer rows.Close()

	var reminders []Reminder
	for rows.Next() {
		var r Reminder
		if err := rows.Scan(&r.ID, &r.Username, &r.RemindAt, &r.Text, &r.Attempts); err != nil {
			return nil, errors.Wrap(err, "failed scanning reminder")
		}
		reminders = append(reminders, r)
	}

	return reminders, rows.Err()
}

// RecordFailure increments the failed-attempt counter and returns the new
// count.
func (d *Database) RecordFailure(id int) (int16, error) {
	var attempts int16
	err := d.Conn.QueryRow(noCtx, `UPDATE reminders SET attempts=attempts+1
WHERE id=$1 RETURNING attempts`, id).Scan(&attempts)
	if err != nil {
		return 0, errors.Wrap(err, "failed recording delivery failure")
	}
	return attempts, nil
}

// BuryReminder dead-letters a reminder so it is no longer fetched as due.
func (d *Database) BuryReminder(id int) error {
	if _, err := d.Conn.Exec(noCtx, `UPDATE reminders SET state=$1 WHERE id=$2`,
		reminderStateDead, id); err != nil {
		return errors.Wrap(err, "failed burying reminder")
	}
	return nil
}
