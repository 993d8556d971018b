package db

import (
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// Browse dimensions of the video library. The values double as table/column
// name fragments, so they never come from user input unchecked; see
// refTables below.
const (
	DimCategory = "category"
	DimSubject  = "subject"
	DimTeacher  = "teacher"
)

var refTables = map[string]string{
	DimCategory: "categories",
	DimSubject:  "subjects",
	DimTeacher:  "teachers",
}

// Refs lists reference-data entries of the given dimension.
func (d *Database) Refs(dim string) ([]Ref, error) {
	table, ok := refTables[dim]
	if !ok {
		return nil, errors.Errorf("unknown dimension %q", dim)
	}

	rows, err := d.Conn.Query(noCtx, `SELECT id, name FROM `+table+` ORDER BY name`)
	if err != nil {
		return nil, errors.Wrapf(err, "failed fetching %s", table)
	}
	defer rows.Close()

	return scanRefs(rows)
}

// AddRef inserts a reference-data entry and returns its ID. An entry with
// the same name is reused.
func (d *Database) AddRef(dim, name string) (int, error) {
	table, ok := refTables[dim]
	if !ok {
		return 0, errors.Errorf("unknown dimension %q", dim)
	}

	var id int
	err := d.Conn.QueryRow(noCtx, `SELECT id FROM `+table+` WHERE name=$1`, name).Scan(&id)
	switch {
	case err == pgx.ErrNoRows:
		err = d.Conn.QueryRow(noCtx, `INSERT INTO `+table+`(name) VALUES($1) RETURNING id`, name).Scan(&id)
		if err != nil {
			return 0, errors.Wrapf(err, "failed inserting into %s", table)
		}
	case err != nil:
		return 0, errors.Wrapf(err, "failed looking up %s", table)
	}

	return id, nil
}

// Videos lists videos linked to the given reference entry.
func (d *Database) Videos(dim string, refID int) ([]Video, error) {
	if _, ok := refTables[dim]; !ok {
		return nil, errors.Errorf("unknown dimension %q", dim)
	}

	rows, err := d.Conn.Query(noCtx, `SELECT id, name, telegram_file_id
FROM videos
WHERE `+dim+`_id=$1
ORDER BY id`, refID)
	if err != nil {
		return nil, errors.Wrap(err, "failed fetching videos")
	}
	defer rows.Close()

	var videos []Video
	for rows.Next() {
		var v Video
		if err := rows.Scan(&v.ID, &v.Name, &v.FileID); err != nil {
			return nil, errors.Wrap(err, "failed scanning video")
		}
		videos = append(videos, v)
	}

	return videos, rows.Err()
}

func (d *Database) VideoByID(id int) (*Video, error) {
	var v Video
	err := d.Conn.QueryRow(noCtx, `SELECT id, name, telegram_file_id
FROM videos
WHERE id=$1`, id).Scan(&v.ID, &v.Name, &v.FileID)

	switch {
	case err == pgx.ErrNoRows:
		return nil, nil
	case err != nil:
		return nil, errors.Wrap(err, "failed fetching video")
	}

	return &v, nil
}

// AddVideo stores an uploaded video under the given category.
func (d *Database) AddVideo(categoryID int, fileID, name string) error {
	if _, err := d.Conn.Exec(noCtx, `INSERT INTO videos(category_id, telegram_file_id, name)
VALUES($1, $2, $3)`, categoryID, fileID, name); err != nil {
		return errors.Wrap(err, "failed inserting video")
	}
	return nil
}

func scanRefs(rows pgx.Rows) ([]Ref, error) {
	var refs []Ref
	for rows.Next() {
		var r Ref
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, errors.Wrap(err, "failed scanning reference entry")
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}
