package people

import (
	"database/sql"

	"github.com/opusguard/rosterops/errors"
)

const employeeColumns = `id, full_name, email, department, team, title,
	COALESCE(manager_id, ''), work_location, employment_type, pay_period,
	level, cash_comp, target_bonus_pct, status, start_date, end_date,
	jurisdiction, legal_entity`

// Directory handles persistence of the employee dataset.
type Directory struct {
	db *sql.DB
}

// NewDirectory creates a directory backed by the given database.
func NewDirectory(db *sql.DB) *Directory {
	return &Directory{db: db}
}

// GetEmployees returns every employee ordered by id.
func (d *Directory) GetEmployees() ([]Employee, error) {
	rows, err := d.db.Query(`SELECT ` + employeeColumns + ` FROM employees ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "query employees")
	}
	defer rows.Close()

	var out []Employee
	for rows.Next() {
		var e Employee
		if err := scanEmployee(rows, &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate employees")
	}
	return out, nil
}

// GetEmployee returns a single employee by id.
func (d *Directory) GetEmployee(id string) (*Employee, error) {
	row := d.db.QueryRow(`SELECT `+employeeColumns+` FROM employees WHERE id = ?`, id)
	var e Employee
	if err := scanEmployee(row, &e); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewNotFoundError("employee %s", id)
		}
		return nil, err
	}
	return &e, nil
}

// UpdateEmployees replaces the stored record for every employee in the
// slice, atomically. Employees not present in the slice are untouched.
func (d *Directory) UpdateEmployees(employees []Employee) error {
	tx, err := d.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin employee update")
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO employees (
			id, full_name, email, department, team, title, manager_id,
			work_location, employment_type, pay_period, level, cash_comp,
			target_bonus_pct, status, start_date, end_date, jurisdiction, legal_entity
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			full_name = excluded.full_name,
			email = excluded.email,
			department = excluded.department,
			team = excluded.team,
			title = excluded.title,
			manager_id = excluded.manager_id,
			work_location = excluded.work_location,
			employment_type = excluded.employment_type,
			pay_period = excluded.pay_period,
			level = excluded.level,
			cash_comp = excluded.cash_comp,
			target_bonus_pct = excluded.target_bonus_pct,
			status = excluded.status,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			jurisdiction = excluded.jurisdiction,
			legal_entity = excluded.legal_entity
	`)
	if err != nil {
		return errors.Wrap(err, "prepare employee upsert")
	}
	defer stmt.Close()

	for _, e := range employees {
		managerID := sql.NullString{String: e.ManagerID, Valid: e.ManagerID != ""}
		if _, err := stmt.Exec(
			e.ID, e.FullName, e.Email, e.Department, e.Team, e.Title, managerID,
			e.WorkLocation, e.EmploymentType, e.PayPeriod, e.Level, e.CashComp,
			e.TargetBonusPct, e.Status, e.StartDate, e.EndDate, e.Jurisdiction, e.LegalEntity,
		); err != nil {
			return errors.Wrapf(err, "upsert employee %s", e.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit employee update")
	}
	return nil
}

// Count returns the number of employees in the directory.
func (d *Directory) Count() (int, error) {
	var n int
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM employees`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count employees")
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmployee(row rowScanner, e *Employee) error {
	err := row.Scan(
		&e.ID, &e.FullName, &e.Email, &e.Department, &e.Team, &e.Title,
		&e.ManagerID, &e.WorkLocation, &e.EmploymentType, &e.PayPeriod,
		&e.Level, &e.CashComp, &e.TargetBonusPct, &e.Status, &e.StartDate,
		&e.EndDate, &e.Jurisdiction, &e.LegalEntity,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return errors.Wrap(err, "scan employee")
	}
	return nil
}
