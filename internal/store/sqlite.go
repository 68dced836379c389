package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

const createTablesSQL = `
CREATE TABLE IF NOT EXISTS users (
    user_id    TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    email      TEXT NOT NULL,
    department TEXT NOT NULL DEFAULT '',
    role       TEXT NOT NULL DEFAULT '',
    status     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS resources (
    resource_id      TEXT PRIMARY KEY,
    name             TEXT NOT NULL,
    type             TEXT NOT NULL,
    owner_department TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS permissions (
    permission_id TEXT PRIMARY KEY,
    user_id       TEXT NOT NULL REFERENCES users(user_id),
    resource_id   TEXT NOT NULL REFERENCES resources(resource_id),
    access_level  TEXT NOT NULL,
    granted_date  TEXT NOT NULL DEFAULT '',
    UNIQUE (user_id, resource_id)
);
CREATE INDEX IF NOT EXISTS idx_permissions_user ON permissions(user_id);
`

// SQLiteStore implements Store on an in-memory SQLite database. Nothing is
// written to disk; the tables live as long as the store.
type SQLiteStore struct {
	db  *sql.DB
	ids *IDPool
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens a private in-memory database, creates the schema and
// loads snap into it.
func NewSQLiteStore(snap *Snapshot, ids *IDPool) (*SQLiteStore, error) {
	if snap == nil {
		return nil, fmt.Errorf("nil snapshot")
	}
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Every connection to ":memory:" gets its own database; pin to one.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(createTablesSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	if ids == nil {
		ids = NewIDPool(nil)
	}
	s := &SQLiteStore{db: db, ids: ids}
	if err := s.load(snap); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) load(snap *Snapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin load: %w", err)
	}
	defer tx.Rollback()

	for _, u := range snap.Users {
		if _, err := tx.Exec(`INSERT INTO users (user_id, name, email, department, role, status) VALUES (?, ?, ?, ?, ?, ?)`,
			u.UserID, u.Name, u.Email, u.Department, u.Role, string(u.Status)); err != nil {
			return fmt.Errorf("load user %s: %w", u.UserID, err)
		}
	}
	for _, r := range snap.Resources {
		if _, err := tx.Exec(`INSERT INTO resources (resource_id, name, type, owner_department) VALUES (?, ?, ?, ?)`,
			r.ResourceID, r.Name, string(r.Type), r.OwnerDepartment); err != nil {
			return fmt.Errorf("load resource %s: %w", r.ResourceID, err)
		}
	}
	for _, p := range snap.Permissions {
		if err := insertPermissionRow(tx, p); err != nil {
			return fmt.Errorf("load permission %s: %w", p.PermissionID, err)
		}
	}
	return tx.Commit()
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertPermissionRow(e execer, p Permission) error {
	_, err := e.Exec(`INSERT INTO permissions (permission_id, user_id, resource_id, access_level, granted_date) VALUES (?, ?, ?, ?, ?)`,
		p.PermissionID, p.UserID, p.ResourceID, string(p.AccessLevel), p.GrantedDate)
	return err
}

func (s *SQLiteStore) User(id string) (User, error) {
	var u User
	var status string
	err := s.db.QueryRow(`SELECT user_id, name, email, department, role, status FROM users WHERE user_id = ?`, id).
		Scan(&u.UserID, &u.Name, &u.Email, &u.Department, &u.Role, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, userNotFound(id)
	}
	if err != nil {
		return User{}, fmt.Errorf("query user: %w", err)
	}
	u.Status = UserStatus(status)
	return u, nil
}

func (s *SQLiteStore) Resource(id string) (Resource, error) {
	var r Resource
	var typ string
	err := s.db.QueryRow(`SELECT resource_id, name, type, owner_department FROM resources WHERE resource_id = ?`, id).
		Scan(&r.ResourceID, &r.Name, &typ, &r.OwnerDepartment)
	if errors.Is(err, sql.ErrNoRows) {
		return Resource{}, resourceNotFound(id)
	}
	if err != nil {
		return Resource{}, fmt.Errorf("query resource: %w", err)
	}
	r.Type = ResourceType(typ)
	return r, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPermission(row rowScanner) (Permission, error) {
	var p Permission
	var level string
	if err := row.Scan(&p.PermissionID, &p.UserID, &p.ResourceID, &level, &p.GrantedDate); err != nil {
		return Permission{}, err
	}
	p.AccessLevel = AccessLevel(level)
	return p, nil
}

const permissionColumns = `permission_id, user_id, resource_id, access_level, granted_date`

func (s *SQLiteStore) FindPermission(userID, resourceID string) (Permission, bool, error) {
	row := s.db.QueryRow(`SELECT `+permissionColumns+` FROM permissions WHERE user_id = ? AND resource_id = ?`, userID, resourceID)
	p, err := scanPermission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Permission{}, false, nil
	}
	if err != nil {
		return Permission{}, false, fmt.Errorf("query permission: %w", err)
	}
	return p, true, nil
}

func (s *SQLiteStore) ListPermissions(userID string) ([]Permission, error) {
	rows, err := s.db.Query(`SELECT `+permissionColumns+` FROM permissions WHERE user_id = ? ORDER BY permission_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	defer rows.Close()

	out := make([]Permission, 0)
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) InsertPermission(p Permission) (Permission, error) {
	_, found, err := s.FindPermission(p.UserID, p.ResourceID)
	if err != nil {
		return Permission{}, err
	}
	if found {
		return Permission{}, permissionConflict(p.UserID, p.ResourceID)
	}

	id, err := s.ids.Next(func(id string) (bool, error) {
		var one int
		err := s.db.QueryRow(`SELECT 1 FROM permissions WHERE permission_id = ?`, id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return err == nil, err
	})
	if err != nil {
		return Permission{}, err
	}

	p.PermissionID = id
	if err := insertPermissionRow(s.db, p); err != nil {
		return Permission{}, fmt.Errorf("insert permission: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) DeletePermission(userID, resourceID string) (Permission, error) {
	p, found, err := s.FindPermission(userID, resourceID)
	if err != nil {
		return Permission{}, err
	}
	if !found {
		return Permission{}, permissionNotFound(userID, resourceID)
	}
	if _, err := s.db.Exec(`DELETE FROM permissions WHERE permission_id = ?`, p.PermissionID); err != nil {
		return Permission{}, fmt.Errorf("delete permission: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) Snapshot() (*Snapshot, error) {
	snap := &Snapshot{}
	snap.ensureMaps()

	rows, err := s.db.Query(`SELECT user_id, name, email, department, role, status FROM users`)
	if err != nil {
		return nil, fmt.Errorf("dump users: %w", err)
	}
	for rows.Next() {
		var u User
		var status string
		if err := rows.Scan(&u.UserID, &u.Name, &u.Email, &u.Department, &u.Role, &status); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Status = UserStatus(status)
		snap.Users[u.UserID] = u
	}
	rows.Close()

	rows, err = s.db.Query(`SELECT resource_id, name, type, owner_department FROM resources`)
	if err != nil {
		return nil, fmt.Errorf("dump resources: %w", err)
	}
	for rows.Next() {
		var r Resource
		var typ string
		if err := rows.Scan(&r.ResourceID, &r.Name, &typ, &r.OwnerDepartment); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		r.Type = ResourceType(typ)
		snap.Resources[r.ResourceID] = r
	}
	rows.Close()

	rows, err = s.db.Query(`SELECT ` + permissionColumns + ` FROM permissions`)
	if err != nil {
		return nil, fmt.Errorf("dump permissions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		snap.Permissions[p.PermissionID] = p
	}
	return snap, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
