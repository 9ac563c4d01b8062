package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/limbcontrol/internal/security"
)

// Backup is one recorded snapshot of the database.
type Backup struct {
	ID        int64     `json:"id"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
	SizeBytes int64     `json:"size_bytes"`
}

// Backup writes a consistent copy of the database into the backup directory
// with VACUUM INTO and records it. It returns the snapshot path.
func (db *DB) Backup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(db.backupDir, 0o755); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}
	now := db.clock.Now()
	path := filepath.Join(db.backupDir, fmt.Sprintf("limb-%s.db", now.UTC().Format("20060102T150405.000000000")))
	if err := db.BackupTo(ctx, path); err != nil {
		return "", err
	}
	var size int64
	if fi, err := os.Stat(path); err == nil {
		size = fi.Size()
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO backups (path, created_at, size_bytes) VALUES (?, ?, ?)`, path, now.UnixNano(), size); err != nil {
		return path, fmt.Errorf("record backup: %w", err)
	}
	logs.Opsf("backed up database to %s (%d bytes)", path, size)
	return path, nil
}

// BackupTo writes a copy of the database to path, which must not exist and
// must sit inside the backup directory.
func (db *DB) BackupTo(ctx context.Context, path string) error {
	if err := security.ValidatePathWithinDirectory(path, db.backupDir); err != nil {
		return fmt.Errorf("backup target: %w", err)
	}
	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return fmt.Errorf("vacuum into %s: %w", path, err)
	}
	return nil
}

// Backups lists recorded snapshots, newest first.
func (db *DB) Backups(ctx context.Context) ([]Backup, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT backup_id, path, created_at, size_bytes FROM backups ORDER BY created_at DESC, backup_id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Backup
	for rows.Next() {
		var b Backup
		var created int64
		if err := rows.Scan(&b.ID, &b.Path, &created, &b.SizeBytes); err != nil {
			return nil, err
		}
		b.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}
