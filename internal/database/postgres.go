// Package database is the Postgres-backed store behind spec §6's
// "group-activenames", "check-and-add-group", "find-jar", and
// "add-jar" operations. Grounded on the teacher's
// internal/repository/artifact_repository.go: plain database/sql with
// lib/pq, $N placeholders, QueryRow/Scan, errors wrapped with
// fmt.Errorf("%w"). The teacher's tenant_id/repository_id scoping has
// no equivalent here — a deploy is scoped by Maven group, not by
// tenant — so this package keys everything off (group, artifact,
// version) instead.
package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// DB wraps a *sql.DB with the queries the deploy pipeline needs.
type DB struct {
	conn *sql.DB
}

// Open connects to Postgres at dsn and verifies the connection.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &DB{conn: conn}, nil
}

// Close releases the underlying connection pool.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Migrate runs the schema migrations this core needs against d's
// connection pool (spec §1 ambient concern: the core must bring up
// its own schema, matching the teacher's own migrate-on-startup
// pattern).
func (d *DB) Migrate(log *logrus.Logger) error {
	return RunMigrations(d.conn, log)
}

// Jar is a published artifact record (spec §6 "find-jar"/"add-jar").
type Jar struct {
	Group        string
	Name         string
	Version      string
	DeployedBy   string
	DeployedAt   time.Time
	SHA1Checksum string
	IsSnapshot   bool
}

// ActiveNames implements spec §4.4 step (a): the usernames permitted
// to deploy under group. An empty slice with a nil error means the
// group has never been claimed.
func (d *DB) ActiveNames(group string) ([]string, error) {
	rows, err := d.conn.Query(`SELECT username FROM group_members WHERE group_name = $1`, group)
	if err != nil {
		return nil, fmt.Errorf("query group members for %s: %w", group, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan group member for %s: %w", group, err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group members for %s: %w", group, err)
	}
	return names, nil
}

// CheckAndAdd claims group for user the first time it is deployed to,
// and is a no-op if user is already a member (spec §4.4 step a, §7's
// "claim group on first deploy").
func (d *DB) CheckAndAdd(user, group string) error {
	_, err := d.conn.Exec(`
		INSERT INTO group_members (group_name, username, joined_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (group_name, username) DO NOTHING
	`, group, user)
	if err != nil {
		return fmt.Errorf("add %s to group %s: %w", user, group, err)
	}
	return nil
}

// FindJar looks up a previously published (non-snapshot) release,
// used by spec §4.3.3's non-snapshot redeploy check. A nil result
// with a nil error means no such jar has been published.
func (d *DB) FindJar(group, name, version string) (*Jar, error) {
	jar := &Jar{}
	err := d.conn.QueryRow(`
		SELECT group_name, name, version, deployed_by, deployed_at, sha1_checksum
		FROM jars
		WHERE group_name = $1 AND name = $2 AND version = $3
	`, group, name, version).Scan(
		&jar.Group, &jar.Name, &jar.Version, &jar.DeployedBy, &jar.DeployedAt, &jar.SHA1Checksum,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find jar %s:%s:%s: %w", group, name, version, err)
	}
	return jar, nil
}

// Exists reports whether a jar has already been published for
// (group, name, version), satisfying the validation package's
// ReleaseChecker interface without that package needing the Jar
// record shape.
func (d *DB) Exists(group, name, version string) (bool, error) {
	jar, err := d.FindJar(group, name, version)
	if err != nil {
		return false, err
	}
	return jar != nil, nil
}

// AddJar records a newly published artifact (spec §4.6 step 8). For a
// release, the non-snapshot redeploy check (spec §4.3.3) already
// guarantees (group, name, version) is unclaimed, so a conflict there
// is left alone. A snapshot version string has no such guard — the
// same version can be redeployed any number of times (spec §3
// "snapshot versions") — so a conflict on a row already marked
// is_snapshot is refreshed in place rather than silently ignored,
// keeping deployed_by/deployed_at/sha1_checksum current.
func (d *DB) AddJar(jar Jar) error {
	_, err := d.conn.Exec(`
		INSERT INTO jars (group_name, name, version, deployed_by, deployed_at, sha1_checksum, is_snapshot)
		VALUES ($1, $2, $3, $4, NOW(), $5, $6)
		ON CONFLICT (group_name, name, version) DO UPDATE SET
			deployed_by    = excluded.deployed_by,
			deployed_at    = excluded.deployed_at,
			sha1_checksum  = excluded.sha1_checksum
		WHERE jars.is_snapshot
	`, jar.Group, jar.Name, jar.Version, jar.DeployedBy, jar.SHA1Checksum, jar.IsSnapshot)
	if err != nil {
		return fmt.Errorf("add jar %s:%s:%s: %w", jar.Group, jar.Name, jar.Version, err)
	}
	return nil
}
