package database

import (
	"errors"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4"
)

type fakeMigrationRunner struct {
	upErr    error
	srcErr   error
	dbErr    error
	upCalled bool
}

func (f *fakeMigrationRunner) Up() error {
	f.upCalled = true
	return f.upErr
}

func (f *fakeMigrationRunner) Close() (error, error) {
	return f.srcErr, f.dbErr
}

func stubMigrate(t *testing.T, runner *fakeMigrationRunner, newErr error) *string {
	t.Helper()
	orig := newMigrate
	t.Cleanup(func() { newMigrate = orig })

	var gotSource string
	newMigrate = func(sourceURL, databaseURL string) (migrationRunner, error) {
		gotSource = sourceURL
		if newErr != nil {
			return nil, newErr
		}
		return runner, nil
	}
	return &gotSource
}

func TestNewMigrator_UsesFileSource(t *testing.T) {
	runner := &fakeMigrationRunner{}
	gotSource := stubMigrate(t, runner, nil)

	if _, err := NewMigrator("postgres://x", "migrations"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *gotSource != "file://migrations" {
		t.Fatalf("expected file source, got %q", *gotSource)
	}
}

func TestNewMigrator_WrapsError(t *testing.T) {
	newErr := errors.New("bad source")
	stubMigrate(t, nil, newErr)

	_, err := NewMigrator("postgres://x", "migrations")
	if !errors.Is(err, newErr) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if !strings.Contains(err.Error(), "creating migrate instance") {
		t.Fatalf("expected context in error, got %q", err.Error())
	}
}

func TestMigrator_UpIgnoresNoChange(t *testing.T) {
	runner := &fakeMigrationRunner{upErr: migrate.ErrNoChange}
	stubMigrate(t, runner, nil)

	m, err := NewMigrator("postgres://x", "migrations")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Up(); err != nil {
		t.Fatalf("expected no error for ErrNoChange, got %v", err)
	}
	if !runner.upCalled {
		t.Fatal("expected Up to be called")
	}
}

func TestMigrator_UpReturnsFailures(t *testing.T) {
	upErr := errors.New("dirty database")
	runner := &fakeMigrationRunner{upErr: upErr}
	stubMigrate(t, runner, nil)

	m, _ := NewMigrator("postgres://x", "migrations")
	if err := m.Up(); !errors.Is(err, upErr) {
		t.Fatalf("expected up error, got %v", err)
	}
}

func TestMigrator_CloseJoinsErrors(t *testing.T) {
	srcErr := errors.New("source close")
	dbErr := errors.New("db close")
	runner := &fakeMigrationRunner{srcErr: srcErr, dbErr: dbErr}
	stubMigrate(t, runner, nil)

	m, _ := NewMigrator("postgres://x", "migrations")
	err := m.Close()
	if !errors.Is(err, srcErr) || !errors.Is(err, dbErr) {
		t.Fatalf("expected both close errors, got %v", err)
	}
}
