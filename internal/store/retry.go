package store

import (
	"context"
	"strings"
	"time"
)

const maxBusyRetries = 3

// isBusy reports whether err indicates an SQLite BUSY condition.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// retryBusy runs fn, retrying up to three times with 100/200/300 ms pauses
// while SQLite reports the database as busy. Another process holding the
// file is the only expected source of contention.
func retryBusy(ctx context.Context, fn func() error) error {
	var err error
	for i := range maxBusyRetries {
		err = fn()
		if !isBusy(err) || i == maxBusyRetries-1 {
			return err
		}

		t := time.NewTimer(time.Duration(100*(i+1)) * time.Millisecond)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return err
}
