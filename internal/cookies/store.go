// File: internal/cookies/store.go
package cookies

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// issuedAgo is subtracted from the observed expiry to estimate the issue
// time; the edge service sets clearance cookies to expire one year out.
// For tokens issued with a shorter lifetime this lands in the past, which is
// why the record also carries the untouched expiry in RawExpiry.
const issuedAgo = 365 * 24 * time.Hour

// How long a lock file may sit before it is considered abandoned.
const staleLockAge = 30 * time.Second

// Record is one solved clearance, appended to the per-domain list.
type Record struct {
	UnixTimestamp  int64             `json:"unix_timestamp"`
	ISOTimestamp   string            `json:"timestamp"`
	ClearanceValue string            `json:"cf_clearance"`
	RawExpiry      float64           `json:"raw_expiry"`
	Cookies        []*network.Cookie `json:"cookies"`
	UserAgent      string            `json:"user_agent"`
	Proxy          string            `json:"proxy"`
}

// NewRecord builds a record from a solve outcome. The issue timestamp is
// derived as expiry minus one year; the raw expiry is preserved untouched.
func NewRecord(clearance *network.Cookie, snapshot []*network.Cookie, userAgent, proxy string) Record {
	issued := ExpiryTime(clearance).Add(-issuedAgo)
	return Record{
		UnixTimestamp:  issued.Unix(),
		ISOTimestamp:   issued.Format(time.RFC3339),
		ClearanceValue: clearance.Value,
		RawExpiry:      clearance.Expires,
		Cookies:        snapshot,
		UserAgent:      userAgent,
		Proxy:          proxy,
	}
}

// Store appends clearance records to a JSON file keyed by domain. Concurrent
// solves may target the same file, so every append is one exclusive
// read-modify-write cycle: an in-process mutex for sibling goroutines plus a
// sidecar lock file against other processes.
type Store struct {
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

// NewStore creates a store backed by the given file. The file need not exist.
func NewStore(path string, logger *zap.Logger) *Store {
	return &Store{path: path, logger: logger.Named("store")}
}

// Path returns the backing file location.
func (s *Store) Path() string { return s.path }

// Append adds a record under the given domain, creating the file and parent
// directory on first use. A missing or corrupt backing file is replaced by an
// empty structure rather than treated as fatal.
func (s *Store) Append(domain string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	unlock, err := s.acquireFileLock()
	if err != nil {
		return err
	}
	defer unlock()

	data := s.load()
	data[domain] = append(data[domain], rec)

	encoded, err := json.MarshalIndent(data, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}

	// Publish via temp file + rename so readers never observe a partial
	// write.
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".cookies-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write records: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to publish records: %w", err)
	}

	s.logger.Debug("Appended clearance record",
		zap.String("domain", domain),
		zap.String("file", s.path),
	)
	return nil
}

// load reads the current file contents, returning an empty structure when
// the file is missing or unreadable as JSON.
func (s *Store) load() map[string][]Record {
	data := make(map[string][]Record)

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Failed to read store file; starting empty", zap.Error(err))
		}
		return data
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		s.logger.Warn("Store file is corrupt; starting empty",
			zap.String("file", s.path),
			zap.Error(err),
		)
		return make(map[string][]Record)
	}
	return data
}

// acquireFileLock takes the sidecar lock file, waiting out a concurrent
// holder and breaking locks abandoned by crashed processes.
func (s *Store) acquireFileLock() (func(), error) {
	lockPath := s.path + ".lock"
	deadline := time.Now().Add(10 * time.Second)

	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return func() { os.Remove(lockPath) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create lock file: %w", err)
		}

		if info, statErr := os.Stat(lockPath); statErr == nil && time.Since(info.ModTime()) > staleLockAge {
			s.logger.Warn("Breaking stale store lock", zap.String("lock", lockPath))
			os.Remove(lockPath)
			continue
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timed out waiting for store lock %s", lockPath)
		}
		time.Sleep(50 * time.Millisecond)
	}
}
