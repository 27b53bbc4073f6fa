// Package filestore is a content-addressed cache for test files. Files
// are keyed by the sha256 of their contents; downloads run in the
// background and readers block until their file has landed and been
// verified.
package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// DownloadFunc fetches url into path. Implementations may decompress
// transparently; the stored bytes must hash to the requested key.
type DownloadFunc func(url string, path string) error

const downloadAttempts = 3

type FileStore struct {
	fileDir  string
	tmpDir   string
	download DownloadFunc

	awaited   chan string
	scheduled chan string

	keyToUrl   *xsync.MapOf[string, string]
	waiters    *xsync.MapOf[string, *sync.Cond]
	downloaded *xsync.MapOf[string, error]
}

func New(fileDir, tmpDir string, download DownloadFunc) (*FileStore, error) {
	fs := &FileStore{
		fileDir:    fileDir,
		tmpDir:     tmpDir,
		download:   download,
		awaited:    make(chan string, 10000),
		scheduled:  make(chan string, 10000),
		keyToUrl:   xsync.NewMapOf[string, string](),
		waiters:    xsync.NewMapOf[string, *sync.Cond](),
		downloaded: xsync.NewMapOf[string, error](),
	}

	if err := os.MkdirAll(fs.fileDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create file store directory: %w", err)
	}
	if err := os.MkdirAll(fs.tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create tmp directory: %w", err)
	}
	return fs, nil
}

// Schedule registers sha256 for background download from url. Repeated
// schedules of the same key are no-ops.
func (fs *FileStore) Schedule(sha256Hex string, url string) {
	_, loaded := fs.keyToUrl.LoadOrStore(sha256Hex, url)
	if loaded {
		return
	}
	fs.waiters.Store(sha256Hex, sync.NewCond(&sync.Mutex{}))
	fs.scheduled <- sha256Hex
}

// Await blocks until the file for sha256 is available and returns its
// contents. The key must have been scheduled first.
func (fs *FileStore) Await(sha256Hex string) ([]byte, error) {
	cond, ok := fs.waiters.Load(sha256Hex)
	if !ok {
		return nil, fmt.Errorf("file %s has not been scheduled for download", sha256Hex)
	}

	// move the key to the front of the download queue
	fs.awaited <- sha256Hex

	cond.L.Lock()
	for {
		if dlErr, done := fs.downloaded.Load(sha256Hex); done {
			cond.L.Unlock()
			if dlErr != nil {
				return nil, dlErr
			}
			data, err := os.ReadFile(filepath.Join(fs.fileDir, sha256Hex))
			if err != nil {
				return nil, fmt.Errorf("failed to read file %s: %w", sha256Hex, err)
			}
			return data, nil
		}
		cond.Wait()
	}
}

// Start launches the background download worker. Awaited keys are
// served before merely scheduled ones.
func (fs *FileStore) Start() {
	go func() {
		for {
			var key string
			select {
			case key = <-fs.awaited:
			default:
				select {
				case key = <-fs.awaited:
				case key = <-fs.scheduled:
				}
			}
			fs.ensureDownloaded(key)
		}
	}()
}

func (fs *FileStore) ensureDownloaded(key string) {
	if _, done := fs.downloaded.Load(key); done {
		return
	}
	err := fs.downloadAndVerify(key)
	if err != nil {
		slog.Error("failed to download file", "sha256", key, "error", err)
	}
	fs.downloaded.Store(key, err)
	if cond, ok := fs.waiters.Load(key); ok {
		cond.L.Lock()
		cond.Broadcast()
		cond.L.Unlock()
	}
}

func (fs *FileStore) downloadAndVerify(key string) error {
	finalPath := filepath.Join(fs.fileDir, key)
	if _, err := os.Stat(finalPath); err == nil {
		return nil // cache hit from a previous run
	}

	url, ok := fs.keyToUrl.Load(key)
	if !ok {
		return fmt.Errorf("file %s has not been scheduled for download", key)
	}

	tmpPath := filepath.Join(fs.tmpDir, key)
	var lastErr error
	for attempt := 1; attempt <= downloadAttempts; attempt++ {
		if err := fs.download(url, tmpPath); err != nil {
			lastErr = fmt.Errorf("failed to download %s: %w", url, err)
			continue
		}
		if err := verifySha256(tmpPath, key); err != nil {
			os.Remove(tmpPath)
			lastErr = err
			continue
		}
		if err := os.Rename(tmpPath, finalPath); err != nil {
			return fmt.Errorf("failed to move file %s into store: %w", key, err)
		}
		return nil
	}
	return lastErr
}

func verifySha256(path string, want string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read downloaded file: %w", err)
	}
	sum := sha256.Sum256(data)
	got := hex.EncodeToString(sum[:])
	if got != want {
		return fmt.Errorf("sha256 mismatch: got %s, want %s", got, want)
	}
	return nil
}

// Sha256Hex returns the lowercase hex sha256 of data.
func Sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
