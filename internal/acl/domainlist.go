package acl

import (
	"bufio"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DomainListStore loads domain-pattern files for rule evaluation. Parsed
// lists are cached and revalidated against the file's size and mtime on
// every load, so decisions always observe the current on-disk contents. An
// fsnotify watcher additionally refreshes entries off the hot path; the
// store behaves correctly without it.
type DomainListStore struct {
	log     *slog.Logger
	watcher *fsnotify.Watcher

	mu    sync.RWMutex
	lists map[string]*cachedList
}

type cachedList struct {
	patterns []string
	modTime  time.Time
	size     int64
}

// NewDomainListStore creates a store. A watcher failure is logged and the
// store degrades to pure stat-driven revalidation.
func NewDomainListStore(log *slog.Logger) *DomainListStore {
	s := &DomainListStore{
		log:   log,
		lists: make(map[string]*cachedList),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn("domain list watcher unavailable, falling back to per-decision reads", "error", err)
		return s
	}
	s.watcher = watcher
	go s.watchLoop()
	return s
}

// Load returns the patterns of the domain-list file at path. An empty path or
// a missing file yields an empty set; neither is an error.
func (s *DomainListStore) Load(path string) []string {
	if path == "" {
		return nil
	}

	fi, err := os.Stat(path)
	if err != nil {
		// Missing file means an empty pattern set. Drop any stale cache
		// entry so a recreated file is picked up from scratch.
		s.mu.Lock()
		delete(s.lists, path)
		s.mu.Unlock()
		return nil
	}

	s.mu.RLock()
	entry, ok := s.lists[path]
	s.mu.RUnlock()
	if ok && entry.size == fi.Size() && entry.modTime.Equal(fi.ModTime()) {
		return entry.patterns
	}

	return s.reload(path, fi)
}

// reload parses the file and replaces the cache entry.
func (s *DomainListStore) reload(path string, fi os.FileInfo) []string {
	patterns, err := parseDomainFile(path)
	if err != nil {
		s.log.Warn("failed to read domain list", "path", path, "error", err)
		return nil
	}

	s.mu.Lock()
	s.lists[path] = &cachedList{patterns: patterns, modTime: fi.ModTime(), size: fi.Size()}
	s.mu.Unlock()

	if s.watcher != nil {
		if err := s.watcher.Add(path); err != nil {
			s.log.Warn("failed to watch domain list", "path", path, "error", err)
		}
	}
	return patterns
}

func (s *DomainListStore) watchLoop() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if fi, err := os.Stat(event.Name); err == nil {
					s.reload(event.Name, fi)
				}
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				s.mu.Lock()
				delete(s.lists, event.Name)
				s.mu.Unlock()
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn("domain list watcher error", "error", err)
		}
	}
}

// Close releases the watcher.
func (s *DomainListStore) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// parseDomainFile reads one pattern per line; "#" starts a comment, either as
// a whole line or trailing after a pattern; blank lines are skipped.
func parseDomainFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		pattern := strings.TrimSpace(strings.SplitN(line, "#", 2)[0])
		if pattern != "" {
			patterns = append(patterns, pattern)
		}
	}
	return patterns, scanner.Err()
}
