package store

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/boxrender/internal/logging"
	"github.com/conneroisu/boxrender/internal/watcher"
)

// DirStore serves gist-shaped directories from disk: every subdirectory of
// root is one entry and its regular files are the entry's files. Raw URLs
// use the file scheme, rooted at root.
type DirStore struct {
	root   string
	logger logging.Logger

	mu       sync.RWMutex
	listings map[string]Listing
	onChange []func(id string)
}

// NewDirStore creates a directory store rooted at root
func NewDirStore(root string, logger logging.Logger) (*DirStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve store root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("store root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("store root %s is not a directory", abs)
	}
	if logger == nil {
		logger = logging.Discard()
	}

	return &DirStore{
		root:     abs,
		logger:   logger.WithComponent("dirstore"),
		listings: make(map[string]Listing),
	}, nil
}

// Root returns the absolute store root
func (d *DirStore) Root() string {
	return d.root
}

// Files lists the regular, non-hidden files of root/id. The token is not
// used. Listings are memoised until a change below root/id is observed.
func (d *DirStore) Files(_ context.Context, id, _ string) (Listing, error) {
	if !validID(id) {
		return nil, newError(ErrInvalidID, KindDir, id, "invalid entry id", nil)
	}

	d.mu.RLock()
	cached, ok := d.listings[id]
	d.mu.RUnlock()
	if ok {
		return cached.clone(), nil
	}

	listing, err := d.readListing(id)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.listings[id] = listing
	d.mu.Unlock()

	return listing.clone(), nil
}

// RootFiles lists the regular, non-hidden files directly under root, as if
// root itself were the entry. Its raw URLs resolve through Download and
// Transport like any other. The result is not memoised.
func (d *DirStore) RootFiles() (Listing, error) {
	return d.readListing("")
}

func (d *DirStore) readListing(id string) (Listing, error) {
	target := id
	if target == "" {
		target = d.root
	}

	entries, err := os.ReadDir(filepath.Join(d.root, id))
	if os.IsNotExist(err) {
		return nil, newError(ErrNotFound, KindDir, target, "entry not found", nil)
	}
	if err != nil {
		return nil, newError(ErrFetchFailed, KindDir, target, "read entry", err)
	}

	listing := make(Listing, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		listing[entry.Name()] = File{
			Filename: entry.Name(),
			RawURL:   fileURL(id, entry.Name()),
			Size:     info.Size(),
		}
	}
	return listing, nil
}

// Download reads the file behind a file:// raw URL
func (d *DirStore) Download(_ context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "file" || u.Host != "" {
		return nil, newError(ErrInvalidID, KindDir, rawURL, "not a store file URL", err)
	}

	// path.Clean on a rooted path cannot climb above "/"
	rel := strings.TrimPrefix(path.Clean("/"+u.Path), "/")
	data, err := os.ReadFile(filepath.Join(d.root, filepath.FromSlash(rel)))
	if os.IsNotExist(err) {
		return nil, newError(ErrNotFound, KindDir, rawURL, "file not found", nil)
	}
	if err != nil {
		return nil, newError(ErrFetchFailed, KindDir, rawURL, "read file", err)
	}
	return data, nil
}

// Transport serves file:// raw URLs of this store over HTTP semantics
func (d *DirStore) Transport() http.RoundTripper {
	return http.NewFileTransport(http.Dir(d.root))
}

// OnChange registers fn to be called with the id of every entry whose
// listing was dropped
func (d *DirStore) OnChange(fn func(id string)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onChange = append(d.onChange, fn)
}

// Invalidate drops the memoised listing of id
func (d *DirStore) Invalidate(id string) {
	d.mu.Lock()
	delete(d.listings, id)
	handlers := append([]func(string){}, d.onChange...)
	d.mu.Unlock()

	for _, fn := range handlers {
		fn(id)
	}
}

// Watch invalidates listings on file changes until ctx is done
func (d *DirStore) Watch(ctx context.Context, debounce time.Duration) error {
	fw, err := watcher.NewFileWatcher(d.root, debounce, d.logger)
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	fw.AddFilter(watcher.NoEditorTempFilter)
	fw.AddHandler(func(events []watcher.ChangeEvent) error {
		for _, id := range d.affectedIDs(events) {
			d.logger.Debug(ctx, "Store entry changed", "id", id)
			d.Invalidate(id)
		}
		return nil
	})

	if err := fw.AddRecursive(); err != nil {
		_ = fw.Stop()
		return fmt.Errorf("watch %s: %w", d.root, err)
	}
	if err := fw.Start(ctx); err != nil {
		_ = fw.Stop()
		return err
	}

	go func() {
		<-ctx.Done()
		_ = fw.Stop()
	}()
	return nil
}

func (d *DirStore) affectedIDs(events []watcher.ChangeEvent) []string {
	seen := make(map[string]struct{})
	for _, e := range events {
		rel, err := filepath.Rel(d.root, e.Path)
		if err != nil || rel == "." {
			continue
		}
		id := strings.SplitN(filepath.ToSlash(rel), "/", 2)[0]
		if validID(id) {
			seen[id] = struct{}{}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (l Listing) clone() Listing {
	out := make(Listing, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

func validID(id string) bool {
	return id != "" && id != "." && id != ".." &&
		!strings.HasPrefix(id, ".") &&
		!strings.ContainsAny(id, `/\`)
}

func fileURL(id, name string) string {
	return (&url.URL{Scheme: "file", Path: path.Join("/", id, name)}).String()
}

// NewHTTPClient returns the client used for document fetches. When dir is
// not nil its file:// raw URLs are served from disk.
func NewHTTPClient(timeout time.Duration, dir *DirStore) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if dir != nil {
		transport.RegisterProtocol("file", dir.Transport())
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}
