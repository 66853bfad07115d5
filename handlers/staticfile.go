package handlers

import (
	"container/list"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fast01/latypus/httpproto"
)

// fileCache is an LRU cache of open file descriptors, adapted from the
// teacher's sendfile.FileCache: streaming a static file through a
// ServerHandler's WriteResponseBody means re-opening the same popular
// file on every request would otherwise dominate request latency.
type fileCache struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	lru      *list.List
	maxFiles int
}

type cacheEntry struct {
	path string
	file *os.File
}

func newFileCache(maxFiles int) *fileCache {
	return &fileCache{
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
		maxFiles: maxFiles,
	}
}

func (c *fileCache) get(path string) (*os.File, error) {
	c.mu.Lock()
	if el, ok := c.entries[path]; ok {
		c.lru.MoveToFront(el)
		file := el.Value.(*cacheEntry).file
		c.mu.Unlock()
		return file, nil
	}
	c.mu.Unlock()

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	el := c.lru.PushFront(&cacheEntry{path: path, file: file})
	c.entries[path] = el
	if c.lru.Len() > c.maxFiles {
		oldest := c.lru.Back()
		if oldest != nil {
			entry := oldest.Value.(*cacheEntry)
			entry.file.Close()
			delete(c.entries, entry.path)
			c.lru.Remove(oldest)
		}
	}
	return file, nil
}

func (c *fileCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, el := range c.entries {
		el.Value.(*cacheEntry).file.Close()
	}
	c.entries = make(map[string]*list.Element)
	c.lru.Init()
}

var errOutsideRoot = errors.New("handlers: path escapes static root")

func contentTypeFor(name string) string {
	switch filepath.Ext(name) {
	case ".html", ".htm":
		return "text/html; charset=utf-8"
	case ".css":
		return "text/css; charset=utf-8"
	case ".js":
		return "application/javascript; charset=utf-8"
	case ".json":
		return "application/json; charset=utf-8"
	case ".svg":
		return "image/svg+xml"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".txt":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// staticRoot is the state shared by every connection serving a given
// static route: the root directory and its LRU-cached open file
// descriptors. A fresh StaticFile is created per request to hold
// the per-request streaming offset, so concurrent requests against the
// same route never share mutable state.
type staticRoot struct {
	root        string
	routePrefix string
	cache       *fileCache
}

// NewStaticFile returns a ServerHandlerFactory serving files under root
// for requests whose path has routePrefix stripped.
func NewStaticFile(root, routePrefix string) httpproto.ServerHandlerFactory {
	sr := &staticRoot{
		root:        root,
		routePrefix: routePrefix,
		cache:       newFileCache(1000),
	}
	return func() httpproto.ServerHandler {
		return &StaticFile{root: sr}
	}
}

// StaticFile is the per-request handler instance for a static route.
type StaticFile struct {
	root *staticRoot

	file      *os.File
	offset    int64
	size      int64
	mimeType  string
	errorBody []byte
}

func (s *StaticFile) Init() {
	s.file = nil
	s.offset = 0
	s.size = 0
	s.mimeType = ""
	s.errorBody = nil
}

func (s *StaticFile) resolve(reqPath string) (string, error) {
	rel := strings.TrimPrefix(reqPath, s.root.routePrefix)
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" {
		rel = "index.html"
	}
	clean := filepath.Clean(rel)
	if strings.HasPrefix(clean, "..") {
		return "", errOutsideRoot
	}
	return filepath.Join(s.root.root, clean), nil
}

// stageError stages an error body (not found, forbidden, ...) as a fake "file" so
// WriteResponseBody can stream them through the same path as real file
// content, without HandleRequest needing a second return channel.
func (s *StaticFile) stageError(status int, body string) (int, error) {
	s.file = nil
	s.size = int64(len(body))
	s.offset = 0
	s.mimeType = "text/plain; charset=utf-8"
	s.errorBody = []byte(body)
	return status, nil
}

func (s *StaticFile) HandleRequest(req *httpproto.Request) (int, error) {
	path, err := s.resolve(req.Path)
	if err != nil {
		return s.stageError(403, "forbidden")
	}
	file, err := s.root.cache.get(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s.stageError(404, "not found")
		}
		return s.stageError(500, "internal error")
	}
	info, err := file.Stat()
	if err != nil || info.IsDir() {
		return s.stageError(404, "not found")
	}
	s.file = file
	s.offset = 0
	s.size = info.Size()
	s.mimeType = contentTypeFor(path)
	s.errorBody = nil
	return 200, nil
}

// PopulateResponse fills in Content-Type/Content-Length from what
// HandleRequest staged; the handler returns no in-memory body, so the
// server's populateResponse call relies entirely on resp.ContentLength
// here rather than on a body-length shortcut.
func (s *StaticFile) PopulateResponse(req *httpproto.Request, resp *httpproto.Response, connectionClose bool) {
	resp.ContentType = s.mimeType
	resp.ContentLength = int(s.size)
}

// WriteResponseBody streams the cached file in ioSz-sized chunks
// directly from disk via ReadAt, so a file far larger than the
// connection's I/O buffer never needs to be staged in memory at once —
// addressing the spec's open question about handlers streaming bodies
// longer than the buffer.
func (s *StaticFile) WriteResponseBody(buf []byte) (int, error) {
	if s.offset >= s.size {
		return 0, nil
	}
	if s.file == nil {
		n := copy(buf, s.errorBody[s.offset:])
		s.offset += int64(n)
		return n, nil
	}
	n, err := s.file.ReadAt(buf, s.offset)
	if n > 0 {
		s.offset += int64(n)
	}
	if err != nil && n == 0 {
		return 0, err
	}
	return n, nil
}
