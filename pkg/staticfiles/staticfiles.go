package staticfiles

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/vidinspect/pkg/www"
)

// StaticFileServer serves the files of an embedded filesystem, such as the upload page.
// Compressible files are gzipped once, on first request, and kept in memory.
// The filesystem is assumed to be immutable.
type StaticFileServer struct {
	fsys          fs.FS
	log           logs.Log
	apiRoutes     []string  // Any path that begins with an item from apiRoutes produces a 404
	modTime       time.Time // Embedded files have a zero modification time, so we use the time of our executable
	compressLevel int
	maxAgeSeconds int

	compressExtensions map[string]bool

	filesLock sync.Mutex
	files     map[string]*cachedFile // key is the path inside fsys
}

// cachedFile is an in-memory compressed file
type cachedFile struct {
	once       sync.Once
	compressed []byte
	err        error
}

// NewStaticFileServer serves fsys from the root of the URL space.
// "/" serves index.html. apiRoutes are prefixes (eg "/api/") that are never served from fsys.
func NewStaticFileServer(fsys fs.FS, apiRoutes []string, log logs.Log) *StaticFileServer {
	modTime := time.Now()
	if ownPath, err := os.Executable(); err == nil {
		if self, err := os.Stat(ownPath); err == nil {
			modTime = self.ModTime()
		}
	}
	return &StaticFileServer{
		fsys:          fsys,
		log:           log,
		apiRoutes:     apiRoutes,
		modTime:       modTime,
		compressLevel: 5,
		maxAgeSeconds: 300,
		compressExtensions: map[string]bool{
			"css":  true,
			"js":   true,
			"html": true,
			"svg":  true,
		},
		files: map[string]*cachedFile{},
	}
}

func (s *StaticFileServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	urlPath := r.URL.Path
	for _, api := range s.apiRoutes {
		if strings.HasPrefix(urlPath, api) {
			www.SendError(w, fmt.Sprintf("The url path '%v' is not a valid API", urlPath), http.StatusNotFound)
			return
		}
	}
	if urlPath == "/" || urlPath == "" {
		urlPath = "/index.html"
	}
	// Prevent traversals such as /../../etc/passwd
	if strings.Contains(urlPath, "..") {
		http.NotFound(w, r)
		return
	}
	s.serveFile(w, r, strings.TrimPrefix(urlPath, "/"))
}

func (s *StaticFileServer) serveFile(w http.ResponseWriter, r *http.Request, name string) {
	raw, err := fs.ReadFile(s.fsys, name)
	if errors.Is(err, fs.ErrNotExist) {
		http.NotFound(w, r)
		return
	} else if err != nil {
		// ReadFile on a directory lands here
		http.NotFound(w, r)
		return
	}

	cacheControl := fmt.Sprintf("max-age=%v, must-revalidate", s.maxAgeSeconds)
	if www.IsNotModifiedEx(w, r, s.modTime, cacheControl) {
		return
	}
	w.Header().Set("Content-Type", mime.TypeByExtension(path.Ext(name)))

	readerCanGzip := strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")
	if !readerCanGzip || !s.isCompressible(name) {
		w.Header().Set("Content-Length", fmt.Sprintf("%v", len(raw)))
		w.Write(raw)
		return
	}

	cached := s.cachedFile(name)
	cached.once.Do(func() {
		start := time.Now()
		cached.compressed, cached.err = gzipBytes(raw, s.compressLevel)
		s.log.Debugf("Compressing %v took %v ms", name, time.Since(start).Milliseconds())
	})
	if cached.err != nil {
		www.SendError(w, cached.err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Encoding", "gzip")
	w.Header().Set("Content-Length", fmt.Sprintf("%v", len(cached.compressed)))
	io.Copy(w, bytes.NewReader(cached.compressed))
}

func (s *StaticFileServer) cachedFile(name string) *cachedFile {
	s.filesLock.Lock()
	defer s.filesLock.Unlock()
	f := s.files[name]
	if f == nil {
		f = &cachedFile{}
		s.files[name] = f
	}
	return f
}

func (s *StaticFileServer) isCompressible(filename string) bool {
	ext := path.Ext(filename)
	if len(ext) == 0 {
		return false
	}
	return s.compressExtensions[strings.ToLower(ext[1:])]
}

func gzipBytes(raw []byte, level int) ([]byte, error) {
	buf := bytes.Buffer{}
	writer, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := writer.Write(raw); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
