package server

import (
	"bytes"
	stderrors "errors"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/conneroisu/jitserve/internal/errors"
	"github.com/conneroisu/jitserve/internal/logging"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Static serves files from the root. HTML documents get the runtime client
// injected, and pipeline errors attached by Middleware render as an error page.
type Static struct {
	root       string
	clientPath string
	inject     bool
	files      http.Handler
	logger     logging.Logger
}

// NewStatic creates the static fallback. An empty clientPath disables script
// injection.
func NewStatic(root, clientPath string, logger logging.Logger) *Static {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Static{
		root:       root,
		clientPath: clientPath,
		inject:     clientPath != "",
		files:      http.FileServer(http.Dir(root)),
		logger:     logger.WithComponent("static"),
	}
}

func (s *Static) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := RequestError(r); err != nil {
		s.serveError(w, err)
		return
	}

	if s.inject {
		if file, ok := s.document(r.URL.Path); ok {
			s.serveDocument(w, r, file)
			return
		}
	}
	s.files.ServeHTTP(w, r)
}

// document returns the HTML file a request path maps to, if any.
func (s *Static) document(urlPath string) (string, bool) {
	requestPath := path.Clean("/" + urlPath)
	file := filepath.Join(s.root, filepath.FromSlash(requestPath))
	info, err := os.Stat(file)
	if err != nil {
		return "", false
	}
	if info.IsDir() {
		file = filepath.Join(file, "index.html")
		if _, err := os.Stat(file); err != nil {
			return "", false
		}
	}
	ext := strings.ToLower(filepath.Ext(file))
	return file, ext == ".html" || ext == ".htm"
}

func (s *Static) serveDocument(w http.ResponseWriter, r *http.Request, file string) {
	content, err := os.ReadFile(file)
	if err != nil {
		s.serveError(w, errors.ErrReadFailed(file, err))
		return
	}

	injected, err := InjectClient(content, s.clientPath)
	if err != nil {
		s.logger.Warn(r.Context(), err, "Client injection failed", "file", file)
		injected = content
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(injected)))
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(injected)
	}
}

func (s *Static) serveError(w http.ResponseWriter, err error) {
	page := errors.ErrorOverlay(err)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(errorStatus(err))
	_, _ = w.Write([]byte(page))
}

func errorStatus(err error) int {
	var e *errors.Error
	if !stderrors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Code {
	case errors.ErrCodeFileNotFound:
		return http.StatusNotFound
	case errors.ErrCodePathTraversal:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// InjectClient adds a module script loading clientPath to the document head.
// Documents that already load it are returned unchanged.
func InjectClient(document []byte, clientPath string) ([]byte, error) {
	doc, err := html.Parse(bytes.NewReader(document))
	if err != nil {
		return nil, err
	}

	var head *html.Node
	found := false
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Head:
				if head == nil {
					head = n
				}
			case atom.Script:
				if attr(n, "src") == clientPath {
					found = true
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)

	if found {
		return document, nil
	}
	if head == nil {
		// html.Parse always synthesizes a head for documents.
		return document, nil
	}

	script := &html.Node{
		Type:     html.ElementNode,
		Data:     "script",
		DataAtom: atom.Script,
		Attr: []html.Attribute{
			{Key: "type", Val: "module"},
			{Key: "src", Val: clientPath},
		},
	}
	head.InsertBefore(script, head.FirstChild)

	var out bytes.Buffer
	if err := html.Render(&out, doc); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
