package api

import (
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// localFileServer serves run files from the results directory. Request
// paths are resolved relative to that root.
type localFileServer struct {
	log  logrus.FieldLogger
	root string
}

func newLocalFileServer(log logrus.FieldLogger, root string) *localFileServer {
	return &localFileServer{
		log:  log.WithField("component", "local-file-server"),
		root: filepath.Clean(root),
	}
}

// ServeFile serves filePath from below the results directory. Returns an
// error when the path is disallowed or does not name a regular file.
func (l *localFileServer) ServeFile(w http.ResponseWriter, r *http.Request, filePath string) error {
	if !isAllowedPath(filePath) {
		return fmt.Errorf("path %q is not allowed", filePath)
	}

	full := filepath.Join(l.root, filepath.FromSlash(filePath))
	if !strings.HasPrefix(full, l.root+string(filepath.Separator)) {
		return fmt.Errorf("path %q escapes the results directory", filePath)
	}

	info, err := os.Stat(full)
	if err != nil || !info.Mode().IsRegular() {
		return fmt.Errorf("file %q not found", filePath)
	}

	http.ServeFile(w, r, full)

	return nil
}

// isAllowedPath rejects empty, absolute, unclean, or traversal request paths.
func isAllowedPath(filePath string) bool {
	if filePath == "" {
		return false
	}

	if strings.Contains(filePath, "..") {
		return false
	}

	if strings.HasPrefix(filePath, "/") || filepath.IsAbs(filePath) {
		return false
	}

	return path.Clean(filePath) == filePath
}
