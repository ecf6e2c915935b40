// Package web embeds a minimal operator shell that mounts the inbox and
// dashboard views. Deployments embedded in the ERP desk use its own shell
// and only need the /ws endpoints.
package web

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
)

//go:embed shell
var shellFS embed.FS

// ShellHandler serves the embedded shell. Unknown paths fall back to
// index.html so the shell can route on the client.
func ShellHandler() http.Handler {
	subFS, err := fs.Sub(shellFS, "shell")
	if err != nil {
		panic("web: failed to create sub filesystem: " + err.Error())
	}

	fileServer := http.FileServer(http.FS(subFS))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/")
		if path != "" {
			if f, err := subFS.Open(path); err == nil {
				if closeErr := f.Close(); closeErr != nil {
					slog.Debug("web: failed to close embedded file", "path", path, "error", closeErr)
				}
				fileServer.ServeHTTP(w, r)
				return
			}
		}

		r.URL.Path = "/"
		fileServer.ServeHTTP(w, r)
	})
}
