package httpapi

import "net/http"

// newStaticHandler serves the web UI's static assets from disk at path,
// matching the configurable-asset-directory approach needed once the
// assets vary by deployment (config carries APP_STATIC_ASSETS_PATH rather
// than a compiled-in embed.FS bundle).
func newStaticHandler(path string) http.Handler {
	if path == "" {
		return http.NotFoundHandler()
	}
	return http.FileServer(http.Dir(path))
}
