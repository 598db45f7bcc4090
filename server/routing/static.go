package routing

import (
	"net/http"
	"path"
)

// staticFiles serves the bundled front-end from dir. Paths with no file
// behind them fall through to the JSON not-found envelope, and paths that
// belong to an API route answer 405 like any other wrong-method request.
func staticFiles(dir string) http.HandlerFunc {
	root := http.Dir(dir)
	files := http.FileServer(root)

	return func(w http.ResponseWriter, r *http.Request) {
		name := path.Clean("/" + r.URL.Path)

		for _, route := range Routes {
			if route.Path == name {
				methodNotAllowed(w, r)
				return
			}
		}

		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			notFound(w, r)
			return
		}
		if !exists(root, name) {
			notFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	}
}

// exists reports whether name is a file, or a directory with an index.html.
func exists(root http.FileSystem, name string) bool {
	f, err := root.Open(name)
	if err != nil {
		return false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false
	}
	if !info.IsDir() {
		return true
	}
	return exists(root, path.Join(name, "index.html"))
}
