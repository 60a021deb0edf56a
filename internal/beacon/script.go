// Package beacon holds the script injected into protected pages and a Go
// model of the state machine it runs.
package beacon

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"net/http"
	"time"
)

//go:embed assets/anticlone.js
var script []byte

var (
	scriptETag     = `"` + etagOf(script) + `"`
	scriptModified = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
)

func etagOf(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8])
}

// Script returns a copy of the beacon asset.
func Script() []byte {
	return bytes.Clone(script)
}

// ScriptHandler serves the beacon. Site owners embed it on every page, so
// responses are cacheable and revalidated by ETag.
func ScriptHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Content-Type", "application/javascript; charset=utf-8")
		h.Set("Cache-Control", "public, max-age=300")
		h.Set("ETag", scriptETag)
		h.Set("Access-Control-Allow-Origin", "*")
		http.ServeContent(w, r, "anticlone.js", scriptModified, bytes.NewReader(script))
	})
}
