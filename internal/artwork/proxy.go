// ABOUTME: HTTP proxy for album art served by the device's GetArt endpoint
// ABOUTME: Validates guids and keeps a small in-memory cache of fetched images
package artwork

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/harperreed/mms-bridge/internal/logging"
)

const maxCached = 64

type cachedArt struct {
	contentType string
	body        []byte
}

// Proxy fetches artwork from the device's embedded HTTP server so the
// web UI never talks to the device directly.
type Proxy struct {
	base   string
	client *http.Client

	mu    sync.Mutex
	cache map[string]cachedArt
	order []string
}

func NewProxy(host string, port int) *Proxy {
	return &Proxy{
		base:   fmt.Sprintf("http://%s:%d", host, port),
		client: &http.Client{Timeout: 10 * time.Second},
		cache:  make(map[string]cachedArt),
	}
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	guid := chi.URLParam(r, "guid")
	bare := strings.Trim(guid, "{}")
	if _, err := uuid.Parse(bare); err != nil {
		http.Error(w, "invalid guid", http.StatusBadRequest)
		return
	}

	if art, ok := p.get(bare); ok {
		writeArt(w, art)
		return
	}

	resp, err := p.client.Get(p.base + "/GetArt?guid=" + guid)
	if err != nil {
		logging.Warn().Err(err).Str("guid", bare).Msg("artwork fetch failed")
		http.Error(w, "artwork unavailable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		http.Error(w, "artwork unavailable", http.StatusBadGateway)
		return
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		http.Error(w, "artwork unavailable", http.StatusBadGateway)
		return
	}

	art := cachedArt{contentType: resp.Header.Get("Content-Type"), body: body}
	p.put(bare, art)
	writeArt(w, art)
}

func (p *Proxy) get(guid string) (cachedArt, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	art, ok := p.cache[guid]
	return art, ok
}

// put caches an image, evicting the oldest entry once the cache is full.
func (p *Proxy) put(guid string, art cachedArt) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.cache[guid]; ok {
		return
	}
	if len(p.order) >= maxCached {
		oldest := p.order[0]
		p.order = p.order[1:]
		delete(p.cache, oldest)
	}
	p.cache[guid] = art
	p.order = append(p.order, guid)
}

func writeArt(w http.ResponseWriter, art cachedArt) {
	if art.contentType != "" {
		w.Header().Set("Content-Type", art.contentType)
	}
	w.Header().Set("Cache-Control", "max-age=3600")
	w.Write(art.body)
}
