// Copyright 2026 The Govisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package standby

import (
	_ "embed"
	"fmt"
	"io/ioutil"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

const (
	mimeHTML = "text/html; charset=utf-8"

	// GenerationHeader carries the current child generation, if any.
	GenerationHeader = "X-Standby-Generation"
)

//go:embed page.html
var defaultPage []byte

// Placeholder answers every request on the public port.  Until the child
// is ready it serves the waiting page; afterwards it redirects to the
// child's loopback address.  It never proxies.
type Placeholder struct {
	detector  *Detector
	childPort string
	page      []byte
	router    *mux.Router
	server    *http.Server
	logger    *log.Logger

	onRequest  func(redirect bool)
	generation func() string

	lock sync.Mutex
}

// Listen binds the public port on all interfaces.
func Listen(port string) (net.Listener, error) {
	addr := net.JoinHostPort(BindHost, port)
	ln, e := net.Listen("tcp", addr)
	if e != nil {
		return nil, fmt.Errorf("cannot bind placeholder on %s: %w", addr, e)
	}
	return ln, nil
}

func (p *Placeholder) serve(w http.ResponseWriter, r *http.Request) {
	p.lock.Lock()
	page := p.page
	onRequest := p.onRequest
	generation := p.generation
	p.lock.Unlock()

	if generation != nil {
		if g := generation(); g != "" {
			w.Header().Set(GenerationHeader, g)
		}
	}
	w.Header().Set("Cache-Control", "no-store")

	ready := p.detector.Ready()
	if onRequest != nil {
		onRequest(ready)
	}
	if ready {
		http.Redirect(w, r, p.RedirectURL(r), http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", mimeHTML)
	w.WriteHeader(http.StatusOK)
	w.Write(page)
}

// RedirectURL is where a ready placeholder sends the request.
func (p *Placeholder) RedirectURL(r *http.Request) string {
	return "http://" + net.JoinHostPort("127.0.0.1", p.childPort) +
		r.URL.RequestURI()
}

func (p *Placeholder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.router.ServeHTTP(w, r)
}

// SetPage replaces the waiting page.
func (p *Placeholder) SetPage(b []byte) {
	p.lock.Lock()
	p.page = b
	p.lock.Unlock()
}

// LoadPage replaces the waiting page with the contents of a file.
func (p *Placeholder) LoadPage(path string) error {
	b, e := ioutil.ReadFile(path)
	if e != nil {
		return e
	}
	p.SetPage(b)
	return nil
}

// SetHooks registers a function told about every request, and one
// returning the current child generation for the response header.
func (p *Placeholder) SetHooks(onRequest func(redirect bool), generation func() string) {
	p.lock.Lock()
	p.onRequest = onRequest
	p.generation = generation
	p.lock.Unlock()
}

// Serve accepts connections on ln until Close is called.  It returns nil
// after a Close.
func (p *Placeholder) Serve(ln net.Listener) error {
	if e := p.server.Serve(ln); e != http.ErrServerClosed {
		return e
	}
	return nil
}

// Close closes the listener and any open connections.
func (p *Placeholder) Close() error {
	return p.server.Close()
}

// NewPlaceholder returns a Placeholder that reads readiness from d and
// redirects to childPort on the loopback address.
func NewPlaceholder(d *Detector, childPort string, logger *log.Logger) *Placeholder {
	if logger == nil {
		logger = log.New(ioutil.Discard, "", 0)
	}
	p := &Placeholder{
		detector:  d,
		childPort: childPort,
		page:      defaultPage,
		logger:    logger,
	}
	r := mux.NewRouter()
	// Every path, every method.  Leave paths uncleaned so that odd ones
	// get the page rather than a mux redirect.
	r.SkipClean(true)
	r.PathPrefix("/").HandlerFunc(p.serve)
	r.NotFoundHandler = http.HandlerFunc(p.serve)
	r.MethodNotAllowedHandler = http.HandlerFunc(p.serve)
	p.router = r
	p.server = &http.Server{
		Handler:           p,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logger,
	}
	return p
}
