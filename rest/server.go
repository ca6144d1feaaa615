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

package rest

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gdamore/standby"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
)

// Handler wraps a Supervisor, adding http.Handler functionality.
type Handler struct {
	s    *standby.Supervisor
	r    *mux.Router
	user string
	hash []byte
}

func (h *Handler) internalError(w http.ResponseWriter, e error) {
	http.Error(w, e.Error(), http.StatusInternalServerError)
}

func (h *Handler) writeJson(w http.ResponseWriter, v interface{}) {
	if b, e := json.Marshal(v); e != nil {
		h.internalError(w, e)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.Write(b)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, e *Error) {
	if b, err := json.Marshal(e); err != nil {
		h.internalError(w, err)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.WriteHeader(e.Code)
		w.Write(b)
	}
}

// pollArgs extracts the Etag the client already has, and how long it is
// prepared to wait for something newer.
func pollArgs(r *http.Request) (int64, time.Duration, bool) {
	etag := strings.Trim(r.Header.Get("If-None-Match"), "\"")
	if etag == "" {
		return 0, 0, false
	}
	last, e := strconv.ParseInt(etag, 10, 64)
	if e != nil {
		return 0, 0, false
	}
	secs, _ := strconv.Atoi(r.Header.Get(PollHeader))
	if secs < 0 {
		secs = 0
	} else if secs > MaxPoll {
		secs = MaxPoll
	}
	return last, time.Duration(secs) * time.Second, true
}

func setEtag(w http.ResponseWriter, id int64) {
	w.Header().Set("ETag", "\""+strconv.FormatInt(id, 10)+"\"")
}

func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	if last, wait, ok := pollArgs(r); ok {
		if h.s.WatchSerial(last, wait) == last {
			setEtag(w, last)
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	st := h.s.Status()
	setEtag(w, st.Serial)
	h.writeJson(w, st)
}

func (h *Handler) getLog(w http.ResponseWriter, r *http.Request) {
	l := h.s.Log()
	if last, wait, ok := pollArgs(r); ok {
		if l.Watch(last, wait) == last {
			setEtag(w, last)
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	recs, id := l.GetRecords(0)
	setEtag(w, id)
	h.writeJson(w, recs)
}

func (h *Handler) getMarkers(w http.ResponseWriter, r *http.Request) {
	h.writeJson(w, &MarkerList{Markers: h.s.Detector().Markers()})
}

func (h *Handler) putMarkers(w http.ResponseWriter, r *http.Request) {
	var markers []string
	if strings.HasPrefix(r.Header.Get("Content-Type"), "text/plain") {
		m, e := standby.ParseMarkers(r.Body)
		if e != nil {
			h.writeError(w, &Error{http.StatusBadRequest, e.Error()})
			return
		}
		markers = m
	} else {
		var ml MarkerList
		if e := json.NewDecoder(r.Body).Decode(&ml); e != nil {
			h.writeError(w, &Error{http.StatusBadRequest, e.Error()})
			return
		}
		markers = ml.Markers
	}
	if e := h.s.SetMarkers(markers); e != nil {
		h.writeError(w, &Error{http.StatusBadRequest, e.Error()})
		return
	}
	h.writeJson(w, ok)
}

// authenticate enforces HTTP basic auth once SetAuth has been called.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.hash == nil {
			next.ServeHTTP(w, r)
			return
		}
		user, pass, found := r.BasicAuth()
		if !found ||
			subtle.ConstantTimeCompare([]byte(user), []byte(h.user)) != 1 ||
			bcrypt.CompareHashAndPassword(h.hash, []byte(pass)) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="standby"`)
			h.writeError(w, &Error{http.StatusUnauthorized, "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SetAuth requires HTTP basic auth with the given user, and a password
// matching the bcrypt hash.
func (h *Handler) SetAuth(user string, hash []byte) error {
	if _, e := bcrypt.Cost(hash); e != nil {
		return e
	}
	h.user = user
	h.hash = hash
	return nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.r.ServeHTTP(w, req)
}

func NewHandler(s *standby.Supervisor) *Handler {
	r := mux.NewRouter()
	h := &Handler{s: s, r: r}
	r.Use(h.authenticate)
	r.HandleFunc("/status", h.getStatus).Methods("GET")
	r.HandleFunc("/log", h.getLog).Methods("GET")
	r.HandleFunc("/markers", h.getMarkers).Methods("GET")
	r.HandleFunc("/markers", h.putMarkers).Methods("PUT")
	r.Handle("/metrics", s.Metrics().Handler()).Methods("GET")
	return h
}
