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
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func request(p *Placeholder, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	p.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestPlaceholder(t *testing.T) {
	Convey("Given a placeholder", t, func() {
		d := NewDetector(nil, nil)
		p := NewPlaceholder(d, "5678", nil)
		redirects := 0
		pages := 0
		p.SetHooks(func(redirect bool) {
			if redirect {
				redirects++
			} else {
				pages++
			}
		}, func() string { return "gen-1" })

		Convey("Every request gets the waiting page while not ready", func() {
			for _, r := range []struct{ method, target string }{
				{"GET", "/"},
				{"GET", "/workflow/12?x=1"},
				{"POST", "/webhook/abc"},
				{"DELETE", "/a//b/../c"},
				{"HEAD", "/healthz"},
			} {
				w := request(p, r.method, r.target)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldStartWith, "text/html")
				So(w.Header().Get("Cache-Control"), ShouldEqual, "no-store")
				So(w.Header().Get(GenerationHeader), ShouldEqual, "gen-1")
			}
			So(pages, ShouldEqual, 5)
			So(redirects, ShouldEqual, 0)

			w := request(p, "GET", "/")
			body := w.Body.String()
			So(body, ShouldContainSubstring, "location.reload()")
			So(body, ShouldContainSubstring, "10000")
		})

		Convey("Once ready, requests are redirected to the child", func() {
			d.Scan(StreamStdout, "Editor is now accessible via: http://localhost:5678/")
			w := request(p, "GET", "/")
			So(w.Code, ShouldEqual, http.StatusFound)
			So(w.Header().Get("Location"), ShouldEqual, "http://127.0.0.1:5678/")

			w = request(p, "POST", "/webhook/abc?q=1")
			So(w.Code, ShouldEqual, http.StatusFound)
			So(w.Header().Get("Location"), ShouldEqual, "http://127.0.0.1:5678/webhook/abc?q=1")
			So(redirects, ShouldEqual, 2)

			Convey("And back to the page when the child goes away", func() {
				d.Reset()
				w := request(p, "GET", "/")
				So(w.Code, ShouldEqual, http.StatusOK)
			})
		})

		Convey("The page can be replaced", func() {
			p.SetPage([]byte("<p>custom</p>"))
			So(request(p, "GET", "/").Body.String(), ShouldEqual, "<p>custom</p>")

			dir := t.TempDir()
			path := filepath.Join(dir, "page.html")
			So(ioutil.WriteFile(path, []byte("<p>file</p>"), 0644), ShouldBeNil)
			So(p.LoadPage(path), ShouldBeNil)
			So(request(p, "GET", "/").Body.String(), ShouldEqual, "<p>file</p>")
			So(p.LoadPage(filepath.Join(dir, "missing")), ShouldNotBeNil)
		})
	})

	Convey("Binding a port in use fails", t, func() {
		ln, e := Listen("0")
		So(e, ShouldBeNil)
		defer ln.Close()
		port := ln.Addr().String()
		port = port[strings.LastIndex(port, ":")+1:]

		_, e = Listen(port)
		So(e, ShouldNotBeNil)
		So(e.Error(), ShouldContainSubstring, "cannot bind placeholder")
	})
}
