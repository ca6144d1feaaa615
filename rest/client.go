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
	"bytes"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/standby"
	"golang.org/x/net/context"
)

// StatusInfo is a Status with the Etag it was served under.
type StatusInfo struct {
	standby.Status
	etag string
}

type LogInfo struct {
	etag    string
	Records []standby.LogRecord
}

// Client talks to the admin API of a running supervisor.  It caches the
// last status and log, so that watches only transfer changes.
type Client struct {
	user      string // HTTP Basic-Auth
	pass      string
	base      string // URI of the admin API root
	auth      bool
	client    *http.Client
	transport *http.Transport

	status *StatusInfo
	log    *LogInfo
	lock   sync.Mutex
}

func (c *Client) SetAuth(user string, pass string) {
	c.user = user
	c.pass = pass
	c.auth = true
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	req, e := http.NewRequest(method, c.base+path, bytes.NewReader(body))
	if e != nil {
		return nil, e
	}
	if c.auth {
		req.SetBasicAuth(c.user, c.pass)
	}
	return req.WithContext(ctx), nil
}

func readError(res *http.Response) error {
	e := &Error{}
	if b, err := ioutil.ReadAll(res.Body); err == nil &&
		json.Unmarshal(b, e) == nil && e.Message != "" {
		return e
	}
	return &Error{Code: res.StatusCode, Message: res.Status}
}

// poll issues a GET, optionally conditional on etag, and optionally asking
// the server to hold the request for up to wait seconds until something
// changes.  It returns the new Etag, or "" if nothing changed.
func (c *Client) poll(ctx context.Context, path string, etag string, wait int, v interface{}) (string, error) {
	req, e := c.newRequest(ctx, "GET", path, nil)
	if e != nil {
		return "", e
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
		if wait > 0 {
			req.Header.Set(PollHeader, strconv.Itoa(wait))
		}
	}
	res, e := c.client.Do(req)
	if e != nil {
		return "", e
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotModified {
		return "", nil
	}
	if res.StatusCode != http.StatusOK {
		return "", readError(res)
	}
	body, e := ioutil.ReadAll(res.Body)
	if e != nil {
		return "", e
	}
	if e := json.Unmarshal(body, v); e != nil {
		return "", e
	}
	return res.Header.Get("Etag"), nil
}

func (c *Client) pollStatus(ctx context.Context, secs int, last *StatusInfo) (*StatusInfo, error) {
	c.lock.Lock()
	cached := c.status
	c.lock.Unlock()

	otag := ""
	if last == nil {
		secs = 0
	} else if cached != nil && cached.etag != last.etag {
		// Our cache is already newer than what the caller has seen.
		return cached, nil
	} else {
		otag = last.etag
	}

	v := &StatusInfo{}
	etag, e := c.poll(ctx, "/status", otag, secs, &v.Status)
	if e != nil {
		return nil, e
	}
	if etag == "" {
		return cached, nil
	}
	v.etag = etag
	c.lock.Lock()
	c.status = v
	c.lock.Unlock()
	return v, nil
}

// Status fetches the current status.
func (c *Client) Status() (*StatusInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return c.pollStatus(ctx, 0, nil)
}

// WatchStatus waits for the status to move on from last, which must be a
// value previously returned by this client.
func (c *Client) WatchStatus(ctx context.Context, last *StatusInfo) (*StatusInfo, error) {
	return c.pollStatus(ctx, MaxPoll, last)
}

func (c *Client) pollLog(ctx context.Context, secs int, last *LogInfo) (*LogInfo, error) {
	c.lock.Lock()
	cached := c.log
	c.lock.Unlock()

	otag := ""
	if last == nil {
		secs = 0
	} else if cached != nil && cached.etag != last.etag {
		return cached, nil
	} else {
		otag = last.etag
	}

	v := &LogInfo{}
	etag, e := c.poll(ctx, "/log", otag, secs, &v.Records)
	if e != nil {
		return nil, e
	}
	if etag == "" {
		return cached, nil
	}
	v.etag = etag
	c.lock.Lock()
	c.log = v
	c.lock.Unlock()
	return v, nil
}

func (c *Client) GetLog() (*LogInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return c.pollLog(ctx, 0, nil)
}

func (c *Client) WatchLog(ctx context.Context, last *LogInfo) (*LogInfo, error) {
	return c.pollLog(ctx, MaxPoll, last)
}

func (c *Client) Markers() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var ml MarkerList
	if _, e := c.poll(ctx, "/markers", "", 0, &ml); e != nil {
		return nil, e
	}
	return ml.Markers, nil
}

// SetMarkers replaces the readiness markers of the running supervisor.
func (c *Client) SetMarkers(markers []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	b, e := json.Marshal(&MarkerList{Markers: markers})
	if e != nil {
		return e
	}
	req, e := c.newRequest(ctx, "PUT", "/markers", b)
	if e != nil {
		return e
	}
	req.Header.Set("Content-Type", mimeJson)
	res, e := c.client.Do(req)
	if e != nil {
		return e
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return readError(res)
	}
	return nil
}

// NewClient returns a Client handle.  The transport may be nil to use
// a default transport, but it may also be adjusted to support additional
// options such as TLS.  baseURI is the base URL of the admin API.
func NewClient(t *http.Transport, baseURI string) *Client {
	if t == nil {
		t = &http.Transport{}
	}
	return &Client{
		transport: t,
		base:      strings.TrimSuffix(baseURI, "/"),
		client:    &http.Client{Transport: t},
	}
}
