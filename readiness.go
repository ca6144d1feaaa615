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
	"log"
	"strings"
	"sync"
)

// DefaultMarkers are lines n8n prints once its editor and webhook
// listener are up.  They are matched as plain substrings.
var DefaultMarkers = []string{
	"Editor is now accessible via",
	"n8n ready on",
	"Webhook listener waiting for requests",
}

// Detector holds the readiness flag and the markers that set it.  The
// flag is set at most once per child lifetime; Reset clears it when the
// child exits.
type Detector struct {
	markers []string
	ready   bool
	logger  *log.Logger
	notify  func(bool)
	lock    sync.Mutex
}

// NewDetector returns a Detector using the given markers, or
// DefaultMarkers when none are usable.
func NewDetector(markers []string, logger *log.Logger) *Detector {
	if logger == nil {
		logger = log.New(ioutil.Discard, "", 0)
	}
	d := &Detector{logger: logger}
	if d.SetMarkers(markers) != nil {
		d.markers = copyArray(DefaultMarkers)
	}
	return d
}

func copyArray(src []string) []string {
	rv := make([]string, 0, len(src))
	rv = append(rv, src...)
	return rv
}

func cleanMarkers(src []string) []string {
	rv := make([]string, 0, len(src))
	for _, m := range src {
		if m = strings.TrimSpace(m); m != "" {
			rv = append(rv, m)
		}
	}
	return rv
}

// SetMarkers replaces the marker list.  Blank entries are dropped; if
// nothing is left the list is unchanged and ErrBadMarkers is returned.
// A flag that is already set stays set.
func (d *Detector) SetMarkers(markers []string) error {
	markers = cleanMarkers(markers)
	if len(markers) == 0 {
		return ErrBadMarkers
	}
	d.lock.Lock()
	d.markers = markers
	d.lock.Unlock()
	return nil
}

func (d *Detector) Markers() []string {
	d.lock.Lock()
	defer d.lock.Unlock()
	return copyArray(d.markers)
}

// SetNotify registers a function called, without the Detector lock held,
// whenever the flag changes.
func (d *Detector) SetNotify(fn func(ready bool)) {
	d.lock.Lock()
	d.notify = fn
	d.lock.Unlock()
}

// Scan checks one chunk of child output.  Only stdout can make the child
// ready.  It returns true if this chunk flipped the flag.
func (d *Detector) Scan(stream string, text string) bool {
	if stream != StreamStdout {
		return false
	}
	d.lock.Lock()
	if d.ready {
		d.lock.Unlock()
		return false
	}
	found := ""
	for _, m := range d.markers {
		if strings.Contains(text, m) {
			found = m
			break
		}
	}
	if found == "" {
		d.lock.Unlock()
		return false
	}
	d.ready = true
	notify := d.notify
	d.lock.Unlock()

	d.logger.Printf("Child is ready (matched %q)", found)
	if notify != nil {
		notify(true)
	}
	return true
}

func (d *Detector) Ready() bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.ready
}

// Reset clears the flag.
func (d *Detector) Reset() {
	d.lock.Lock()
	was := d.ready
	d.ready = false
	notify := d.notify
	d.lock.Unlock()
	if was && notify != nil {
		notify(false)
	}
}
