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
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ParseMarkers reads one marker per line.  Blank lines and lines starting
// with '#' are skipped.
func ParseMarkers(r io.Reader) ([]string, error) {
	var markers []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		markers = append(markers, line)
	}
	if e := scanner.Err(); e != nil {
		return nil, e
	}
	if len(markers) == 0 {
		return nil, ErrBadMarkers
	}
	return markers, nil
}

func LoadMarkers(path string) ([]string, error) {
	f, e := os.Open(path)
	if e != nil {
		return nil, e
	}
	defer f.Close()
	m, e := ParseMarkers(f)
	if e != nil {
		return nil, fmt.Errorf("%s: %w", path, e)
	}
	return m, nil
}

// MarkersFromEnv returns the "|" separated markers in STANDBY_MARKERS,
// or nil if the variable is unset.
func MarkersFromEnv(env *Env) []string {
	v := env.Get(VarMarkers)
	if v == "" {
		return nil
	}
	return cleanMarkers(strings.Split(v, "|"))
}

// markerDebounce absorbs the burst of events an editor save produces.
const markerDebounce = 250 * time.Millisecond

// WatchMarkers reloads the marker file through set whenever it changes,
// until ctx is done.  The directory is watched rather than the file, so that
// replace-by-rename saves are seen.  Reload errors are logged and the old
// markers kept.
func WatchMarkers(ctx context.Context, path string, set func([]string) error, logger *log.Logger) error {
	watcher, e := fsnotify.NewWatcher()
	if e != nil {
		return e
	}
	abs, e := filepath.Abs(path)
	if e != nil {
		watcher.Close()
		return e
	}
	if e = watcher.Add(filepath.Dir(abs)); e != nil {
		watcher.Close()
		return e
	}

	reload := func() {
		m, e := LoadMarkers(abs)
		if e != nil {
			logger.Printf("Keeping old markers: %v", e)
			return
		}
		if e := set(m); e != nil {
			logger.Printf("Keeping old markers: %v", e)
			return
		}
		logger.Printf("Reloaded %d readiness markers from %s", len(m), abs)
	}

	go func() {
		defer watcher.Close()
		var timer *time.Timer
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(markerDebounce, reload)
			case e, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Printf("Marker watch error: %v", e)
			}
		}
	}()
	return nil
}
