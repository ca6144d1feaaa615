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

// Command standbyd holds a platform's public port open with a "starting
// up" page while it launches a slow-starting child (n8n by default), and
// redirects to the child once the child reports that it is ready.
//
// The flags are
//
//	-n <name>           - supervisor name, used in logs
//	-cmd <command>      - child command line, default "npx n8n"
//	-manifest <file>    - JSON manifest describing the child
//	-markers <file>     - readiness markers, one per line, reloaded on change
//	-page <file>        - replacement waiting page
//	-delay <duration>   - wait between binding and spawning
//	-stop-time <dur>    - grace period for the child on shutdown
//	-max-old-space <mb> - heap ceiling passed in NODE_OPTIONS
//	-db-lenient         - ignore a malformed database URI instead of exiting
//	-admin <address>    - serve the admin API here, e.g. 127.0.0.1:8321
//
// The admin API is protected by basic auth when STANDBY_ADMIN_USER and
// STANDBY_ADMIN_BCRYPT (a bcrypt hash of the password) are set.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/gdamore/standby"
	"github.com/gdamore/standby/rest"
)

var name string = "standbyd"
var command string = "npx n8n"
var manifest string = ""
var markers string = ""
var page string = ""
var admin string = ""
var lenient bool = false

func maxOldSpace() int {
	if v := os.Getenv(standby.VarMaxOldSpace); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			return n
		}
		log.Printf("Ignoring bad %s=%q", standby.VarMaxOldSpace, v)
	}
	return standby.DefaultMaxOldSpace
}

func adminHandler(s *standby.Supervisor) http.Handler {
	h := rest.NewHandler(s)
	user := os.Getenv("STANDBY_ADMIN_USER")
	hash := os.Getenv("STANDBY_ADMIN_BCRYPT")
	if user == "" || hash == "" {
		return h
	}
	if e := h.SetAuth(user, []byte(hash)); e != nil {
		log.Fatalf("Bad STANDBY_ADMIN_BCRYPT: %v", e)
	}
	return h
}

func main() {
	cfg := standby.Config{
		Delay:    standby.DefaultDelay,
		StopTime: standby.DefaultStopTime,
	}
	flag.StringVar(&name, "n", name, "supervisor name")
	flag.StringVar(&command, "cmd", command, "child command line")
	flag.StringVar(&manifest, "manifest", manifest, "child manifest (JSON)")
	flag.StringVar(&markers, "markers", markers, "readiness marker file")
	flag.StringVar(&page, "page", page, "waiting page (HTML)")
	flag.StringVar(&admin, "admin", admin, "admin API listen address")
	flag.BoolVar(&lenient, "db-lenient", lenient, "ignore a malformed database URI")
	flag.DurationVar(&cfg.Delay, "delay", cfg.Delay, "delay before spawning the child")
	flag.DurationVar(&cfg.StopTime, "stop-time", cfg.StopTime, "grace period on shutdown")
	flag.IntVar(&cfg.Child.MaxOldSpace, "max-old-space", maxOldSpace(), "child heap ceiling (MB)")
	flag.Parse()

	cfg.Child.Command = strings.Fields(command)
	cfg.MarkersFile = markers
	cfg.PageFile = page
	cfg.Lenient = lenient

	if manifest != "" {
		m, e := standby.LoadManifest(manifest)
		if e != nil {
			log.Fatalf("Failed to load manifest %s: %v", manifest, e)
		}
		m.Apply(&cfg)
		if m.Name != "" {
			name = m.Name
		}
	}
	if markers != "" {
		m, e := standby.LoadMarkers(markers)
		if e != nil {
			log.Fatalf("Failed to load markers: %v", e)
		}
		cfg.Markers = m
	}

	s := standby.NewSupervisor(name, standby.OSEnv(), cfg)
	logger := s.Logger()
	logger.Printf("*** %s starting ***", name)

	// Configuration errors are fatal before anything is bound.
	if _, e := s.Derive(); e != nil {
		log.Fatalf("Configuration error: %v", e)
	}
	ln, e := s.Listen()
	if e != nil {
		log.Fatalf("%v", e)
	}

	if admin != "" {
		h := adminHandler(s)
		go func() {
			logger.Printf("Admin API on %s", admin)
			if e := http.ListenAndServe(admin, h); e != nil {
				logger.Printf("Admin API failed: %v", e)
			}
		}()
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	if e := s.Run(context.Background(), ln, sigs); e != nil {
		log.Fatalf("%v", e)
	}
	os.Exit(0)
}
