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

// Command standby talks to the admin API of a running standbyd.  It uses
// subcommands.
//
// The flags are
//
//	-a <address>	- admin API address, default http://127.0.0.1:8321
//	-u <user:pass>	- user name & password for basic auth
//
// Subcommands are
//
//	status              - show supervisor and child status
//	log                 - print the recent log
//	markers             - list readiness markers
//	set-markers <m>...  - replace readiness markers
//	watch               - full screen view, updated as things change
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gdamore/standby"
	"github.com/gdamore/standby/rest"
)

var addr string = "http://127.0.0.1:8321"
var auth string = ""

func usage() {
	log.Fatalf("Usage: %s [-a <address>] [-u <user:pass>] <subcommand>",
		os.Args[0])
}

func state(s *standby.Status) string {
	switch {
	case s.Ready:
		return "ready"
	case s.Running:
		return "starting"
	case s.Starts > 0:
		return "exited"
	}
	return "waiting"
}

func since(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	// for printing second resolution is sufficient
	d -= d % time.Second
	return d.String()
}

func showStatus(s *standby.Status) {
	fmt.Printf("Name:       %s\n", s.Name)
	fmt.Printf("State:      %s\n", state(s))
	fmt.Printf("Port:       %s (child %s)\n", s.Port, s.ChildPort)
	fmt.Printf("Database:   %v\n", s.Database)
	if s.Running {
		fmt.Printf("Pid:        %d\n", s.Pid)
		fmt.Printf("Generation: %s\n", s.Generation)
		fmt.Printf("Up:         %s\n", since(s.StartTime))
	}
	fmt.Printf("Starts:     %d\n", s.Starts)
	if s.LastExit != "" {
		fmt.Printf("Last exit:  %s (%s ago)\n", s.LastExit, since(s.ExitTime))
	}
}

func formatRecord(r standby.LogRecord) string {
	return fmt.Sprintf("%s %-6s %s", r.Time.Format("15:04:05"),
		r.Stream, r.Text)
}

func main() {
	flag.StringVar(&addr, "a", addr, "admin API address")
	flag.StringVar(&auth, "u", auth, "user:pass authentication")
	flag.Parse()

	client := rest.NewClient(nil, addr)
	if auth != "" {
		a := strings.SplitN(auth, ":", 2)
		if len(a) != 2 {
			log.Fatalf("Bad user:pass supplied")
		}
		client.SetAuth(a[0], a[1])
	}

	args := flag.Args()
	if len(args) == 0 {
		args = []string{"status"}
	}

	switch args[0] {
	case "status":
		if len(args) != 1 {
			usage()
		}
		s, e := client.Status()
		if e != nil {
			log.Fatalf("Failed: %v", e)
		}
		showStatus(&s.Status)
	case "log":
		if len(args) != 1 {
			usage()
		}
		l, e := client.GetLog()
		if e != nil {
			log.Fatalf("Failed: %v", e)
		}
		for _, r := range l.Records {
			fmt.Println(formatRecord(r))
		}
	case "markers":
		if len(args) != 1 {
			usage()
		}
		m, e := client.Markers()
		if e != nil {
			log.Fatalf("Failed: %v", e)
		}
		for _, marker := range m {
			fmt.Println(marker)
		}
	case "set-markers":
		if len(args) < 2 {
			usage()
		}
		if e := client.SetMarkers(args[1:]); e != nil {
			log.Fatalf("Failed: %v", e)
		}
	case "watch":
		if len(args) != 1 {
			usage()
		}
		if e := doWatch(client, addr); e != nil {
			log.Fatalf("Failed: %v", e)
		}
	default:
		usage()
	}
}
