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

package main

import (
	"fmt"
	"time"

	"github.com/gdamore/standby/rest"
	"github.com/gdamore/tcell"
	"github.com/gdamore/tcell/views"
	"golang.org/x/net/context"
)

/*
   The watch screen looks like this:

    standbyd  http://127.0.0.1:8321                          ready
   ____________________________________________________________________________
   12:00:01 supervisor Placeholder listening on [::]:8080
   12:00:03 stdout     Editor is now accessible via: ...
   ...
   ____________________________________________________________________________
   [Q] Quit   pid 4242  up 1m5s  starts 1
*/

type watchView struct {
	app    *views.Application
	title  *views.Text
	state  *views.Text
	text   *views.TextArea
	status *views.Text
	cur    *rest.StatusInfo
	err    error
	views.BoxLayout
}

func (w *watchView) HandleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyCtrlC, tcell.KeyEsc:
			w.app.Quit()
			return true
		case tcell.KeyCtrlL:
			w.app.Refresh()
			return true
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'Q', 'q':
				w.app.Quit()
				return true
			}
		}
	}
	return w.BoxLayout.HandleEvent(ev)
}

func stateStyle(s string) tcell.Style {
	style := tcell.StyleDefault.Background(tcell.ColorSilver)
	switch s {
	case "ready":
		return style.Foreground(tcell.ColorGreen)
	case "exited":
		return style.Foreground(tcell.ColorMaroon)
	}
	return style.Foreground(tcell.ColorNavy)
}

func (w *watchView) setStatus(s *rest.StatusInfo, e error) {
	w.cur = s
	w.err = e
	w.render()
}

func (w *watchView) render() {
	s, e := w.cur, w.err
	if e != nil {
		w.state.SetText("error")
		w.state.SetStyle(stateStyle("exited"))
		w.status.SetText("[Q] Quit   " + e.Error())
		return
	}
	if s == nil {
		return
	}
	st := state(&s.Status)
	w.state.SetText(st)
	w.state.SetStyle(stateStyle(st))
	line := fmt.Sprintf("[Q] Quit   starts %d", s.Starts)
	if s.Running {
		line += fmt.Sprintf("  pid %d  up %s", s.Pid, since(s.StartTime))
	} else if s.LastExit != "" {
		line += "  last exit: " + s.LastExit
	}
	w.status.SetText(line)
}

func (w *watchView) setLog(l *rest.LogInfo) {
	lines := make([]string, 0, len(l.Records))
	for _, r := range l.Records {
		lines = append(lines, formatRecord(r))
	}
	w.text.SetLines(lines)
	// Keep the newest records in view.
	w.text.MakeVisible(0, len(lines)-1)
}

func newWatchView(app *views.Application, url string) *watchView {
	bar := tcell.StyleDefault.
		Foreground(tcell.ColorBlack).
		Background(tcell.ColorSilver)

	w := &watchView{app: app}
	w.SetOrientation(views.Vertical)

	top := views.NewBoxLayout(views.Horizontal)
	w.title = views.NewText()
	w.title.SetStyle(bar)
	w.title.SetText(" standbyd  " + url)
	w.state = views.NewText()
	w.state.SetStyle(bar)
	w.state.SetText("connecting")
	top.AddWidget(w.title, 1.0)
	top.AddWidget(w.state, 0.0)

	w.text = views.NewTextArea()
	w.text.EnableCursor(false)
	w.text.SetStyle(tcell.StyleDefault.
		Foreground(tcell.ColorSilver).Background(tcell.ColorBlack))

	w.status = views.NewText()
	w.status.SetStyle(bar)
	w.status.SetText("[Q] Quit")

	w.AddWidget(top, 0.0)
	w.AddWidget(w.text, 1.0)
	w.AddWidget(w.status, 0.0)
	return w
}

func watchStatus(ctx context.Context, client *rest.Client, w *watchView) {
	var last *rest.StatusInfo
	for ctx.Err() == nil {
		var s *rest.StatusInfo
		var e error
		if last == nil {
			s, e = client.Status()
		} else {
			s, e = client.WatchStatus(ctx, last)
		}
		if ctx.Err() != nil {
			return
		}
		w.app.PostFunc(func() {
			w.setStatus(s, e)
			w.app.Update()
		})
		if e != nil {
			time.Sleep(time.Second)
			last = nil
			continue
		}
		last = s
	}
}

func watchLog(ctx context.Context, client *rest.Client, w *watchView) {
	var last *rest.LogInfo
	for ctx.Err() == nil {
		var l *rest.LogInfo
		var e error
		if last == nil {
			l, e = client.GetLog()
		} else {
			l, e = client.WatchLog(ctx, last)
		}
		if e != nil || l == nil {
			time.Sleep(time.Second)
			last = nil
			continue
		}
		if l != last {
			w.app.PostFunc(func() {
				w.setLog(l)
				w.app.Update()
			})
		}
		last = l
	}
}

func doWatch(client *rest.Client, url string) error {
	app := &views.Application{}
	w := newWatchView(app, url)
	app.SetRootWidget(w)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watchStatus(ctx, client, w)
	go watchLog(ctx, client, w)

	// The uptime in the status bar ticks even when nothing changes.
	go func() {
		for ctx.Err() == nil {
			time.Sleep(time.Second)
			app.PostFunc(func() {
				w.render()
				app.Update()
			})
		}
	}()
	return app.Run()
}
