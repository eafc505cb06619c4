// Package tui provides the terminal user interface for a veda session.
//
// The App shows one tab per instance, the focused instance's transcript in a
// scrollable viewport, a status line and an input field. It never mutates
// instance state itself: it reads a Controller snapshot on every refresh
// tick and forwards user actions through the Controller.
//
// Usage:
//
//	program, app := tui.NewProgram(orch, 100*time.Millisecond)
//	go func() {
//	    for ev := range orch.Events() {
//	        program.Send(tui.EventMsg{Type: string(ev.Type), Instance: ev.InstanceName, Message: ev.Message})
//	    }
//	}()
//	_, err := program.Run()
//
// Keys: Enter sends the input, Tab and Shift+Tab switch instances, Ctrl+N
// opens an instance, Ctrl+W closes the focused one, Ctrl+A toggles auto
// mode, Ctrl+T toggles coordination and Ctrl+C quits.
package tui
