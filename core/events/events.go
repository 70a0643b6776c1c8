package events

import (
	"github.com/kilianp07/etr/core/model"
	"github.com/kilianp07/etr/internal/eventbus"
)

const (
	ApiSwitched         eventbus.Name = "api_switched"
	CommandCompleted    eventbus.Name = "command_completed"
	CredentialsRequired eventbus.Name = "credentials_required"
	CredentialsResult   eventbus.Name = "credentials_result"
	NewFramesReady      eventbus.Name = "new_frames_ready"
	PollStarting        eventbus.Name = "poll_starting"
	PollStopped         eventbus.Name = "poll_stopped"
	PollStopping        eventbus.Name = "poll_stopping"
	RequestDemoApi      eventbus.Name = "request_demo_api"
	RequestRealApi      eventbus.Name = "request_real_api"
)

// Keyword argument names.
const (
	KwFrames = "frames"
	KwError  = "error"
)

// All returns every engine event name.
func All() []eventbus.Name {
	return []eventbus.Name{
		ApiSwitched,
		CommandCompleted,
		CredentialsRequired,
		CredentialsResult,
		NewFramesReady,
		PollStarting,
		PollStopped,
		PollStopping,
		RequestDemoApi,
		RequestRealApi,
	}
}

// CommandOutcome is the typed view of a CommandCompleted event.
type CommandOutcome struct {
	ID     string
	Name   string
	Result model.Frame
	OK     bool
	Error  string
}

// CommandCompletedArgs builds the positional arguments of CommandCompleted.
func CommandCompletedArgs(o CommandOutcome) []any {
	res := o.Result
	if res == nil {
		res = model.Frame{}
	}
	return []any{o.ID, o.Name, res, o.OK, o.Error}
}

// AsCommandOutcome decodes a CommandCompleted event.
func AsCommandOutcome(ev eventbus.Event) (CommandOutcome, bool) {
	if ev.Name != CommandCompleted || len(ev.Args) != 5 {
		return CommandOutcome{}, false
	}
	var o CommandOutcome
	o.ID, _ = ev.Args[0].(string)
	o.Name, _ = ev.Args[1].(string)
	o.Result, _ = ev.Args[2].(model.Frame)
	o.OK, _ = ev.Args[3].(bool)
	o.Error, _ = ev.Args[4].(string)
	return o, true
}

// CredentialsOutcome is the typed view of a CredentialsResult event.
type CredentialsOutcome struct {
	ID      string
	Payload map[string]any
	OK      bool
	Error   string
}

// CredentialsResultArgs builds the positional arguments of CredentialsResult.
func CredentialsResultArgs(o CredentialsOutcome) []any {
	p := o.Payload
	if p == nil {
		p = map[string]any{}
	}
	return []any{o.ID, p, o.OK, o.Error}
}

// AsCredentialsOutcome decodes a CredentialsResult event.
func AsCredentialsOutcome(ev eventbus.Event) (CredentialsOutcome, bool) {
	if ev.Name != CredentialsResult || len(ev.Args) != 4 {
		return CredentialsOutcome{}, false
	}
	var o CredentialsOutcome
	o.ID, _ = ev.Args[0].(string)
	o.Payload, _ = ev.Args[1].(map[string]any)
	o.OK, _ = ev.Args[2].(bool)
	o.Error, _ = ev.Args[3].(string)
	return o, true
}

// Frames returns the frames carried by a NewFramesReady event.
func Frames(ev eventbus.Event) []model.Frame {
	frames, _ := ev.Kwarg(KwFrames).([]model.Frame)
	return frames
}

// IsDemo returns the flag carried by an ApiSwitched event.
func IsDemo(ev eventbus.Event) bool {
	demo, _ := ev.Arg(0).(bool)
	return demo
}

// StopError returns the fatal error carried by a PollStopped event, if any.
func StopError(ev eventbus.Event) error {
	err, _ := ev.Kwarg(KwError).(error)
	return err
}
