package app

import (
	"slices"

	"github.com/promptdeck/promptdeck/internal/gateway"
	"github.com/promptdeck/promptdeck/internal/proto"
)

// State is an immutable view of what the harness shows. Transitions return a
// new value and never touch the receiver's slices.
type State struct {
	Capability    gateway.Availability
	Params        *gateway.Params
	Sessions      []proto.Session
	ActiveSession *proto.Session
	Messages      []proto.Message
	Handle        gateway.Handle
	Error         string
	Loading       bool
}

// SetCapability records the model status and its parameters. A nil params
// value leaves the previous one in place.
func (s State) SetCapability(status gateway.Availability, params *gateway.Params) State {
	s.Capability = status
	if params != nil {
		p := *params
		s.Params = &p
	}
	return s
}

// SetSessions replaces the session list wholesale.
func (s State) SetSessions(sessions []proto.Session) State {
	s.Sessions = slices.Clone(sessions)
	return s
}

// AddSession puts the session at the head of the list, matching the
// most-recently-updated ordering of the store.
func (s State) AddSession(session proto.Session) State {
	s.Sessions = append([]proto.Session{session}, s.Sessions...)
	return s
}

// UpdateSession replaces a listed session and moves it to the head, since
// an update makes it the most recently updated one.
func (s State) UpdateSession(session proto.Session) State {
	if i := slices.IndexFunc(s.Sessions, func(item proto.Session) bool { return item.ID == session.ID }); i >= 0 {
		rest := slices.Delete(slices.Clone(s.Sessions), i, i+1)
		s.Sessions = append([]proto.Session{session}, rest...)
	}
	if s.ActiveSession != nil && s.ActiveSession.ID == session.ID {
		active := session
		s.ActiveSession = &active
	}
	return s
}

// DeleteSession drops the session from the list. Deleting the active session
// also clears the transcript and the handle reference; disposing that handle
// is the caller's job.
func (s State) DeleteSession(id string) State {
	s.Sessions = slices.DeleteFunc(slices.Clone(s.Sessions), func(item proto.Session) bool {
		return item.ID == id
	})
	if s.ActiveSession != nil && s.ActiveSession.ID == id {
		s.ActiveSession = nil
		s.Messages = nil
		s.Handle = nil
	}
	return s
}

// AddMessage appends to the transcript. Messages for other sessions are
// ignored.
func (s State) AddMessage(msg proto.Message) State {
	if s.ActiveSession == nil || s.ActiveSession.ID != msg.SessionID {
		return s
	}
	s.Messages = append(slices.Clip(s.Messages), msg)
	return s
}

func (s State) UpdateMessage(msg proto.Message) State {
	idx := slices.IndexFunc(s.Messages, func(item proto.Message) bool {
		return item.ID == msg.ID
	})
	if idx < 0 {
		return s
	}
	s.Messages = slices.Clone(s.Messages)
	s.Messages[idx] = msg
	return s
}

func (s State) DeleteMessage(id string) State {
	s.Messages = slices.DeleteFunc(slices.Clone(s.Messages), func(item proto.Message) bool {
		return item.ID == id
	})
	return s
}

func (s State) SetError(msg string) State {
	s.Error = msg
	return s
}

func (s State) ClearError() State {
	s.Error = ""
	return s
}

func (s State) SetLoading(loading bool) State {
	s.Loading = loading
	return s
}

// activate installs a session with its transcript and handle. A nil session
// clears all three.
func (s State) activate(session *proto.Session, messages []proto.Message, h gateway.Handle) State {
	if session == nil {
		s.ActiveSession = nil
		s.Messages = nil
		s.Handle = nil
		return s
	}
	active := *session
	s.ActiveSession = &active
	s.Messages = slices.Clone(messages)
	s.Handle = h
	return s
}

// Message returns the transcript entry with the given id.
func (s State) Message(id string) (proto.Message, bool) {
	idx := slices.IndexFunc(s.Messages, func(item proto.Message) bool {
		return item.ID == id
	})
	if idx < 0 {
		return proto.Message{}, false
	}
	return s.Messages[idx], true
}
