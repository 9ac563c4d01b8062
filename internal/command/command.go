// Package command parses trainer command strings of the form
// "Cls:<motion name>" and "Cmd:<word>".
package command

import (
	"strings"
)

// Kind is the closed set of scenario commands.
type Kind int

const (
	Invalid Kind = iota
	SelectClass
	Add
	Stop
	ClearClass
	ClearAll
	Train
	Save
	Backup
	Pause
	PauseHand
	PauseAllOn
	PauseAllOff
	PauseHandOn
	PauseHandOff
	SpeedUp
	SpeedDown
	HandSpeedUp
	HandSpeedDown
	PrecisionModeOn
	PrecisionModeOff
)

var words = map[string]Kind{
	"Add":              Add,
	"Stop":             Stop,
	"ClearClass":       ClearClass,
	"ClearAll":         ClearAll,
	"Train":            Train,
	"Save":             Save,
	"Backup":           Backup,
	"Pause":            Pause,
	"PauseHand":        PauseHand,
	"PauseAllOn":       PauseAllOn,
	"PauseAllOff":      PauseAllOff,
	"PauseHandOn":      PauseHandOn,
	"PauseHandOff":     PauseHandOff,
	"SpeedUp":          SpeedUp,
	"SpeedDown":        SpeedDown,
	"HandSpeedUp":      HandSpeedUp,
	"HandSpeedDown":    HandSpeedDown,
	"PrecisionModeOn":  PrecisionModeOn,
	"PrecisionModeOff": PrecisionModeOff,
}

var kindNames = func() map[Kind]string {
	m := map[Kind]string{Invalid: "Invalid", SelectClass: "Cls"}
	for w, k := range words {
		m[k] = w
	}
	return m
}()

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Unknown"
}

// Command is one parsed trainer command. Class is set for SelectClass.
type Command struct {
	Kind  Kind
	Class string
}

func (c Command) String() string {
	if c.Kind == SelectClass {
		return "Cls:" + c.Class
	}
	return "Cmd:" + c.Kind.String()
}

// Parse decodes s. ok is false for malformed or unrecognized commands, which
// callers ignore.
func Parse(s string) (Command, bool) {
	typ, data, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found {
		return Command{}, false
	}
	switch typ {
	case "Cls":
		if data == "" {
			return Command{}, false
		}
		return Command{Kind: SelectClass, Class: data}, true
	case "Cmd":
		k, ok := words[data]
		if !ok {
			return Command{}, false
		}
		return Command{Kind: k}, true
	}
	return Command{}, false
}
