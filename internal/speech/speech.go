// Package speech delivers verdict messages to text-to-speech outputs.
package speech

import (
	"github.com/yogguru/trainer/internal/domain"
)

// Voice settings used for every utterance.
const (
	DefaultRate  = 0.95
	DefaultPitch = 1.0
)

// Command actions.
const (
	ActionSpeak  = "speak"
	ActionCancel = "cancel"
)

// Speaker voices text. Implementations must not block.
type Speaker interface {
	Speak(text string, lang domain.Language)
	Cancel()
}

// Command is the speech instruction sent to an output device.
type Command struct {
	Action string  `json:"action"`
	Text   string  `json:"text,omitempty"`
	Lang   string  `json:"lang,omitempty"`
	Rate   float64 `json:"rate,omitempty"`
	Pitch  float64 `json:"pitch,omitempty"`
}

// SpeakCommand builds the command for one utterance.
func SpeakCommand(text string, lang domain.Language) Command {
	return Command{
		Action: ActionSpeak,
		Text:   text,
		Lang:   lang.VoiceTag(),
		Rate:   DefaultRate,
		Pitch:  DefaultPitch,
	}
}

// CancelCommand stops any utterance in progress.
func CancelCommand() Command {
	return Command{Action: ActionCancel}
}

// Push sends commands through a caller-supplied function, typically a
// websocket outbox.
type Push struct {
	send func(Command)
}

// NewPush creates a speaker that forwards commands to send.
func NewPush(send func(Command)) *Push {
	return &Push{send: send}
}

func (p *Push) Speak(text string, lang domain.Language) {
	p.send(SpeakCommand(text, lang))
}

func (p *Push) Cancel() {
	p.send(CancelCommand())
}

// Fanout forwards to several speakers in order.
type Fanout []Speaker

func (f Fanout) Speak(text string, lang domain.Language) {
	for _, s := range f {
		s.Speak(text, lang)
	}
}

func (f Fanout) Cancel() {
	for _, s := range f {
		s.Cancel()
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) Speak(string, domain.Language) {}
func (Nop) Cancel()                       {}
