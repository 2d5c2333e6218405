// Package command turns raw chat input into typed chat events.
package command

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Kind identifies the variant of a ChatEvent.
type Kind int

const (
	PlainText Kind = iota
	MentionCommand
	MovieLinkCommand
	AiQueryCommand
	MalformedMovieCommand
)

func (k Kind) String() string {
	switch k {
	case MentionCommand:
		return "mention"
	case MovieLinkCommand:
		return "movie_link"
	case AiQueryCommand:
		return "ai_query"
	case MalformedMovieCommand:
		return "malformed_movie"
	default:
		return "plain_text"
	}
}

// Message types as they appear on the wire in new_message.type.
const (
	TypeText    = "text"
	TypeMention = "mention"
	TypeMovie   = "movie"
	TypeAI      = "ai"
)

const (
	MovieCommand = "@电影"
	AICommand    = "@川小农"

	MoviePrefix = "[电影链接] "
	AIPrefix    = "[AI对话] "

	MovieUsageHint = "@电影命令需要提供电影URL，请使用格式: @电影 电影链接"
)

// ChatEvent is the interpreted form of a raw message.
type ChatEvent struct {
	Kind    Kind
	Content string
	Type    string

	// Only set for command variants that carry structured data.
	URL      string
	Question string
}

// CommandData returns the structured payload sent as command_data, or nil.
func (e ChatEvent) CommandData() map[string]string {
	switch e.Kind {
	case MovieLinkCommand:
		return map[string]string{"url": e.URL}
	case AiQueryCommand:
		return map[string]string{"question": e.Question}
	default:
		return nil
	}
}

// Input is a raw message with its command word split off. Word and Rest
// are empty when the message contains no whitespace.
type Input struct {
	Raw      string
	Word     string
	Rest     string
	HasSpace bool
}

func newInput(raw string) Input {
	in := Input{Raw: raw}
	i := strings.IndexFunc(raw, unicode.IsSpace)
	if i < 0 {
		return in
	}

	// The separator itself is dropped; the remainder is kept verbatim.
	_, size := utf8.DecodeRuneInString(raw[i:])
	in.Word = raw[:i]
	in.Rest = raw[i+size:]
	in.HasSpace = true
	return in
}

// Rule is one entry of the interpreter's priority list.
type Rule struct {
	Name  string
	Match func(in Input) bool
	Build func(in Input) ChatEvent
}

// Interpreter evaluates rules in order; the first match wins.
type Interpreter struct {
	rules []Rule
}

// New returns an Interpreter over rules. A nil slice means DefaultRules.
func New(rules []Rule) *Interpreter {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Interpreter{rules: rules}
}

// Interpret parses raw. Messages no rule accepts are plain text.
func (it *Interpreter) Interpret(raw string) ChatEvent {
	in := newInput(raw)
	for _, r := range it.rules {
		if r.Match(in) {
			return r.Build(in)
		}
	}
	return plain(raw)
}

var std = New(nil)

// Interpret parses raw with the default rule set.
func Interpret(raw string) ChatEvent {
	return std.Interpret(raw)
}

func plain(raw string) ChatEvent {
	return ChatEvent{Kind: PlainText, Content: raw, Type: TypeText}
}
