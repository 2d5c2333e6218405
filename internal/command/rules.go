package command

import (
	"strings"
	"unicode/utf8"
)

// DefaultRules returns the chat command rules in priority order.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:  "plain",
			Match: func(in Input) bool { return !strings.HasPrefix(in.Raw, "@") },
			Build: func(in Input) ChatEvent { return plain(in.Raw) },
		},
		{
			Name:  "movie",
			Match: func(in Input) bool { return hasFoldPrefix(in.Raw, MovieCommand) },
			Build: buildMovie,
		},
		{
			Name: "ai",
			Match: func(in Input) bool {
				return in.HasSpace &&
					strings.EqualFold(in.Word, AICommand) &&
					strings.TrimSpace(in.Rest) != ""
			},
			Build: func(in Input) ChatEvent {
				return ChatEvent{
					Kind:     AiQueryCommand,
					Content:  AIPrefix + in.Rest,
					Type:     TypeAI,
					Question: in.Rest,
				}
			},
		},
		{
			Name:  "mention",
			Match: func(in Input) bool { return in.HasSpace && strings.TrimSpace(in.Rest) != "" },
			Build: func(in Input) ChatEvent {
				return ChatEvent{Kind: MentionCommand, Content: in.Raw, Type: TypeMention}
			},
		},
	}
}

func buildMovie(in Input) ChatEvent {
	n := utf8.RuneCountInString(MovieCommand)
	url := strings.TrimSpace(string([]rune(in.Raw)[n:]))
	if url == "" {
		return ChatEvent{Kind: MalformedMovieCommand, Content: MovieUsageHint, Type: TypeText}
	}

	return ChatEvent{
		Kind:    MovieLinkCommand,
		Content: MoviePrefix + url,
		Type:    TypeMovie,
		URL:     url,
	}
}

// hasFoldPrefix reports whether s starts with prefix, ignoring case, with
// prefix measured in runes.
func hasFoldPrefix(s, prefix string) bool {
	n := utf8.RuneCountInString(prefix)
	rs := []rune(s)
	if len(rs) < n {
		return false
	}
	return strings.EqualFold(string(rs[:n]), prefix)
}
