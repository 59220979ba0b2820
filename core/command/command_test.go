package command

import "testing"

func TestCommand_Names(t *testing.T) {
	tests := []struct {
		cmd      Command
		expected string
	}{
		{&Raw{Line: "time set day"}, "Raw"},
		{&ListPlayers{}, "ListPlayers"},
		{&ListTags{Player: "Steve"}, "ListTags"},
		{&ListScores{Player: "Steve"}, "ListScores"},
		{&Tellraw{Message: "hi"}, "Tellraw"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.cmd.CommandName(); got != tt.expected {
				t.Errorf("CommandName() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCommand_Lines(t *testing.T) {
	tests := []struct {
		name     string
		cmd      Command
		expected string
	}{
		{"raw", &Raw{Line: "time set day"}, "time set day"},
		{"list", &ListPlayers{}, "list"},
		{"tags", &ListTags{Player: "Alex Smith"}, `tag "Alex Smith" list`},
		{"scores", &ListScores{Player: "Steve"}, `scoreboard players list "Steve"`},
		{"quoted name", &ListTags{Player: `a"b`}, `tag "a\"b" list`},
		{"tellraw default target", &Tellraw{Message: "hello"}, `tellraw @a {"rawtext":[{"text":"hello"}]}`},
		{"tellraw selector", &Tellraw{Target: "@p", Message: "hi"}, `tellraw @p {"rawtext":[{"text":"hi"}]}`},
		{"tellraw player", &Tellraw{Target: "Steve", Message: "hi"}, `tellraw "Steve" {"rawtext":[{"text":"hi"}]}`},
		{"tellraw empty message", &Tellraw{Target: "@a"}, `tellraw @a {"rawtext":[{"text":""}]}`},
		{
			"tellraw translate",
			&Tellraw{Target: "@a", Message: "x", Translate: "chat.type.text", Args: []string{"Steve", "hi"}},
			`tellraw @a {"rawtext":[{"text":"x"},{"translate":"chat.type.text","with":["Steve","hi"]}]}`,
		},
		{
			"tellraw translate without args",
			&Tellraw{Message: "x", Translate: "commands.generic.unknown"},
			`tellraw @a {"rawtext":[{"text":"x"},{"translate":"commands.generic.unknown","with":[]}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cmd.CommandLine(); got != tt.expected {
				t.Errorf("CommandLine() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestFireAndForget(t *testing.T) {
	tests := []struct {
		line     string
		expected bool
	}{
		{`tellraw @a {"rawtext":[]}`, true},
		{"  tellraw @a {}", true},
		{"list", false},
		{"say tellraw", false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			if got := FireAndForget(tt.line); got != tt.expected {
				t.Errorf("FireAndForget(%q) = %v, want %v", tt.line, got, tt.expected)
			}
		})
	}
}
