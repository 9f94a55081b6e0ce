package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommands(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Command
	}{
		{
			name:  "simple command",
			input: "git status",
			expected: []Command{
				{Name: "git", Args: []string{"status"}},
			},
		},
		{
			name:  "command with flags",
			input: "ls -la /tmp",
			expected: []Command{
				{Name: "ls", Args: []string{"-la", "/tmp"}},
			},
		},
		{
			name:  "quoted argument",
			input: `git commit -m "fix bug"`,
			expected: []Command{
				{Name: "git", Args: []string{"commit", "-m", "fix bug"}},
			},
		},
		{
			name:  "pipeline",
			input: "git log | head -5",
			expected: []Command{
				{Name: "git", Args: []string{"log"}},
				{Name: "head", Args: []string{"-5"}},
			},
		},
		{
			name:  "and chain",
			input: "mkdir build && cd build",
			expected: []Command{
				{Name: "mkdir", Args: []string{"build"}},
				{Name: "cd", Args: []string{"build"}},
			},
		},
		{
			name:  "variable placeholder",
			input: "echo $HOME",
			expected: []Command{
				{Name: "echo", Args: []string{"$HOME"}},
			},
		},
		{
			// Walk descends into the substitution, so the inner command
			// surfaces as its own entry.
			name:  "command substitution placeholder",
			input: "echo $(date)",
			expected: []Command{
				{Name: "echo", Args: []string{"$()"}},
				{Name: "date"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			commands, err := ParseCommands(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, commands)
		})
	}
}

func TestParseCommandsInvalidSyntax(t *testing.T) {
	_, err := ParseCommands("if [ -f x ; then")
	assert.Error(t, err)
}

func TestLeadingToken(t *testing.T) {
	tests := []struct {
		name  string
		arg   string
		token string
		ok    bool
	}{
		{
			name:  "bare command",
			arg:   "git status",
			token: "git",
			ok:    true,
		},
		{
			name:  "wildcard suffix stripped",
			arg:   "git status:*",
			token: "git",
			ok:    true,
		},
		{
			name:  "space wildcard stripped",
			arg:   "cargo *",
			token: "cargo",
			ok:    true,
		},
		{
			name:  "same command chained",
			arg:   "git add -A && git commit",
			token: "git",
			ok:    true,
		},
		{
			name: "mixed commands rejected",
			arg:  "git add -A && rm -rf build",
			ok:   false,
		},
		{
			name: "shell interpreter rejected",
			arg:  "bash scripts/deploy.sh",
			ok:   false,
		},
		{
			name: "sudo wrapper rejected",
			arg:  "sudo systemctl restart nginx",
			ok:   false,
		},
		{
			name: "xargs wrapper rejected",
			arg:  "xargs rm",
			ok:   false,
		},
		{
			name: "single letter rejected",
			arg:  "w",
			ok:   false,
		},
		{
			name: "path-qualified rejected",
			arg:  "./scripts/build.sh --release",
			ok:   false,
		},
		{
			name: "absolute path rejected",
			arg:  "/usr/local/bin/terraform plan",
			ok:   false,
		},
		{
			name: "dynamic name rejected",
			arg:  "$BUILD_TOOL test",
			ok:   false,
		},
		{
			name: "empty argument",
			arg:  "",
			ok:   false,
		},
		{
			name:  "token with hyphen",
			arg:   "docker-compose up -d",
			token: "docker-compose",
			ok:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, ok := LeadingToken(tt.arg)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.token, token)
			}
		})
	}
}
