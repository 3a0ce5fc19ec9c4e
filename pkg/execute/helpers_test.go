package execute_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/execute"
)

func TestShellQuote(t *testing.T) {
	tests := []struct {
		name    string
		command string
		args    []string
		want    string
	}{
		{
			name:    "plain args untouched",
			command: "btrfs",
			args:    []string{"subvolume", "show", "/home"},
			want:    "btrfs subvolume show /home",
		},
		{
			name:    "spaces quoted",
			command: "cat",
			args:    []string{"/home/user/my file.txt"},
			want:    "cat '/home/user/my file.txt'",
		},
		{
			name:    "single quote escaped",
			command: "echo",
			args:    []string{"it's"},
			want:    `echo 'it'\''s'`,
		},
		{
			name:    "shell metacharacters quoted",
			command: "echo",
			args:    []string{"$(rm -rf /)", "a;b", "c|d"},
			want:    `echo '$(rm -rf /)' 'a;b' 'c|d'`,
		},
		{
			name:    "empty arg preserved",
			command: "printf",
			args:    []string{""},
			want:    "printf ''",
		},
		{
			name:    "no args",
			command: "hostname",
			want:    "hostname",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := execute.ShellQuote(tt.command, tt.args...)
			assert.Equal(t, tt.want, got)
		})
	}
}
