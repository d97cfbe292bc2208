package cmdline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []string
	}{
		{"plain", "ls -la -h", []string{"ls", "-la", "-h"}},
		{"double quoted span", `ls -la --env="VAR VAR" -h`, []string{"ls", "-la", `--env="VAR VAR"`, "-h"}},
		{"single quoted span", `echo 'a b' c`, []string{"echo", "'a b'", "c"}},
		{"other quote inside span", `echo "it's here" x`, []string{"echo", `"it's here"`, "x"}},
		{"repeated separators", "  true \t  now ", []string{"true", "now"}},
		{"unterminated quote", `echo "a b`, []string{"echo", `"a b`}},
		{"empty", "", nil},
		{"blank", "   ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Split(tt.line))
		})
	}
}
