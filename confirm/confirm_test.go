package confirm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStdinConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{input: "y\n", want: true},
		{input: "yes\n", want: true},
		{input: "YES\n", want: true},
		{input: " y \n", want: true},
		{input: "n\n", want: false},
		{input: "no\n", want: false},
		{input: "\n", want: false},
		{input: "maybe\n", want: false},
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			var out bytes.Buffer
			s := &Stdin{In: strings.NewReader(tt.input), Out: &out}
			assert.Equal(t, tt.want, s.Confirm("Proceed with restore?"))
			assert.Contains(t, out.String(), "Proceed with restore? (y/n):")
		})
	}
}

func TestAuto(t *testing.T) {
	assert.True(t, Auto(true).Confirm("anything"))
	assert.False(t, Auto(false).Confirm("anything"))
}
