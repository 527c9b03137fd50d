package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPassage(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain text passes through",
			in:   "The bottle holds 24 ounces.",
			want: "The bottle holds 24 ounces.",
		},
		{
			name: "plain text whitespace collapses",
			in:   "The  bottle\tholds   24 ounces.",
			want: "The bottle holds 24 ounces.",
		},
		{
			name: "tags stripped",
			in:   "<p>The bottle <b>holds</b> 24oz.</p>",
			want: "The bottle holds 24oz.",
		},
		{
			name: "script and style content dropped",
			in:   "<p>Visible.</p><script>alert('x')</script><style>p{color:red}</style>",
			want: "Visible.",
		},
		{
			name: "iframe and svg dropped",
			in:   "before <iframe src=\"x\">inner</iframe><svg><text>chart</text></svg> after",
			want: "before after",
		},
		{
			name: "empty input",
			in:   "   ",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Passage(tt.in))
		})
	}
}

func TestPassagesDropsEmptyResults(t *testing.T) {
	got := Passages([]string{
		"First passage.",
		"<script>only noise</script>",
		"  ",
		"<p>Second passage.</p>",
	})
	assert.Equal(t, []string{"First passage.", "Second passage."}, got)
}
