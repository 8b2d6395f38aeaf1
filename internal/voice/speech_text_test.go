package voice

import "testing"

func TestSpeakableText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "drops emoji and markdown markers",
			in:   "Sure 😊 **let's** do this / now.",
			want: "Sure let's do this now.",
		},
		{
			name: "keeps link label and removes url",
			in:   "Visit [our site](https://example.com) today!",
			want: "Visit our site today!",
		},
		{
			name: "expands symbols for speech",
			in:   "Call 555-0100 & ask for Dana.",
			want: "Call 555-0100 and ask for Dana.",
		},
		{
			name: "tightens space before punctuation",
			in:   "Open 9-5 , Monday",
			want: "Open 9-5, Monday",
		},
		{
			name: "nothing speakable",
			in:   " 🎉🎉 ",
			want: "",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := SpeakableText(tc.in); got != tc.want {
				t.Fatalf("SpeakableText(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
