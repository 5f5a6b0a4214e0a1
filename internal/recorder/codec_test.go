package recorder

import "testing"

func TestPickMediaType(t *testing.T) {
	cases := []struct {
		name      string
		supported []string
		want      string
	}{
		{"prefers webm opus", []string{"audio/mp4", "audio/webm;codecs=opus"}, "audio/webm;codecs=opus"},
		{"plain webm next", []string{"audio/mp4", "audio/webm"}, "audio/webm"},
		{"ogg opus", []string{"audio/ogg;codecs=opus"}, "audio/ogg;codecs=opus"},
		{"mp4 last", []string{"audio/mp4"}, "audio/mp4"},
		{"fallback", []string{"audio/wav"}, "audio/webm"},
		{"empty capability list", nil, "audio/webm"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := PickMediaType(c.supported); got != c.want {
				t.Errorf("PickMediaType(%v) = %s, want %s", c.supported, got, c.want)
			}
		})
	}
}
