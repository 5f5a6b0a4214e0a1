package recorder

// preferredMediaTypes is the capture media type preference order. WebM/Opus
// chunks concatenate into a valid stream, which the processing side relies
// on.
var preferredMediaTypes = []string{
	"audio/webm;codecs=opus",
	"audio/webm",
	"audio/ogg;codecs=opus",
	"audio/mp4",
}

// PickMediaType chooses the best supported capture media type from a
// capability list. It falls back to audio/webm when nothing matches.
func PickMediaType(supported []string) string {
	set := make(map[string]struct{}, len(supported))
	for _, mt := range supported {
		set[mt] = struct{}{}
	}
	for _, mt := range preferredMediaTypes {
		if _, ok := set[mt]; ok {
			return mt
		}
	}
	return "audio/webm"
}
