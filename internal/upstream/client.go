package upstream

import (
	"context"
	"fmt"
	"strings"

	"github.com/kkdai/youtube/v2"
)

// Client is the identity presented to the playback API. Identities differ in
// how often they are blocked and whether they hand out deciphered URLs.
type Client int

const (
	ClientAndroid Client = iota
	ClientWeb
	ClientEmbedded
)

var clientNames = map[Client]string{
	ClientAndroid:  "ANDROID",
	ClientWeb:      "WEB",
	ClientEmbedded: "TV_EMBEDDED",
}

func (c Client) String() string {
	if name, ok := clientNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Client(%d)", int(c))
}

// ParseClient maps a client name back to its identity.
func ParseClient(name string) (Client, error) {
	for c, n := range clientNames {
		if strings.EqualFold(n, name) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown client %q", name)
}

// use installs the identity as the library's process-wide default client.
// Callers must hold the upstream lock.
func (c Client) use() {
	switch c {
	case ClientWeb:
		youtube.DefaultClient = youtube.WebClient
	case ClientEmbedded:
		youtube.DefaultClient = youtube.EmbeddedClient
	default:
		youtube.DefaultClient = youtube.AndroidClient
	}
}

// Session is the upstream playback API as seen by the resolver and shaper.
type Session interface {
	// BasicInfo fetches stream metadata for videoID using the given identity.
	// An unplayable video is not an error: it comes back with a non-OK
	// playability status. Errors are reserved for failed calls.
	BasicInfo(ctx context.Context, videoID string, client Client) (*VideoInfo, error)

	// Decipher resolves a signature-bearing format into a direct URL.
	Decipher(ctx context.Context, videoID string, f Format) (string, error)
}
