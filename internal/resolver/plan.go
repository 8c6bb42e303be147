package resolver

import "github.com/Skyluker4/invidious-stripped-down/internal/upstream"

// state is where the fallback sequence stands after the last attempt.
type state int

const (
	notTried state = iota
	triedFailed
	triedSoftUnplayable
	resolved
)

func (s state) String() string {
	switch s {
	case notTried:
		return "not_tried"
	case triedFailed:
		return "failed"
	case triedSoftUnplayable:
		return "soft_unplayable"
	case resolved:
		return "resolved"
	}
	return "unknown"
}

// step is one client identity and the state in which it gets a turn.
type step struct {
	client upstream.Client
	runsOn state
}

// plan is evaluated in order, each step at most once:
//   - the Android client goes first, it usually hands out deciphered URLs
//     and is blocked the least;
//   - the Web client only runs when the Android call failed outright;
//   - the embedded player client only runs when the last answer carried a
//     reason, which is how age and embedding restrictions are reported.
var plan = []step{
	{client: upstream.ClientAndroid, runsOn: notTried},
	{client: upstream.ClientWeb, runsOn: triedFailed},
	{client: upstream.ClientEmbedded, runsOn: triedSoftUnplayable},
}

// next classifies the outcome of an attempt.
func next(info *upstream.VideoInfo, err error) state {
	switch {
	case err != nil:
		return triedFailed
	case info.PlayabilityStatus.Reason != "":
		return triedSoftUnplayable
	}
	return resolved
}
