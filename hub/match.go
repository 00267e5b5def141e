package hub

import "strings"

const sharePrefix = "$share/"

// MatchTopic reports whether a topic filter matches a concrete topic name
// under wire wildcard semantics.
//
// A filter starting with "$share/<group>/" is matched with the shared
// prefix and group stripped; a shared filter with no group delimiter is
// malformed and matches nothing. A "+" segment matches exactly one topic
// level. A "#" segment matches the remainder of the topic, including zero
// levels, and is only legal as the whole final segment; a filter with "#"
// anywhere else matches nothing. Without a trailing "#", filter and topic
// must have the same number of levels.
func MatchTopic(filter, topic string) bool {
	if strings.HasPrefix(filter, sharePrefix) {
		rest := filter[len(sharePrefix):]
		slash := strings.Index(rest, "/")
		if slash == -1 {
			return false
		}
		filter = rest[slash+1:]
	}

	segments := strings.Split(filter, "/")
	for i, seg := range segments {
		if strings.Contains(seg, "#") && (seg != "#" || i != len(segments)-1) {
			return false
		}
	}

	levels := strings.Split(topic, "/")
	for i, seg := range segments {
		switch {
		case seg == "#":
			return true
		case i >= len(levels):
			return false
		case seg == "+":
			continue
		case seg != levels[i]:
			return false
		}
	}
	return len(segments) == len(levels)
}
