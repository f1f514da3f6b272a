package domain

import "strings"

const channelDelimiter = "_"

// PairChannelID derives the identifier of the conversation between two
// participants. The smaller id goes first, so both sides compute the same
// value regardless of argument order.
func PairChannelID(a, b string) string {
	if a < b {
		return a + channelDelimiter + b
	}
	return b + channelDelimiter + a
}

// ChannelMembers splits a channel id back into its two participant ids.
func ChannelMembers(channelID string) (string, string, bool) {
	a, b, found := strings.Cut(channelID, channelDelimiter)
	if !found || a == "" || b == "" {
		return "", "", false
	}
	return a, b, true
}

// IsChannelMember reports whether userID is one of the channel's two
// participants.
func IsChannelMember(channelID string, userID string) bool {
	a, b, ok := ChannelMembers(channelID)
	if !ok {
		return false
	}
	return userID == a || userID == b
}
