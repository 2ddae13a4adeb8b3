// Package tools classifies and sequences tool calls requested by the model.
//
// Tool names are parsed into a closed Kind once, at the wire boundary; all
// later routing switches on the Kind, never on raw strings. Calls that
// mutate the external service go through a single-focus confirmation gate
// before execution.
package tools

import "strings"

// Kind enumerates the capabilities the model may invoke against the social
// API. Unknown names map to KindUnknown and are never auto-executed.
type Kind string

const (
	KindUnknown Kind = ""

	KindSearchRecentPosts Kind = "search_recent_tweets"
	KindGetPost           Kind = "get_tweet"
	KindGetUserByUsername Kind = "get_user_by_username"
	KindGetUserPosts      Kind = "get_user_tweets"
	KindGetMe             Kind = "get_me"
	KindGetHomeTimeline   Kind = "get_home_timeline"
	KindGetFollowers      Kind = "get_followers"
	KindGetFollowing      Kind = "get_following"

	KindCreatePost        Kind = "create_tweet"
	KindReplyToPost       Kind = "reply_to_tweet"
	KindDeletePost        Kind = "delete_tweet"
	KindLikePost          Kind = "like_tweet"
	KindUnlikePost        Kind = "unlike_tweet"
	KindRepost            Kind = "retweet"
	KindFollowUser        Kind = "follow_user"
	KindUnfollowUser      Kind = "unfollow_user"
	KindSendDirectMessage Kind = "send_direct_message"
)

var knownKinds = map[string]Kind{
	string(KindSearchRecentPosts): KindSearchRecentPosts,
	string(KindGetPost):           KindGetPost,
	string(KindGetUserByUsername): KindGetUserByUsername,
	string(KindGetUserPosts):      KindGetUserPosts,
	string(KindGetMe):             KindGetMe,
	string(KindGetHomeTimeline):   KindGetHomeTimeline,
	string(KindGetFollowers):      KindGetFollowers,
	string(KindGetFollowing):      KindGetFollowing,
	string(KindCreatePost):        KindCreatePost,
	string(KindReplyToPost):       KindReplyToPost,
	string(KindDeletePost):        KindDeletePost,
	string(KindLikePost):          KindLikePost,
	string(KindUnlikePost):        KindUnlikePost,
	string(KindRepost):            KindRepost,
	string(KindFollowUser):        KindFollowUser,
	string(KindUnfollowUser):      KindUnfollowUser,
	string(KindSendDirectMessage): KindSendDirectMessage,
}

// ParseKind maps a raw tool name to its Kind. Unrecognized names return
// KindUnknown.
func ParseKind(name string) Kind {
	if kind, ok := knownKinds[name]; ok {
		return kind
	}
	return KindUnknown
}

// readOnlyKinds is the explicit allow-list of auto-executable tools.
var readOnlyKinds = map[Kind]bool{
	KindSearchRecentPosts: true,
	KindGetPost:           true,
	KindGetUserByUsername: true,
	KindGetUserPosts:      true,
	KindGetMe:             true,
	KindGetHomeTimeline:   true,
	KindGetFollowers:      true,
	KindGetFollowing:      true,
}

// readVerbPrefixes classify tools by naming convention when the allow-list
// has no entry, so a provider-added read tool stays auto-executable.
var readVerbPrefixes = []string{"search_", "get_", "list_", "lookup_"}

// IsSafe reports whether a tool call may execute without user confirmation.
// Only known read-only kinds and read-verb names qualify; anything else,
// including unknown tools, requires confirmation.
func IsSafe(kind Kind, name string) bool {
	if readOnlyKinds[kind] {
		return true
	}
	if kind != KindUnknown {
		return false
	}

	for _, prefix := range readVerbPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
