package models

import "time"

// Document field maps come back from different store backends with slightly
// different dynamic types: the in-memory store keeps native time.Time values
// while the jsonb-backed stores round-trip them through RFC 3339 strings.
// These decoders tolerate both.

// UserProfileFromFields decodes a users document.
func UserProfileFromFields(fields map[string]any) UserProfile {
	return UserProfile{
		UID:         FieldString(fields, "uid"),
		Email:       FieldString(fields, "email"),
		DisplayName: FieldString(fields, "displayName"),
		Username:    FieldString(fields, "username"),
		PhotoURL:    FieldString(fields, "photoURL"),
		IsOnline:    FieldBool(fields, "isOnline"),
		LastSeen:    FieldTime(fields, "lastSeen"),
	}
}

// FriendRequestFromFields decodes a friend_requests document.
func FriendRequestFromFields(id string, fields map[string]any) FriendRequest {
	return FriendRequest{
		ID:        id,
		FromUID:   FieldString(fields, "fromUid"),
		FromName:  FieldString(fields, "fromName"),
		FromPhoto: FieldString(fields, "fromPhoto"),
		ToUID:     FieldString(fields, "toUid"),
		Status:    FieldString(fields, "status"),
		Timestamp: FieldTime(fields, "timestamp"),
	}
}

// MessageFromFields decodes a messages document.
func MessageFromFields(id string, fields map[string]any) Message {
	return Message{
		ID:             id,
		Text:           FieldString(fields, "text"),
		SenderID:       FieldString(fields, "senderId"),
		ReceiverID:     FieldString(fields, "receiverId"),
		ConversationID: FieldString(fields, "conversationId"),
		Timestamp:      FieldTime(fields, "timestamp"),
		Seen:           FieldBool(fields, "seen"),
	}
}

// FriendEdgeFromFields decodes a friendship edge document. The document id
// is the other participant's uid.
func FriendEdgeFromFields(id string, fields map[string]any) FriendEdge {
	return FriendEdge{
		UID:   id,
		Since: FieldTime(fields, "since"),
	}
}

// FieldString returns the named field as a string, or "" when absent.
func FieldString(fields map[string]any, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}

// FieldBool returns the named field as a bool, or false when absent.
func FieldBool(fields map[string]any, key string) bool {
	if v, ok := fields[key].(bool); ok {
		return v
	}
	return false
}

// FieldTime returns the named field as a time.Time, decoding RFC 3339
// strings from jsonb-backed stores. Absent or unparseable values yield the
// zero time.
func FieldTime(fields map[string]any, key string) time.Time {
	switch v := fields[key].(type) {
	case time.Time:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
