package models

import "time"

// Collection names used across the document store. Friendship edges live in a
// per-user subcollection so each participant owns one half of the relation.
const (
	UsersCollection          = "users"
	FriendRequestsCollection = "friend_requests"
	MessagesCollection       = "messages"
	AccountsCollection       = "accounts"
	SessionsCollection       = "sessions"
)

// FriendsCollection returns the friendship edge collection owned by the given user.
func FriendsCollection(uid string) string {
	return "users/" + uid + "/friends"
}

// Friend request lifecycle states. Accepted and rejected are terminal; a
// rejected request does not block a later resubmission.
const (
	RequestPending  = "pending"
	RequestAccepted = "accepted"
	RequestRejected = "rejected"
)

// UserProfile is the directory document for a single user. UID is the
// provider-issued identity and never changes; Username is derived from the
// display name at signup and is the lookup key for prefix search.
type UserProfile struct {
	UID         string    `json:"uid"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	Username    string    `json:"username"`
	PhotoURL    string    `json:"photoURL"`
	IsOnline    bool      `json:"isOnline"`
	LastSeen    time.Time `json:"lastSeen"`
}

// FriendRequest is a directed proposal from one user to another. FromName and
// FromPhoto are denormalized at send time so recipients can render the
// request without an extra profile read.
type FriendRequest struct {
	ID        string    `json:"id"`
	FromUID   string    `json:"fromUid"`
	FromName  string    `json:"fromName"`
	FromPhoto string    `json:"fromPhoto"`
	ToUID     string    `json:"toUid"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// FriendEdge is one half of a symmetric friendship, stored under the owning
// user's namespace and keyed by the other participant's uid.
type FriendEdge struct {
	UID   string    `json:"uid"`
	Since time.Time `json:"since"`
}

// SessionTokens bundles the access and refresh token pair returned to the
// client on login and refresh.
type SessionTokens struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// Message is a single immutable chat message. Timestamp is assigned by the
// store at write time and orders the conversation timeline.
type Message struct {
	ID             string    `json:"id"`
	Text           string    `json:"text"`
	SenderID       string    `json:"senderId"`
	ReceiverID     string    `json:"receiverId"`
	ConversationID string    `json:"conversationId"`
	Timestamp      time.Time `json:"timestamp"`
	Seen           bool      `json:"seen"`
}
