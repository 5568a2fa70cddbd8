package protocol

// Credentials is the slice of any event payload that carries an inline
// bearer token. Older clients send the token under "auth" for a few events,
// so both field names are accepted and treated identically.
type Credentials struct {
	Token string `json:"token"`
	Auth  string `json:"auth"`
}

// Bearer returns whichever token field is populated, preferring "token".
func (c Credentials) Bearer() string {
	if c.Token != "" {
		return c.Token
	}
	return c.Auth
}

// SendMessage is the payload of the send_message event.
type SendMessage struct {
	ServerID string  `json:"sid"`
	Content  string  `json:"content"`
	Link     *string `json:"link,omitempty"`
}

// ReplyMessage is the payload of the reply_to_message event. RefID points at
// the message being replied to.
type ReplyMessage struct {
	ServerID string  `json:"sid"`
	Content  string  `json:"content"`
	RefID    int64   `json:"ref_id"`
	Link     *string `json:"link,omitempty"`
}

// EditMessage is the payload of the edit_message event.
type EditMessage struct {
	MessageID int64  `json:"message_id"`
	Content   string `json:"content"`
}

// DeleteMessage is the payload of the delete_message event.
type DeleteMessage struct {
	MessageID int64 `json:"message_id"`
}

// UpdateStatus is the payload of the update_status presence event.
type UpdateStatus struct {
	Status string `json:"status"`
}

// ScheduleNotification is the payload of the ephemeral notification event.
// It is broadcast but never persisted.
type ScheduleNotification struct {
	ServerID string `json:"sid"`
	Content  string `json:"content"`
}

// VerifyInvite is the payload of the verify_invite lookup.
type VerifyInvite struct {
	Code string `json:"code"`
}

// JoinServer is the payload of the join_server event.
type JoinServer struct {
	ServerID string `json:"sid"`
}

// CreateServer is the payload of the create_server event.
type CreateServer struct {
	ServerName string `json:"server_name"`
}

// BroadcastMessage is the resolved payload fanned out under the "message"
// event after the store has assigned identity and timestamp. DisplayName and
// Picture come from the author's profile, never from client input.
type BroadcastMessage struct {
	ServerID    string  `json:"serverID"`
	DisplayName string  `json:"displayName"`
	Picture     string  `json:"picture"`
	Content     string  `json:"content"`
	ID          int64   `json:"id"`
	MessageRef  *int64  `json:"messageRef"`
	Timestamp   string  `json:"timestamp"`
	Link        *string `json:"link"`
}
