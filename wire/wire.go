// Package wire defines the JSON payload types for the F-Chat text protocol.
// Field names follow the server's wire spelling.
package wire

// IdentifyPayload is the body of an outbound IDN frame.
type IdentifyPayload struct {
	Method        string `json:"method"`
	Account       string `json:"account"`
	Ticket        string `json:"ticket"`
	Character     string `json:"character"`
	ClientName    string `json:"cname"`
	ClientVersion string `json:"cversion"`
}

// IdentifyResultPayload is the body of an inbound IDN frame (server -> client).
type IdentifyResultPayload struct {
	Character string `json:"character,omitempty"`
}

// ErrorPayload is the body of an ERR frame (server -> client).
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// JoinPayload is the body of an outbound JCH frame.
type JoinPayload struct {
	Channel string `json:"channel"`
}

// Identity names a character in server-originated payloads.
type Identity struct {
	Identity string `json:"identity"`
}

// JoinedPayload is the body of an inbound JCH frame. It is sent for every
// character entering a channel, including us.
type JoinedPayload struct {
	Channel   string   `json:"channel"`
	Character Identity `json:"character"`
	Title     string   `json:"title,omitempty"`
}

// PrivateMessagePayload is the body of an inbound PRI frame.
type PrivateMessagePayload struct {
	Character string `json:"character"`
	Message   string `json:"message"`
}

// SendPrivatePayload is the body of an outbound PRI frame.
type SendPrivatePayload struct {
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

// ChannelMessagePayload is the body of an MSG frame. Character is set by the
// server on inbound frames and omitted on outbound ones.
type ChannelMessagePayload struct {
	Channel   string `json:"channel"`
	Character string `json:"character,omitempty"`
	Message   string `json:"message"`
}

// TicketResponse is the JSON answer of the ticket endpoint.
type TicketResponse struct {
	Ticket string `json:"ticket,omitempty"`
	Error  string `json:"error,omitempty"`
}
