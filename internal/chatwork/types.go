package chatwork

// RoomID is the canonical string form of a Chatwork room identifier.
// The upstream API emits room ids as JSON numbers in some payloads and
// strings in others; everything past the parse boundary uses this type so
// equality is never ambiguous.
type RoomID string

func (id RoomID) String() string { return string(id) }

// Room is a conversation room as listed by the upstream.
type Room struct {
	ID   RoomID
	Name string
}

// Message is a single chat message. Immutable once fetched; the upstream
// is the source of truth.
type Message struct {
	ID       string
	SendTime int64 // epoch seconds
	Sender   string
	Body     string
}
