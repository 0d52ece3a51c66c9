package plugin

// Message types sent by the in-game plugin.
const (
	TypeNewPark  = "newpark"
	TypeLoadPark = "loadpark"
	TypeArchive  = "archive"
	TypeMOTD     = "motd"
	TypeVote     = "vote"
)

const (
	msgDone          = "done"
	msgArchiveFailed = "archive failed"
)

// Message is one request from the plugin.
type Message struct {
	Type       string `json:"type"`
	ID         *int64 `json:"id,omitempty"`
	Map        string `json:"map,omitempty"`
	Identifier string `json:"identifier,omitempty"`
}

// Reply is the answer to a Message. Msg is shown in chat for vote and
// archive commands; ID is the park's archive id when known.
type Reply struct {
	ID  *int64 `json:"id,omitempty"`
	Msg string `json:"msg"`
}
