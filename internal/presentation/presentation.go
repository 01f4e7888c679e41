// Package presentation defines the client-side sink for user-visible
// events: the boundary internal/clientrole pushes through once the
// reliability engine and typed handlers have done their work. It is
// modeled as one-shot event methods rather than the teacher's
// SetOnXxx-callback-setter style (client/interfaces.go's Transporter),
// since here the event set is fixed and small enough to name directly in
// an interface.
package presentation

// UserEntry is one row of a presentation-facing user list. Unlike
// directory.User, Movie is the name the client has already resolved from
// the 1-bit wire status (see internal/clientrole's resolveUserList).
type UserEntry struct {
	Name  string
	Movie string // "" (main room), the resolved movie title, or a generic label when the title is unknown
}

// MovieEntry is one row of a presentation-facing movie list.
type MovieEntry struct {
	Title string
	IPv4  [4]byte
	Port  uint16
}

// Proxy is the client-side event sink. Every method is a one-shot,
// fire-and-forget notification; implementations must not block the
// caller's single logical thread.
type Proxy interface {
	// InitComplete fires once both the initial user list and movie list
	// have been received, completing the login phase.
	InitComplete(users []UserEntry, movies []MovieEntry)
	// JoinRoomOK fires when the ACK for an outbound movie-selection or
	// quit-movie packet confirms the room change.
	JoinRoomOK()
	// ChatReceived fires once per distinct inbound chat message.
	ChatReceived(sender, text string)
	// ConnectionRejected fires when the server refuses a login attempt.
	ConnectionRejected(reason string)
	// UserListUpdated fires on every post-login-phase user-list delivery.
	UserListUpdated(users []UserEntry)
	// LeaveSystemOK fires once a quit-app has been acknowledged, or when
	// the server stops acknowledging outbound packets (retransmit
	// exhaustion).
	LeaveSystemOK()
	// Quit fires when the client is about to terminate, whether by
	// request, rejection, or retransmit exhaustion.
	Quit(reason string)
}
