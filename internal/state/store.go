// Package state holds the process-wide client state: identity,
// notifications, chat and UI feedback. Every mutation is an action executed
// on the store's own goroutine, so a read-modify-write never spans an
// asynchronous gap in a caller.
package state

import (
	"sync"
	"time"

	"github.com/nhle/brancard/internal/model"
)

// Notifications is the notification slice of the state.
type Notifications struct {
	Items                 []model.NotificationTarget
	UnreadCount           int
	Loading               bool
	Error                 string
	DeviceTokenRegistered bool
}

// Chat is the chat slice of the state.
type Chat struct {
	Messages []model.ChatMessage

	// Members is the directory of possible chat partners.
	Members []model.Member

	// OpenChatWith is the counterparty of the open conversation, 0 if none.
	OpenChatWith int64

	Typing map[int64]bool
	Unread map[int64]int
}

// Duty is the porter slice of the state: the signed-in porter's profile and
// the work routes it may pick from. Porter is nil for users without a
// porter profile.
type Duty struct {
	Porter     *model.Porter
	WorkRoutes []model.WorkRoute
	Loading    bool
	Error      string
}

// Ticket is the ticket detail currently shown.
type Ticket struct {
	// ID is the requested ticket, 0 if none.
	ID      int64
	Current *model.Ticket
	Loading bool
	Error   string
}

// Connections mirrors the hub connection flags shown by the UI.
type Connections struct {
	Notifications bool
	Chat          bool
}

// Snapshot is a copy of the whole state. Mutating it has no effect on the
// store.
type Snapshot struct {
	Identity      *model.Identity
	Notifications Notifications
	Chat          Chat
	Duty          Duty
	Ticket        Ticket
	Connections   Connections
	Toast         *model.Toast
	Route         string
}

func initial() Snapshot {
	return Snapshot{
		Route: "/",
		Chat: Chat{
			Typing: make(map[int64]bool),
			Unread: make(map[int64]int),
		},
	}
}

func (s Snapshot) clone() Snapshot {
	out := s
	if s.Identity != nil {
		id := *s.Identity
		out.Identity = &id
	}
	if s.Toast != nil {
		t := *s.Toast
		out.Toast = &t
	}
	out.Notifications.Items = append([]model.NotificationTarget(nil), s.Notifications.Items...)
	out.Chat.Messages = append([]model.ChatMessage(nil), s.Chat.Messages...)
	out.Chat.Members = append([]model.Member(nil), s.Chat.Members...)
	if s.Duty.Porter != nil {
		p := *s.Duty.Porter
		p.Tickets = append([]model.PorterTicket(nil), p.Tickets...)
		out.Duty.Porter = &p
	}
	out.Duty.WorkRoutes = append([]model.WorkRoute(nil), s.Duty.WorkRoutes...)
	if s.Ticket.Current != nil {
		t := *s.Ticket.Current
		t.Events = append([]model.TicketStatusEvent(nil), t.Events...)
		out.Ticket.Current = &t
	}
	out.Chat.Typing = make(map[int64]bool, len(s.Chat.Typing))
	for k, v := range s.Chat.Typing {
		out.Chat.Typing[k] = v
	}
	out.Chat.Unread = make(map[int64]int, len(s.Chat.Unread))
	for k, v := range s.Chat.Unread {
		out.Chat.Unread[k] = v
	}
	return out
}

type action struct {
	fn   func(*Snapshot)
	ran  bool
	done chan struct{}
}

// Store is the serialized state container.
type Store struct {
	actions chan *action
	changes chan struct{}
	closed  chan struct{}
	once    sync.Once

	// state is only touched by the loop goroutine.
	state Snapshot
}

// New starts a store with the initial state.
func New() *Store {
	s := &Store{
		actions: make(chan *action),
		changes: make(chan struct{}, 1),
		closed:  make(chan struct{}),
		state:   initial(),
	}
	go s.loop()
	return s
}

func (s *Store) loop() {
	for {
		select {
		case a := <-s.actions:
			select {
			case <-s.closed:
				close(a.done)
				return
			default:
			}
			a.fn(&s.state)
			a.ran = true
			close(a.done)
			select {
			case s.changes <- struct{}{}:
			default:
			}
		case <-s.closed:
			return
		}
	}
}

// apply runs fn on the store goroutine and waits for it. It reports false
// when the store is closed and fn did not run.
func (s *Store) apply(fn func(*Snapshot)) bool {
	a := &action{fn: fn, done: make(chan struct{})}
	select {
	case s.actions <- a:
		<-a.done
		return a.ran
	case <-s.closed:
		return false
	}
}

// Changes signals after mutations. Signals are coalesced: one receive may
// stand for several actions.
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

// Close stops the store. Later actions are ignored.
func (s *Store) Close() {
	s.once.Do(func() { close(s.closed) })
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	var out Snapshot
	if !s.apply(func(st *Snapshot) { out = st.clone() }) {
		return initial()
	}
	return out
}

// Identity returns the current identity, or nil when signed out.
func (s *Store) Identity() *model.Identity {
	var id *model.Identity
	s.apply(func(st *Snapshot) {
		if st.Identity != nil {
			cp := *st.Identity
			id = &cp
		}
	})
	return id
}

// SetIdentity records the signed-in user.
func (s *Store) SetIdentity(id model.Identity) {
	s.apply(func(st *Snapshot) { st.Identity = &id })
}

// ClearIdentity signs out and resets every slice to its initial value.
func (s *Store) ClearIdentity() {
	s.apply(func(st *Snapshot) {
		toast := st.Toast
		*st = initial()
		st.Toast = toast
	})
}

// SetNotificationsLoading flags an in-flight reconciliation.
func (s *Store) SetNotificationsLoading(loading bool) {
	s.apply(func(st *Snapshot) { st.Notifications.Loading = loading })
}

// SetNotifications replaces the notification list and clears the error.
func (s *Store) SetNotifications(items []model.NotificationTarget) {
	items = append([]model.NotificationTarget(nil), items...)
	s.apply(func(st *Snapshot) {
		st.Notifications.Items = items
		st.Notifications.Loading = false
		st.Notifications.Error = ""
	})
}

// SetUnreadCount sets the unread notification counter.
func (s *Store) SetUnreadCount(n int) {
	s.apply(func(st *Snapshot) { st.Notifications.UnreadCount = n })
}

// SetNotificationsError records a reconciliation failure. Items and the
// unread counter keep their last known values.
func (s *Store) SetNotificationsError(msg string) {
	s.apply(func(st *Snapshot) {
		st.Notifications.Error = msg
		st.Notifications.Loading = false
	})
}

// MarkRead marks notification id read at the current time and decrements
// the unread counter. It reports whether the notification was unread.
func (s *Store) MarkRead(id int64) bool {
	changed := false
	now := model.NewTimestamp(time.Now())
	s.apply(func(st *Snapshot) {
		for i := range st.Notifications.Items {
			n := &st.Notifications.Items[i]
			if n.ID != id || n.IsRead {
				continue
			}
			n.IsRead = true
			n.ReadAt = &now
			changed = true
			if st.Notifications.UnreadCount > 0 {
				st.Notifications.UnreadCount--
			}
		}
	})
	return changed
}

// RevertRead undoes a MarkRead that the backend rejected.
func (s *Store) RevertRead(id int64) {
	s.apply(func(st *Snapshot) {
		for i := range st.Notifications.Items {
			n := &st.Notifications.Items[i]
			if n.ID == id && n.IsRead {
				n.IsRead = false
				n.ReadAt = nil
				st.Notifications.UnreadCount++
			}
		}
	})
}

// MarkAllRead marks every notification read and zeroes the counter.
func (s *Store) MarkAllRead() {
	now := model.NewTimestamp(time.Now())
	s.apply(func(st *Snapshot) {
		for i := range st.Notifications.Items {
			n := &st.Notifications.Items[i]
			if !n.IsRead {
				n.IsRead = true
				n.ReadAt = &now
			}
		}
		st.Notifications.UnreadCount = 0
	})
}

// SetDeviceTokenRegistered records whether a push token is registered.
func (s *Store) SetDeviceTokenRegistered(ok bool) {
	s.apply(func(st *Snapshot) { st.Notifications.DeviceTokenRegistered = ok })
}

// SetChatMessages replaces the chat message list.
func (s *Store) SetChatMessages(msgs []model.ChatMessage) {
	msgs = append([]model.ChatMessage(nil), msgs...)
	s.apply(func(st *Snapshot) { st.Chat.Messages = msgs })
}

// SetMembers replaces the chat directory.
func (s *Store) SetMembers(members []model.Member) {
	members = append([]model.Member(nil), members...)
	s.apply(func(st *Snapshot) { st.Chat.Members = members })
}

// ReceiveChatMessage appends msg. When the sender is neither self nor the
// open conversation partner the sender's unread counter is incremented and
// counted is true. A message whose id is already present is ignored.
func (s *Store) ReceiveChatMessage(msg model.ChatMessage, self int64) (counted bool) {
	s.apply(func(st *Snapshot) {
		if msg.ID != 0 {
			for _, m := range st.Chat.Messages {
				if m.ID == msg.ID {
					return
				}
			}
		}
		st.Chat.Messages = append(st.Chat.Messages, msg)
		if msg.SenderID != self && msg.SenderID != st.Chat.OpenChatWith {
			st.Chat.Unread[msg.SenderID]++
			counted = true
		}
	})
	return counted
}

// OpenConversation sets the open conversation partner and clears its unread
// counter. Zero closes the conversation.
func (s *Store) OpenConversation(id int64) {
	s.apply(func(st *Snapshot) {
		st.Chat.OpenChatWith = id
		if id != 0 {
			delete(st.Chat.Unread, id)
		}
	})
}

// SetTyping records the typing status of a counterparty.
func (s *Store) SetTyping(userID int64, typing bool) {
	s.apply(func(st *Snapshot) {
		if typing {
			st.Chat.Typing[userID] = true
			return
		}
		delete(st.Chat.Typing, userID)
	})
}

// SetDutyLoading flags an in-flight porter refresh.
func (s *Store) SetDutyLoading(loading bool) {
	s.apply(func(st *Snapshot) { st.Duty.Loading = loading })
}

// SetPorter replaces the porter profile and clears the error. A nil p
// records that the user has no porter profile.
func (s *Store) SetPorter(p *model.Porter) {
	if p != nil {
		cp := *p
		p = &cp
	}
	s.apply(func(st *Snapshot) {
		st.Duty.Porter = p
		st.Duty.Loading = false
		st.Duty.Error = ""
	})
}

// SetDutyError records a porter refresh failure. The last known profile is
// kept.
func (s *Store) SetDutyError(msg string) {
	s.apply(func(st *Snapshot) {
		st.Duty.Error = msg
		st.Duty.Loading = false
	})
}

// SetWorkRoutes replaces the work routes offered to the porter.
func (s *Store) SetWorkRoutes(routes []model.WorkRoute) {
	routes = append([]model.WorkRoute(nil), routes...)
	s.apply(func(st *Snapshot) { st.Duty.WorkRoutes = routes })
}

// OpenTicket starts showing ticket id. The previous detail is dropped when
// it belongs to another ticket.
func (s *Store) OpenTicket(id int64) {
	s.apply(func(st *Snapshot) {
		if st.Ticket.ID != id {
			st.Ticket.Current = nil
		}
		st.Ticket.ID = id
		st.Ticket.Loading = true
		st.Ticket.Error = ""
	})
}

// SetTicket records the detail of t. It is ignored, and reports false,
// unless t is the ticket being shown.
func (s *Store) SetTicket(t model.Ticket) bool {
	applied := false
	s.apply(func(st *Snapshot) {
		if st.Ticket.ID != t.ID {
			return
		}
		st.Ticket.Current = &t
		st.Ticket.Loading = false
		st.Ticket.Error = ""
		applied = true
	})
	return applied
}

// SetTicketError records a failure to load ticket id.
func (s *Store) SetTicketError(id int64, msg string) {
	s.apply(func(st *Snapshot) {
		if st.Ticket.ID != id {
			return
		}
		st.Ticket.Error = msg
		st.Ticket.Loading = false
	})
}

// CloseTicket stops showing the ticket detail.
func (s *Store) CloseTicket() {
	s.apply(func(st *Snapshot) { st.Ticket = Ticket{} })
}

// ShowToast displays an informational toast.
func (s *Store) ShowToast(message string) model.Toast {
	t := model.NewToast(message)
	s.apply(func(st *Snapshot) { st.Toast = &t })
	return t
}

// ShowError displays an error toast.
func (s *Store) ShowError(message string) model.Toast {
	t := model.NewErrorToast(message)
	s.apply(func(st *Snapshot) { st.Toast = &t })
	return t
}

// ClearToast hides the toast if it is still the one identified by id.
func (s *Store) ClearToast(t model.Toast) {
	s.apply(func(st *Snapshot) {
		if st.Toast != nil && st.Toast.ID == t.ID {
			st.Toast = nil
		}
	})
}

// Navigate sets the current route.
func (s *Store) Navigate(route string) {
	s.apply(func(st *Snapshot) { st.Route = route })
}

// SetNotificationsConnected sets the notifications hub flag.
func (s *Store) SetNotificationsConnected(ok bool) {
	s.apply(func(st *Snapshot) { st.Connections.Notifications = ok })
}

// SetChatConnected sets the chat hub flag.
func (s *Store) SetChatConnected(ok bool) {
	s.apply(func(st *Snapshot) { st.Connections.Chat = ok })
}
