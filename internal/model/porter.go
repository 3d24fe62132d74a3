package model

import "strings"

// PorterStatus is the availability reported for a porter.
type PorterStatus string

const (
	PorterAvailable    PorterStatus = "AVAILABLE"
	PorterOnTheMove    PorterStatus = "ON_THE_MOVE"
	PorterOnBreak      PorterStatus = "ON_BREAK"
	PorterNotAvailable PorterStatus = "NOT_AVAILABLE"
)

var porterStatusLabels = map[PorterStatus]string{
	PorterAvailable:    "Disponible",
	PorterOnTheMove:    "En déplacement",
	PorterOnBreak:      "En pause",
	PorterNotAvailable: "Déconnecté",
}

// Label returns the French label shown for s, or s itself when unknown.
func (s PorterStatus) Label() string {
	if l, ok := porterStatusLabels[s]; ok {
		return l
	}
	return string(s)
}

// Place is a service or bed referenced by a ticket.
type Place struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Code         string `json:"code,omitempty"`
	LocationName string `json:"locationName,omitempty"`
}

// Describe joins a service with an optional bed.
func Describe(service Place, bed *Place) string {
	if bed == nil || bed.Name == "" {
		return service.Name
	}
	return service.Name + " / " + bed.Name
}

// WorkRouteBreak is a scheduled break on a work route.
type WorkRouteBreak struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	StartTime string `json:"startTime,omitempty"`
	EndTime   string `json:"endTime,omitempty"`
}

// Hours formats the break's time window.
func (b WorkRouteBreak) Hours() string {
	return shortTime(b.StartTime) + "-" + shortTime(b.EndTime)
}

// WorkRoute is a shift template a porter can be assigned to.
type WorkRoute struct {
	ID          int64            `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	StartTime   string           `json:"startTime"`
	EndTime     string           `json:"endTime"`
	Enabled     bool             `json:"enabled"`
	Types       []string         `json:"workRouteType"`
	Breaks      []WorkRouteBreak `json:"workRouteBreak"`
}

// Hours formats the route's time window, e.g. "07:00-15:00".
func (r WorkRoute) Hours() string {
	return shortTime(r.StartTime) + "-" + shortTime(r.EndTime)
}

// shortTime trims the seconds off an "HH:MM:SS" value.
func shortTime(s string) string {
	if parts := strings.Split(s, ":"); len(parts) == 3 {
		return parts[0] + ":" + parts[1]
	}
	return s
}

// WorkShift is the porter's current punch-in window.
type WorkShift struct {
	PunchInAt  *Timestamp `json:"punchInAt"`
	PunchOutAt *Timestamp `json:"punchOutAt"`
}

// PorterTicket is the summary of a ticket assigned to a porter.
type PorterTicket struct {
	ID          int64        `json:"id"`
	ServiceFrom Place        `json:"serviceMiniDeparture"`
	BedFrom     *Place       `json:"bedDeparture"`
	ServiceTo   Place        `json:"serviceMiniArrival"`
	BedTo       *Place       `json:"bedArrival"`
	Precaution  *Place       `json:"precaution"`
	Type        string       `json:"ticketType"`
	Status      TicketStatus `json:"ticketStatus"`
}

// Porter is the signed-in porter's profile with the route and tickets
// currently assigned to it.
type Porter struct {
	ID        int64          `json:"id"`
	FirstName string         `json:"firstName"`
	LastName  string         `json:"lastName"`
	Status    PorterStatus   `json:"status"`
	WorkRoute *WorkRoute     `json:"workRoute"`
	WorkShift *WorkShift     `json:"workShift"`
	Tickets   []PorterTicket `json:"ticket"`
}

// FullName returns "First Last".
func (p Porter) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Member is an entry of the user directory. Its ID is the user id used by
// chat messages.
type Member struct {
	ID          int64  `json:"numero"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	IsConnected int    `json:"isConnected"`
}

// DisplayName prefers "First Last" and falls back to Name.
func (m Member) DisplayName() string {
	if n := strings.TrimSpace(m.FirstName + " " + m.LastName); n != "" {
		return n
	}
	return m.Name
}

// Page is a paged list response.
type Page[T any] struct {
	Items      []T `json:"items"`
	TotalCount int `json:"totalCount"`
	PageNumber int `json:"pageNumber"`
	PageSize   int `json:"pageSize"`
}
