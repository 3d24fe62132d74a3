package model

import (
	"strconv"
	"strings"
)

// TicketStatus is the lifecycle state of a transport request.
type TicketStatus string

const (
	TicketNew                 TicketStatus = "NEW"
	TicketSent                TicketStatus = "SENT"
	TicketWaitingAcceptance   TicketStatus = "WAITING_FOR_ACCEPTANCE"
	TicketAccepted            TicketStatus = "ACCEPTED"
	TicketRefused             TicketStatus = "REFUSED"
	TicketItemRetrieved       TicketStatus = "ITEM_RETRIEVED"
	TicketMovingToDestination TicketStatus = "MOVING_TO_DESTINATION"
	TicketMovingToOrigin      TicketStatus = "MOVING_TO_ORIGIN"
	TicketWaitingPorters      TicketStatus = "WAITING_FOR_PORTERS"
	TicketCompleted           TicketStatus = "COMPLETED"
	TicketAbandoned           TicketStatus = "ABANDONED"
	TicketCancelled           TicketStatus = "CANCELLED"
	TicketDeleted             TicketStatus = "DELETED"
)

var ticketStatusLabels = map[TicketStatus]string{
	TicketNew:                 "Nouveau",
	TicketSent:                "Envoyé",
	TicketWaitingAcceptance:   "En attente d'acceptation",
	TicketAccepted:            "Accepté",
	TicketRefused:             "Refusé",
	TicketItemRetrieved:       "Objet récupéré",
	TicketMovingToDestination: "En route vers destination",
	TicketMovingToOrigin:      "En route vers origine",
	TicketWaitingPorters:      "En attente de brancardiers",
	TicketCompleted:           "Terminé",
	TicketAbandoned:           "Abandonné",
	TicketCancelled:           "Annulé",
	TicketDeleted:             "Supprimé",
}

// Label returns the French label shown for s, or s itself when unknown.
func (s TicketStatus) Label() string {
	if l, ok := ticketStatusLabels[s]; ok {
		return l
	}
	return string(s)
}

var ticketEventLabels = map[TicketStatus]string{
	TicketNew:       "Demande créée",
	TicketSent:      "Demande envoyée",
	TicketAccepted:  "Demande acceptée",
	TicketRefused:   "Demande refusée",
	TicketCompleted: "Demande terminée",
	TicketAbandoned: "Demande abandonnée",
	TicketCancelled: "Demande annulée",
	TicketDeleted:   "Demande supprimée",
}

// EventLabel is the history line for a transition into s.
func (s TicketStatus) EventLabel() string {
	if l, ok := ticketEventLabels[s]; ok {
		return l
	}
	return s.Label()
}

var ticketTypeLabels = map[string]string{
	"TRANSPORT_PATIENT":   "Transport de patient",
	"TRANSPORT_MESSAGING": "Transport de messagerie",
	"TRANSPORT_EQUIPMENT": "Transport de matériel",
}

// TicketTypeLabel returns the French label of a ticket type.
func TicketTypeLabel(t string) string {
	if l, ok := ticketTypeLabels[t]; ok {
		return l
	}
	return t
}

// UserMini is a user reference embedded in a ticket.
type UserMini struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Status    string `json:"status"`
}

// TicketStatusEvent is one entry of a ticket's history.
type TicketStatusEvent struct {
	ID           int64        `json:"id"`
	PorterID     *int64       `json:"idPorter"`
	From         TicketStatus `json:"fromStatus"`
	To           TicketStatus `json:"toStatus"`
	Reason       string       `json:"reasonStatus"`
	CustomReason string       `json:"customReasonStatus"`
	ChangedBy    int64        `json:"changedBy"`
	Timestamp    Timestamp    `json:"timestamp"`
}

// Ticket is the full detail of a transport request.
type Ticket struct {
	ID                int64               `json:"id"`
	ServiceFrom       Place               `json:"serviceDeparture"`
	BedFrom           *Place              `json:"bedDeparture"`
	ServiceTo         Place               `json:"serviceArrival"`
	BedTo             *Place              `json:"bedArrival"`
	Type              string              `json:"ticketType"`
	Priority          int                 `json:"priority"`
	IsStat            bool                `json:"isStat"`
	ReturnEquipment   bool                `json:"returnEquipment"`
	IsInConfinement   bool                `json:"isInConfinement"`
	ScheduledAt       *Timestamp          `json:"scheduledAt"`
	PatientFileNumber string              `json:"patientFileNumber"`
	PorterCount       int                 `json:"nbrBrancardier"`
	User              UserMini            `json:"user"`
	Porters           []UserMini          `json:"porters"`
	Notes             string              `json:"notes"`
	Status            TicketStatus        `json:"ticketStatus"`
	Events            []TicketStatusEvent `json:"ticketStatusEvents"`
}

// TicketAction is a porter transition on a ticket. Its value is the path
// segment of the backend endpoint.
type TicketAction string

const (
	ActionAccept            TicketAction = "accept"
	ActionRefuse            TicketAction = "refuse"
	ActionMoveToOrigin      TicketAction = "moveToOrigin"
	ActionRetrieve          TicketAction = "retrieve"
	ActionMoveToDestination TicketAction = "moveToDestination"
	ActionAbandon           TicketAction = "abandon"
	ActionDone              TicketAction = "done"
)

type actionText struct {
	label, success, failure string
}

var actionTexts = map[TicketAction]actionText{
	ActionAccept:            {"Accepter", "Ticket accepted successfully", "Failed to accept ticket"},
	ActionRefuse:            {"Refuser", "Ticket refused successfully", "Failed to refuse ticket"},
	ActionMoveToOrigin:      {"Déplacement vers l'origine", "Ticket moved to origin successfully", "Failed to move ticket to origin"},
	ActionRetrieve:          {"Récupéré", "Item retrieved successfully", "Failed to retrieve item"},
	ActionMoveToDestination: {"Déplacement vers la destination", "Ticket moved to destination successfully", "Failed to move ticket to destination"},
	ActionAbandon:           {"Abandonner", "Ticket abandoned successfully", "Failed to abandon ticket"},
	ActionDone:              {"Complété", "Ticket completed successfully", "Failed to complete ticket"},
}

// Label is the button text of a.
func (a TicketAction) Label() string { return actionTexts[a].label }

// SuccessMessage is the toast shown once the backend accepts a.
func (a TicketAction) SuccessMessage() string { return actionTexts[a].success }

// FailureMessage is the toast shown when the backend sends no message.
func (a TicketAction) FailureMessage() string { return actionTexts[a].failure }

// NeedsReason reports whether a requires a StatusChangeRequest.
func (a TicketAction) NeedsReason() bool {
	return a == ActionRefuse || a == ActionAbandon
}

// Reasons lists the reasons a porter may give for a, or nil.
func (a TicketAction) Reasons() []Reason {
	switch a {
	case ActionRefuse:
		return RefusalReasons
	case ActionAbandon:
		return AbandonReasons
	}
	return nil
}

// ActionsFor returns the transitions a porter may apply in status s, in
// display order.
func ActionsFor(s TicketStatus) []TicketAction {
	switch s {
	case TicketWaitingAcceptance, TicketWaitingPorters:
		return []TicketAction{ActionRefuse, ActionAccept}
	case TicketAccepted:
		return []TicketAction{ActionMoveToOrigin, ActionAbandon}
	case TicketMovingToOrigin:
		return []TicketAction{ActionRetrieve, ActionAbandon}
	case TicketItemRetrieved:
		return []TicketAction{ActionMoveToDestination, ActionAbandon}
	case TicketMovingToDestination:
		return []TicketAction{ActionDone, ActionAbandon}
	}
	return nil
}

// Reason is a coded refusal or abandonment reason.
type Reason struct {
	Code  string
	Label string
}

// Reason codes that take a free-text explanation.
const (
	ReasonRefusedOther   = "REFUSED_OTHER"
	ReasonAbandonedOther = "ABANDONED_OTHER"
)

var (
	RefusalReasons = []Reason{
		{"REFUSED_BREAK", "Pause"},
		{"REFUSED_MEAL_TIME", "Heure de repas"},
		{"REFUSED_END_OF_SHIFT", "Fin de quart"},
		{"REFUSED_MESSAGING", "Messagerie"},
		{ReasonRefusedOther, "Autre"},
	}
	AbandonReasons = []Reason{
		{ReasonAbandonedOther, "Autre"},
	}
)

// StatusChangeRequest is the body of a refusal or abandonment.
type StatusChangeRequest struct {
	Reason       string `json:"reason"`
	CustomReason string `json:"customReason,omitempty"`
}

// TicketFromRedirect extracts the ticket id a notification redirect URL
// points at, such as "/5" or "/demande/5". It returns 0 when the last path
// segment is not a positive id.
func TicketFromRedirect(redirect string) int64 {
	redirect = strings.TrimRight(redirect, "/")
	seg := redirect[strings.LastIndex(redirect, "/")+1:]
	id, err := strconv.ParseInt(seg, 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}
