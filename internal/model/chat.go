package model

// ChatMessage is a one-to-one chat message.
type ChatMessage struct {
	ID           int64     `json:"id" db:"id"`
	SenderID     int64     `json:"senderId" db:"sender_id"`
	SenderName   string    `json:"senderName" db:"sender_name"`
	ReceiverID   int64     `json:"receiverId" db:"receiver_id"`
	ReceiverName string    `json:"receiverName" db:"receiver_name"`
	Message      string    `json:"message" db:"message"`
	Timestamp    Timestamp `json:"timestamp" db:"-"`
}

// Pair returns the unordered participant pair the message belongs to.
func (m ChatMessage) Pair() PairKey {
	return NewPairKey(m.SenderID, m.ReceiverID)
}

// ChatMessageRequest is the body sent to create a chat message.
type ChatMessageRequest struct {
	SenderID   int64  `json:"senderId"`
	ReceiverID int64  `json:"receiverId"`
	Message    string `json:"message"`
}

// PairKey identifies a conversation independently of direction.
type PairKey struct {
	Low  int64
	High int64
}

// NewPairKey builds the key for the conversation between a and b.
func NewPairKey(a, b int64) PairKey {
	if a > b {
		a, b = b, a
	}
	return PairKey{Low: a, High: b}
}

// Includes reports whether id is one of the two participants.
func (k PairKey) Includes(id int64) bool {
	return k.Low == id || k.High == id
}
