package contract

// Firestore field names shared by the web client and the functions.
const (
	// users/{uid}
	FieldNickname  = "nickname"
	FieldEmail     = "email"
	FieldCreatedAt = "createdAt"

	// users/{uid}/chats/{counterpartId} and directory/{uid}_{counterpartId}
	FieldUserID          = "userId"
	FieldCounterpartID   = "counterpartId"
	FieldLastMessage     = "lastMessage"
	FieldLastMessageTime = "lastMessageTime"
	FieldUpdatedAt       = "updatedAt"

	// users/{uid}/chats/{counterpartId}/messages/{id}
	FieldText      = "text"
	FieldSender    = "sender"
	FieldTimestamp = "timestamp"
	FieldType      = "type"
	FieldDuration  = "duration"
)
