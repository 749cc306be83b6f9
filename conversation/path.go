// Package conversation resolves where a (user, counterpart) conversation
// lives in the store:
//
//	users/{userId}                                  profile
//	users/{userId}/chats/{counterpartId}            summary document
//	users/{userId}/chats/{counterpartId}/messages/* messages
//	directory/{userId}_{counterpartId}              directory index entry
package conversation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/klipach/mentorchat/store"
)

const (
	UsersCollection     = "users"
	ChatsCollection     = "chats"
	MessagesCollection  = "messages"
	DirectoryCollection = "directory"
)

var (
	ErrMissingUser        = errors.New("missing user id")
	ErrMissingCounterpart = errors.New("missing counterpart id")
	ErrInvalidID          = errors.New("invalid id")
)

// Ref identifies one conversation.
type Ref struct {
	UserID        string
	CounterpartID string
}

// Resolve validates both ids. It never touches the store.
func Resolve(userID, counterpartID string) (Ref, error) {
	userID = strings.TrimSpace(userID)
	counterpartID = strings.TrimSpace(counterpartID)
	if userID == "" {
		return Ref{}, ErrMissingUser
	}
	if counterpartID == "" {
		return Ref{}, ErrMissingCounterpart
	}
	for _, id := range []string{userID, counterpartID} {
		if err := validID(id); err != nil {
			return Ref{}, err
		}
	}
	return Ref{UserID: userID, CounterpartID: counterpartID}, nil
}

// ResolveUser validates the owner of a conversation list.
func ResolveUser(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", ErrMissingUser
	}
	if err := validID(userID); err != nil {
		return "", err
	}
	return userID, nil
}

func validID(id string) error {
	if strings.Contains(id, "/") || id == "." || id == ".." || strings.HasPrefix(id, "__") {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

func (r Ref) SummaryPath() string {
	return store.Join(ChatsPath(r.UserID), r.CounterpartID)
}

func (r Ref) MessagesPath() string {
	return store.Join(r.SummaryPath(), MessagesCollection)
}

// directoryEscaper keeps "_" unique as the separator of directory ids.
var directoryEscaper = strings.NewReplacer("%", "%25", "_", "%5F")

// DirectoryPath is the directory index document of this conversation:
// directory/{userId}_{counterpartId} with "%" and "_" escaped in both ids.
func (r Ref) DirectoryPath() string {
	return store.Join(DirectoryCollection, directoryEscaper.Replace(r.UserID)+"_"+directoryEscaper.Replace(r.CounterpartID))
}

func (r Ref) String() string {
	return r.UserID + "/" + r.CounterpartID
}

func UserPath(userID string) string {
	return store.Join(UsersCollection, userID)
}

func ChatsPath(userID string) string {
	return store.Join(UserPath(userID), ChatsCollection)
}
