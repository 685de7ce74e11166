package domain

import "fmt"

// Blob paths are deterministic per user and per entry/session so that saves
// for the same object always land on the same key (last write wins).

func JournalPath(userID UserID, entryID EntryID) string {
	return fmt.Sprintf("users/%s/journals/%s.json", userID, entryID)
}

func MessagesPath(userID UserID, chatID ChatID) string {
	return fmt.Sprintf("users/%s/chats/%s/messages.json", userID, chatID)
}

func HistoryIndexPath(userID UserID) string {
	return fmt.Sprintf("users/%s/chat-history/metadata.json", userID)
}
