package sqlstore

import "github.com/mmynk/zehem/internal/storage"

// tables lists the columns of every collection. Queries may only reference
// these identifiers.
var tables = map[string][]string{
	storage.Accounts: {
		"id", "display_name", "coins", "created_at",
	},
	storage.Groups: {
		"id", "name", "description", "owner_id", "visibility", "created_at",
	},
	storage.Memberships: {
		"group_id", "account_id", "role", "joined_at",
	},
	storage.Messages: {
		"seq", "id", "group_id", "author_id", "body", "mention_all", "created_at",
	},
	storage.Mentions: {
		"id", "group_id", "message_id", "account_id", "read", "created_at",
	},
	storage.LedgerEntries: {
		"id", "account_id", "action", "requested", "applied", "balance_after", "created_at",
	},
}

func hasColumn(collection, col string) bool {
	for _, c := range tables[collection] {
		if c == col {
			return true
		}
	}
	return false
}
