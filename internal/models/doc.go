// Package models defines the core domain models for zehem.
//
// # Models
//
//   - Account: an identity with a unique display name and a coin balance
//   - Group: a chat group with an immutable owner
//   - Membership: an account's role inside a group (owner, admin, member)
//   - Message: an immutable chat message, optionally flagged mention-all
//   - Mention: a per-target notification derived from a message
//   - LedgerEntry: an audit record of one balance mutation
//
// # Design Principles
//
// 1. **Store rows are the source of truth**: every model is built from a storage.Row
// 2. **Avoid circular references**: relationships use ID strings, not pointers
// 3. **Timestamps**: CreatedAt fields are Unix milliseconds
package models
