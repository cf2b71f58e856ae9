// Package latchlink is a Go client for the Allegion cloud service that backs
// Schlage WiFi and BLE smart locks.
//
// A Session owns credentials and signs every request; a Client is a thin
// facade for fetching locks and users. Domain objects (Lock, AccessCode,
// Notification) are mutable local mirrors of server state: refreshing or
// mutating them merges the server's response into the existing object in
// place, so any holder of a reference observes the update.
//
// Basic usage:
//
//	tokens := latchlink.NewPasswordTokens("user@example.com", "hunter2")
//	client, err := latchlink.NewClient(latchlink.Config{Tokens: tokens})
//	if err != nil { ... }
//	locks, err := client.Locks(ctx)
//	if err != nil { ... }
//	err = locks[0].Unlock(ctx)
//
// Thread Safety:
//   - A Session is safe to share across goroutines and entities.
//   - Each entity guards its own fields with a private mutex during merges.
//     Concurrent mutating calls on the same entity are not serialized against
//     each other beyond that; single writer per object is the caller contract.
package latchlink
