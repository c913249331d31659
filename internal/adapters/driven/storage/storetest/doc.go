// Package storetest holds behavioural tests shared by every VectorIndex
// and ConversationStore backend. Backend packages call the Run functions
// from their own tests with a constructor for a fresh, empty instance.
package storetest
