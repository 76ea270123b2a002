// Package history stores chat sessions. Each session is one msgpack record
// in a kv.Store under the key session/<id>.
//
//	store := history.NewStore(db)
//	s, _ := store.Create(ctx)
//	s, _ = store.AppendMessages(ctx, s.ID, history.NewMessage(history.RoleUser, "hello"))
package history
