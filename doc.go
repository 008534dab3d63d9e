// Package diary is the Composition Root for the diary application.
//
// It connects the core domain (session state machine and note repository)
// with the backend adapters using the Hexagonal Architecture pattern.
//
// Features:
//
//   - **Hexagonal Architecture**: the core never imports an adapter.
//   - **Hosted Backend**: Supabase auth (GoTrue) and notes (PostgREST) over HTTP.
//   - **Direct SQL**: notes read and written through pgx with the same row-level policies.
//   - **In-Memory Backend**: the full contract in process, for tests and offline use.
//   - **Explicit Session**: one SessionManager per user, injected, observable.
//
// Usage:
//
//	client, err := diary.New(ctx, diary.NewMemoryStorage(),
//		diary.WithSupabase(url, anonKey),
//		diary.WithLogger(logger),
//	)
//	defer client.Close()
//
//	if err := client.Session.Login(ctx, email, password); err != nil {
//		fmt.Println(diary.UserMessage(err))
//	}
//	notes, err := client.Notes.ListNotes(ctx, client.Session.UserID())
package diary
