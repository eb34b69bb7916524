// Package cli is the interactive journal client.
//
// App is the composition root: it opens the local database, connects to the
// server, restores the cached session and binds the sync engine to the
// identity provider. The REPL then reads commands until exit. Engine events
// are printed as one-line notifications between prompts, and a background
// watcher pings the server to switch the engine between online and offline.
//
// Worksheets are written locally first, so every command except register,
// export and an online login works without the server.
package cli
