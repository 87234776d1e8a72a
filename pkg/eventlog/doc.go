// Package eventlog stores the events emitted by protocol calls.
//
// Events are appended as one unit per call and numbered by a gapless,
// strictly increasing sequence. Three Repository implementations are
// provided:
//
//   - InMemRepository keeps events in process memory.
//   - FileRepository keeps them in a JSON file, rewritten atomically.
//   - PostgresRepository keeps them in the pluser_event table.
//
// NewRepository picks one by persistence type:
//
//	repo, err := eventlog.NewRepository("file", eventlog.RepositoryConfig{
//		DataDir: "./data/eventlog",
//	})
//
// The api subpackage exposes List over HTTP.
package eventlog
