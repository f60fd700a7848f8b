// Command storyreel drives the production pipeline of one chapter from the
// terminal.
//
// Every command loads the chapter named by --project and --chapter, derives the
// current stage, and either prints state or submits one backend operation and
// waits for its task to finish. Batch submissions take a per-chapter file lock
// so two terminals cannot start the same batch. Submissions are recorded in a
// local SQLite task ledger that "storyreel tasks" inspects.
package main
