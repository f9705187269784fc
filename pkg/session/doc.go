// Package session implements durable, remote-backed persistence of a browser
// profile directory, so a long-lived authenticated session survives process
// restarts across machines.
//
// # Architecture
//
// Three pieces cooperate around one profile directory:
//
//  1. Recovery: on startup, fetch the latest remote snapshot and unpack it
//     into the profile directory before the browser launches.
//  2. Scheduler: while the session runs, periodically prune the directory to
//     its required paths, pack it and replace the remote snapshot.
//  3. Synchronizer: owns both, maps them onto the host lifecycle hooks
//     (BeforeInit, OnReady, OnLogout) and handles teardown.
//
// # Guarantees
//
// The remote store holds at most one snapshot per session name; each backup
// cycle deletes the prior snapshot before saving the new one. At most one
// backup cycle is in flight at a time. Recovery and backup failures degrade
// the session (start fresh, skip a cycle) instead of failing the host.
// Logout cleanup is best-effort and never fails.
package session
