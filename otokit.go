// Package otokit drives a score-upload run around a local traffic-interception
// tunnel. A run stops the tunnel, waits for it to release the network, obtains
// WeChat authorization, crawls the player's records and uploads them to score
// trackers. Progress is reported to a single UI listener.
//
// This package contains domain types and interfaces following Ben Johnson's
// Standard Package Layout. Implementations live in subdirectories named
// after their primary dependency (e.g., http/, goquery/, slog/).
package otokit
