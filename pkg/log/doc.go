/*
Package log provides structured logging for dc1agent using zerolog.

The log package wraps zerolog to give every component JSON-structured
(or console-formatted, for local runs) logging with a shared global
Logger plus scoped child loggers for the identifiers that recur across
this agent's domain: component name, job ID, agent ID, and peer name.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	log.Logger.Info().Msg("dc1agent started")

	jobLog := log.WithJobID("job-42")
	jobLog.Warn().Err(err).Msg("remote checkpoint write attempt failed")

	peerLog := log.WithPeer("ATLAS")
	peerLog.Error().Msg("peer has gone silent")

Child loggers returned by the With* helpers carry their scoping field
on every subsequent entry; callers should hold onto the returned
zerolog.Logger rather than calling WithJobID repeatedly in a hot loop.
*/
package log
