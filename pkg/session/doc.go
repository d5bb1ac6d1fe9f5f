/*
Package session orchestrates access to AI-conversation state.

The Manager serializes operations on one conversation (locally with a refcounted mutex, across
replicas with an optional ports.DistributedLocker), rejects answers submitted while the
previous answer's question is still being generated, and persists every transition either
synchronously or through a persistence.Queue.
*/
package session
