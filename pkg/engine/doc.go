/*
Package engine is the typed protocol client for the secrets engine's HTTP
API: seal-status, init, unseal, step-down, raft join and configuration, and
fetching unseal keys from a key-value path.

Operations are defined against the small Sender capability (send one
request, await readiness) rather than a concrete transport, so the same
client runs over a port-forwarded channel in production and over test
doubles in tests. Endpoints without a watch are observed through poll-await
loops with condition predicates (SealStatusInitialized, AnyLeader,
AllVoters); the loops throttle lightly and stop promptly on cancellation.
*/
package engine
