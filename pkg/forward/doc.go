/*
Package forward carries HTTP/1.1 to a member pod over the platform's
port-forward facility.

A StreamDialer turns a pod name and port into a raw byte stream; Channel
speaks HTTP over that single stream, one request at a time, buffering each
response fully before returning it. OpenTLS wraps the stream in a TLS
session verified against a configured server name with the platform root
certificates; a handshake failure is fatal for the channel.

Callers treat a Channel as a one-active-request resource. Opening a channel
against a freshly restarted member races the pod's listening socket, so
callers retry opens with bounded backoff.
*/
package forward
