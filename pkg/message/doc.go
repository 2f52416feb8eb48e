// Package message defines the domain message exchanged with the cloud
// service: a byte or string payload, a string property map and the optional
// message-id and correlation-id.
//
// Inbound messages are answered with a Disposition:
//
//   - Accepted: processed, remove from the device queue
//   - Abandoned: not processed, the service may redeliver it
//   - Rejected: permanently failed, do not redeliver
package message
