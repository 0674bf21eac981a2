// Package daemon ties the queue, sink session, curator, and stores together
// behind a single-instance process lock, and exposes them over a local HTTP
// API plus a LAN-facing media file server.
package daemon
