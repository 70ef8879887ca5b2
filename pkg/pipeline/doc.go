// Package pipeline implements an HTTP/1.1 client that pipelines GET
// requests to a single origin over one persistent connection.
//
// An Endpoint owns a Factory, the FIFO of queries not yet sent, and at
// most one session, the live connection. Queries are written back to back
// and their responses are matched in send order. When the connection
// drops, unanswered queries go back to the head of the queue and the
// reconnection Policy decides whether and when to dial again. A
// connection with nothing to do is closed after an idle timeout and
// reopened on the next Submit.
package pipeline
