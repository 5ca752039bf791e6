// Package generation wraps the HTTP API that turns audio or video blobs plus
// a prompt into generated text documents.
package generation
