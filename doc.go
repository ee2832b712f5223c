// Package pe4kin is a pooled HTTP client for a single upstream API,
// optionally reached through a forward proxy via CONNECT tunneling.
//
// Every request leases a persistent connection from a bounded pool, performs
// the request with a bounded-time response await, and returns the connection
// to the pool, discarding it on failure so the pool can create a replacement.
//
// # Lifecycle
//
// Build a client with [Start] and tear it down with [Client.Stop]:
//
//	client, err := pe4kin.Start(pe4kin.Config{
//		UpstreamURL: "https://api.example.com",
//		PoolSize:    8,
//	})
//	if err != nil {
//		return err
//	}
//	defer client.Stop()
//
// # Requests
//
// [Client.Get] performs a simple request; [Client.Post] sends a body built
// with [Raw], [Form], [JSON] or [Multipart]:
//
//	resp, err := client.Post(ctx, "/v1/items",
//		[]pe4kin.Header{{Name: "content-type", Value: "application/json"}},
//		pe4kin.JSON(map[string]int{"a": 1}),
//	)
//
// Multipart bodies are streamed part by part over an open request body; file
// parts are read fully into memory before sending:
//
//	resp, err := client.Post(ctx, "/v1/upload",
//		[]pe4kin.Header{{Name: "content-type", Value: "multipart/form-data"}},
//		pe4kin.Multipart(
//			pe4kin.FilePart{Path: "photo.png", Disposition: disp},
//			pe4kin.FieldPart{Name: "caption", Value: []byte("hi")},
//		),
//	)
//
// # Errors
//
// Failures carry their cause: [ErrPoolUnavailable] and [ErrTimeout] match
// with errors.Is; [TunnelError], [TransportError] and [FileError] with
// errors.As. Errors are returned unchanged to the caller; no retry happens
// inside the client.
package pe4kin
