// Package errors implements the robotlink error taxonomy.
//
// # Overview
//
// The control link distinguishes four failure families, each with its own
// handling policy:
//
//   - ErrBackendUnavailable: the backing library or service is absent.
//     Surfaced immediately, never retried.
//   - ErrTransport: refused, reset, or severed socket. Retryable with
//     backoff at connect time; an in-flight command on a severed transport
//     must reconnect before retrying.
//   - ErrCommandTimeout: no reply within the deadline. Retryable.
//   - ErrMalformedResponse: reply text that could not be classified.
//     A failure, logged distinctly so it is diagnosable from a true
//     device-reported error.
//
// Classification combines ClassifiedError with sentinel variables, so
// callers use errors.Is/errors.As rather than string matching:
//
//	if err := mgr.Connect(ctx); err != nil {
//	    if errors.IsRetryable(err) {
//	        // backoff and retry
//	    }
//	}
//
// # Wrapping
//
// All wrapping follows "component.method: action failed: %w":
//
//	return errors.WrapTransient(err, "Manager", "Connect", "dial command port")
//
// The Wrap family preserves sentinel identity through the chain, so
// errors.Is(err, errors.ErrTransport) holds on wrapped values.
//
// No raw transport error crosses out of the backend package; adapters
// convert net and nats failures into this taxonomy at the boundary.
package errors
