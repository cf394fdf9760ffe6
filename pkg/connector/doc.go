// Package connector groups the sync functions served by this module.
//
// The tree is organized as:
//
//   - core: the Function interface every connector implements. A Function
//     turns a request (state plus secrets) into one SyncBatch.
//
//   - registry: a name-keyed factory table. Connectors register themselves
//     from init so that commands can create them by name.
//
//   - logevents: the MediaWiki log-events connector.
//
// Connectors are stateless. Everything a call needs to resume arrives in the
// request's state, and the returned batch carries the state for the next
// call. Callers loop while the batch reports hasMore.
//
// # Basic Usage
//
//	fn, err := registry.Create(logevents.ConnectorName, config.NewDefault(), logger)
//	if err != nil {
//	    return err
//	}
//	batch, err := fn.Handle(ctx, &models.Request{
//	    State:   models.State{},
//	    Secrets: models.Secrets{models.SecretBaseURL: "https://example.org/w/api.php"},
//	})
package connector
