// Package logevents is a stateless sync connector for the MediaWiki
// log-events API.
//
// Every invocation receives the state produced by the previous one together
// with the BASE_URL secret, fetches one page of events for the configured
// page title that are newer than the stored watermark, and returns them with
// the next state:
//
//	{
//	  "state":   {"last_updated": "2024-05-06T07:08:09Z"},
//	  "insert":  {"logevents": [...]},
//	  "delete":  {"logevents": []},
//	  "schema":  {"logevents": {"primary_key": ["log_id"]}},
//	  "hasMore": false
//	}
//
// While the upstream returns a continuation token the watermark is held and
// the token is carried in state.continue, so a page run always restarts from
// the same lestart. Once the run is exhausted the watermark advances to the
// time the final call started.
//
// # Entry Points
//
//   - cmd/logevents: CLI with invoke, sync and serve commands
//   - cmd/logevents-lambda: AWS Lambda handler
//   - internal/server: HTTP invocation endpoint
//   - internal/runner: local loop that drives the connector to completion,
//     delivering records to a sink and persisting state
//
// # Packages
//
//   - pkg/connector/logevents: the connector itself
//   - pkg/config: YAML/env configuration via viper
//   - pkg/sink: file, S3, GCS and Kafka record sinks
//   - pkg/state: memory, file and PostgreSQL state stores
//   - pkg/clients: rate-limited HTTP client
//   - pkg/logger, pkg/errors, pkg/metrics, pkg/observability: ambient stack
package logevents
