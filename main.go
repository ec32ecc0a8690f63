// The main package for the award-digest executable.
//
// Architecture overview:
//   - Sync cycle: internal/cycle.Coordinator asks internal/sicap.Resolver for the first award-portal address
//     that answers (each address gets a bounded retry budget with linear backoff), normalizes and filters the
//     items through internal/award, upserts them in chunks to the configured store, then builds the digest in
//     internal/digest and hands it to the notifier. A failed address walk never crashes the cycle.
//   - Stores: REST (PostgREST/Supabase), Postgres through pgx, or memory. Cycle history lands in Postgres or
//     memory through the progress hub. An optional Redis cache fronts listings.
//   - Serve mode: internal/api exposes health, metrics, cycle submission and history, award listing/export and
//     company lookup. Cycles from the API and the cron schedule flow through a bounded queue into a single
//     worker, so cycles never overlap.
//   - Plumbing: viper/godotenv configuration (AWARDS_ prefix), zap logging, Prometheus metrics, OpenTelemetry
//     trace propagation into Pub/Sub attributes.
//
// Quick checklist:
//   - One-shot run: award-digest sync [--start YYYY-MM-DD --end YYYY-MM-DD] [--strict].
//   - Service: award-digest serve --config config.yaml.
//   - Interactive: award-digest awards list, award-digest awards export --format xlsx, award-digest company RO123.
package main

import (
	"github.com/JakeFAU/award-digest/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
