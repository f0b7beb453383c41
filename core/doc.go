// Package core contains the canonical domain contracts, entities, and schema
// registry for the unified provider layer. Lower-level adapters must depend on
// this package; core must not depend on provider-specific or
// transport-specific adapters.
package core
