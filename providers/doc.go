// Package providers holds the provider adapter base and the shared HTTP
// helpers the concrete adapters build on. Each provider lives in its own
// subpackage and embeds Unimplemented so partial integrations fail with
// not_supported instead of compile errors.
package providers
