// Package server hosts the Fiber HTTP surface over the configured cache
// namespaces: the namespace registry built from config, the request-id
// middleware, and the /cache/:ns/* handlers that map HTTP verbs onto the
// Cache facade. Diagnostics live under /-/ and are registered by the routes
// subpackage, so keep exports narrow and accept explicit dependencies.
package server
