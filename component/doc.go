// Package component defines the lifecycle interface shared by the long-lived
// parts of a streamkit process and a Registry that starts them in
// registration order and stops them in reverse.
//
// # Interfaces
//
//   - Component: Start/Stop/Health lifecycle
//   - Describable: startup summary descriptions
//   - RouteProvider: HTTP routes for the startup summary
package component
