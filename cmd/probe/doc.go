// Command probe is the command-line companion of the method tracing engine.
//
// Subcommands:
//
//	probe read <file|dir|pattern>   print captured snapshot files
//	probe config [-f yaml|toml|json] print the effective configuration
//	probe demo [--dir d] [--fail]    trace a sample call tree end to end
//	probe serve [--addr :9876]       run the engine with its status server
//
// Configuration is layered: built-in defaults, then the file given with
// --config, then PROBE_* environment variables (for example
// PROBE_TREE_ENTRY_METHODS=orders.Service.Place). The read command exits
// non-zero when the pattern matches no file.
//
// Signals:
//   - SIGINT, SIGTERM: serve drains its queues and exits
package main
