/*
Package resilience provides a circuit breaker for the snapshot persistence path.

When the snapshot directory becomes unwritable (disk full, permissions, a
vanished mount) every queued snapshot would otherwise repeat the same failing
syscalls. The breaker opens after repeated failures, lets the worker drop
snapshots cheaply while open, and admits trial writes once the timeout passes.

# Usage

	breaker := resilience.New("snapshot-writer", resilience.Settings{
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	err := breaker.Do(func() error {
		return writeFile(path, data)
	})

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open
*/
package resilience
