// ABOUTME: Telemetry constructors for tests: disabled telemetry so real components run without exporters
// ABOUTME: No metrics are mocked here; component tests bring their own recording servers

package telemetry

// NewForTesting returns a no-op telemetry instance for use in tests.
func NewForTesting() Telemetry {
	return NewNoop()
}
