// Package mocks provides test doubles for ports interfaces.
//
// These mocks are designed to be simple, thread-safe, in-memory implementations
// suitable for unit testing. Each mock provides:
//
//   - Default behavior mirroring the upsert semantics of the real store
//   - Callback functions (xxxFn) for customizing behavior per test
//   - Helper methods for setting state directly
//   - Snapshot methods for comparing final state across runs
//
// # Usage Example
//
//	func TestMyService(t *testing.T) {
//		gw := mocks.NewGateway()
//		gw.SeedFeedback(&domain.Feedback{ID: "fb-1", Status: domain.StatusQueued})
//
//		svc := NewService(gw)
//		// ... test service behavior
//	}
//
// # Available Mocks
//
//   - Gateway: implements ports.Gateway
//   - EvidenceStore: implements ports.EvidenceStore
//   - RunQueue: implements ports.RunQueue
//
// Additional mocks can be added as needed following the same patterns.
package mocks
