// Package handlers contains HTTP handler interfaces and implementations.
//
// The HealthChecker interface allows registering multiple named health
// checks that are executed in parallel:
//
//	checker := handlers.NewCompositeHealthChecker("v1.0.0")
//	checker.AddCheck("storage", handlers.NewStorageCheck(store))
//	checker.AddCheck("catalog", handlers.NewCatalogCheck(catalog))
//
//	status := checker.Check(ctx)
//	if !status.Healthy {
//	    log.Printf("Health check failed: %s", status.Message)
//	}
//
// Each check runs under its own timeout, so one slow backend cannot
// stall the whole probe. A NoopHealthChecker is available for tests
// and for deployments that do not need backend probes.
package handlers
