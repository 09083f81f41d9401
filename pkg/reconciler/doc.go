/*
Package reconciler runs the controller's periodic maintenance.

Two tickers drive it:

	resync (default 5m)  every connected satellite gets a full sync, which
	                     repairs any update lost while a push was queued
	purge  (default 1m)  objects marked for deletion that no longer wait for
	                     a satellite confirmation are physically removed

Both tasks go through the controller's regular entry points and take the
same locks as the API handlers, so a cycle never observes a half-applied
change.

# Usage

	r := reconciler.NewReconciler(ctrl, cfg.ResyncInterval, cfg.PurgeInterval)
	r.Start()
	defer r.Stop()

Run wraps Start and Stop for use in an errgroup:

	g.Go(func() error { return r.Run(ctx) })

# Metrics

	burrow_maintenance_runs_total{task, outcome}
	burrow_maintenance_duration_seconds{task}
*/
package reconciler
