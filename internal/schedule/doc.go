// Package schedule triggers the pipeline in daemon mode.
//
// A schedule string is either a cron expression (robfig/cron, 5 or 6
// fields, descriptors such as "@hourly") or a fixed interval ("55m",
// "every:2h", "02:30"). Runs never overlap: a trigger that fires while the
// previous run is still going is skipped.
package schedule
