// Package schedule computes when the chime fires next.
//
// ComputeNextFire maps a Config and the current time onto a NextFire. It is
// pure: the caller always passes now explicitly and invalid input is
// normalized instead of rejected. Upcoming previews a series of fire times
// and uses cron expressions for the daily specific-time mode.
package schedule
