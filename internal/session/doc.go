// Package session identifies recording sessions and locates their storage
// directories.
//
// A session id has the form <prefix>_<mouse>_<YYYYMMDD>, optionally followed
// by an _<HHMMSS> acquisition time, where the prefix is either a project tag
// (DRpilot) or a ten digit LIMS id. Sessions are resolved once from an id or
// a path and are immutable afterwards.
package session
